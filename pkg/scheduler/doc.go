/*
Package scheduler decides when executions start and stop.

The policy is strict FIFO: a single loop goroutine pops the head of the
queue and materializes it through the deployer before looking at the next
one. An execution that fails to start for a transient reason goes back to
the tail of the queue, behind everything that arrived while it was being
tried; a fatal failure moves it to the error state instead. Terminations
run in their own goroutines, so tearing down a large execution never
delays the ones waiting to start.

The loop is woken through a bounded trigger channel; a one second timeout
backstops any kicks dropped while the channel was full, so a non-empty
queue always makes progress.
*/
package scheduler
