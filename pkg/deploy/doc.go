/*
Package deploy turns validated executions into running cluster containers
and back.

Start is the materialization path: a best-effort admission pre-flight
against cluster capacity, then one container per service in declaration
order. Environment variable values and the service command are
interpolated with {execution_name}, {user_name} and {deployment_name}
before spawning, and every container gets the owner's workspace directory
bind-mounted at /mnt/workspace.

A failed spawn rolls back all sibling containers of the execution before
reporting either a TransientStartError (the scheduler requeues the
execution) or a FatalStartError (the execution moves to the error state).

Teardown is symmetric: it terminates every container the execution still
owns, attempting all of them even when some fail, and clears the cluster
bookkeeping of each service it manages to stop.
*/
package deploy
