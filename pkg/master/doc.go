/*
Package master carries the channel between the web front-end and the
master process.

The channel is a JSON request/reply exchange over HTTP with four commands:
execution_start, execution_terminate, execution_delete and
scheduler_statistics. Every reply carries a success flag and a message; a
transport failure surfaces to the client as ErrUnavailable, which the
front-end treats as "leave the execution in submitted and retry later".

Server is the master side, dispatching commands to the scheduler and the
state store. Client is the front-end side.
*/
package master
