/*
Package endpoint is the authorization and quota gate in front of the
system: the REST front-end and the CLI reach everything through it.

Reads go straight to the state store, scoped to what the caller owns
unless they are an administrator. Writes travel over the master channel,
so the scheduler stays single-owner. Guests are limited to one active
execution.

The endpoint also runs the two periodic background tasks: resubmitting
executions stranded in the submitted state by a master outage, and
terminating running executions whose monitor service died on the cluster.
*/
package endpoint
