/*
Package storage provides the durable state store for Zoe.

The Store interface is the only persistence surface in the system. It maps
users, executions and their service instances to a BoltDB database: one
bucket per record kind, records serialized as JSON, integer IDs allocated
from the bucket sequence.

# Semantics

  - Every creation and transition is durable before the call returns
    (BoltDB commits fsync).
  - All writes go through BoltDB's single writer transaction, so
    transitions on one execution are never interleaved.
  - ExecutionGet and ExecutionList return executions with their service
    rows attached.
  - Deleting an active execution is rejected with ErrExecutionActive;
    deleting an execution removes its service rows in the same
    transaction.

# Transitions

The transition helpers (SetScheduled, SetStarting, ...) also maintain the
execution time stamps: TimeSubmit at creation, TimeStart on the first
transition that reaches the starting state, TimeEnd on entry to terminated
or error.

# Example Usage

	store, err := storage.NewBoltStore("/var/lib/zoe")
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.ExecutionNew("experiment-1", user.ID, app)
	execs, err := store.ExecutionList(storage.Filters{"user_id": user.ID})
*/
package storage
