package storage

import (
	"errors"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// ErrNotFound is returned when a lookup matches no record
var ErrNotFound = errors.New("not found")

// ErrExecutionActive is returned when deleting an execution that still
// holds (or may hold) cluster resources
var ErrExecutionActive = errors.New("execution is active")

// Filters restricts list operations to records whose named column equals
// the given value. An empty Filters matches everything.
type Filters map[string]interface{}

// Store is the durable mapping of executions, services and users. Every
// creation and state transition is durable before the call returns; writes
// are serialized so that observers see transitions for a given execution in
// submission order.
type Store interface {
	// Users
	UserNew(name string, role types.UserRole) (int, error)
	UserGet(id int) (*types.User, error)
	UserGetByName(name string) (*types.User, error)

	// Executions
	ExecutionNew(name string, userID int, description *types.AppSpec) (int, error)
	ExecutionGet(id int) (*types.Execution, error)
	ExecutionList(filters Filters) ([]*types.Execution, error)
	ExecutionDelete(id int) error

	// Execution state transitions
	SetScheduled(id int) error
	SetStarting(id int) error
	SetRunning(id int) error
	SetCleaningUp(id int) error
	SetTerminated(id int) error
	SetError(id int, msg string) error
	SetErrorMessage(id int, msg string) error

	// Services
	ServiceGet(id int) (*types.Service, error)
	ServiceList(filters Filters) ([]*types.Service, error)
	SetServiceClusterID(id int, clusterID, ipAddress string) error
	ClearServiceClusterID(id int) error
	SetServiceStatus(id int, status types.ServiceStatus) error
	SetServiceClusterStatus(id int, status types.ClusterStatus) error

	// Utility
	Close() error
}
