package endpoint

import (
	"context"
	"errors"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/zoe-analytics/zoe/pkg/cluster"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/master"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
	"github.com/zoe-analytics/zoe/pkg/zapp"
)

// QuotaMaxAppsGuests caps the number of active executions a guest may own.
const QuotaMaxAppsGuests = 1

var executionNameRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// APIEndpoint is the single gate between the public surfaces (REST, CLI)
// and the rest of the system: every operation authorizes the caller and
// checks quotas before touching the store, the master or the cluster.
type APIEndpoint struct {
	store  storage.Store
	master *master.Client
	driver cluster.Driver
	logger zerolog.Logger
}

// NewAPIEndpoint creates the endpoint.
func NewAPIEndpoint(store storage.Store, masterClient *master.Client, driver cluster.Driver) *APIEndpoint {
	return &APIEndpoint{
		store:  store,
		master: masterClient,
		driver: driver,
		logger: log.WithComponent("endpoint"),
	}
}

// ExecutionStart validates the name and the description, persists a new
// execution and asks the master to schedule it. If the master is
// unreachable the execution id is still returned together with
// master.ErrUnavailable: the execution stays submitted and the background
// resubmitter will retry it.
func (e *APIEndpoint) ExecutionStart(user *types.User, name string, rawDescription []byte) (int, error) {
	if len(name) < 4 || len(name) > 128 || !executionNameRe.MatchString(name) {
		return 0, &NameInvalidError{Name: name}
	}

	app, err := zapp.Validate(rawDescription)
	if err != nil {
		return 0, err
	}

	if user.Role == types.UserRoleGuest {
		active, err := e.countActiveExecutions(user.ID)
		if err != nil {
			return 0, err
		}
		if active >= QuotaMaxAppsGuests {
			return 0, ErrQuotaExceeded
		}
	}

	id, err := e.store.ExecutionNew(name, user.ID, app)
	if err != nil {
		return 0, err
	}
	e.logger.Info().Int("execution_id", id).Str("user", user.Name).Msg("execution submitted")

	if err := e.master.ExecutionStart(id); err != nil {
		if errors.Is(err, master.ErrUnavailable) {
			e.logger.Warn().Int("execution_id", id).Msg("master unavailable, execution left submitted")
			return id, err
		}
		return id, err
	}
	return id, nil
}

// ExecutionByID returns one execution, if the caller may see it.
func (e *APIEndpoint) ExecutionByID(user *types.User, id int) (*types.Execution, error) {
	execution, err := e.store.ExecutionGet(id)
	if err != nil {
		return nil, err
	}
	if !e.canAccess(user, execution.UserID) {
		return nil, ErrForbidden
	}
	return execution, nil
}

// ExecutionList returns the executions visible to the caller, newest last.
// Administrators see everything; everyone else sees only their own.
func (e *APIEndpoint) ExecutionList(user *types.User, filters storage.Filters) ([]*types.Execution, error) {
	if filters == nil {
		filters = storage.Filters{}
	}
	if user.Role != types.UserRoleAdmin {
		filters["user_id"] = user.ID
	}
	return e.store.ExecutionList(filters)
}

// ExecutionTerminate asks the master to terminate an active execution.
func (e *APIEndpoint) ExecutionTerminate(user *types.User, id int) error {
	execution, err := e.store.ExecutionGet(id)
	if err != nil {
		return err
	}
	if !e.canAccess(user, execution.UserID) {
		return ErrForbidden
	}
	if !execution.IsActive() {
		return ErrNotRunning
	}
	return e.master.ExecutionTerminate(id)
}

// ExecutionDelete removes an execution permanently. An active execution is
// terminated first; the call returns only when the record is gone.
func (e *APIEndpoint) ExecutionDelete(user *types.User, id int) error {
	execution, err := e.store.ExecutionGet(id)
	if err != nil {
		return err
	}
	if !e.canAccess(user, execution.UserID) {
		return ErrForbidden
	}
	return e.master.ExecutionDelete(id)
}

// ServiceByID returns one service, if the caller may see it.
func (e *APIEndpoint) ServiceByID(user *types.User, id int) (*types.Service, error) {
	service, err := e.store.ServiceGet(id)
	if err != nil {
		return nil, err
	}
	if !e.canAccess(user, service.UserID) {
		return nil, ErrForbidden
	}
	return service, nil
}

// ServiceList returns the services visible to the caller. Administrators
// see everything; everyone else sees only their own.
func (e *APIEndpoint) ServiceList(user *types.User, filters storage.Filters) ([]*types.Service, error) {
	if filters == nil {
		filters = storage.Filters{}
	}
	if user.Role != types.UserRoleAdmin {
		filters["user_id"] = user.ID
	}
	return e.store.ServiceList(filters)
}

// ServiceLogs streams the log of a service's container. A service that has
// no container (never started, or already cleaned up) has no log.
func (e *APIEndpoint) ServiceLogs(ctx context.Context, user *types.User, id int, follow bool) (cluster.LogStream, error) {
	service, err := e.ServiceByID(user, id)
	if err != nil {
		return nil, err
	}
	if service.ClusterID == "" {
		return nil, storage.ErrNotFound
	}
	return e.driver.Logs(ctx, service.ClusterID, follow)
}

// StatisticsScheduler reports the master's queue state.
func (e *APIEndpoint) StatisticsScheduler() (*types.SchedulerStats, error) {
	return e.master.SchedulerStatistics()
}

func (e *APIEndpoint) canAccess(user *types.User, ownerID int) bool {
	return user.Role == types.UserRoleAdmin || user.ID == ownerID
}

func (e *APIEndpoint) countActiveExecutions(userID int) (int, error) {
	executions, err := e.store.ExecutionList(storage.Filters{"user_id": userID})
	if err != nil {
		return 0, err
	}
	active := 0
	for _, execution := range executions {
		if execution.IsActive() {
			active++
		}
	}
	return active, nil
}
