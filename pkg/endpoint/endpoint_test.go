package endpoint

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoe-analytics/zoe/pkg/cluster"
	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/deploy"
	"github.com/zoe-analytics/zoe/pkg/master"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
	"github.com/zoe-analytics/zoe/pkg/zapp"
)

const gib = int64(1) << 30

const goodDescription = `{
	"name": "testapp",
	"version": 1,
	"will_end": true,
	"priority": 512,
	"requires_binary": false,
	"services": [
		{
			"name": "main",
			"image": "example/one:latest",
			"monitor": true,
			"required_resources": {"memory": 1073741824},
			"environment": [],
			"ports": []
		}
	]
}`

type fixture struct {
	store    *storage.BoltStore
	driver   *cluster.FakeDriver
	endpoint *APIEndpoint
	admin    *types.User
	alice    *types.User
	guest    *types.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	driver := cluster.NewFakeDriver(64*gib, 16)
	sched := scheduler.NewScheduler(store, deploy.NewDeployer(store, driver, config.Default()))
	sched.Start()
	t.Cleanup(sched.Quit)

	srv := master.NewServer(store, sched, "127.0.0.1:0")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	f := &fixture{
		store:    store,
		driver:   driver,
		endpoint: NewAPIEndpoint(store, master.NewClient(ts.URL), driver),
	}
	f.admin = f.newUser(t, "root", types.UserRoleAdmin)
	f.alice = f.newUser(t, "alice", types.UserRoleUser)
	f.guest = f.newUser(t, "visitor", types.UserRoleGuest)
	return f
}

func (f *fixture) newUser(t *testing.T, name string, role types.UserRole) *types.User {
	t.Helper()
	id, err := f.store.UserNew(name, role)
	require.NoError(t, err)
	user, err := f.store.UserGet(id)
	require.NoError(t, err)
	return user
}

func (f *fixture) waitStatus(t *testing.T, id int, status types.ExecutionStatus) *types.Execution {
	t.Helper()
	var exec *types.Execution
	require.Eventually(t, func() bool {
		var err error
		exec, err = f.store.ExecutionGet(id)
		return err == nil && exec.Status == status
	}, 5*time.Second, 10*time.Millisecond, "execution %d never reached %s", id, status)
	return exec
}

func TestExecutionStartHappyPath(t *testing.T) {
	f := newFixture(t)

	id, err := f.endpoint.ExecutionStart(f.alice, "myexp", []byte(goodDescription))
	require.NoError(t, err)
	f.waitStatus(t, id, types.ExecutionRunning)
	assert.Equal(t, 1, f.driver.RunningContainers())
}

func TestExecutionStartBadNames(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"ab", "my exp", "my_exp", "exp/1", ""} {
		_, err := f.endpoint.ExecutionStart(f.alice, name, []byte(goodDescription))
		var nameErr *NameInvalidError
		assert.ErrorAs(t, err, &nameErr, "name %q", name)
	}
}

func TestExecutionStartInvalidDescription(t *testing.T) {
	f := newFixture(t)

	_, err := f.endpoint.ExecutionStart(f.alice, "myexp", []byte(`{"version": 1}`))
	var descErr *zapp.InvalidDescriptionError
	require.ErrorAs(t, err, &descErr)
}

func TestGuestQuota(t *testing.T) {
	f := newFixture(t)

	id, err := f.endpoint.ExecutionStart(f.guest, "first", []byte(goodDescription))
	require.NoError(t, err)
	f.waitStatus(t, id, types.ExecutionRunning)

	_, err = f.endpoint.ExecutionStart(f.guest, "second", []byte(goodDescription))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Once the first execution ends the guest can submit again
	require.NoError(t, f.endpoint.ExecutionTerminate(f.guest, id))
	f.waitStatus(t, id, types.ExecutionTerminated)
	_, err = f.endpoint.ExecutionStart(f.guest, "second", []byte(goodDescription))
	assert.NoError(t, err)
}

func TestOwnershipAuthorization(t *testing.T) {
	f := newFixture(t)

	id, err := f.endpoint.ExecutionStart(f.alice, "private", []byte(goodDescription))
	require.NoError(t, err)
	f.waitStatus(t, id, types.ExecutionRunning)

	// Another non-admin user cannot see or touch it
	_, err = f.endpoint.ExecutionByID(f.guest, id)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.endpoint.ExecutionTerminate(f.guest, id), ErrForbidden)
	assert.ErrorIs(t, f.endpoint.ExecutionDelete(f.guest, id), ErrForbidden)

	// The admin can
	_, err = f.endpoint.ExecutionByID(f.admin, id)
	assert.NoError(t, err)
}

func TestExecutionListScoping(t *testing.T) {
	f := newFixture(t)

	_, err := f.endpoint.ExecutionStart(f.alice, "alices", []byte(goodDescription))
	require.NoError(t, err)
	_, err = f.endpoint.ExecutionStart(f.guest, "guests", []byte(goodDescription))
	require.NoError(t, err)

	mine, err := f.endpoint.ExecutionList(f.alice, nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alices", mine[0].Name)

	all, err := f.endpoint.ExecutionList(f.admin, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestServiceListScoping(t *testing.T) {
	f := newFixture(t)

	aliceExec, err := f.endpoint.ExecutionStart(f.alice, "alices", []byte(goodDescription))
	require.NoError(t, err)
	_, err = f.endpoint.ExecutionStart(f.guest, "guests", []byte(goodDescription))
	require.NoError(t, err)

	mine, err := f.endpoint.ServiceList(f.alice, nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, aliceExec, mine[0].ExecutionID)
	assert.Equal(t, "main", mine[0].Name)

	all, err := f.endpoint.ServiceList(f.admin, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTerminateIdempotence(t *testing.T) {
	f := newFixture(t)

	id, err := f.endpoint.ExecutionStart(f.alice, "myexp", []byte(goodDescription))
	require.NoError(t, err)
	f.waitStatus(t, id, types.ExecutionRunning)

	require.NoError(t, f.endpoint.ExecutionTerminate(f.alice, id))
	f.waitStatus(t, id, types.ExecutionTerminated)

	// A second terminate finds the execution inactive
	assert.ErrorIs(t, f.endpoint.ExecutionTerminate(f.alice, id), ErrNotRunning)
	assert.Equal(t, 0, f.driver.RunningContainers())
}

func TestDeleteActiveExecution(t *testing.T) {
	f := newFixture(t)

	id, err := f.endpoint.ExecutionStart(f.alice, "myexp", []byte(goodDescription))
	require.NoError(t, err)
	f.waitStatus(t, id, types.ExecutionRunning)

	require.NoError(t, f.endpoint.ExecutionDelete(f.alice, id))
	assert.Equal(t, 0, f.driver.RunningContainers())
	_, err = f.store.ExecutionGet(id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMasterUnavailableLeavesSubmitted(t *testing.T) {
	f := newFixture(t)
	deadEndpoint := NewAPIEndpoint(f.store, master.NewClient("http://127.0.0.1:1"), f.driver)

	id, err := deadEndpoint.ExecutionStart(f.alice, "stuck", []byte(goodDescription))
	require.ErrorIs(t, err, master.ErrUnavailable)
	require.NotZero(t, id)

	exec, err := f.store.ExecutionGet(id)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSubmitted, exec.Status)

	// The resubmitter, running with a healthy master, picks it up
	f.endpoint.RetrySubmitErrors()
	f.waitStatus(t, id, types.ExecutionRunning)
}

func TestMonitorDeathTerminatesExecution(t *testing.T) {
	f := newFixture(t)

	id, err := f.endpoint.ExecutionStart(f.alice, "watched", []byte(goodDescription))
	require.NoError(t, err)
	f.waitStatus(t, id, types.ExecutionRunning)

	services, err := f.store.ServiceList(storage.Filters{"execution_id": id})
	require.NoError(t, err)
	require.Len(t, services, 1)
	f.driver.MarkDied(services[0].ClusterID)

	f.endpoint.CleanupDeadExecutions(context.Background())
	f.waitStatus(t, id, types.ExecutionTerminated)
	assert.Equal(t, 0, f.driver.RunningContainers())
}

func TestServiceLogs(t *testing.T) {
	f := newFixture(t)
	f.driver.LogLines = []string{"hello", "world"}

	id, err := f.endpoint.ExecutionStart(f.alice, "logged", []byte(goodDescription))
	require.NoError(t, err)
	f.waitStatus(t, id, types.ExecutionRunning)

	services, err := f.store.ServiceList(storage.Filters{"execution_id": id})
	require.NoError(t, err)
	stream, err := f.endpoint.ServiceLogs(context.Background(), f.alice, services[0].ID, false)
	require.NoError(t, err)
	defer stream.Close()

	line, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello", line.Line)
}

func TestServiceLogsWithoutContainer(t *testing.T) {
	f := newFixture(t)
	deadEndpoint := NewAPIEndpoint(f.store, master.NewClient("http://127.0.0.1:1"), f.driver)

	// Submitted but never started: no container, no log
	id, err := deadEndpoint.ExecutionStart(f.alice, "stuck", []byte(goodDescription))
	require.ErrorIs(t, err, master.ErrUnavailable)

	services, err := f.store.ServiceList(storage.Filters{"execution_id": id})
	require.NoError(t, err)
	_, err = f.endpoint.ServiceLogs(context.Background(), f.alice, services[0].ID, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
