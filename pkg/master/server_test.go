package master

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoe-analytics/zoe/pkg/cluster"
	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/deploy"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

const gib = int64(1) << 30

func testApp() *types.AppSpec {
	return &types.AppSpec{
		Name:     "testapp",
		Version:  1,
		Priority: 512,
		Services: []*types.ServiceSpec{
			{
				Name:              "main",
				Image:             "example/one:latest",
				Monitor:           true,
				RequiredResources: types.Resources{Memory: gib},
				Ports:             []*types.Endpoint{},
			},
		},
	}
}

type fixture struct {
	store  *storage.BoltStore
	driver *cluster.FakeDriver
	client *Client
	userID int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	uid, err := store.UserNew("alice", types.UserRoleUser)
	require.NoError(t, err)

	driver := cluster.NewFakeDriver(16*gib, 4)
	sched := scheduler.NewScheduler(store, deploy.NewDeployer(store, driver, config.Default()))
	sched.Start()
	t.Cleanup(sched.Quit)

	srv := NewServer(store, sched, "127.0.0.1:0")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{
		store:  store,
		driver: driver,
		client: NewClient(ts.URL),
		userID: uid,
	}
}

func (f *fixture) newExecution(t *testing.T, name string) int {
	t.Helper()
	id, err := f.store.ExecutionNew(name, f.userID, testApp())
	require.NoError(t, err)
	return id
}

func (f *fixture) waitStatus(t *testing.T, id int, status types.ExecutionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		exec, err := f.store.ExecutionGet(id)
		return err == nil && exec.Status == status
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExecutionStart(t *testing.T) {
	f := newFixture(t)
	id := f.newExecution(t, "started")

	require.NoError(t, f.client.ExecutionStart(id))
	f.waitStatus(t, id, types.ExecutionRunning)
	assert.Equal(t, 1, f.driver.RunningContainers())
}

func TestExecutionStartUnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.client.ExecutionStart(9999)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "no such execution", cmdErr.Message)
}

func TestExecutionStartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.newExecution(t, "resubmitted")

	require.NoError(t, f.client.ExecutionStart(id))
	f.waitStatus(t, id, types.ExecutionRunning)

	// The resubmission loop may deliver the same start twice; the second
	// delivery must not queue or start anything.
	require.NoError(t, f.client.ExecutionStart(id))
	assert.Equal(t, 1, f.driver.SpawnCount())
	assert.Equal(t, 1, f.driver.RunningContainers())
}

func TestExecutionTerminate(t *testing.T) {
	f := newFixture(t)
	id := f.newExecution(t, "terminated")
	require.NoError(t, f.client.ExecutionStart(id))
	f.waitStatus(t, id, types.ExecutionRunning)

	require.NoError(t, f.client.ExecutionTerminate(id))
	f.waitStatus(t, id, types.ExecutionTerminated)
	assert.Equal(t, 0, f.driver.RunningContainers())
}

func TestExecutionTerminateNotRunning(t *testing.T) {
	f := newFixture(t)
	id := f.newExecution(t, "terminated")
	require.NoError(t, f.client.ExecutionStart(id))
	f.waitStatus(t, id, types.ExecutionRunning)
	require.NoError(t, f.client.ExecutionTerminate(id))
	f.waitStatus(t, id, types.ExecutionTerminated)

	err := f.client.ExecutionTerminate(id)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "execution is not running", cmdErr.Message)
}

func TestExecutionDeleteActive(t *testing.T) {
	f := newFixture(t)
	id := f.newExecution(t, "deleted")
	require.NoError(t, f.client.ExecutionStart(id))
	f.waitStatus(t, id, types.ExecutionRunning)

	// Delete of an active execution terminates it first
	require.NoError(t, f.client.ExecutionDelete(id))
	assert.Equal(t, 0, f.driver.RunningContainers())

	_, err := f.store.ExecutionGet(id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSchedulerStatistics(t *testing.T) {
	f := newFixture(t)

	stats, err := f.client.SchedulerStatistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.QueueLength)
	assert.Equal(t, 0, stats.TerminationThreadsCount)
}

func TestClientMasterUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	err := client.ExecutionStart(1)
	assert.ErrorIs(t, err, ErrUnavailable)
}
