package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoe-analytics/zoe/pkg/types"
)

func testStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testApp() *types.AppSpec {
	return &types.AppSpec{
		Name:     "testapp",
		Version:  1,
		Priority: 512,
		Services: []*types.ServiceSpec{
			{
				Name:              "main",
				Image:             "example/main:latest",
				Monitor:           true,
				RequiredResources: types.Resources{Memory: 1 << 30},
				Ports:             []*types.Endpoint{},
			},
			{
				Name:              "aux",
				Image:             "example/aux:latest",
				RequiredResources: types.Resources{Memory: 1 << 30},
				Ports:             []*types.Endpoint{},
			},
		},
	}
}

func TestUserLifecycle(t *testing.T) {
	store := testStore(t)

	id, err := store.UserNew("alice", types.UserRoleAdmin)
	require.NoError(t, err)

	user, err := store.UserGet(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, types.UserRoleAdmin, user.Role)

	byName, err := store.UserGetByName("alice")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)

	_, err = store.UserGetByName("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecutionNewCreatesServiceRows(t *testing.T) {
	store := testStore(t)
	uid, err := store.UserNew("bob", types.UserRoleUser)
	require.NoError(t, err)

	id, err := store.ExecutionNew("exp-1", uid, testApp())
	require.NoError(t, err)

	exec, err := store.ExecutionGet(id)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSubmitted, exec.Status)
	assert.False(t, exec.TimeSubmit.IsZero())
	assert.Nil(t, exec.TimeStart)
	require.Len(t, exec.Services, 2)
	assert.Equal(t, "main", exec.Services[0].Name)
	assert.Equal(t, types.ServiceInactive, exec.Services[0].Status)
	assert.Equal(t, types.ClusterStatusUndefined, exec.Services[0].ClusterStatus)
	assert.Empty(t, exec.Services[0].ClusterID)
}

func TestExecutionTransitions(t *testing.T) {
	store := testStore(t)
	uid, _ := store.UserNew("bob", types.UserRoleUser)
	id, err := store.ExecutionNew("exp-1", uid, testApp())
	require.NoError(t, err)

	require.NoError(t, store.SetScheduled(id))
	require.NoError(t, store.SetStarting(id))

	exec, err := store.ExecutionGet(id)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStarting, exec.Status)
	require.NotNil(t, exec.TimeStart)
	firstStart := *exec.TimeStart

	// A retry loop must not reset the original start time
	require.NoError(t, store.SetScheduled(id))
	require.NoError(t, store.SetStarting(id))
	exec, _ = store.ExecutionGet(id)
	assert.Equal(t, firstStart, *exec.TimeStart)

	require.NoError(t, store.SetRunning(id))
	exec, _ = store.ExecutionGet(id)
	assert.True(t, exec.IsActive())
	assert.Nil(t, exec.TimeEnd)

	require.NoError(t, store.SetCleaningUp(id))
	require.NoError(t, store.SetTerminated(id))
	exec, _ = store.ExecutionGet(id)
	assert.Equal(t, types.ExecutionTerminated, exec.Status)
	assert.False(t, exec.IsActive())
	assert.NotNil(t, exec.TimeEnd)
}

func TestSetErrorRecordsMessage(t *testing.T) {
	store := testStore(t)
	uid, _ := store.UserNew("bob", types.UserRoleUser)
	id, _ := store.ExecutionNew("exp-1", uid, testApp())

	require.NoError(t, store.SetError(id, "image not found"))
	exec, err := store.ExecutionGet(id)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionError, exec.Status)
	assert.Equal(t, "image not found", exec.ErrorMessage)
	assert.NotNil(t, exec.TimeEnd)
}

func TestExecutionDelete(t *testing.T) {
	store := testStore(t)
	uid, _ := store.UserNew("bob", types.UserRoleUser)
	id, _ := store.ExecutionNew("exp-1", uid, testApp())

	// Active executions cannot be deleted
	err := store.ExecutionDelete(id)
	assert.ErrorIs(t, err, ErrExecutionActive)

	require.NoError(t, store.SetTerminated(id))
	require.NoError(t, store.ExecutionDelete(id))

	_, err = store.ExecutionGet(id)
	assert.ErrorIs(t, err, ErrNotFound)

	// Service rows are gone too
	services, err := store.ServiceList(Filters{"execution_id": id})
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestExecutionListFilters(t *testing.T) {
	store := testStore(t)
	alice, _ := store.UserNew("alice", types.UserRoleUser)
	bob, _ := store.UserNew("bob", types.UserRoleUser)

	e1, _ := store.ExecutionNew("a-1", alice, testApp())
	e2, _ := store.ExecutionNew("b-1", bob, testApp())
	require.NoError(t, store.SetScheduled(e2))

	all, err := store.ExecutionList(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ExecutionList(Filters{"user_id": alice})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, e1, mine[0].ID)

	submitted, err := store.ExecutionList(Filters{"status": types.ExecutionSubmitted})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, e1, submitted[0].ID)
}

func TestServiceUpdates(t *testing.T) {
	store := testStore(t)
	uid, _ := store.UserNew("bob", types.UserRoleUser)
	execID, _ := store.ExecutionNew("exp-1", uid, testApp())

	services, err := store.ServiceList(Filters{"execution_id": execID})
	require.NoError(t, err)
	require.Len(t, services, 2)
	svc := services[0]

	require.NoError(t, store.SetServiceClusterID(svc.ID, "abcdef123456", "10.2.0.5"))
	require.NoError(t, store.SetServiceStatus(svc.ID, types.ServiceActive))
	require.NoError(t, store.SetServiceClusterStatus(svc.ID, types.ClusterStatusStarted))

	got, err := store.ServiceGet(svc.ID)
	require.NoError(t, err)
	assert.Equal(t, "abcdef123456", got.ClusterID)
	assert.Equal(t, "10.2.0.5", got.IPAddress)
	assert.Equal(t, types.ServiceActive, got.Status)
	assert.Equal(t, types.ClusterStatusStarted, got.ClusterStatus)

	require.NoError(t, store.ClearServiceClusterID(svc.ID))
	got, _ = store.ServiceGet(svc.ID)
	assert.Empty(t, got.ClusterID)
	assert.Empty(t, got.IPAddress)
}

func TestServiceGetNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.ServiceGet(42)
	assert.ErrorIs(t, err, ErrNotFound)
}
