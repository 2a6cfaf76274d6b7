package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoe-analytics/zoe/pkg/cluster"
	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

const gib = int64(1) << 30

func testApp(memPerService int64) *types.AppSpec {
	return &types.AppSpec{
		Name:     "testapp",
		Version:  1,
		Priority: 512,
		Services: []*types.ServiceSpec{
			{
				Name:              "s1",
				Image:             "example/one:latest",
				Monitor:           true,
				RequiredResources: types.Resources{Memory: memPerService},
				Environment: []types.EnvVar{
					{Name: "EXEC", Value: "{execution_name}"},
					{Name: "OWNER", Value: "{user_name}"},
					{Name: "DEPLOYMENT", Value: "{deployment_name}"},
				},
				Ports: []*types.Endpoint{},
			},
			{
				Name:              "s2",
				Image:             "example/two:latest",
				RequiredResources: types.Resources{Memory: memPerService},
				Ports:             []*types.Endpoint{},
			},
		},
	}
}

type fixture struct {
	store    *storage.BoltStore
	driver   *cluster.FakeDriver
	deployer *Deployer
	exec     *types.Execution
}

func newFixture(t *testing.T, driver *cluster.FakeDriver, memPerService int64) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	uid, err := store.UserNew("alice", types.UserRoleUser)
	require.NoError(t, err)
	id, err := store.ExecutionNew("exp-1", uid, testApp(memPerService))
	require.NoError(t, err)
	exec, err := store.ExecutionGet(id)
	require.NoError(t, err)

	return &fixture{
		store:    store,
		driver:   driver,
		deployer: NewDeployer(store, driver, config.Default()),
		exec:     exec,
	}
}

func TestStartSpawnsAllServices(t *testing.T) {
	f := newFixture(t, cluster.NewFakeDriver(16*gib, 4), gib)

	require.NoError(t, f.deployer.Start(context.Background(), f.exec))
	assert.Equal(t, 2, f.driver.RunningContainers())

	services, err := f.store.ServiceList(storage.Filters{"execution_id": f.exec.ID})
	require.NoError(t, err)
	for _, svc := range services {
		assert.NotEmpty(t, svc.ClusterID)
		assert.NotEmpty(t, svc.IPAddress)
		assert.Equal(t, types.ServiceActive, svc.Status)
		assert.Equal(t, types.ClusterStatusStarted, svc.ClusterStatus)
	}
}

func TestStartRejectsOversizedApplication(t *testing.T) {
	f := newFixture(t, cluster.NewFakeDriver(16*gib, 4), 1000000*gib)

	err := f.deployer.Start(context.Background(), f.exec)
	var fatal *FatalStartError
	require.ErrorAs(t, err, &fatal)
	assert.NotEmpty(t, fatal.Message)
	// Nothing was spawned
	assert.Equal(t, 0, f.driver.SpawnCount())
}

func TestStartRejectsTooManyContainers(t *testing.T) {
	f := newFixture(t, cluster.NewFakeDriver(16*gib, 1), gib)

	err := f.deployer.Start(context.Background(), f.exec)
	var fatal *FatalStartError
	require.ErrorAs(t, err, &fatal)
}

func TestTransientSpawnFailureRollsBack(t *testing.T) {
	driver := cluster.NewFakeDriver(16*gib, 4)
	// First spawn succeeds, second fails transiently
	driver.SpawnErrors = []error{nil, &cluster.TransientError{Op: "spawn", Err: assert.AnError}}
	f := newFixture(t, driver, gib)

	err := f.deployer.Start(context.Background(), f.exec)
	var transient *TransientStartError
	require.ErrorAs(t, err, &transient)

	// The first container was rolled back
	assert.Equal(t, 0, f.driver.RunningContainers())
	services, _ := f.store.ServiceList(storage.Filters{"execution_id": f.exec.ID})
	for _, svc := range services {
		assert.Empty(t, svc.ClusterID)
		assert.Equal(t, types.ServiceInactive, svc.Status)
	}
}

func TestFatalSpawnFailureRollsBack(t *testing.T) {
	driver := cluster.NewFakeDriver(16*gib, 4)
	driver.SpawnErrors = []error{&cluster.FatalError{Op: "image pull", Err: assert.AnError}}
	f := newFixture(t, driver, gib)

	err := f.deployer.Start(context.Background(), f.exec)
	var fatal *FatalStartError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 0, f.driver.RunningContainers())
}

func TestTeardownIsIdempotent(t *testing.T) {
	f := newFixture(t, cluster.NewFakeDriver(16*gib, 4), gib)
	require.NoError(t, f.deployer.Start(context.Background(), f.exec))

	require.NoError(t, f.deployer.Teardown(context.Background(), f.exec))
	assert.Equal(t, 0, f.driver.RunningContainers())

	// A second teardown finds no cluster ids and is a no-op
	require.NoError(t, f.deployer.Teardown(context.Background(), f.exec))

	services, _ := f.store.ServiceList(storage.Filters{"execution_id": f.exec.ID})
	for _, svc := range services {
		assert.Empty(t, svc.ClusterID)
		assert.Equal(t, types.ClusterStatusDestroyed, svc.ClusterStatus)
		assert.Equal(t, types.ServiceInactive, svc.Status)
	}
}

func TestEnvironmentInterpolation(t *testing.T) {
	vars := substVars("exp-1", "alice", "prod")
	assert.Equal(t, "exp-1", interpolate("{execution_name}", vars))
	assert.Equal(t, "alice", interpolate("{user_name}", vars))
	assert.Equal(t, "spark://exp-1-master:7077", interpolate("spark://{execution_name}-master:7077", vars))
	assert.Equal(t, "", interpolate("", vars))
}
