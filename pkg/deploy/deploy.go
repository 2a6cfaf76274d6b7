package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zoe-analytics/zoe/pkg/cluster"
	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// WorkspaceMountPoint is where the per-user workspace appears inside every
// container of an execution
const WorkspaceMountPoint = "/mnt/workspace"

// TransientStartError signals a start failure worth retrying: the execution
// goes back to the scheduler queue.
type TransientStartError struct {
	Message string
}

func (e *TransientStartError) Error() string { return e.Message }

// FatalStartError signals a start failure that will not go away: the
// execution moves to the error state.
type FatalStartError struct {
	Message string
}

func (e *FatalStartError) Error() string { return e.Message }

// Deployer materializes executions into cluster containers and tears them
// down again.
type Deployer struct {
	store  storage.Store
	driver cluster.Driver
	cfg    *config.Config
	logger zerolog.Logger
}

// NewDeployer creates a Deployer.
func NewDeployer(store storage.Store, driver cluster.Driver, cfg *config.Config) *Deployer {
	return &Deployer{
		store:  store,
		driver: driver,
		cfg:    cfg,
		logger: log.WithComponent("deploy"),
	}
}

// Start instantiates every service of the execution on the cluster, in
// declaration order. On any spawn failure all already-spawned containers of
// this execution are rolled back and a TransientStartError or
// FatalStartError is returned.
func (d *Deployer) Start(ctx context.Context, execution *types.Execution) error {
	stats, err := d.driver.Info(ctx)
	if err != nil {
		return &TransientStartError{Message: fmt.Sprintf("cannot query cluster state: %v", err)}
	}

	// Best-effort admission: memory_total includes memory already in use,
	// so this only rejects applications that can never fit.
	app := execution.Description
	if app.TotalMemory() > stats.MemoryTotal {
		return &FatalStartError{Message: fmt.Sprintf("application requires %d bytes of memory, the cluster has only %d", app.TotalMemory(), stats.MemoryTotal)}
	}
	if app.ContainerCount() > stats.CoresTotal {
		return &FatalStartError{Message: fmt.Sprintf("application requires %d containers, the cluster has only %d cores", app.ContainerCount(), stats.CoresTotal)}
	}

	user, err := d.store.UserGet(execution.UserID)
	if err != nil {
		return &FatalStartError{Message: fmt.Sprintf("cannot load owner of execution %d: %v", execution.ID, err)}
	}

	services, err := d.store.ServiceList(storage.Filters{"execution_id": execution.ID})
	if err != nil {
		return &FatalStartError{Message: fmt.Sprintf("cannot list services of execution %d: %v", execution.ID, err)}
	}

	for _, svc := range services {
		if err := d.startService(ctx, execution, user, svc); err != nil {
			d.logger.Warn().Int("execution_id", execution.ID).Str("service", svc.Name).Err(err).Msg("service start failed, rolling back")
			d.rollback(ctx, execution)
			switch {
			case cluster.IsTransient(err):
				return &TransientStartError{Message: err.Error()}
			case cluster.IsFatal(err):
				return &FatalStartError{Message: err.Error()}
			default:
				return &FatalStartError{Message: err.Error()}
			}
		}
	}
	return nil
}

func (d *Deployer) startService(ctx context.Context, execution *types.Execution, user *types.User, svc *types.Service) error {
	vars := substVars(execution.Name, user.Name, d.cfg.DeploymentName)
	spec := svc.Description

	env := make([]types.EnvVar, 0, len(spec.Environment))
	for _, e := range spec.Environment {
		env = append(env, types.EnvVar{Name: e.Name, Value: interpolate(e.Value, vars)})
	}

	binds := []*types.VolumeBind{{
		HostPath:      filepath.Join(d.cfg.WorkspaceBasePath, user.Name),
		ContainerPath: WorkspaceMountPoint,
	}}
	binds = append(binds, spec.Volumes...)

	opts := &cluster.SpawnOptions{
		Name:        types.ContainerName(execution.Name, svc.Name, d.cfg.DeploymentName),
		Environment: env,
		VolumeBinds: binds,
		MemoryLimit: spec.RequiredResources.Memory,
		Command:     interpolate(spec.Command, vars),
		Network:     d.cfg.OverlayNetworkName,
	}

	info, err := d.driver.Spawn(ctx, spec.Image, opts)
	if err != nil {
		return fmt.Errorf("starting service %s: %w", svc.Name, err)
	}

	if err := d.store.SetServiceClusterID(svc.ID, info.ClusterID, info.IPAddress); err != nil {
		return err
	}
	if err := d.store.SetServiceClusterStatus(svc.ID, types.ClusterStatusStarted); err != nil {
		return err
	}
	if err := d.store.SetServiceStatus(svc.ID, types.ServiceActive); err != nil {
		return err
	}

	d.logger.Info().Int("execution_id", execution.ID).Str("service", svc.Name).Str("cluster_id", info.ClusterID).Msg("service started")
	return nil
}

// rollback terminates whatever this execution has already spawned. Errors
// are logged and ignored, the execution is failing anyway.
func (d *Deployer) rollback(ctx context.Context, execution *types.Execution) {
	if err := d.Teardown(ctx, execution); err != nil {
		d.logger.Error().Int("execution_id", execution.ID).Err(err).Msg("rollback failed")
	}
}

// Teardown terminates every container of the execution. Every service is
// attempted even when some terminations fail; the first failure is
// reported. Terminating a container that is already gone counts as
// success.
func (d *Deployer) Teardown(ctx context.Context, execution *types.Execution) error {
	services, err := d.store.ServiceList(storage.Filters{"execution_id": execution.ID})
	if err != nil {
		return fmt.Errorf("cannot list services of execution %d: %w", execution.ID, err)
	}

	var firstErr error
	for _, svc := range services {
		if svc.ClusterID == "" {
			continue
		}
		if err := d.store.SetServiceStatus(svc.ID, types.ServiceTerminating); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := d.driver.Terminate(ctx, svc.ClusterID); err != nil {
			d.logger.Error().Int("service_id", svc.ID).Str("cluster_id", svc.ClusterID).Err(err).Msg("container termination failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := d.store.SetServiceClusterStatus(svc.ID, types.ClusterStatusDestroyed); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := d.store.ClearServiceClusterID(svc.ID); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := d.store.SetServiceStatus(svc.ID, types.ServiceInactive); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func substVars(executionName, userName, deploymentName string) *strings.Replacer {
	return strings.NewReplacer(
		"{execution_name}", executionName,
		"{user_name}", userName,
		"{deployment_name}", deploymentName,
	)
}

func interpolate(s string, vars *strings.Replacer) string {
	if s == "" {
		return ""
	}
	return vars.Replace(s)
}
