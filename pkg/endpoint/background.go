package endpoint

import (
	"context"
	"time"

	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// RunBackgroundTasks periodically resubmits stuck executions and reaps
// executions whose monitor service died, until the context is cancelled.
func (e *APIEndpoint) RunBackgroundTasks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RetrySubmitErrors()
			e.CleanupDeadExecutions(ctx)
		}
	}
}

// RetrySubmitErrors re-enqueues executions left in the submitted state by a
// master outage.
func (e *APIEndpoint) RetrySubmitErrors() {
	executions, err := e.store.ExecutionList(storage.Filters{"status": types.ExecutionSubmitted})
	if err != nil {
		e.logger.Error().Err(err).Msg("cannot list submitted executions")
		return
	}
	for _, execution := range executions {
		if err := e.master.ExecutionStart(execution.ID); err != nil {
			e.logger.Warn().Int("execution_id", execution.ID).Err(err).Msg("resubmission failed, will retry")
			continue
		}
		e.logger.Info().Int("execution_id", execution.ID).Msg("stuck execution resubmitted")
	}
}

// CleanupDeadExecutions refreshes the cluster status of every running
// execution's services and terminates executions whose monitor service has
// died.
func (e *APIEndpoint) CleanupDeadExecutions(ctx context.Context) {
	executions, err := e.store.ExecutionList(storage.Filters{"status": types.ExecutionRunning})
	if err != nil {
		e.logger.Error().Err(err).Msg("cannot list running executions")
		return
	}

	for _, execution := range executions {
		services, err := e.store.ServiceList(storage.Filters{"execution_id": execution.ID})
		if err != nil {
			e.logger.Error().Int("execution_id", execution.ID).Err(err).Msg("cannot list services")
			continue
		}

		monitorDied := false
		for _, service := range services {
			if service.ClusterID == "" {
				continue
			}
			info, err := e.driver.Inspect(ctx, service.ClusterID)
			if err != nil {
				e.logger.Warn().Int("service_id", service.ID).Err(err).Msg("cannot inspect container")
				continue
			}
			if info.Status != service.ClusterStatus {
				if err := e.store.SetServiceClusterStatus(service.ID, info.Status); err != nil {
					e.logger.Error().Int("service_id", service.ID).Err(err).Msg("cannot update cluster status")
				}
			}
			if service.Description != nil && service.Description.Monitor &&
				(info.Status == types.ClusterStatusDied || info.Status == types.ClusterStatusDestroyed) {
				monitorDied = true
			}
		}

		if monitorDied {
			e.logger.Info().Int("execution_id", execution.ID).Msg("monitor service died, terminating execution")
			if err := e.master.ExecutionTerminate(execution.ID); err != nil {
				e.logger.Error().Int("execution_id", execution.ID).Err(err).Msg("cannot terminate dead execution")
			}
		}
	}
}
