package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zoe-analytics/zoe/pkg/auth"
	"github.com/zoe-analytics/zoe/pkg/cluster"
	"github.com/zoe-analytics/zoe/pkg/deploy"
	"github.com/zoe-analytics/zoe/pkg/endpoint"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/master"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
	"github.com/zoe-analytics/zoe/pkg/web"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the Zoe master and web front-end",
	Long: `Run the full Zoe service: the state store, the execution scheduler,
the master channel and the REST front-end, all in one process. The
front-end talks to the master over the channel configured with
master-url, so it can also be pointed at a remote master.`,
	RunE: runMaster,
}

func runMaster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return err
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	driver, err := cluster.NewContainerdDriver(cluster.ContainerdConfig{
		SocketPath: cfg.ClusterSocket,
		Namespace:  cfg.ClusterNamespace,
		Address:    cfg.ClusterAddress,
		LogDir:     cfg.ContainerLogDir,
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	sched := scheduler.NewScheduler(store, deploy.NewDeployer(store, driver, cfg))
	sched.Start()
	defer sched.Quit()

	masterSrv := master.NewServer(store, sched, cfg.APIListenURI)
	if err := masterSrv.Start(); err != nil {
		return err
	}

	authenticator, err := auth.New(cfg)
	if err != nil {
		return err
	}
	ep := endpoint.NewAPIEndpoint(store, master.NewClient(cfg.MasterURL), driver)
	webSrv := web.NewServer(ep, store, authenticator, cfg)
	if err := webSrv.Start(); err != nil {
		return err
	}

	// Executions stranded by the previous shutdown go back in the queue
	requeueScheduled(store, sched)
	ep.RetrySubmitErrors()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go ep.RunBackgroundTasks(bgCtx, time.Duration(cfg.BackgroundInterval)*time.Second)

	logger.Info().Str("deployment", cfg.DeploymentName).Msg("zoe is running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := webSrv.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("web shutdown failed")
	}
	if err := masterSrv.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("master channel shutdown failed")
	}
	return nil
}

func requeueScheduled(store storage.Store, sched *scheduler.Scheduler) {
	logger := log.WithComponent("main")
	executions, err := store.ExecutionList(storage.Filters{"status": types.ExecutionScheduled})
	if err != nil {
		logger.Error().Err(err).Msg("cannot list scheduled executions")
		return
	}
	for _, execution := range executions {
		logger.Info().Int("execution_id", execution.ID).Msg("requeueing execution from previous run")
		sched.Incoming(execution)
	}
}
