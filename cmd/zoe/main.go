package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zoe",
	Short: "Zoe - analytics applications on a container cluster",
	Long: `Zoe runs user-submitted analytics applications as sets of
containers on a cluster. Application descriptions are validated,
queued and materialized in strict submission order; users interact
through this command or the REST API.

Client subcommands read the environment variables ZOE_URL, ZOE_USER
and ZOE_PASS.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Zoe version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"configuration file (default: zoe.conf, then /etc/zoe/zoe.conf)")

	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(appValidateCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(execLsCmd)
	rootCmd.AddCommand(execGetCmd)
	rootCmd.AddCommand(execAppGetCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(execRmCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statsCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: !cfg.Debug, Output: os.Stderr})
	return cfg, nil
}
