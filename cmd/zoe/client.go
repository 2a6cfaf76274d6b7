package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zoe-analytics/zoe/pkg/client"
	"github.com/zoe-analytics/zoe/pkg/types"
	"github.com/zoe-analytics/zoe/pkg/zapp"
)

func newAPIClient() (*client.Client, error) {
	url := os.Getenv("ZOE_URL")
	user := os.Getenv("ZOE_USER")
	pass := os.Getenv("ZOE_PASS")
	if url == "" || user == "" || pass == "" {
		return nil, errors.New("the ZOE_URL, ZOE_USER and ZOE_PASS environment variables must be set")
	}
	return client.NewClient(url, user, pass), nil
}

func argID(args []string) (int, error) {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%q is not a numeric id", args[0])
	}
	return id, nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show deployment information",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		info, err := c.Info()
		if err != nil {
			return err
		}
		fmt.Printf("Zoe version:                %s\n", info.Version)
		fmt.Printf("API version:                %s\n", info.APIVersion)
		fmt.Printf("Application format version: %d\n", info.ApplicationFormatVersion)
		fmt.Printf("Deployment name:            %s\n", info.DeploymentName)
		return nil
	},
}

var appValidateCmd = &cobra.Command{
	Use:   "app-validate <file>",
	Short: "Validate an application description without submitting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		app, err := zapp.Validate(data)
		if err != nil {
			return err
		}
		fmt.Printf("Application description %q is valid (%d services)\n", app.Name, len(app.Services))
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <name> <file>",
	Short: "Submit an application description and start an execution",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		// Validate locally before bothering the server
		if _, err := zapp.Validate(data); err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := c.ExecutionStart(args[0], data)
		if err != nil {
			return err
		}
		fmt.Printf("Application scheduled successfully with ID %d, use the exec-get command to check its status\n", id)
		return nil
	},
}

var execLsCmd = &cobra.Command{
	Use:   "exec-ls",
	Short: "List your executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		executions, err := c.ExecutionList()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSUBMITTED")
		for _, e := range executions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Name, e.Status, e.TimeSubmit.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var execGetCmd = &cobra.Command{
	Use:   "exec-get <id>",
	Short: "Show one execution in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		execution, err := c.ExecutionGet(id)
		if err != nil {
			return err
		}
		printExecution(execution)
		return nil
	},
}

func printExecution(e *types.Execution) {
	fmt.Printf("Execution %d (%s)\n", e.ID, e.Name)
	fmt.Printf("  Status:    %s\n", e.Status)
	if e.ErrorMessage != "" {
		fmt.Printf("  Error:     %s\n", e.ErrorMessage)
	}
	fmt.Printf("  Submitted: %s\n", e.TimeSubmit.Format(time.RFC3339))
	if e.TimeStart != nil {
		fmt.Printf("  Started:   %s\n", e.TimeStart.Format(time.RFC3339))
	}
	if e.TimeEnd != nil {
		fmt.Printf("  Ended:     %s\n", e.TimeEnd.Format(time.RFC3339))
	}
	for _, svc := range e.Services {
		fmt.Printf("  Service %d (%s): %s, container %s\n", svc.ID, svc.Name, svc.Status, svc.ClusterStatus)
		if svc.Description == nil || svc.IPAddress == "" {
			continue
		}
		for _, ep := range svc.Description.Ports {
			fmt.Printf("    %s: %s\n", ep.Name, ep.URL(svc.IPAddress))
		}
	}
}

var execAppGetCmd = &cobra.Command{
	Use:   "exec-app-get <id>",
	Short: "Print the application description of an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		execution, err := c.ExecutionGet(id)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(execution.Description, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var terminateCmd = &cobra.Command{
	Use:   "terminate <id>",
	Short: "Terminate a running execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := c.ExecutionTerminate(id); err != nil {
			return err
		}
		fmt.Printf("Execution %d is being terminated\n", id)
		return nil
	},
}

var execRmCmd = &cobra.Command{
	Use:   "exec-rm <id>",
	Short: "Delete an execution permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := c.ExecutionDelete(id); err != nil {
			return err
		}
		fmt.Printf("Execution %d deleted\n", id)
		return nil
	},
}

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs <service_id>",
	Short: "Print the log of a service's container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		body, err := c.ServiceLogs(id, logsFollow)
		if err != nil {
			return err
		}
		defer body.Close()
		_, err = io.Copy(os.Stdout, body)
		return err
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scheduler statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		stats, err := c.SchedulerStatistics()
		if err != nil {
			return err
		}
		fmt.Printf("Queue length:        %d\n", stats.QueueLength)
		fmt.Printf("Termination workers: %d\n", stats.TerminationThreadsCount)
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "tail", "t", false, "follow the log while the container runs")
}
