package cmd

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	runsStatus string
	runsLimit  int
	runsOffset int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List conversation runs with status counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if runsStatus != "" {
			q.Set("status", runsStatus)
		}
		q.Set("limit", strconv.Itoa(runsLimit))
		q.Set("offset", strconv.Itoa(runsOffset))
		return do(cmd, http.MethodGet, "/runs?"+q.Encode(), nil)
	},
}

var runTasksCmd = &cobra.Command{
	Use:   "tasks [run-id]",
	Short: "List all tasks of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodGet, "/runs/"+url.PathEscape(args[0])+"/tasks", nil)
	},
}

var taskCmd = &cobra.Command{
	Use:   "task [task-id]",
	Short: "Show a single task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodGet, "/tasks/"+url.PathEscape(args[0]), nil)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run and task counts by status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodGet, "/stats", nil)
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status: active, completed, failed")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "page size (1-100)")
	runsCmd.Flags().IntVar(&runsOffset, "offset", 0, "number of runs to skip")

	runsCmd.AddCommand(runTasksCmd)
	rootCmd.AddCommand(runsCmd, taskCmd, statsCmd)
}
