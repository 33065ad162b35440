package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"typetrace/internal/ipc"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Submit tasks and inspect the worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newTaskSubmitCommand(ctx))
	cmd.AddCommand(newTaskHistoryCommand(ctx))
	cmd.AddCommand(newTaskStatsCommand(ctx))
	return cmd
}

func newTaskSubmitCommand(ctx *commandContext) *cobra.Command {
	var dataFlag string
	var waitMillis int64

	cmd := &cobra.Command{
		Use:   "submit <type>",
		Short: "Queue a task on the worker pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data any
			if trimmed := strings.TrimSpace(dataFlag); trimmed != "" {
				if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SubmitTask(ipc.SubmitTaskRequest{
					TaskType:   args[0],
					Data:       data,
					WaitMillis: waitMillis,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				if !resp.Settled {
					fmt.Fprintf(stdout, "Task %d queued (%s)\n", resp.TaskID, resp.TaskType)
					return nil
				}
				result := resp.Result
				if !result.Success {
					return fmt.Errorf("task %d failed: %s", result.TaskID, result.Error)
				}
				fmt.Fprintf(stdout, "Task %d completed in %dms\n", result.TaskID, result.DurationMS)
				if result.Result != nil {
					return writeJSON(cmd, result.Result)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dataFlag, "data", "", "Task payload as a JSON document")
	cmd.Flags().Int64Var(&waitMillis, "wait", 5000, "How long to wait for completion in milliseconds (0 = fire and forget)")
	return cmd
}

func newTaskHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently settled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskHistory(limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(stdout, "No settled tasks recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Entries))
				for _, entry := range resp.Entries {
					detail := ""
					if entry.Error != "" {
						detail = entry.Error
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", entry.TaskID),
						entry.TaskType,
						entry.State,
						fmt.Sprintf("%dms", entry.DurationMS),
						formatTimestamp(entry.CompletedAt),
						detail,
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Type", "State", "Duration", "Completed", "Detail"},
					rows, 1, 4))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to list")
	return cmd
}

func newTaskStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show worker pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PoolStats()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKV([][2]string{
					{"Threads", fmt.Sprintf("%d", resp.Stats.ThreadCount)},
					{"Active", fmt.Sprintf("%d", resp.Stats.Active)},
					{"Completed", fmt.Sprintf("%d", resp.Stats.Completed)},
					{"Failed", fmt.Sprintf("%d", resp.Stats.Failed)},
					{"Uptime", formatUptime(resp.Stats.UptimeMS)},
				}))
				return nil
			})
		},
	}
}
