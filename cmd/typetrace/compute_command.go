package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"typetrace/internal/ipc"
)

func newComputeCommand(ctx *commandContext) *cobra.Command {
	var dataFlag string

	cmd := &cobra.Command{
		Use:   "compute <type>",
		Short: "Run a computation (matrix|text|image|pattern) on the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data any
			if trimmed := strings.TrimSpace(dataFlag); trimmed != "" {
				if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Compute(ipc.ComputeRequest{
					ComputationType: args[0],
					Data:            data,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}

				result := resp.Result
				if !result.Success {
					return fmt.Errorf("computation failed: %s", result.Error)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "%s finished in %dms (accelerated: %s)\n",
					result.TaskType, result.DurationMS, yesNo(result.UsedAcceleration))
				return writeJSON(cmd, result.Result)
			})
		},
	}

	cmd.Flags().StringVar(&dataFlag, "data", "", "Computation input as a JSON document")
	return cmd
}
