package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"typetrace/internal/ipc"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the typetraced daemon to exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Shutdown()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested")
				}
				return nil
			})
		},
	}
}
