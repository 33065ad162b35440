package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"typetrace/internal/ipc"
)

func newMemoryCommand(ctx *commandContext) *cobra.Command {
	var optimizeLevel string
	var runGC bool
	var emergency bool

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect memory pressure or run an optimization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()

				switch {
				case runGC:
					resp, err := client.ForceGC()
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp)
					}
					if !resp.Success {
						return fmt.Errorf("forced GC failed: %s", resp.Error)
					}
					fmt.Fprintf(stdout, "GC freed %s (%.2f MB)\n", formatBytes(resp.FreedBytes), resp.FreedMB)
					if resp.Note != "" {
						fmt.Fprintln(stdout, resp.Note)
					}
					return nil

				case optimizeLevel != "" || emergency:
					resp, err := client.OptimizeMemory(ipc.OptimizeRequest{
						Level:     optimizeLevel,
						Emergency: emergency,
					})
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp)
					}
					result := resp.Result
					if !result.Success {
						return fmt.Errorf("optimization failed: %s", result.Error)
					}
					fmt.Fprintf(stdout, "Optimization at level %s freed %s in %dms\n",
						result.Level, formatBytes(result.FreedBytes), result.DurationMS)
					if result.Emergency {
						fmt.Fprintln(stdout, "Emergency mode was applied")
					}
					if result.Note != "" {
						fmt.Fprintln(stdout, result.Note)
					}
					return nil

				default:
					resp, err := client.MemoryStatus()
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintln(stdout, renderKV([][2]string{
						{"Pressure level", resp.Level},
						{"Percent used", fmt.Sprintf("%.1f%%", resp.Memory.PercentUsed)},
						{"Heap used", formatBytes(resp.Memory.HeapUsed)},
						{"Heap total", formatBytes(resp.Memory.HeapTotal)},
						{"RSS", formatBytes(resp.Memory.RSS)},
						{"Sampled", formatTimestamp(resp.Memory.Timestamp)},
					}))
					if resp.Memory.SampleError != "" {
						fmt.Fprintf(stdout, "sample degraded: %s\n", resp.Memory.SampleError)
					}
					return nil
				}
			})
		},
	}

	cmd.Flags().StringVar(&optimizeLevel, "optimize", "", "Run an optimization at the named level (none|low|medium|high|critical)")
	cmd.Flags().BoolVar(&runGC, "gc", false, "Force a single garbage collection pass")
	cmd.Flags().BoolVar(&emergency, "emergency", false, "Force the most aggressive optimization tier")
	return cmd
}
