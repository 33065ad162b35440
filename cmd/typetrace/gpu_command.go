package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"typetrace/internal/ipc"
)

func newGPUCommand(ctx *commandContext) *cobra.Command {
	var accelFlag string

	cmd := &cobra.Command{
		Use:   "gpu",
		Short: "Show detected graphics hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()

				if accelFlag != "" {
					enable, err := parseOnOff(accelFlag)
					if err != nil {
						return err
					}
					resp, err := client.SetComputeMode(enable)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(stdout, "Compute acceleration: %s\n", yesNo(resp.Enabled))
					if resp.Detail != "" {
						fmt.Fprintln(stdout, resp.Detail)
					}
					return nil
				}

				resp, err := client.GPUStatus()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				rows := [][2]string{
					{"Available", yesNo(resp.Available)},
				}
				if resp.Available {
					rows = append(rows,
						[2]string{"Vendor", resp.GPU.Vendor},
						[2]string{"Device", resp.GPU.Device},
						[2]string{"Driver", resp.GPU.DriverHint},
						[2]string{"Devices", fmt.Sprintf("%d", resp.GPU.DeviceCount)},
					)
				}
				rows = append(rows, [2]string{"Probed", formatTimestamp(resp.GPU.ProbedAt)})
				fmt.Fprintln(stdout, renderKV(rows))
				if resp.GPU.ProbeError != "" {
					fmt.Fprintf(stdout, "probe degraded: %s\n", resp.GPU.ProbeError)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&accelFlag, "accel", "", "Request or release the accelerated compute path (on|off)")
	return cmd
}

func parseOnOff(value string) (bool, error) {
	switch value {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q: expected on or off", value)
	}
}
