package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"typetrace/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, backend, and pool status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				renderStatus(cmd, status)
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, status *ipc.StatusResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	runningKind := statusOK
	if !status.Running {
		runningKind = statusError
	}
	fmt.Fprintln(stdout, renderStatusLine("Running", runningKind, "", colorize))
	fmt.Fprintln(stdout, renderStatusLine("Version", statusInfo, status.Version, colorize))
	fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", status.PID), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Session", statusInfo, status.SessionID, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Uptime", statusInfo, formatUptime(status.UptimeMS), colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Backend", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if status.FallbackMode {
		fmt.Fprintln(stdout, renderStatusLine("Mode", statusWarn, "fallback: "+status.FallbackReason, colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Mode", statusOK, "accelerated", colorize))
	}
	accelKind := statusInfo
	if status.ComputeAccel {
		accelKind = statusOK
	}
	fmt.Fprintln(stdout, renderStatusLine("Compute accel", accelKind, yesNo(status.ComputeAccel), colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Memory", colorize) {
		fmt.Fprintln(stdout, line)
	}
	levelKind := statusOK
	switch status.Level {
	case "medium":
		levelKind = statusInfo
	case "high":
		levelKind = statusWarn
	case "critical":
		levelKind = statusError
	}
	fmt.Fprintln(stdout, renderStatusLine("Pressure", levelKind,
		fmt.Sprintf("%s (%.1f%%)", status.Level, status.Memory.PercentUsed), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Heap", statusInfo,
		fmt.Sprintf("%s of %s", formatBytes(status.Memory.HeapUsed), formatBytes(status.Memory.HeapTotal)), colorize))
	fmt.Fprintln(stdout, renderStatusLine("RSS", statusInfo, formatBytes(status.Memory.RSS), colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Workers", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Threads", statusInfo, fmt.Sprintf("%d", status.Pool.ThreadCount), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Active", statusInfo, fmt.Sprintf("%d", status.Pool.Active), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Completed", statusInfo, fmt.Sprintf("%d", status.Pool.Completed), colorize))
	failedKind := statusInfo
	if status.Pool.Failed > 0 {
		failedKind = statusWarn
	}
	fmt.Fprintln(stdout, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", status.Pool.Failed), colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, dep := range status.Dependencies {
		kind := statusOK
		detail := dep.Path
		if !dep.Available {
			kind = statusWarn
			detail = dep.Detail
		}
		fmt.Fprintln(stdout, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}
