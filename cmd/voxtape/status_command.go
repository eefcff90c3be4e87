package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"voxtape/internal/daemonctl"
	"voxtape/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, live recording, and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snap)
			}
			renderStatus(cmd.OutOrStdout(), snap, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(out io.Writer, snap *daemonctl.Snapshot, now time.Time) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range snap.SystemChecks {
		fmt.Fprintln(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Live Recordings", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(snap.Status.Active) == 0 {
		fmt.Fprintln(out, "No live recordings")
	} else {
		fmt.Fprintln(out, tableView{
			columns: recordingColumns("State", "Elapsed", "Written"),
			rows:    buildActiveRows(snap.Status.Active, now),
		}.render())
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Recordings", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildStatusCountRows(snap.Status.Stats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No recordings yet")
		return
	}
	fmt.Fprintln(out, tableView{
		columns: []column{{title: "Status"}, {title: "Count", measured: true}},
		rows:    rows,
	}.render())
}

func buildActiveRows(active []ipc.ActiveRecording, now time.Time) [][]string {
	rows := make([][]string, 0, len(active))
	for _, rec := range active {
		bridge := "off"
		if rec.BridgeEnabled {
			bridge = strconv.Itoa(rec.BridgePeers) + " peers"
		}
		rows = append(rows, []string{
			rec.ID,
			rec.State,
			formatDisplayTime(rec.StartedAt),
			formatDuration(now.Sub(rec.StartedAt)),
			strconv.Itoa(len(rec.Tracks)),
			fmt.Sprintf("%s / %s", formatBytes(rec.BytesWritten), formatBytes(rec.Ceiling)),
			bridge,
		})
	}
	return rows
}
