package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voxtape/internal/capture"
	"voxtape/internal/ipc"
)

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	recordingsCmd := &cobra.Command{
		Use:     "recordings",
		Aliases: []string{"recs"},
		Short:   "Inspect stored recordings",
	}
	recordingsCmd.AddCommand(newRecordingsListCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsShowCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsVerifyCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsExportCommand(ctx))
	return recordingsCmd
}

func newRecordingsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListRecordings(statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Recordings)
				}
				out := cmd.OutOrStdout()
				if len(resp.Recordings) == 0 {
					fmt.Fprintln(out, "No recordings")
					return nil
				}
				fmt.Fprintln(out, tableView{
					columns: recordingColumns("Status", "Duration", "Size"),
					rows:    buildRecordingRows(resp.Recordings),
					footer:  recordingTotals(resp.Recordings),
				}.render())
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (recording, ended, failed, expired)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit recordings as JSON")
	return cmd
}

func buildRecordingRows(recs []ipc.Recording) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []string{
			rec.ID,
			formatStatusLabel(rec.Status),
			formatDisplayTime(rec.StartedAt),
			formatDuration(time.Duration(rec.DurationMS) * time.Millisecond),
			strconv.Itoa(rec.Tracks),
			formatBytes(rec.BytesWritten),
			yesNo(rec.UsedBridge),
		})
	}
	return rows
}

// recordingTotals sums duration, tracks and bytes across a listing.
func recordingTotals(recs []ipc.Recording) []string {
	var ms, bytes int64
	var tracks int
	for _, rec := range recs {
		ms += rec.DurationMS
		tracks += rec.Tracks
		bytes += rec.BytesWritten
	}
	return []string{
		fmt.Sprintf("%d recordings", len(recs)),
		"",
		"",
		formatDuration(time.Duration(ms) * time.Millisecond),
		strconv.Itoa(tracks),
		formatBytes(bytes),
		"",
	}
}

func newRecordingsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recording including its keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ShowRecording(trimmedArg(args))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Recording)
				}
				renderRecording(cmd.OutOrStdout(), resp.Recording)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the recording as JSON")
	return cmd
}

func renderRecording(out io.Writer, rec ipc.Recording) {
	fmt.Fprintf(out, "Recording %s\n", rec.ID)
	fields := []struct{ label, value string }{
		{"Status", formatStatusLabel(rec.Status)},
		{"Reason", rec.Reason},
		{"Error", rec.ErrorMessage},
		{"Guild", rec.GuildID},
		{"Channel", rec.ChannelID},
		{"Requester", rec.RequesterID},
		{"Automatic", yesNo(rec.Automatic)},
		{"Started", formatDisplayTime(rec.StartedAt)},
		{"Ended", formatOptionalTime(rec.EndedAt)},
		{"Duration", formatDuration(time.Duration(rec.DurationMS) * time.Millisecond)},
		{"Tracks", strconv.Itoa(rec.Tracks)},
		{"Notes", strconv.Itoa(rec.Notes)},
		{"Written", formatBytes(rec.BytesWritten)},
		{"Used bridge", yesNo(rec.UsedBridge)},
		{"Errored", yesNo(rec.Errored)},
		{"Expires", formatOptionalTime(rec.ExpiresAt)},
		{"Directory", rec.RecordingsDir},
		{"Access key", rec.AccessKey},
		{"Delete key", rec.DeleteKey},
		{"Ingest key", rec.IngestKey},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		fmt.Fprintf(out, "  %-12s %s\n", f.label+":", f.value)
	}
}

func newRecordingsVerifyCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Check the stream files of a recording for corruption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := trimmedArg(args)
			target := strings.TrimSpace(dir)
			if target == "" {
				target = ctx.recordingDir(id)
			}
			report, err := capture.VerifyFiles(target, id)
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderVerifyReport(cmd.OutOrStdout(), report)
			}
			if !report.OK() {
				return errors.New("recording failed verification")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the stream files (defaults to the recording's directory)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	return cmd
}

func newRecordingsExportCommand(ctx *commandContext) *cobra.Command {
	var dir, dest string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Copy the stream files of a recording into another directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := trimmedArg(args)
			dest = strings.TrimSpace(dest)
			if dest == "" {
				return errors.New("--to is required")
			}
			source := strings.TrimSpace(dir)
			if source == "" {
				source = ctx.recordingDir(id)
			}
			n, err := capture.ExportFiles(source, id, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s (%s) to %s\n", id, formatBytes(n), dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the stream files (defaults to the recording's directory)")
	cmd.Flags().StringVar(&dest, "to", "", "Destination directory")
	return cmd
}

// recordingDir asks the daemon where a recording was written, falling back
// to the configured recordings directory when the daemon is unreachable.
func (c *commandContext) recordingDir(id string) string {
	if client, err := c.dialClient(); err == nil {
		defer client.Close()
		if resp, err := client.ShowRecording(id); err == nil && resp.Recording.RecordingsDir != "" {
			return resp.Recording.RecordingsDir
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.RecordingsDir
	}
	return "."
}

func renderVerifyReport(out io.Writer, report capture.VerifyReport) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Recording "+report.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	for _, s := range report.Streams {
		switch {
		case s.Missing:
			fmt.Fprintln(out, renderStatusLine(s.Suffix, statusError, "missing", colorize))
		case s.Error != "":
			fmt.Fprintln(out, renderStatusLine(s.Suffix, statusError, s.Error, colorize))
		case s.Pages > 0:
			detail := fmt.Sprintf("%s, %d pages, %d logical streams", formatBytes(s.Bytes), s.Pages, s.Streams)
			fmt.Fprintln(out, renderStatusLine(s.Suffix, statusOK, detail, colorize))
		case s.Entries > 0:
			detail := fmt.Sprintf("%s, %d identities", formatBytes(s.Bytes), s.Entries)
			fmt.Fprintln(out, renderStatusLine(s.Suffix, statusOK, detail, colorize))
		default:
			fmt.Fprintln(out, renderStatusLine(s.Suffix, statusOK, formatBytes(s.Bytes), colorize))
		}
	}
}
