package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"voxtape/internal/ipc"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Control live recordings",
	}
	recordCmd.AddCommand(newRecordStartCommand(ctx))
	recordCmd.AddCommand(newRecordStopCommand(ctx))
	recordCmd.AddCommand(newRecordNoteCommand(ctx))
	return recordCmd
}

func newRecordStartCommand(ctx *commandContext) *cobra.Command {
	var req ipc.StartRecordingRequest
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StartRecording(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Recording)
				}
				rec := resp.Recording
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recording %s started at %s\n", rec.ID, formatDisplayTime(rec.StartedAt))
				fmt.Fprintf(out, "  Access key: %s\n", rec.AccessKey)
				fmt.Fprintf(out, "  Delete key: %s\n", rec.DeleteKey)
				if rec.BridgePath != "" {
					fmt.Fprintf(out, "  Bridge:     %s?key=%s\n", rec.BridgePath, rec.IngestKey)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.GuildID, "guild", "", "Guild the recording belongs to")
	cmd.Flags().StringVar(&req.ChannelID, "channel", "", "Voice channel to record")
	cmd.Flags().StringVar(&req.RequesterID, "requester", "", "User requesting the recording")
	cmd.Flags().BoolVar(&req.Automatic, "auto", false, "Mark the recording as automatically started")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the new recording as JSON")
	return cmd
}

func newRecordStopCommand(ctx *commandContext) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a live recording and wait for it to close",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := trimmedArg(args)
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StopRecording(id, actor)
				if err != nil {
					return err
				}
				if !resp.Stopped {
					return errors.New("daemon did not confirm the stop")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recording %s stopped\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "User credited with stopping the recording")
	return cmd
}

func newRecordNoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> <text>...",
		Short: "Append a note to a live recording",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := trimmedArg(args)
			text := strings.Join(args[1:], " ")
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Note(id, text); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Note added")
				return nil
			})
		},
	}
}
