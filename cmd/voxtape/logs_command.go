package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"voxtape/internal/capture"
	"voxtape/internal/logging"
	"voxtape/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var recordingID string
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log or the log stream of one recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logging.DaemonLogPath(cfg)
			if id := strings.TrimSpace(recordingID); id != "" {
				path = capture.StreamPath(ctx.recordingDir(id), id, capture.StreamLog)
			}

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = logs.Follow(followCtx, path, offset, logs.DefaultPoll, func(line string) {
				fmt.Fprintln(out, line)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&recordingID, "recording", "r", "", "Show the log stream of this recording instead of the daemon log")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
