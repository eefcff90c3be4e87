package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"voxtape/internal/daemonctl"
	"voxtape/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the voxtape daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the voxtape daemon, ending every live recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 35*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var logLevel string
	var development bool
	runCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the voxtape daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				SocketPath:  ctx.socketPath(),
			})
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	runCmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")

	return []*cobra.Command{startCmd, stopCmd, runCmd}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{SocketPath: ctx.socketPath()}
	if config := ctx.configPath(); config != "" {
		opts.ConfigPath = config
	}
	return opts
}
