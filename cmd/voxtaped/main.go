// Command voxtaped runs the voxtape daemon in the foreground. It is the
// entrypoint for service managers; operators normally use `voxtape start`.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voxtape/internal/config"
	"voxtape/internal/daemonrun"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts daemonrun.Options
	var configPath string

	cmd := &cobra.Command{
		Use:           "voxtaped",
		Short:         "Run the voxtape recording daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.SocketPath, "socket", "", "Override the IPC socket path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	return cmd
}
