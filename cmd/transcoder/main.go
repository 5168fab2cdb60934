package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"picpic.transcode/internal/config"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcoder <input_dir> <output_dir> <poll_interval_seconds> <concurrency_limit>",
		Short: "Watch a directory and re-encode every video file it finds",
		Long: `transcoder scans <input_dir> every <poll_interval_seconds>, re-encodes each
media file into <output_dir> with at most <concurrency_limit> encoders running
at once, and deletes the source once its encode succeeds. Failed files are
retried on the next scan.

Ambient settings come from the environment: LOG_LEVEL, LOG_FORMAT, EXECUTOR,
DOCKER_IMAGE, PROFILE_FILE, REPORT_INTERVAL, HTTP_PORT, ENABLE_METRICS,
ENABLE_TRACING, OTLP_ENDPOINT, SERVICE_NAME, DB_URL, REDIS_URL, MQTT_BROKER,
MQTT_PREFIX.`,
		Version: version,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(4)(cmd, args); err != nil {
				cmd.PrintErrln(cmd.UsageString())
				return fmt.Errorf("%w: %w", config.ErrUsage, err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args)
			if err != nil {
				if errors.Is(err, config.ErrUsage) || errors.Is(err, config.ErrInvalidArgument) {
					cmd.PrintErrln(cmd.UsageString())
				}
				return err
			}
			if err := cfg.PreparePaths(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
