package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drblury/crudflow/internal/app"
	"github.com/drblury/crudflow/internal/runtime/logging"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured collections until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, cmd)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	log := opts.logger(cmd.ErrOrStderr())

	a, err := app.New(ctx, cfg, log, app.Dependencies{})
	if err != nil {
		log.Error("Failed to start crudflow", err, logging.LogFields{"config": opts.ConfigPath})
		return err
	}
	return a.Run(ctx)
}
