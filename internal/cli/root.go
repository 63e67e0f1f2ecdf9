// Package cli implements the crudflow command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	configpkg "github.com/drblury/crudflow/internal/runtime/config"
	"github.com/drblury/crudflow/internal/runtime/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "text"
}

var (
	ValidFormats   = []string{"text", "json"}
	ValidLogLevels = []string{"debug", "info", "warn", "error"}
)

// NewRootCommand creates the crudflow root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crudflow",
		Short: "CRUD procedures over JSON-RPC with change events",
		Long: `crudflow exposes list, create, update and delete procedures for the
collections named in its config file and announces every change on the
configured Pub/Sub transport.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the error
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidLogLevels, opts.LogLevel) {
				return fmt.Errorf("invalid log level %q: must be one of %v", opts.LogLevel, ValidLogLevels)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "crudflow.yaml", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewProceduresCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*configpkg.Config, error) {
	return configpkg.Load(o.ConfigPath)
}

func (o *RootOptions) logger(w io.Writer) logging.ServiceLogger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(o.LogLevel))
	return logging.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}
