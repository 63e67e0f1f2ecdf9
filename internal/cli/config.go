package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
)

// ValidationResult is the json output of "config validate".
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewConfigCommand groups config subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the config file and report every problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	})
	return cmd
}

// ErrInvalidConfig is returned by "config validate" after the problems were printed.
var ErrInvalidConfig = errors.New("config is invalid")

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	result := ValidationResult{Valid: true}
	cfg, err := opts.loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		result.Valid = false
		result.Errors = splitErrors(err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if encErr := jsoncodec.Encode(out, result); encErr != nil {
			return encErr
		}
	} else if result.Valid {
		fmt.Fprintf(out, "%s: ok\n", opts.ConfigPath)
	} else {
		fmt.Fprintf(out, "%s: %d problem(s)\n", opts.ConfigPath, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	if !result.Valid {
		return ErrInvalidConfig
	}
	return nil
}

// splitErrors unpacks errors.Join trees into one line per problem.
func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, splitErrors(e)...)
		}
		return out
	}
	return strings.Split(err.Error(), "\n")
}
