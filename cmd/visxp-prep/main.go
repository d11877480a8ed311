// Package main provides the visxp-prep command line tool, which runs the
// pipeline once for a single input without the HTTP worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/visxp-prep/internal/bootstrap"
	"github.com/maauso/visxp-prep/internal/config"
	"github.com/maauso/visxp-prep/internal/pipeline"
	"github.com/maauso/visxp-prep/internal/provenance"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errRunFailed makes the process exit non-zero after the result was printed.
var errRunFailed = errors.New("run did not succeed")

var withProvenance bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "visxp-prep",
	Short:         "Prepare shots, keyframes and audio spectrograms for VisXP feature extraction",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	runCmd.Flags().BoolVar(&withProvenance, "provenance", false, "include the provenance tree in the output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// runOutput is printed by the run command.
type runOutput struct {
	pipeline.Result
	Provenance *provenance.Step `json:"provenance,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run <path|url|s3 uri>",
	Short: "Process one input and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := cfg.NewLogger()

		deps, err := bootstrap.NewDependencies(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("initialize dependencies: %w", err)
		}

		res, step := deps.Pipeline.Run(cmd.Context(), args[0])
		out := runOutput{Result: res}
		if withProvenance {
			out.Provenance = step
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if !res.OK() {
			return errRunFailed
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "visxp-prep %s (%s)\n", version, pipeline.WorkerName)
		return err
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
