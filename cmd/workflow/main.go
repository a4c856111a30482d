// Command workflow runs the issuance workflow once from the command line.
//
//	workflow run --payload instruction.json
//	workflow verify-por --amount 50000
//
// Without LEDGER_SERVICE_URL the simulated ledger is used, so a run against
// the mock bank needs no external services.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bskt/internal/app"
	"bskt/internal/platform/config"
	"bskt/internal/platform/logger"
	"bskt/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	persistent bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "workflow",
		Short:        "Run the reserve-backed issuance workflow",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.FromEnv().WorkflowConfigPath,
		"workflow YAML config")
	root.PersistentFlags().BoolVar(&opts.persistent, "persistent", false,
		"use Postgres, Redis and Kafka from the environment instead of in-memory stores")

	root.AddCommand(newRunCmd(opts), newVerifyCmd(opts))
	return root
}

// =============================================================================
// RUN COMMAND - one instruction end to end
// =============================================================================

func newRunCmd(opts *rootOptions) *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one MINT or CREATE_BASKET instruction",
		Long: `Reads an instruction (or a trigger envelope carrying one) from --payload,
runs it through the workflow and prints the result as JSON. Exits non-zero
unless the run succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readPayload(cmd.InOrStdin(), payload)
			if err != nil {
				return err
			}
			a, err := build(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Service.Process(cmd.Context(), raw)
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", `instruction JSON file, "-" for stdin`)
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

// =============================================================================
// VERIFY-POR COMMAND - reserve and collateral check only
// =============================================================================

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "verify-por",
		Short: "Check whether reserves back a mint of --amount without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			requested, err := decimal.NewFromString(amount)
			if err != nil || !requested.IsPositive() {
				return fmt.Errorf("--amount must be a positive decimal, got %q", amount)
			}
			a, err := build(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Service.VerifyReserves(cmd.Context(), requested)
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "mint amount in currency units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func build(cmd *cobra.Command, opts *rootOptions) (*app.App, error) {
	srv := config.FromEnv()
	log := logger.NewWithWriter(cmd.ErrOrStderr(), srv.LogLevel, "text")
	wf, err := config.LoadWorkflow(opts.configPath)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), srv, wf, log, app.Options{Persistent: opts.persistent})
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return raw, nil
}

func printResult(w io.Writer, res *workflow.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Succeeded() {
		return fmt.Errorf("workflow ended with %s at stage %s", res.Kind, res.Stage)
	}
	return nil
}
