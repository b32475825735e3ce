package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/batch"
	"github.com/parley-ai/parley/pkg/assistant"
)

func newBatchCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run prompt batches against the assistant service",
	}
	cmd.AddCommand(newBatchRunCmd(flags))
	return cmd
}

func newBatchRunCmd(flags *rootFlags) *cobra.Command {
	var (
		promptsPath string
		concurrency int
		rps         float64
		output      string
		format      string
		schedule    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a file of prompts, one fresh session each, and report the outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			prompts, err := batch.LoadPrompts(promptsPath)
			if err != nil {
				return err
			}

			cfg := app.Config()
			runner := batch.NewRunner(app.Store(), assistant.NewHTTPClient(cfg.Endpoint), batch.Options{
				Concurrency: concurrency,
				RPS:         rps,
				Streaming:   cfg.Streaming,
				UserID:      cfg.UserID,
			})

			if schedule != "" {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				return batch.RunOnSchedule(ctx, schedule, func(ctx context.Context) {
					report, err := runner.Run(ctx, prompts)
					if err != nil {
						log.Printf("[BATCH] scheduled run failed: %v", err)
						return
					}
					if err := writeReport(report, output, format); err != nil {
						log.Printf("[BATCH] write report: %v", err)
					}
				})
			}

			report, err := runner.Run(cmd.Context(), prompts)
			if err != nil {
				return err
			}
			return writeReport(report, output, format)
		},
	}

	cmd.Flags().StringVar(&promptsPath, "prompts", "", "prompt file, one per line or CSV with a prompt column")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of parallel workers")
	cmd.Flags().Float64Var(&rps, "rps", 0, "turns per second across all workers (0 = unlimited)")
	cmd.Flags().StringVar(&output, "output", "-", "report destination (- = stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "report format: json or csv")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec for recurring runs (e.g. \"@hourly\")")
	_ = cmd.MarkFlagRequired("prompts")

	return cmd
}

func writeReport(report *batch.Report, output, format string) error {
	var w io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output) // #nosec G304 - path comes from the operator's flag
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		w = f
	}
	return report.Write(w, format)
}
