package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/metrics"
)

func newBackfillCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fill in missing company logos",
		Long: `Lists every record in the product table, looks up a logo for each record
that has a website but no logo, re-hosts the image and writes its URL back.
Records are processed one at a time with a short pause between them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackfill(cmd, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "upload to memory and leave records unchanged")
	return cmd
}

func runBackfill(cmd *cobra.Command, dryRun bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp(appInstance)
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := appInstance.NewRunner(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("init backfill: %w", err)
	}

	summary, runErr := runner.RunOnce(ctx)
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr == nil || interrupted {
		if err := printSummary(cmd.OutOrStdout(), summary, dryRun || appInstance.Config().Backfill.DryRun); err != nil {
			logger.Warn("print summary failed", zap.Error(err))
		}
	}

	pushMetrics(cmd.Context(), appInstance, logger)

	if runErr != nil {
		return fmt.Errorf("run backfill: %w", runErr)
	}
	return nil
}

func pushMetrics(ctx context.Context, appInstance App, logger *zap.Logger) {
	cfg := appInstance.Config().Metrics
	if cfg.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(ctx, cfg.PushgatewayURL, cfg.JobName); err != nil {
		logger.Warn("push metrics failed", zap.String("gateway", cfg.PushgatewayURL), zap.Error(err))
		return
	}
	logger.Info("metrics pushed", zap.String("gateway", cfg.PushgatewayURL))
}

func printSummary(w io.Writer, summary backfill.Summary, dryRun bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	title := "Logo backfill summary"
	if dryRun {
		title += " (dry run)"
	}
	rows := [][2]any{
		{"Run ID:", summary.RunID},
		{"Total records:", summary.Total},
		{"Skipped (already had logo or no website):", summary.Skipped},
		{"Successfully updated:", summary.Succeeded},
		{"Failed:", summary.Failed},
		{"Duration:", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond)},
	}
	if _, err := fmt.Fprintln(tw, title); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "  %s\t%v\n", row[0], row[1]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}
	return nil
}
