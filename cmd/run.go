package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/fpt/pkg/engine"
	"github.com/ethpandaops/fpt/pkg/tokens"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	runDate      string
	runNonStrict bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate every dataset, aggregate and export the feature table",
	Long: `Runs raw validation, flattening and flat validation for every dataset,
then aggregates the trailing window and writes final.csv and final.parquet.
A failed validation stops the run before anything is exported.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runDate, "date", "", "run date recorded in reports (YYYY-MM-DD, default today)")
	runCmd.Flags().BoolVar(&runNonStrict, "non-strict", false, "record schema drift without failing the run")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	date, err := parseRunDate(runDate)
	if err != nil {
		return err
	}

	svc, err := newService(cmd, func(cfg *engine.Config) {
		if runNonStrict {
			cfg.Validation.Strict = false
		}
	})
	if err != nil {
		return err
	}
	defer stopService(svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := svc.Run(ctx, date)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "run_id:  %s\n", result.RunID)
	_, _ = fmt.Fprintf(out, "rows:    %d\n", result.Rows)
	_, _ = fmt.Fprintf(out, "csv:     %s\n", result.CSVLocation)
	_, _ = fmt.Fprintf(out, "parquet: %s\n", result.ParquetLocation)

	return nil
}

func parseRunDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	date, err := tokens.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", raw, err)
	}

	return date, nil
}

// newService loads the configuration, lets the command adjust it, then builds the engine
func newService(cmd *cobra.Command, adjust func(*engine.Config)) (*engine.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if adjust != nil {
		adjust(cfg)
	}

	logger.Info("Configuration loaded")

	return engine.NewService(logger, cfg)
}

func stopService(svc *engine.Service) {
	if err := svc.Stop(); err != nil {
		logger.WithError(err).Error("Failed to stop engine")
	}
}
