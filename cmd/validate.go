package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/fpt/pkg/engine"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	validateDatasets  []string
	validateNonStrict bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate datasets and write schema reports without exporting",
	Long:  `Runs raw validation, flattening and flat validation for the selected datasets (all by default).`,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringSliceVar(&validateDatasets, "dataset", nil, "dataset to validate (repeatable, default all)")
	validateCmd.Flags().BoolVar(&validateNonStrict, "non-strict", false, "record schema drift without failing")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	svc, err := newService(cmd, func(cfg *engine.Config) {
		if validateNonStrict {
			cfg.Validation.Strict = false
		}
	})
	if err != nil {
		return err
	}
	defer stopService(svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Validate(ctx, validateDatasets...); err != nil {
		return err
	}

	names := validateDatasets
	if len(names) == 0 {
		names = svc.Registry().Names()
	}

	for _, name := range names {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: valid\n", name)
	}

	return nil
}
