package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/fpt/pkg/contracts"
)

// datasetsCmd represents the datasets command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect dataset contracts",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Keep listing output clean unless a level was asked for
		if !cmd.Flags().Changed("log-level") {
			logger.SetLevel(logrus.ErrorLevel)
		}
		return nil
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered datasets with their kind, location and schema",
	RunE:  runDatasetsList,
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
	datasetsCmd.AddCommand(datasetsListCmd)
}

func runDatasetsList(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	registry, err := contracts.Load(cfg.Contracts, cfg.Paths.Raw)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tKIND\tLOCATION\tNEW COLUMNS\tSCHEMA")

	for _, c := range registry.All() {
		schema := make([]string, 0, len(c.Schema))
		for _, col := range c.Schema {
			schema = append(schema, fmt.Sprintf("%s:%s", col.Name, col.Type))
		}

		allow := "rejected"
		if c.AllowNewColumns {
			allow = "allowed"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Kind, c.Location, allow, strings.Join(schema, ","))
	}

	return w.Flush()
}
