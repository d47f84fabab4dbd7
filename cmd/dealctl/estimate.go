package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"dealdesk/internal/estimator"
	"dealdesk/internal/importer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEstimateCmd(a *app) *cobra.Command {
	var (
		file     string
		output   string
		criteria estimator.Criteria
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate factory prices from an xlsx of historical price records",
		Long: `Reads a price-record workbook in the import template layout and ranks factories
by the price their history predicts for the given specification. Records are weighted
by quantity proximity and recency.`,
		Example: `  dealctl estimate --file prices.xlsx --category "mailer box" --material kraft --quantity 3000
  dealctl estimate --file prices.xlsx --category "mailer box" --material kraft --quantity 3000 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("--output must be table or json, got %q", output)
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", file, err)
			}
			defer f.Close()

			rows, err := importer.ParseXLSX(f)
			if err != nil {
				var ie *importer.ImportError
				if errors.As(err, &ie) {
					for _, re := range ie.Errors {
						fmt.Fprintln(cmd.ErrOrStderr(), re.Error())
					}
				}
				return err
			}
			a.log.Info("price records loaded", zap.String("file", file), zap.Int("rows", len(rows)))

			opts := estimator.Options{RecencyHalfLifeDays: a.cfg.Estimator.RecencyHalfLifeDays}
			estimates, err := estimator.Estimate(importer.ToEstimatorRecords(rows), criteria, time.Now().UTC(), opts)
			if err != nil {
				return err
			}

			if output == "json" {
				return printJSON(cmd.OutOrStdout(), estimates)
			}
			if len(estimates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No factory has price history matching this specification.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FACTORY\tUNIT USD\tSHIPPING USD\tTOTAL USD\tCONFIDENCE\tRECORDS")
			for _, e := range estimates {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d (%d in band)\n", e.FactoryID,
					e.EstimatedUnitPriceUsd.StringFixed(4), e.EstimatedShippingUsd.StringFixed(2),
					e.EstimatedTotalUsd.StringFixed(2), e.Confidence, e.MatchingRecords, e.RecordsInBand)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "xlsx workbook of price records (required)")
	cmd.Flags().StringVar(&criteria.Category, "category", "", "Product category (required)")
	cmd.Flags().StringVar(&criteria.Material, "material", "", "Material (required)")
	cmd.Flags().StringVar(&criteria.Size, "size", "", "Size")
	cmd.Flags().StringVar(&criteria.Printing, "printing", "", "Printing")
	cmd.Flags().Int64Var(&criteria.Quantity, "quantity", 0, "Quantity to price (required)")
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table or json")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("material")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func newTemplateCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:     "template",
		Short:   "Write an empty price-record import workbook",
		Example: `  dealctl template --out price-records.xlsx`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := importer.WriteTemplate(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.log.Info("template written", zap.String("file", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "price-records.xlsx", "Output path")
	return cmd
}
