package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dealdesk/internal/config"
	"dealdesk/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once the root command has loaded config.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dealctl",
		Short: "Deal desk CLI - offline quoting and factory price estimation",
		Long: `dealctl runs the deal desk's cost engine and price estimator without the API server.
Payment fee constants and default ratios come from the same configuration as the server
(configs/.env, config.yaml and BROKER_ environment variables).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg

			// Logs go to stderr so stdout stays machine-readable
			log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			a.log = log
			return nil
		},
	}

	root.AddCommand(newQuoteCmd(a), newCompareCmd(a), newEstimateCmd(a), newTemplateCmd(a))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
