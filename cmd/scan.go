package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cms-detector/internal/app"
	"github.com/JakeFAU/cms-detector/internal/config"
	"github.com/JakeFAU/cms-detector/internal/logging"
)

type scanFlags struct {
	input       string
	sink        string
	output      string
	concurrency int
}

func newScanCmd(cfgFile *string) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan every site in the input list",
		Long: `Reads organization/url pairs from a CSV or XLSX file, fetches each
homepage once with bounded concurrency and records the detected platform.
Failed fetches are recorded as Error rows; the run never stops early.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			return runScan(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&flags.input, "input", "", "input file (.csv or .xlsx)")
	cmd.Flags().StringVar(&flags.sink, "sink", "", "result sink: csv, postgres, sqlite or log")
	cmd.Flags().StringVar(&flags.output, "output", "", "output path for the csv or sqlite sink")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "maximum number of sites fetched at once")
	return cmd
}

func (f scanFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("input") {
		cfg.Input.Path = f.input
	}
	if cmd.Flags().Changed("sink") {
		cfg.Sink.Kind = f.sink
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Scanner.Concurrency = f.concurrency
	}
	if cmd.Flags().Changed("output") {
		switch cfg.Sink.Kind {
		case config.SinkSQLite:
			cfg.Sink.SQLitePath = f.output
		default:
			cfg.Sink.CSVPath = f.output
		}
	}
}

func runScan(cmd *cobra.Command, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	summary, err := a.RunFile(cmd.Context())
	if err != nil && summary.RunID == "" {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d sites scanned\n", summary.RunID, len(summary.Results))
	for _, p := range summary.Platforms() {
		fmt.Fprintf(out, "  %-12s %d\n", p, summary.Counts[p])
	}
	if err != nil {
		logger.Error("scan finished with sink errors", zap.Error(err))
		return fmt.Errorf("scan %s: %w", summary.RunID, err)
	}
	return nil
}
