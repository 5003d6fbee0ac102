package cmd

import (
	"fmt"

	"golang-conciliation-service/internal/reconciler"
	"golang-conciliation-service/internal/reporter"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var classifyOutput string

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify bank ledger rows without matching them",
	Long: `Classify reads bank ledgers and splits their rows into treasury transfers,
market movements and reconcilable debit movements. Use it to check that a new
ledger export is recognized before running a full conciliation.

Examples:
  conciliator classify --ledger banco_pesos.xlsx
  conciliator classify --ledger banco_usd.xlsx --restricted-ledger banco_restringido.xlsx --format json
  conciliator classify --ledger banco_pesos.xlsx --output clasificacion.xlsx`,

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateLedgerFlags()
	},
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	addLedgerFlags(classifyCmd)
	classifyCmd.Flags().StringP("format", "f", string(reporter.DefaultReportConfig().Format), "output format: console, json, yaml, csv, xlsx")
	classifyCmd.Flags().StringVarP(&classifyOutput, "output", "o", "", "output file path, format inferred from the extension (default: stdout)")

	flagKeys[classifyCmd] = map[string]string{
		"format": "report.format",
	}
}

func runClassify(cmd *cobra.Command, args []string) error {
	service, err := reconciler.NewService(settings.Service(), logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	batch, err := service.ClassifyFiles(cmd.Context(), ledgerSources())
	if err != nil {
		return err
	}

	reportConfig := settings.Report
	if classifyOutput != "" && !cmd.Flags().Changed("format") {
		reportConfig.Format = reporter.FormatForPath(classifyOutput, reportConfig.Format)
	}

	generator, err := reporter.NewSafeReportGenerator(&reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	if classifyOutput != "" {
		written, err := generator.WriteLedgerFile(batch, classifyOutput)
		if err != nil {
			return err
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(cmd.ErrOrStderr(), "Classification written to %s\n", written)
		}
		return nil
	}

	if reportConfig.Format.IsBinary() {
		return errors.ConfigurationError(errors.CodeConfigConflict, "format", reportConfig.Format,
			fmt.Errorf("%s output requires --output", reportConfig.Format))
	}
	return generator.GenerateLedgerReport(batch, cmd.OutOrStdout())
}
