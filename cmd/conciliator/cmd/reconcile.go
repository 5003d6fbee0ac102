package cmd

import (
	"fmt"
	"io"
	"os"

	"golang-conciliation-service/internal/matcher"
	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/normalizer"
	"golang-conciliation-service/internal/reconciler"
	"golang-conciliation-service/internal/reporter"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	requestsFile      string
	confirmationsFile string
	receiptsFile      string
	ledgerFiles       []string
	restrictedLedgers []string
	outputFile        string
	showProgress      bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match payment requests, receipts and bank ledger movements",
	Long: `Reconcile reads the payment status export, the receipt export and one or
more bank ledgers, matches the three families against each other and reports
the status of every record.

This command requires:
- A payment status export (.xlsx or .csv)
- A payment receipt export (.xlsx or .csv)
- One or more bank ledgers (.xlsx or .csv)

Examples:
  # Basic conciliation
  conciliator reconcile --requests estado.xlsx --receipts cobros.xlsx --ledger banco_pesos.xlsx

  # Confirmed payment dates and a restricted account
  conciliator reconcile --requests estado.xlsx --confirmations confirmadas.xlsx \
    --receipts cobros.xlsx --ledger banco_pesos.xlsx --ledger banco_usd.xlsx \
    --restricted-ledger banco_restringido.xlsx

  # Workbook report with matched records and a wider tolerance
  conciliator reconcile --requests estado.xlsx --receipts cobros.xlsx --ledger banco.xlsx \
    --output conciliacion.xlsx --include-matched --tolerance 0.05

  # With progress indicators
  conciliator reconcile --requests estado.xlsx --receipts cobros.xlsx --ledger banco.xlsx --progress`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringVarP(&requestsFile, "requests", "r", "", "path to the payment status export (required)")
	reconcileCmd.Flags().StringVarP(&confirmationsFile, "confirmations", "c", "", "path to the payment confirmation export")
	reconcileCmd.Flags().StringVar(&receiptsFile, "receipts", "", "path to the payment receipt export (required)")
	addLedgerFlags(reconcileCmd)

	// Output flags
	reconcileCmd.Flags().StringP("format", "f", string(reporter.DefaultReportConfig().Format), "output format: console, json, yaml, csv, xlsx")
	reconcileCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path, format inferred from the extension (default: stdout)")
	reconcileCmd.Flags().Bool("include-matched", false, "include FULL records in the report")

	// Matching flags
	reconcileCmd.Flags().String("tolerance", matcher.DefaultMatchingConfig().Tolerance.String(), "amount tolerance, amounts match when they differ by less")
	reconcileCmd.Flags().String("strategy", string(matcher.StrategyIndexed), "candidate enumeration: scan or indexed")
	reconcileCmd.Flags().String("special-marker", normalizer.DefaultConfig().SpecialMarker, "text marking restricted counterparties")

	// UI flags
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	reconcileCmd.MarkFlagRequired("requests")
	reconcileCmd.MarkFlagRequired("receipts")

	flagKeys[reconcileCmd] = map[string]string{
		"format":          "report.format",
		"include-matched": "report.include_matched",
		"tolerance":       "matching.tolerance",
		"strategy":        "matching.strategy",
		"special-marker":  "normalizer.special_marker",
	}
}

// addLedgerFlags registers the repeatable ledger flags shared by reconcile
// and classify
func addLedgerFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&ledgerFiles, "ledger", "l", nil, "path to a bank ledger, repeatable")
	cmd.Flags().StringArrayVar(&restrictedLedgers, "restricted-ledger", nil, "path to a restricted account ledger, repeatable")
}

// ledgerSources returns the ledgers in flag order, ordinary ledgers first
func ledgerSources() []reconciler.LedgerSource {
	sources := make([]reconciler.LedgerSource, 0, len(ledgerFiles)+len(restrictedLedgers))
	for _, path := range ledgerFiles {
		sources = append(sources, reconciler.LedgerSource{Path: path})
	}
	for _, path := range restrictedLedgers {
		sources = append(sources, reconciler.LedgerSource{Path: path, Restricted: true})
	}
	return sources
}

func validateLedgerFlags() error {
	sources := ledgerSources()
	if len(sources) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger", nil, nil).
			WithSuggestion("Pass at least one --ledger or --restricted-ledger file")
	}
	for i, source := range sources {
		if err := validateFileExists(source.Path, fmt.Sprintf("ledger %d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(requestsFile, "payment status export"); err != nil {
		return err
	}
	if confirmationsFile != "" {
		if err := validateFileExists(confirmationsFile, "payment confirmation export"); err != nil {
			return err
		}
	}
	if err := validateFileExists(receiptsFile, "payment receipt export"); err != nil {
		return err
	}
	return validateLedgerFlags()
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("description", description)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeUnsupportedFormat, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("description", description)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")
	stderr := cmd.ErrOrStderr()

	fileSet := &reconciler.FileSet{
		Status:        requestsFile,
		Confirmations: confirmationsFile,
		Receipts:      receiptsFile,
		Ledgers:       ledgerSources(),
	}

	log.WithFields(logger.Fields{
		"requests":      requestsFile,
		"confirmations": confirmationsFile,
		"receipts":      receiptsFile,
		"ledgers":       len(fileSet.Ledgers),
		"tolerance":     settings.Matching.Tolerance.String(),
	}).Info("Starting conciliation")

	service, err := reconciler.NewService(settings.Service(), logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	if showProgress {
		service.AddProgressCallback(progressPrinter(stderr))
	}

	result, err := service.ReconcileFiles(cmd.Context(), fileSet)
	if showProgress {
		fmt.Fprintf(stderr, "\n")
	}
	if err != nil {
		return err
	}

	reportConfig := settings.Report
	if outputFile != "" && !cmd.Flags().Changed("format") {
		reportConfig.Format = reporter.FormatForPath(outputFile, reportConfig.Format)
	}

	generator, err := reporter.NewSafeReportGenerator(&reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	if outputFile != "" {
		written, err := generator.WriteFile(result, outputFile)
		if err != nil {
			return err
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(stderr, "Report written to %s\n", written)
		}
	} else if err := generator.GenerateReportSafely(result, cmd.OutOrStdout()); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		printRunSummary(stderr, result)
	}
	return nil
}

// progressPrinter renders each progress update on a single terminal line
func progressPrinter(w io.Writer) reconciler.ProgressCallback {
	return func(p reconciler.Progress) {
		fmt.Fprintf(w, "\r[%d/%d] %-10s (%.1f%% complete)", p.Completed, p.Total, p.Stage, p.PercentComplete())
	}
}

func printRunSummary(w io.Writer, result *reconciler.Result) {
	summary := result.Summary

	fmt.Fprintf(w, "\nConciliation completed successfully.\n")
	for _, f := range models.Families() {
		fs := summary.Family(f)
		fmt.Fprintf(w, "  %-10s %d total, %d FULL, %d AMOUNT_ONLY, %d UNMATCHED\n",
			f.String()+":", fs.Total, fs.Full, fs.AmountOnly, fs.Unmatched)
	}
	fmt.Fprintf(w, "Classified %d treasury transfers and %d market movements.\n",
		summary.Transfers.Count, summary.Market.Count)
	if summary.SkippedLedgerFiles > 0 {
		fmt.Fprintf(w, "Skipped %d of %d ledger files.\n", summary.SkippedLedgerFiles, summary.LedgerFiles)
	}
	if len(result.Discrepancies) > 0 {
		fmt.Fprintf(w, "Detected %d data quality findings.\n", len(result.Discrepancies))
	}
	fmt.Fprintf(w, "Processing time: %v\n", summary.ProcessingTime)
}
