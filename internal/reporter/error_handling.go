package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang-conciliation-service/internal/classifier"
	"golang-conciliation-service/internal/reconciler"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with error handling and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders result into writer. A failing structured
// format falls back to the console format on the same writer.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.Result, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Info("Starting report generation")

	if err := validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if srg.config.Format.IsBinary() && isTerminal(writer) {
		err := errors.New(errors.CategoryValidation, errors.CodeUnsupportedFormat,
			fmt.Sprintf("%s reports cannot be written to a terminal", srg.config.Format)).
			WithSuggestion("Use --output to write the report to a file")
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	err := srg.GenerateReport(result, writer)
	if err == nil {
		srg.logger.Info("Report generation completed successfully")
		return nil
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")
	if srg.config.Format == FormatConsole || srg.config.Format.IsBinary() {
		return wrapGenerationError(err)
	}
	return srg.generateWithFormatFallback(result, writer, err)
}

// WriteFile renders result into path. The report is written to a temporary
// file first and renamed, so an existing report is never left half written.
// When the destination directory is not writable the report goes to a
// backup path next to the working directory instead.
func (srg *SafeReportGenerator) WriteFile(result *reconciler.Result, path string) (string, error) {
	if err := validateInputs(result, io.Discard); err != nil {
		return "", err
	}

	return srg.writeFile(path, func(w io.Writer) error {
		return srg.GenerateReport(result, w)
	})
}

// WriteLedgerFile renders a classification batch into path the way WriteFile
// does
func (srg *SafeReportGenerator) WriteLedgerFile(batch *classifier.Batch, path string) (string, error) {
	if batch == nil {
		return "", errors.New(errors.CategoryValidation, errors.CodeMissingField, "classification batch is required")
	}

	return srg.writeFile(path, func(w io.Writer) error {
		return srg.GenerateLedgerReport(batch, w)
	})
}

func (srg *SafeReportGenerator) writeFile(path string, render func(io.Writer) error) (string, error) {
	written, err := writeAtomic(path, render)
	if err == nil {
		srg.logger.WithField("file", written).Info("Report written")
		return written, nil
	}

	if !isFileError(err) {
		return "", wrapGenerationError(err)
	}

	backup := generateBackupPath(path)
	srg.logger.WithFields(logger.Fields{
		"original_file": path,
		"backup_file":   backup,
	}).WithError(err).Warn("Attempting output fallback")

	written, berr := writeAtomic(backup, render)
	if berr != nil {
		return "", errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", err, berr),
		)
	}

	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", path, written)
	return written, nil
}

func writeAtomic(path string, render func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := render(tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// generateWithFormatFallback renders the console format after a failure
func (srg *SafeReportGenerator) generateWithFormatFallback(result *reconciler.Result, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(result, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.Info("Report generated successfully using format fallback")
	return nil
}

func validateInputs(result *reconciler.Result, writer io.Writer) error {
	if result == nil || result.Summary == nil {
		return errors.New(errors.CategoryValidation, errors.CodeMissingField, "conciliation result is required").
			WithSuggestion("Provide a valid conciliation result")
	}

	if writer == nil {
		return errors.New(errors.CategoryValidation, errors.CodeMissingField, "output writer is required").
			WithSuggestion("Provide a valid output writer")
	}

	return nil
}

func isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		os.IsExist(err) ||
		isSpaceError(err)
}

// generateBackupPath places the backup in the working directory
func generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return fmt.Sprintf("%s_backup%s", name, ext)
}

func wrapGenerationError(err error) error {
	if appErr, ok := errors.AsConciliationError(err); ok {
		return appErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

// isTerminal reports whether writer is a character device such as a tty
func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
