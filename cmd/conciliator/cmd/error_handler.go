package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err for a human and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if stderrors.Is(err, context.Canceled) {
		fmt.Fprintf(h.out, "Error: interrupted\n")
		return 130
	}

	if appErr, ok := errors.AsConciliationError(err); ok {
		return h.handleConciliationError(appErr)
	}

	return h.handleGenericError(err)
}

// handleConciliationError prints a ConciliationError with its context
func (h *CLIErrorHandler) handleConciliationError(err *errors.ConciliationError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	causes := multierr.Errors(err.Cause)
	if len(causes) > 1 {
		fmt.Fprintf(h.out, "\n%s\n", FormatValidationErrors(causes))
	}
	summary := summarizeCauses(causes)
	if summary.Total > 1 {
		h.logger.WithField("causes", summary.Error()).Debug("Error has several categorized causes")
	}

	if path, ok := err.Context["file_path"].(string); ok && err.Category == errors.CategoryFile {
		fmt.Fprintf(h.out, "\n%s", FormatFileError(path, err.Cause))
	} else if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))
	for _, category := range helpOrder {
		if category != err.Category && summary.HasCategory(category) {
			fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(category))
		}
	}

	if h.verbose {
		if err.Cause != nil {
			fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
		}
		h.suggestRecoveryActions(err.Category)
	}

	// a cause with a more severe category decides the exit code
	code := err.GetExitCode()
	if causeCode := summary.GetExitCode(); causeCode > code {
		code = causeCode
	}
	return code
}

var helpOrder = []errors.ErrorCategory{
	errors.CategoryFile,
	errors.CategoryParse,
	errors.CategoryValidation,
	errors.CategoryConfiguration,
	errors.CategoryClassification,
	errors.CategoryReconciliation,
}

// summarizeCauses collects the categorized errors among causes
func summarizeCauses(causes []error) *errors.ErrorSummary {
	var categorized []*errors.ConciliationError
	for _, cause := range causes {
		if appErr, ok := errors.AsConciliationError(cause); ok {
			categorized = append(categorized, appErr)
		}
	}
	return errors.NewErrorSummary(categorized)
}

// handleGenericError handles errors that carry no category
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more details\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Make sure the file is not open and locked in a spreadsheet program`

	case errors.CategoryParse:
		return `Parse error help:
• Check that the export is the first sheet of the workbook
• Verify the column headers were not renamed in the source system
• Save CSV exports as UTF-8 or Windows-1252`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required values are present
• Verify amounts and dates in the exports`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Check CONCILIATOR_ environment variables
• Use 'conciliator reconcile --help' to see all available options`

	case errors.CategoryClassification:
		return `Classification error help:
• Run 'conciliator classify' on the ledger to see which columns were found
• Check the date, description and amount headers of the ledger export`

	case errors.CategoryReconciliation:
		return `Conciliation error help:
• Check data quality in your input files
• Run again with --strategy scan to compare results`

	default:
		return `For more help:
• Use 'conciliator --help' for general help
• Use 'conciliator reconcile --help' for command-specific help`
	}
}

// suggestRecoveryActions suggests actions the user can take to recover
func (h *CLIErrorHandler) suggestRecoveryActions(category errors.ErrorCategory) {
	fmt.Fprintf(h.out, "\nRecovery suggestions:\n")

	switch category {
	case errors.CategoryFile:
		fmt.Fprintf(h.out, "• Verify file paths and permissions\n")
		fmt.Fprintf(h.out, "• Check available disk space for the report\n")

	case errors.CategoryParse:
		fmt.Fprintf(h.out, "• Re-export the file from the source system\n")
		fmt.Fprintf(h.out, "• Remove summary rows above the header\n")

	case errors.CategoryConfiguration:
		fmt.Fprintf(h.out, "• Review command-line arguments\n")
		fmt.Fprintf(h.out, "• Try with default settings first\n")

	case errors.CategoryReconciliation, errors.CategoryInternal:
		fmt.Fprintf(h.out, "• Keep the input files and report the problem\n")
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}

// FormatValidationErrors formats validation errors in a user-friendly way
func FormatValidationErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	if len(errs) == 1 {
		return fmt.Sprintf("Validation error: %v", errs[0])
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d validation errors:", len(errs)))

	for i, err := range errs {
		lines = append(lines, fmt.Sprintf("  %d. %v", i+1, err))
		if i >= 9 && len(errs) > 10 {
			lines = append(lines, fmt.Sprintf("  ... and %d more errors", len(errs)-10))
			break
		}
	}

	return strings.Join(lines, "\n")
}

// FormatFileError formats file-related errors with helpful information
func FormatFileError(filePath string, err error) string {
	baseName := filepath.Base(filePath)
	dir := filepath.Dir(filePath)

	var message strings.Builder
	message.WriteString(fmt.Sprintf("Error with file '%s':\n", baseName))
	message.WriteString(fmt.Sprintf("  Path: %s\n", filePath))
	if err != nil {
		message.WriteString(fmt.Sprintf("  Error: %v\n", err))
	}

	if os.IsNotExist(err) {
		if entries, dirErr := os.ReadDir(dir); dirErr == nil {
			prefix := strings.ToLower(baseName[:min(len(baseName), 3)])
			var similar []string
			for _, entry := range entries {
				if !entry.IsDir() && strings.Contains(strings.ToLower(entry.Name()), prefix) {
					similar = append(similar, entry.Name())
				}
			}
			if len(similar) > 0 {
				message.WriteString("  Similar files found:\n")
				for _, name := range similar[:min(len(similar), 3)] {
					message.WriteString(fmt.Sprintf("    - %s\n", name))
				}
			}
		}
	}

	return message.String()
}
