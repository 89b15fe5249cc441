package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"statement-quality-service/cmd/stmtquality/config"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a handler that writes to out.
func NewCLIErrorHandler(out io.Writer) *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool(config.KeyVerbose),
		out:     out,
	}
}

// HandleError prints err and returns the exit code; nil maps to 0.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if perr, ok := errors.AsPipelineError(err); ok {
		return h.handlePipelineError(perr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handlePipelineError(err *errors.PipelineError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
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

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// Cobra argument and flag errors land here.
	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "Run with --help for usage or --verbose for more details\n")
	}
	return 1
}

func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Supported inputs: .csv, .tsv, .txt, .xlsx, .json, and .pdf for --text`

	case errors.CategoryParse:
		return `Parse error help:
• Check the delimiter (--delimiter comma|semicolon|tab)
• Ensure the file uses UTF-8 encoding
• For JSON input, use {"metadata": {...}, "transactions": [...]} or a bare array`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Dates should be YYYY-MM-DD or DD.MM.YYYY
• Amounts should be plain numbers, e.g. 1 500,00 or 1500.00`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Check STMTQ_ environment variables
• Use 'stmtquality --help' to see all available options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Review the warnings and discrepancies in the report
• Check that the statement metadata matches the transactions
• Try --verbose for the full state history of each run`

	case errors.CategoryOracle:
		return `AI oracle help:
• Set GOOGLE_API_KEY, or GOOGLE_GENAI_USE_VERTEXAI with project and location
• Increase --oracle-timeout for long statements
• Run without --oracle; the pipeline works without it`

	default:
		return `For more help:
• Use 'stmtquality --help' for general help
• Use 'stmtquality <command> --help' for command-specific help`
	}
}

// Error detection helpers

func isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
