package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"statement-quality-service/cmd/stmtquality/config"
	"statement-quality-service/internal/metrics"
	"statement-quality-service/internal/reporter"
	"statement-quality-service/pkg/errors"
)

var historyLast int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recorded quality history",
	Long: `History reads the SQLite quality history written by 'normalize
--metrics-db' and prints a summary of the most recent runs.

Examples:
  stmtquality history --metrics-db quality.db
  stmtquality history --metrics-db quality.db --last 50 --output-format json`,
	Args:    cobra.NoArgs,
	PreRunE: validateHistoryFlags,
	RunE:    runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLast, "last", 20, "number of recent runs to show")
}

func validateHistoryFlags(cmd *cobra.Command, args []string) error {
	if settings.MetricsDB == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, config.KeyMetricsDB, nil,
			fmt.Errorf("history needs a metrics database")).
			WithSuggestion("Pass --metrics-db with the file used by 'stmtquality normalize'")
	}
	if historyLast < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "last", historyLast,
			fmt.Errorf("--last must be at least 1"))
	}
	if err := validateFileExists(settings.MetricsDB, "metrics database"); err != nil {
		return err
	}
	return validateOutputFile(settings.OutputFile)
}

// History is the output of the history command.
type History struct {
	Summary metrics.Summary    `json:"summary"`
	Runs    []metrics.Snapshot `json:"runs"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := metrics.OpenSQLiteStore(settings.MetricsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	thresholds, err := config.CreateMetricsConfig(settings)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "metrics", nil, err)
	}
	recorder := metrics.NewRecorder(store, thresholds)

	summary, err := recorder.Summary(historyLast)
	if err != nil {
		return err
	}
	runs, err := store.Recent(historyLast)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "failed to read metrics history")
	}

	out, closeOut, err := openOutput(settings.OutputFile)
	if err != nil {
		return err
	}
	if err := writeHistory(out, reporter.OutputFormat(settings.OutputFormat), History{Summary: summary, Runs: runs}); err != nil {
		closeOut()
		return errors.FileError(errors.CodeFilePermission, settings.OutputFile, err)
	}
	return closeOut()
}

// writeHistory prints h as JSON or as console text. CSV falls back to the
// console layout.
func writeHistory(w io.Writer, format reporter.OutputFormat, h History) error {
	if format == reporter.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(h)
	}

	s := h.Summary
	fmt.Fprintf(w, "QUALITY HISTORY\n")
	fmt.Fprintf(w, "Runs:               %d (%d failed)\n", s.Runs, s.FailedRuns)
	fmt.Fprintf(w, "Transactions:       %d\n", s.Transactions)
	fmt.Fprintf(w, "Duplicates removed: %d\n", s.DuplicatesRemoved)
	fmt.Fprintf(w, "Failed cleanups:    %d\n", s.FailedNormalizations)
	fmt.Fprintf(w, "Average quality:    %.2f\n", s.AverageQuality)

	if len(h.Runs) == 0 {
		_, err := fmt.Fprintf(w, "\nNo runs recorded.\n")
		return err
	}

	fmt.Fprintf(w, "\nRECENT RUNS\n")
	for _, r := range h.Runs {
		fmt.Fprintf(w, "  %s  %s  %-6s  tx=%d dup=%d quality=%.2f discrepancies=%d\n",
			r.RecordedAt.Format("2006-01-02 15:04:05"), shortRunID(r.RunID), r.State,
			r.Total, r.DuplicatesRemoved, r.QualityScore, r.Discrepancies)
	}
	return nil
}
