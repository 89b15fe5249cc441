package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-quality-service/cmd/stmtquality/config"
	"statement-quality-service/internal/metrics"
	"statement-quality-service/internal/normalization"
	"statement-quality-service/internal/oracle"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// Flags for the normalize command
var (
	metadataFile string
	textFile     string
	rawJSON      bool
	showProgress bool
)

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize FILE...",
	Short: "Run the full normalization pipeline on statements",
	Long: `Normalize takes each statement through cleanup, column consistency,
deduplication, checksum reconciliation and grid scoring, and reports the
final state, quality metrics, discrepancies and warnings of every run.

Input files may be typed statement JSON ({"metadata": ..., "transactions":
[...], "sourceText": ...}), CSV/XLSX exports or, with --raw-json, JSON arrays
of loosely keyed records. Several files are processed concurrently.

Examples:
  # One statement with metadata and the original PDF for control totals
  stmtquality normalize export.xlsx --metadata header.json --text statement.pdf

  # A batch, keeping a quality history
  stmtquality normalize jan.json feb.json mar.json --metrics-db quality.db

  # Ask Gemini to review the parsed transactions against the statement text
  stmtquality normalize statement.json --oracle --oracle-timeout 45s

  # Export the normalized transactions
  stmtquality normalize statement.csv --output-format csv --output-file clean.csv`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: validateNormalizeFlags,
	RunE:    runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)

	flags := normalizeCmd.Flags()

	// Input flags
	flags.StringVar(&metadataFile, "metadata", "", "statement metadata JSON (single input only)")
	flags.StringVar(&textFile, "text", "", "original statement text or PDF (single input only)")
	flags.BoolVar(&rawJSON, "raw-json", false, "read JSON inputs as loosely keyed records")

	// Pipeline flags
	flags.Bool(config.KeyColumnEngine, true, "run the column consistency pass after cleanup")
	flags.Bool(config.KeyApplyBalanceFixes, false, "apply balance corrections instead of only suggesting them")
	flags.Int(config.KeyMaxConcurrency, 4, "statements processed at once")

	// Oracle flags
	flags.Bool(config.KeyOracle, false, "review transactions with the Gemini oracle")
	flags.String(config.KeyOracleModel, oracle.DefaultModelName, "Gemini model name")
	flags.Duration(config.KeyOracleTimeout, oracle.DefaultConfig().Timeout, "oracle request timeout")

	// Metrics flags
	flags.Float64(config.KeyMinQuality, 0.7, "alert below this data quality score")
	flags.Float64(config.KeyMaxDuplicateRatio, 0.1, "alert above this duplicate ratio")
	flags.Float64(config.KeyMaxFailedRatio, 0.05, "alert above this failed normalization ratio")

	// Output flags
	flags.Bool(config.KeyIncludeTransactions, false, "include normalized transactions in the report")
	flags.BoolVar(&showProgress, "progress", false, "show progress indicators")

	for _, key := range []string{
		config.KeyColumnEngine, config.KeyApplyBalanceFixes, config.KeyMaxConcurrency,
		config.KeyOracle, config.KeyOracleModel, config.KeyOracleTimeout,
		config.KeyMinQuality, config.KeyMaxDuplicateRatio, config.KeyMaxFailedRatio,
		config.KeyIncludeTransactions,
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func validateNormalizeFlags(cmd *cobra.Command, args []string) error {
	for i, path := range args {
		if err := validateFileExists(path, fmt.Sprintf("statement file %d", i+1)); err != nil {
			return err
		}
	}

	if len(args) > 1 && (metadataFile != "" || textFile != "") {
		return errors.ConfigurationError(errors.CodeConfigConflict, "metadata", strings.Join(args, ","),
			fmt.Errorf("--metadata and --text need a single input file")).
			WithSuggestion("Put metadata and sourceText into each statement JSON when processing a batch")
	}
	if metadataFile != "" {
		if err := validateFileExists(metadataFile, "metadata file"); err != nil {
			return err
		}
	}
	if textFile != "" {
		if err := validateFileExists(textFile, "statement text file"); err != nil {
			return err
		}
	}

	return validateOutputFile(settings.OutputFile)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")

	statements, err := loadStatements(args)
	if err != nil {
		return err
	}

	orchestratorConfig, err := config.CreateOrchestratorConfig(settings)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "normalization", nil, err)
	}
	orchestrator, err := normalization.NewOrchestrator(orchestratorConfig)
	if err != nil {
		return err
	}

	if orchestratorConfig.Oracle.Enabled {
		gemini, err := oracle.NewGeminiOracle(ctx, orchestratorConfig.Oracle)
		if err != nil {
			// The pipeline runs without the oracle.
			log.WithError(err).Warn("AI oracle unavailable")
			fmt.Fprintf(os.Stderr, "Warning: AI oracle unavailable, continuing without it: %v\n", err)
		} else {
			orchestrator.WithOracle(gemini)
		}
	}

	recorder, closeStore, err := openRecorder(settings)
	if err != nil {
		return err
	}
	defer closeStore()
	orchestrator.WithRecorder(recorder)

	if showProgress {
		var mu sync.Mutex
		orchestrator.AddProgressCallback(func(p *normalization.Progress) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s %-18s (%.1f%% complete)",
				p.CompletedSteps, p.TotalSteps, shortRunID(p.RunID), p.State, p.PercentComplete)
		})
	}

	var report interface{}
	var results []*normalization.NormalizationResult
	if len(statements) == 1 {
		result, err := orchestrator.Normalize(ctx, statements[0])
		if err != nil {
			return err
		}
		results = []*normalization.NormalizationResult{result}
		report = result
	} else {
		results = orchestrator.ProcessBatch(ctx, statements)
		report = results
	}

	if showProgress {
		fmt.Fprintf(os.Stderr, "\n")
	}

	if err := writeReport(settings, report); err != nil {
		return err
	}

	if settings.Verbose {
		printRunSummary(recorder, len(results))
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return errors.New(errors.CategoryReconciliation, errors.CodeProcessingError,
			fmt.Sprintf("%d of %d statements failed normalization", failed, len(results))).
			WithSuggestion("See the errors section of the report for each failed run")
	}
	return nil
}

func loadStatements(paths []string) ([]normalization.Statement, error) {
	loader, err := newStatementLoader(settings, rawJSON)
	if err != nil {
		return nil, err
	}

	statements := make([]normalization.Statement, 0, len(paths))
	for _, path := range paths {
		stmt, err := loader.Load(path)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}

	if metadataFile != "" {
		md, err := loader.loader.LoadMetadata(metadataFile)
		if err != nil {
			return nil, err
		}
		statements[0].Metadata = md
	}
	if textFile != "" {
		text, err := loader.loader.LoadText(textFile)
		if err != nil {
			return nil, err
		}
		statements[0].SourceText = text
	}
	return statements, nil
}

// openRecorder returns a recorder over the SQLite history when a database is
// configured, and over an in-memory ring otherwise.
func openRecorder(s *config.Settings) (*metrics.Recorder, func() error, error) {
	thresholds, err := config.CreateMetricsConfig(s)
	if err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "metrics", nil, err)
	}

	var store metrics.Store = metrics.NewRingStore(metrics.DefaultRingSize)
	if s.MetricsDB != "" {
		sqlite, err := metrics.OpenSQLiteStore(s.MetricsDB)
		if err != nil {
			return nil, nil, err
		}
		store = sqlite
	}
	return metrics.NewRecorder(store, thresholds), store.Close, nil
}

func printRunSummary(recorder *metrics.Recorder, runs int) {
	summary, err := recorder.Summary(runs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not summarize runs: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "\nNormalization completed.\n")
	fmt.Fprintf(os.Stderr, "Runs: %d (%d failed)\n", summary.Runs, summary.FailedRuns)
	fmt.Fprintf(os.Stderr, "Transactions: %d, duplicates removed: %d, failed cleanups: %d\n",
		summary.Transactions, summary.DuplicatesRemoved, summary.FailedNormalizations)
	fmt.Fprintf(os.Stderr, "Average quality: %.2f\n", summary.AverageQuality)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
