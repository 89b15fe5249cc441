package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-quality-service/cmd/stmtquality/config"
	"statement-quality-service/internal/gridquality"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/internal/sources"
	"statement-quality-service/pkg/errors"
)

// gridCmd represents the grid command
var gridCmd = &cobra.Command{
	Use:   "grid FILE",
	Short: "Score and repair a raw statement grid",
	Long: `Grid analyzes a CSV or XLSX export cell by cell: missing data, duplicate
and empty rows, ragged columns, unparseable dates and amounts, and mixed
currencies. Issues are repaired unless --strict or --auto-fix=false is set.

Examples:
  # Score a semicolon separated export
  stmtquality grid statement.csv --delimiter semicolon

  # Declare the expected layout
  stmtquality grid statement.xlsx --expected-columns 4 --column-types date,string,number,currency

  # Write the repaired grid as CSV
  stmtquality grid statement.csv --fixed-grid --output-format csv --output-file fixed.csv

  # Fail with a nonzero exit code on high severity issues
  stmtquality grid statement.csv --strict`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateGridFlags,
	RunE:    runGrid,
}

func init() {
	rootCmd.AddCommand(gridCmd)

	flags := gridCmd.Flags()
	flags.Int(config.KeyExpectedColumns, 0, "expected number of columns (0 disables the check)")
	flags.StringSlice(config.KeyColumnTypes, nil, "per-column types: any, string, number, date, currency")
	flags.Bool(config.KeyAutoFix, true, "apply automatic fixes")
	flags.Bool(config.KeyFixedGrid, false, "include the repaired grid in the output")

	for _, key := range []string{config.KeyExpectedColumns, config.KeyColumnTypes, config.KeyAutoFix, config.KeyFixedGrid} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func validateGridFlags(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(args[0], "grid file"); err != nil {
		return err
	}
	return validateOutputFile(settings.OutputFile)
}

func runGrid(cmd *cobra.Command, args []string) error {
	path := args[0]

	sourceConfig, err := config.CreateSourceConfig(settings)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyDelimiter, settings.Delimiter, err)
	}
	options, err := config.CreateGridOptions(settings)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyColumnTypes, settings.ColumnTypes, err)
	}

	grid, err := sources.NewLoader(sourceConfig).LoadGrid(path)
	if err != nil {
		return err
	}

	report, err := gridquality.NewAnalyzer(normalizer.New()).Analyze(grid, options)
	if err != nil {
		return err
	}

	if err := writeReport(settings, report); err != nil {
		return err
	}

	if settings.Verbose {
		fmt.Fprintf(os.Stderr, "\nAnalyzed %d rows: %d issues, %d fixes, quality %.1f%% -> %.1f%%\n",
			len(grid), len(report.Issues), len(report.Fixes),
			report.OriginalMetrics.OverallQuality*100, report.Metrics.OverallQuality*100)
	}

	if report.Blocking() {
		return errors.New(errors.CategoryReconciliation, errors.CodeDataInconsistent,
			"strict mode: grid has high severity issues").
			WithContext("file", path).
			WithSuggestion("Fix the reported issues in the source export, or run without --strict to auto-fix")
	}
	return nil
}
