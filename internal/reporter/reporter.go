// Package reporter renders statement quality results.
//
// Reports are produced for a single normalization run, for a batch of runs,
// and for a standalone grid quality analysis.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display, optionally colored
//   - JSON: structured data for programmatic consumption
//   - CSV: transaction, issue or run rows for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(nil)
//	err = generator.GenerateReport(result, os.Stdout)
//
//	config := reporter.DefaultReportConfig()
//	config.Format = reporter.FormatJSON
//	generator, err = reporter.NewReportGenerator(config)
//	err = generator.GenerateGridReport(report, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"statement-quality-service/internal/gridquality"
	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalization"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeTransactions bool `json:"include_transactions"`
	IncludeStageDetails bool `json:"include_stage_details"`
	IncludeTransitions  bool `json:"include_transitions"`
	IncludeOracleNotes  bool `json:"include_oracle_notes"`
	IncludeFixedGrid    bool `json:"include_fixed_grid"`

	// Console formatting options
	UseColors     bool `json:"use_colors"`
	TableMaxWidth int  `json:"table_max_width"`
	MaxListItems  int  `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	SortByAmount bool `json:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		IncludeTransactions: false,
		IncludeStageDetails: true,
		IncludeTransitions:  false,
		IncludeOracleNotes:  true,
		IncludeFixedGrid:    false,
		UseColors:           true,
		TableMaxWidth:       120,
		MaxListItems:        10,
		CSVDelimiter:        ',',
		CSVHeaders:          true,
		SortByAmount:        false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxListItems < 1 {
		return fmt.Errorf("max list items must be positive, got %d", c.MaxListItems)
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates statement quality reports in various formats
type ReportGenerator struct {
	config  *ReportConfig
	palette palette
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config:  config,
		palette: newPalette(config.UseColors),
	}, nil
}

// GenerateReport writes the report of one normalization run.
func (rg *ReportGenerator) GenerateReport(result *normalization.NormalizationResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("normalization result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return writeJSON(writer, rg.filterResultForOutput(result))
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateBatchReport writes one report covering several runs.
func (rg *ReportGenerator) GenerateBatchReport(results []*normalization.NormalizationResult, writer io.Writer) error {
	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleBatchReport(results, writer)
	case FormatJSON:
		runs := make([]map[string]interface{}, 0, len(results))
		for _, r := range results {
			if r != nil {
				runs = append(runs, rg.filterResultForOutput(r))
			}
		}
		return writeJSON(writer, map[string]interface{}{
			"summary": summarizeBatch(results),
			"runs":    runs,
		})
	case FormatCSV:
		return rg.generateCSVBatchReport(results, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateGridReport writes the report of a standalone grid analysis. In CSV
// format it writes the repaired grid when IncludeFixedGrid is set and the
// issue list otherwise.
func (rg *ReportGenerator) GenerateGridReport(report *gridquality.QualityReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("quality report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		p := rg.palette
		p.header.Fprintf(writer, "GRID QUALITY REPORT\n")
		fmt.Fprintf(writer, "%s\n", report.Summary)
		if report.StrictMode {
			fmt.Fprintf(writer, "Strict mode: %s\n", rg.blockingLabel(report.Blocking()))
		}
		fmt.Fprintf(writer, "\n")
		rg.printGridQuality(report, writer)
		return nil
	case FormatJSON:
		output := map[string]interface{}{
			"summary":          report.Summary,
			"strict_mode":      report.StrictMode,
			"blocking":         report.Blocking(),
			"original_metrics": report.OriginalMetrics,
			"metrics":          report.Metrics,
			"issues":           report.Issues,
			"fixes":            report.Fixes,
			"recommendations":  report.Recommendations,
		}
		if rg.config.IncludeFixedGrid {
			output["fixed_grid"] = report.FixedGrid
		}
		return writeJSON(writer, output)
	case FormatCSV:
		return rg.generateCSVGridReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *normalization.NormalizationResult, writer io.Writer) error {
	p := rg.palette

	// Report header
	p.header.Fprintf(writer, "STATEMENT QUALITY REPORT\n")
	fmt.Fprintf(writer, "Run:      %s\n", result.RunID)
	fmt.Fprintf(writer, "State:    %s\n", p.state(result.State).Sprint(result.State))
	fmt.Fprintf(writer, "Started:  %s\n", result.StartedAt.Format(time.RFC3339))
	if !result.FinishedAt.IsZero() {
		fmt.Fprintf(writer, "Duration: %v\n", result.FinishedAt.Sub(result.StartedAt))
	}
	fmt.Fprintf(writer, "\n")

	if len(result.Errors) > 0 {
		rg.section(writer, "ERRORS")
		rg.printList(result.Errors, p.bad, writer)
		fmt.Fprintf(writer, "\n")
	}

	rg.section(writer, "SUMMARY")
	rg.printSummary(result.Metrics, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeTransitions && len(result.Transitions) > 0 {
		rg.section(writer, "STATE TRANSITIONS")
		for _, t := range result.Transitions {
			fmt.Fprintf(writer, "  %s -> %s (%v)\n", t.From, p.state(t.To).Sprint(t.To), t.Duration)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeStageDetails {
		rg.printStages(result.Stages, writer)
	}

	if rg.config.IncludeOracleNotes && len(result.OracleNotes) > 0 {
		rg.section(writer, "ORACLE NOTES")
		rg.printList(result.OracleNotes, p.muted, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(result.Warnings) > 0 {
		rg.section(writer, "WARNINGS")
		rg.printList(result.Warnings, p.warn, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeTransactions && len(result.Transactions) > 0 {
		rg.section(writer, "TRANSACTIONS")
		rg.printTransactionList(result.Transactions, writer)
	}

	return nil
}

func (rg *ReportGenerator) generateConsoleBatchReport(results []*normalization.NormalizationResult, writer io.Writer) error {
	p := rg.palette
	summary := summarizeBatch(results)

	p.header.Fprintf(writer, "BATCH QUALITY REPORT\n")
	fmt.Fprintf(writer, "Runs:               %d\n", summary.Runs)
	fmt.Fprintf(writer, "Completed:          %s\n", p.ok.Sprint(summary.Completed))
	fmt.Fprintf(writer, "Failed:             %s\n", rg.countColor(summary.Failed, p.bad).Sprint(summary.Failed))
	fmt.Fprintf(writer, "Transactions:       %d\n", summary.Transactions)
	fmt.Fprintf(writer, "Duplicates removed: %d\n", summary.DuplicatesRemoved)
	fmt.Fprintf(writer, "Average quality:    %s\n\n", rg.formatScore(summary.AverageQuality))

	rg.section(writer, "RUNS")
	for i, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(writer, "  %d. %s %-18s transactions=%d duplicates=%d quality=%s\n",
			i+1,
			shortID(r.RunID),
			p.state(r.State).Sprint(r.State),
			r.Metrics.Total,
			r.Metrics.DuplicatesRemoved,
			rg.formatScore(r.Metrics.DataQualityScore))
		for _, e := range r.Errors {
			fmt.Fprintf(writer, "     %s\n", p.bad.Sprint(rg.truncate(e, rg.config.TableMaxWidth-5)))
		}
	}
	return nil
}

// generateCSVReport writes one row per normalized transaction.
func (rg *ReportGenerator) generateCSVReport(result *normalization.NormalizationResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Row",
			"Date",
			"Document_Number",
			"Counterparty",
			"Counterparty_BIN",
			"Counterparty_Account",
			"Debit",
			"Credit",
			"Currency",
			"Payment_Purpose",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for i, tx := range result.Transactions {
		record := []string{
			strconv.Itoa(i + 1),
			models.FormatDate(tx.Date),
			tx.DocumentNumber,
			tx.CounterpartyName,
			tx.CounterpartyBIN,
			tx.CounterpartyAccount,
			formatNullAmount(tx.Debit),
			formatNullAmount(tx.Credit),
			tx.Currency,
			tx.PaymentPurpose,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write transaction record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) generateCSVBatchReport(results []*normalization.NormalizationResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Run_ID",
			"State",
			"Total",
			"Normalized",
			"Failed_Normalization",
			"Duplicates_Removed",
			"Quality_Score",
			"Errors",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		record := []string{
			r.RunID,
			string(r.State),
			strconv.Itoa(r.Metrics.Total),
			strconv.Itoa(r.Metrics.SuccessfullyNormalized),
			strconv.Itoa(r.Metrics.FailedNormalization),
			strconv.Itoa(r.Metrics.DuplicatesRemoved),
			strconv.FormatFloat(r.Metrics.DataQualityScore, 'f', 4, 64),
			strings.Join(r.Errors, "; "),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write run record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) generateCSVGridReport(report *gridquality.QualityReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.IncludeFixedGrid {
		if err := csvWriter.WriteAll(report.FixedGrid); err != nil {
			return fmt.Errorf("failed to write fixed grid: %w", err)
		}
		return nil
	}

	if rg.config.CSVHeaders {
		if err := csvWriter.Write([]string{"Type", "Severity", "Description", "Affected_Rows"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, issue := range report.Issues {
		rows := make([]string, len(issue.AffectedRows))
		for i, row := range issue.AffectedRows {
			rows[i] = strconv.Itoa(row)
		}
		record := []string{string(issue.Type), string(issue.Severity), issue.Description, strings.Join(rows, " ")}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write issue record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) section(writer io.Writer, title string) {
	rg.palette.header.Fprintf(writer, "=== %s ===\n", title)
}

func (rg *ReportGenerator) printSummary(m normalization.Metrics, writer io.Writer) {
	p := rg.palette
	fmt.Fprintf(writer, "Transactions:            %d\n", m.Total)
	fmt.Fprintf(writer, "Successfully normalized: %d (%.1f%%)\n",
		m.SuccessfullyNormalized, rg.calculatePercentage(m.SuccessfullyNormalized, m.Total))
	fmt.Fprintf(writer, "Failed normalization:    %s\n", rg.countColor(m.FailedNormalization, p.warn).Sprint(m.FailedNormalization))
	fmt.Fprintf(writer, "Duplicates removed:      %d\n", m.DuplicatesRemoved)
	fmt.Fprintf(writer, "Data quality score:      %s\n", rg.formatScore(m.DataQualityScore))
}

func (rg *ReportGenerator) printStages(stages normalization.StageResults, writer io.Writer) {
	p := rg.palette

	if c := stages.Columns; c != nil {
		rg.section(writer, "COLUMN CONSISTENCY")
		fmt.Fprintf(writer, "Completeness: %.1f%%  Alignment: %.1f%%  Quality: %s\n",
			c.Metrics.CompletenessRatio*100, c.Metrics.AlignmentScore*100, rg.formatScore(c.Metrics.DataQualityScore))
		for _, issue := range c.Issues {
			fmt.Fprintf(writer, "  - [%s] %s %s: %s\n",
				p.severity(issue.Severity).Sprint(strings.ToUpper(string(issue.Severity))),
				issue.Kind, issue.Field, rg.truncate(issue.Description, rg.config.TableMaxWidth))
		}
		for _, fix := range c.Fixes {
			fmt.Fprintf(writer, "  * %s %s: %d rows (confidence %.2f)\n", fix.Type, fix.Field, fix.AffectedRows, fix.Confidence)
		}
		fmt.Fprintf(writer, "\n")
	}

	if d := stages.Dedup; d != nil {
		rg.section(writer, "DUPLICATES")
		fmt.Fprintf(writer, "Removed: %d\n", d.DuplicatesRemoved)
		shown := 0
		for _, g := range d.Groups {
			if len(g.Members) < 2 {
				continue
			}
			if shown == rg.config.MaxListItems {
				fmt.Fprintf(writer, "  ... more groups omitted\n")
				break
			}
			fmt.Fprintf(writer, "  - kept row %d of rows %v: %s\n", g.Kept+1, oneBased(g.Members), g.Reason)
			shown++
		}
		fmt.Fprintf(writer, "\n")
	}

	if c := stages.Checksum; c != nil {
		rg.section(writer, "CHECKSUM VALIDATION")
		fmt.Fprintf(writer, "Debit total:  %s\n", c.ActualTotals.TotalDebit.StringFixed(2))
		fmt.Fprintf(writer, "Credit total: %s\n", c.ActualTotals.TotalCredit.StringFixed(2))
		fmt.Fprintf(writer, "Quality:      %s  Confidence: %.2f\n", rg.formatScore(c.QualityScore), c.Confidence)
		for _, check := range c.Checks {
			label := p.ok.Sprint("PASS")
			if !check.Passed {
				label = p.bad.Sprint("FAIL")
			}
			fmt.Fprintf(writer, "  [%s] %s: %s\n", label, check.Name, check.Description)
		}
		if len(c.Discrepancies) > 0 {
			fmt.Fprintf(writer, "Discrepancies (%d):\n", len(c.Discrepancies))
			for _, disc := range c.Discrepancies {
				fmt.Fprintf(writer, "  - [%s] %s: %s",
					p.severity(disc.Severity).Sprint(strings.ToUpper(string(disc.Severity))),
					disc.Type, disc.Description)
				if !disc.Difference.IsZero() {
					fmt.Fprintf(writer, " (difference: %s, %s%%)", disc.Difference.StringFixed(2), disc.PercentageDifference.StringFixed(2))
				}
				fmt.Fprintf(writer, "\n")
			}
		}
		for _, fix := range c.Fixes {
			fmt.Fprintf(writer, "  * %s: %s\n", fix.Kind, fix.Description)
		}
		for _, s := range c.Suggestions {
			fmt.Fprintf(writer, "  ? row %d %s: %s -> %s (%s)\n",
				s.Row+1, s.Field, s.Current.StringFixed(2), s.Proposed.StringFixed(2), s.Reason)
		}
		fmt.Fprintf(writer, "\n")
	}

	if g := stages.Grid; g != nil {
		rg.section(writer, "GRID QUALITY")
		fmt.Fprintf(writer, "%s\n", g.Summary)
		rg.printGridQuality(g, writer)
	}
}

func (rg *ReportGenerator) printGridQuality(report *gridquality.QualityReport, writer io.Writer) {
	before, after := report.OriginalMetrics, report.Metrics
	fmt.Fprintf(writer, "%-22s %10s %10s\n", "Metric", "Before", "After")
	rows := []struct {
		name          string
		before, after string
	}{
		{"Rows", strconv.Itoa(before.TotalRows), strconv.Itoa(after.TotalRows)},
		{"Valid rows", strconv.Itoa(before.ValidRows), strconv.Itoa(after.ValidRows)},
		{"Empty rows", strconv.Itoa(before.EmptyRows), strconv.Itoa(after.EmptyRows)},
		{"Duplicate rows", strconv.Itoa(before.DuplicateRows), strconv.Itoa(after.DuplicateRows)},
		{"Completeness", percent(before.Completeness), percent(after.Completeness)},
		{"Column consistency", percent(before.ColumnConsistency), percent(after.ColumnConsistency)},
		{"Data accuracy", percent(before.DataAccuracy), percent(after.DataAccuracy)},
		{"Currency consistency", percent(before.CurrencyConsistency), percent(after.CurrencyConsistency)},
		{"Overall quality", percent(before.OverallQuality), percent(after.OverallQuality)},
	}
	for _, r := range rows {
		fmt.Fprintf(writer, "%-22s %10s %10s\n", r.name, r.before, r.after)
	}
	fmt.Fprintf(writer, "\n")

	if len(report.Issues) > 0 {
		rg.printGridIssues(report.Issues, writer)
	}

	if len(report.Fixes) > 0 {
		fmt.Fprintf(writer, "Fixes applied (%d):\n", len(report.Fixes))
		for _, fix := range report.Fixes {
			fmt.Fprintf(writer, "  * %s: %s (%d rows)\n", fix.IssueType, fix.Description, fix.RowsAffected)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Recommendations) > 0 {
		fmt.Fprintf(writer, "Recommendations:\n")
		rg.printList(report.Recommendations, rg.palette.muted, writer)
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) printGridIssues(issues []gridquality.Issue, writer io.Writer) {
	fmt.Fprintf(writer, "Issues found: %d\n", len(issues))

	// Group by severity
	groups := make(map[models.Severity][]gridquality.Issue)
	for _, issue := range issues {
		groups[issue.Severity] = append(groups[issue.Severity], issue)
	}

	severities := []models.Severity{
		models.SeverityCritical,
		models.SeverityHigh,
		models.SeverityMedium,
		models.SeverityLow,
	}
	for _, severity := range severities {
		group := groups[severity]
		if len(group) == 0 {
			continue
		}
		rg.palette.severity(severity).Fprintf(writer, "%s Severity (%d):\n", strings.ToUpper(string(severity)), len(group))
		for _, issue := range group {
			fmt.Fprintf(writer, "  - %s: %s", issue.Type, rg.truncate(issue.Description, rg.config.TableMaxWidth))
			if n := len(issue.AffectedRows); n > 0 {
				fmt.Fprintf(writer, " (%d rows)", n)
			}
			fmt.Fprintf(writer, "\n")
		}
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printTransactionList(transactions []models.Transaction, writer io.Writer) {
	list := transactions
	if rg.config.SortByAmount {
		list = make([]models.Transaction, len(transactions))
		copy(list, transactions)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Magnitude().GreaterThan(list[j].Magnitude())
		})
	}

	fmt.Fprintf(writer, "Total: %d\n", len(list))
	for i, tx := range list {
		line := fmt.Sprintf("  %d. %s  %-12s %s  %s",
			i+1,
			models.FormatDate(tx.Date),
			formatSigned(tx.SignedAmount()),
			tx.Currency,
			tx.CounterpartyName)
		if tx.PaymentPurpose != "" {
			line += " | " + tx.PaymentPurpose
		}
		fmt.Fprintf(writer, "%s\n", rg.truncate(line, rg.config.TableMaxWidth))

		// Limit output for very long lists
		if i+1 >= rg.config.MaxListItems && len(list) > rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(list)-rg.config.MaxListItems)
			break
		}
	}
}

func (rg *ReportGenerator) printList(items []string, c *color.Color, writer io.Writer) {
	for _, item := range items {
		fmt.Fprintf(writer, "  - %s\n", c.Sprint(rg.truncate(item, rg.config.TableMaxWidth-4)))
	}
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) formatScore(score float64) string {
	text := fmt.Sprintf("%.2f (%.1f%%)", score, score*100)
	switch {
	case score >= 0.9:
		return rg.palette.ok.Sprint(text)
	case score >= 0.7:
		return rg.palette.warn.Sprint(text)
	default:
		return rg.palette.bad.Sprint(text)
	}
}

func (rg *ReportGenerator) countColor(n int, nonzero *color.Color) *color.Color {
	if n == 0 {
		return rg.palette.ok
	}
	return nonzero
}

func (rg *ReportGenerator) blockingLabel(blocking bool) string {
	if blocking {
		return rg.palette.bad.Sprint("blocking issues found")
	}
	return rg.palette.ok.Sprint("no blocking issues")
}

func (rg *ReportGenerator) truncate(s string, width int) string {
	if width < 4 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

func (rg *ReportGenerator) filterResultForOutput(result *normalization.NormalizationResult) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":      result.RunID,
		"state":       result.State,
		"metrics":     result.Metrics,
		"errors":      result.Errors,
		"warnings":    result.Warnings,
		"started_at":  result.StartedAt,
		"finished_at": result.FinishedAt,
	}

	if rg.config.IncludeTransitions {
		output["transitions"] = result.Transitions
	}

	if rg.config.IncludeTransactions {
		output["transactions"] = result.Transactions
	}

	if rg.config.IncludeStageDetails {
		output["stages"] = result.Stages
	}

	if rg.config.IncludeOracleNotes {
		output["oracle_notes"] = result.OracleNotes
	}

	return output
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	rg.palette = newPalette(config.UseColors)
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// BatchSummary aggregates the runs of a batch.
type BatchSummary struct {
	Runs              int     `json:"runs"`
	Completed         int     `json:"completed"`
	Failed            int     `json:"failed"`
	Transactions      int     `json:"transactions"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	AverageQuality    float64 `json:"average_quality"`
}

// summarizeBatch averages quality over completed runs only.
func summarizeBatch(results []*normalization.NormalizationResult) BatchSummary {
	var s BatchSummary
	var quality float64
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Runs++
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Completed++
		s.Transactions += r.Metrics.Total
		s.DuplicatesRemoved += r.Metrics.DuplicatesRemoved
		quality += r.Metrics.DataQualityScore
	}
	if s.Completed > 0 {
		s.AverageQuality = quality / float64(s.Completed)
	}
	return s
}

func writeJSON(writer io.Writer, v interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatNullAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func formatSigned(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func oneBased(rows []int) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r + 1
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
