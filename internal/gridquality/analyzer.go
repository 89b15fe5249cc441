// Package gridquality scores and repairs untyped rows-of-cells grids before
// they are mapped into transactions.
package gridquality

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

const (
	sampleRows  = 100
	sampleCells = 10

	emptyRowThreshold   = 0.1
	consistencyMinimum  = 0.8
	accuracyMinimum     = 0.9
	currencyConsistency = 0.8
)

var currencyCode = regexp.MustCompile(`\b[A-Z]{3}\b`)

// IssueType names a grid-level finding.
type IssueType string

const (
	IssueMissingData         IssueType = "missing_data"
	IssueDuplicateRows       IssueType = "duplicate_rows"
	IssueInconsistentColumns IssueType = "inconsistent_columns"
	IssueMissingColumns      IssueType = "missing_columns"
	IssueDateParseErrors     IssueType = "date_parse_errors"
	IssueAmountParseErrors   IssueType = "amount_parse_errors"
	IssueCurrencyMismatch    IssueType = "currency_mismatch"
)

// Issue is one detected grid problem.
type Issue struct {
	Type         IssueType       `json:"type"`
	Severity     models.Severity `json:"severity"`
	Description  string          `json:"description"`
	AffectedRows []int           `json:"affected_rows,omitempty"`
}

// Metrics describe a grid at one point of the analysis.
type Metrics struct {
	TotalRows           int      `json:"total_rows"`
	ValidRows           int      `json:"valid_rows"`
	EmptyRows           int      `json:"empty_rows"`
	DuplicateRows       int      `json:"duplicate_rows"`
	Completeness        float64  `json:"completeness"`
	MeanColumns         float64  `json:"mean_columns"`
	ColumnConsistency   float64  `json:"column_consistency"`
	MissingColumns      []string `json:"missing_columns,omitempty"`
	DateCells           int      `json:"date_cells"`
	DateAccuracy        float64  `json:"date_accuracy"`
	AmountCells         int      `json:"amount_cells"`
	AmountAccuracy      float64  `json:"amount_accuracy"`
	DataAccuracy        float64  `json:"data_accuracy"`
	CurrencyCells       int      `json:"currency_cells"`
	DominantCurrency    string   `json:"dominant_currency,omitempty"`
	CurrencyConsistency float64  `json:"currency_consistency"`
	OverallQuality      float64  `json:"overall_quality"`

	emptyRowIndexes     []int
	duplicateRowIndexes []int
}

// QualityReport is the outcome of AnalyzeGridQuality.
type QualityReport struct {
	OriginalMetrics Metrics     `json:"original_metrics"`
	Metrics         Metrics     `json:"metrics"`
	Issues          []Issue     `json:"issues"`
	Fixes           []Fix       `json:"fixes"`
	FixedGrid       models.Grid `json:"fixed_grid"`
	Summary         string      `json:"summary"`
	Recommendations []string    `json:"recommendations"`
	StrictMode      bool        `json:"strict_mode"`
}

// Blocking reports whether a strict-mode run found anything high or worse.
// Outside strict mode reports never block.
func (r *QualityReport) Blocking() bool {
	if !r.StrictMode {
		return false
	}
	for _, issue := range r.Issues {
		if issue.Severity.Rank() >= models.SeverityHigh.Rank() {
			return true
		}
	}
	return false
}

// Analyzer scores grids. It holds no per-run state and is safe for
// concurrent use.
type Analyzer struct {
	normalizer normalizer.Normalizer
	logger     logger.Logger
}

// NewAnalyzer creates an analyzer; a nil normalizer selects the default one.
func NewAnalyzer(n normalizer.Normalizer) *Analyzer {
	if n == nil {
		n = normalizer.Default
	}
	return &Analyzer{
		normalizer: n,
		logger:     logger.GetGlobalLogger().WithComponent("gridquality"),
	}
}

// AnalyzeGridQuality runs the default analyzer.
func AnalyzeGridQuality(grid models.Grid, options *Options) (*QualityReport, error) {
	return NewAnalyzer(nil).Analyze(grid, options)
}

// Analyze scores the grid, optionally repairs a copy of it and rescales the
// result. The caller's grid is never modified. Only invalid options produce
// an error.
func (a *Analyzer) Analyze(grid models.Grid, options *Options) (*QualityReport, error) {
	if options == nil {
		options = DefaultOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "grid options", options, err)
	}

	original := a.computeMetrics(grid, options)
	a.logger.WithFields(logger.Fields{
		"rows":         original.TotalRows,
		"empty_rows":   original.EmptyRows,
		"duplicates":   original.DuplicateRows,
		"consistency":  original.ColumnConsistency,
		"completeness": original.Completeness,
	}).Debug("Grid metrics computed")

	issues := detectIssues(original, options)

	working := grid.Clone()
	var fixes []Fix
	if options.fixesEnabled() {
		working, fixes = applyFixes(working, issues, options)
	}

	final := a.computeMetrics(working, options)
	final.OverallQuality = overallQuality(final, original.TotalRows)
	original.OverallQuality = overallQuality(original, original.TotalRows)

	report := &QualityReport{
		OriginalMetrics: original,
		Metrics:         final,
		Issues:          issues,
		Fixes:           fixes,
		FixedGrid:       working,
		Summary:         summaryLabel(final.OverallQuality),
		Recommendations: recommendations(issues, fixes),
		StrictMode:      options.StrictMode,
	}
	if report.Issues == nil {
		report.Issues = []Issue{}
	}
	if report.Fixes == nil {
		report.Fixes = []Fix{}
	}

	a.logger.WithFields(logger.Fields{
		"overall": report.Metrics.OverallQuality,
		"summary": report.Summary,
		"issues":  len(report.Issues),
		"fixes":   len(report.Fixes),
	}).Info("Grid quality analyzed")

	return report, nil
}

// normalizeRow is the comparison form used for blank and duplicate checks.
func normalizeRow(row []string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.Join(row, " "))), " ")
}

func isBlankRow(row []string) bool {
	return strings.TrimSpace(strings.Join(row, "")) == ""
}

func (a *Analyzer) computeMetrics(grid models.Grid, options *Options) Metrics {
	m := Metrics{TotalRows: len(grid)}

	seen := make(map[string]bool, len(grid))
	for i, row := range grid {
		if isBlankRow(row) {
			m.EmptyRows++
			m.emptyRowIndexes = append(m.emptyRowIndexes, i)
			continue
		}
		m.ValidRows++
		key := normalizeRow(row)
		if seen[key] {
			m.DuplicateRows++
			m.duplicateRowIndexes = append(m.duplicateRowIndexes, i)
			continue
		}
		seen[key] = true
	}
	if m.TotalRows > 0 {
		m.Completeness = float64(m.ValidRows) / float64(m.TotalRows)
	}

	m.MeanColumns, m.ColumnConsistency = columnConsistency(grid)
	if options.ExpectedColumns > 0 && m.MeanColumns < float64(options.ExpectedColumns) {
		for i := int(math.Round(m.MeanColumns)); i < options.ExpectedColumns; i++ {
			m.MissingColumns = append(m.MissingColumns, fmt.Sprintf("column_%d", i+1))
		}
	}

	a.validateContent(grid, options, &m)
	return m
}

// columnConsistency returns the mean column count and
// max(0, 1 - variance/mean) using the population variance.
func columnConsistency(grid models.Grid) (float64, float64) {
	if len(grid) == 0 {
		return 0, 0
	}
	var sum float64
	for _, row := range grid {
		sum += float64(len(row))
	}
	mean := sum / float64(len(grid))
	if mean == 0 {
		return 0, 0
	}

	var variance float64
	for _, row := range grid {
		d := float64(len(row)) - mean
		variance += d * d
	}
	variance /= float64(len(grid))

	return mean, math.Max(0, 1-variance/mean)
}

func (a *Analyzer) validateContent(grid models.Grid, options *Options, m *Metrics) {
	var dateOK, amountOK int
	codes := make(map[string]int)

	for r := 0; r < len(grid) && r < sampleRows; r++ {
		row := grid[r]
		for c := 0; c < len(row) && c < sampleCells; c++ {
			cell := strings.TrimSpace(row[c])
			if cell == "" {
				continue
			}
			if code := currencyCode.FindString(cell); code != "" {
				m.CurrencyCells++
				codes[code]++
			}
			if c >= len(options.ColumnTypes) {
				continue
			}
			switch options.ColumnTypes[c] {
			case ColumnDate:
				m.DateCells++
				if _, ok := a.normalizer.NormalizeDate(cell); ok {
					dateOK++
				}
			case ColumnNumber:
				m.AmountCells++
				if _, ok := a.normalizer.NormalizeAmount(cell, options.Locale); ok {
					amountOK++
				}
			}
		}
	}

	m.DateAccuracy = ratioOrOne(dateOK, m.DateCells)
	m.AmountAccuracy = ratioOrOne(amountOK, m.AmountCells)
	switch {
	case m.DateCells > 0 && m.AmountCells > 0:
		m.DataAccuracy = (m.DateAccuracy + m.AmountAccuracy) / 2
	case m.DateCells > 0:
		m.DataAccuracy = m.DateAccuracy
	case m.AmountCells > 0:
		m.DataAccuracy = m.AmountAccuracy
	default:
		m.DataAccuracy = 1
	}

	best := 0
	for code, n := range codes {
		if n > best || (n == best && code < m.DominantCurrency) {
			best = n
			m.DominantCurrency = code
		}
	}
	m.CurrencyConsistency = ratioOrOne(best, m.CurrencyCells)
}

func ratioOrOne(ok, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(ok) / float64(total)
}

func detectIssues(m Metrics, options *Options) []Issue {
	var issues []Issue
	add := func(t IssueType, s models.Severity, rows []int, format string, args ...interface{}) {
		if options.StrictMode {
			s = s.Escalate()
		}
		issues = append(issues, Issue{Type: t, Severity: s, Description: fmt.Sprintf(format, args...), AffectedRows: rows})
	}

	if m.TotalRows == 0 {
		add(IssueMissingData, models.SeverityHigh, nil, "grid has no rows")
		return issues
	}

	if ratio := float64(m.EmptyRows) / float64(m.TotalRows); ratio > emptyRowThreshold {
		add(IssueMissingData, models.SeverityMedium, m.emptyRowIndexes,
			"%d of %d rows are empty (%.1f%%)", m.EmptyRows, m.TotalRows, ratio*100)
	}
	if m.DuplicateRows > 0 {
		add(IssueDuplicateRows, models.SeverityMedium, m.duplicateRowIndexes,
			"%d duplicate rows found", m.DuplicateRows)
	}
	if m.ColumnConsistency < consistencyMinimum {
		add(IssueInconsistentColumns, models.SeverityHigh, nil,
			"column consistency %.2f is below %.2f", m.ColumnConsistency, consistencyMinimum)
	}
	if len(m.MissingColumns) > 0 {
		add(IssueMissingColumns, models.SeverityHigh, nil,
			"missing columns: %s", strings.Join(m.MissingColumns, ", "))
	}
	if m.DateCells > 0 && m.DateAccuracy < accuracyMinimum {
		add(IssueDateParseErrors, models.SeverityMedium, nil,
			"only %.0f%% of date cells could be parsed", m.DateAccuracy*100)
	}
	if m.AmountCells > 0 && m.AmountAccuracy < accuracyMinimum {
		add(IssueAmountParseErrors, models.SeverityMedium, nil,
			"only %.0f%% of amount cells could be parsed", m.AmountAccuracy*100)
	}
	if m.CurrencyCells > 0 && m.CurrencyConsistency < currencyConsistency {
		add(IssueCurrencyMismatch, models.SeverityLow, nil,
			"currency consistency %.2f, dominant currency %s", m.CurrencyConsistency, m.DominantCurrency)
	}

	return issues
}

func overallQuality(m Metrics, originalRows int) float64 {
	if m.TotalRows == 0 || originalRows == 0 {
		return 0
	}
	retained := float64(m.TotalRows) / float64(originalRows)
	q := 0.3*m.Completeness + 0.3*m.ColumnConsistency + 0.2*m.DataAccuracy + 0.2*retained
	return math.Max(0, math.Min(1, q))
}

func summaryLabel(q float64) string {
	switch {
	case q >= 0.9:
		return "excellent"
	case q >= 0.8:
		return "good"
	case q >= 0.7:
		return "fair"
	case q >= 0.5:
		return "poor"
	default:
		return "very poor"
	}
}

var recommendationText = map[IssueType]string{
	IssueMissingData:         "Remove empty rows or re-export the statement without blank lines",
	IssueDuplicateRows:       "Review duplicate rows; they may be repeated page headers or double exports",
	IssueInconsistentColumns: "Check the column layout; merged cells or wrapped text split rows unevenly",
	IssueMissingColumns:      "Verify that the export includes every expected column",
	IssueDateParseErrors:     "Standardize the date format (YYYY-MM-DD or DD.MM.YYYY)",
	IssueAmountParseErrors:   "Standardize amount formatting and the decimal separator for the locale",
	IssueCurrencyMismatch:    "Check currency codes; the statement mixes several currencies",
}

// recommendations lists advice for every issue type that no fix resolved.
func recommendations(issues []Issue, fixes []Fix) []string {
	fixed := make(map[IssueType]bool, len(fixes))
	for _, f := range fixes {
		fixed[f.IssueType] = true
	}

	out := []string{}
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		if fixed[issue.Type] || seen[issue.Type] {
			continue
		}
		seen[issue.Type] = true
		out = append(out, recommendationText[issue.Type])
	}
	return out
}
