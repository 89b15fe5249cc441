// Package checksum cross-checks computed debit, credit and balance sums
// against control totals declared in statement metadata or text, and applies
// bounded corrections.
package checksum

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

const (
	defaultMetadataReliability  = 0.95
	defaultExtractedReliability = 0.8
	computedReliability         = 0.5
)

var (
	// Tolerance is the largest difference treated as a match.
	Tolerance = decimal.RequireFromString("0.01")
	// MaxTotal bounds plausible debit and credit totals.
	MaxTotal = decimal.New(1, 12)

	hundred = decimal.NewFromInt(100)
)

// Config holds the engine settings.
type Config struct {
	Locale   string                `json:"locale"`
	Patterns []ControlTotalPattern `json:"-"`
	// ApplyBalanceFixes lets the engine overwrite the transaction that
	// explains a small balance gap. When false the change is only suggested.
	ApplyBalanceFixes    bool    `json:"apply_balance_fixes"`
	MetadataReliability  float64 `json:"metadata_reliability"`
	ExtractedReliability float64 `json:"extracted_reliability"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Locale:               normalizer.LocaleRU,
		Patterns:             DefaultPatterns(),
		ApplyBalanceFixes:    false,
		MetadataReliability:  defaultMetadataReliability,
		ExtractedReliability: defaultExtractedReliability,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MetadataReliability <= 0 || c.MetadataReliability > 1 {
		return fmt.Errorf("metadata reliability must be in (0, 1], got %v", c.MetadataReliability)
	}
	if c.ExtractedReliability <= 0 || c.ExtractedReliability > 1 {
		return fmt.Errorf("extracted reliability must be in (0, 1], got %v", c.ExtractedReliability)
	}
	if len(c.Patterns) == 0 {
		return fmt.Errorf("at least one control total pattern is required")
	}
	return PatternSet(c.Patterns).Validate()
}

// DiscrepancyType names a reconciliation finding.
type DiscrepancyType string

const (
	DebitTotalMismatch  DiscrepancyType = "debit_total_mismatch"
	CreditTotalMismatch DiscrepancyType = "credit_total_mismatch"
	BalanceMismatch     DiscrepancyType = "balance_mismatch"
	TurnoverMismatch    DiscrepancyType = "turnover_mismatch"
	MissingControlTotal DiscrepancyType = "missing_control_total"
)

// Discrepancy is a declared value that disagrees with the computed one.
type Discrepancy struct {
	Type                 DiscrepancyType `json:"type"`
	TotalType            TotalType       `json:"total_type,omitempty"`
	Severity             models.Severity `json:"severity"`
	Expected             decimal.Decimal `json:"expected"`
	Actual               decimal.Decimal `json:"actual"`
	Difference           decimal.Decimal `json:"difference"`
	PercentageDifference decimal.Decimal `json:"percentage_difference"`
	AutoFixable          bool            `json:"auto_fixable"`
	Description          string          `json:"description"`
}

// ActualTotals are the sums computed from the transactions.
type ActualTotals struct {
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Count       int             `json:"count"`
	Average     decimal.Decimal `json:"average"`
	Min         decimal.Decimal `json:"min"`
	Max         decimal.Decimal `json:"max"`
	Currencies  map[string]int  `json:"currencies"`
}

// ChecksumValidationResult is returned by ValidateAndFixChecksums.
type ChecksumValidationResult struct {
	Transactions  []models.Transaction `json:"transactions"`
	ActualTotals  ActualTotals         `json:"actual_totals"`
	ControlTotals []ControlTotal       `json:"control_totals"`
	Discrepancies []Discrepancy        `json:"discrepancies"`
	Fixes         []Fix                `json:"fixes"`
	Suggestions   []FixSuggestion      `json:"suggestions"`
	Checks        []ValidationCheck    `json:"checks"`
	QualityScore  float64              `json:"quality_score"`
	Confidence    float64              `json:"confidence"`
}

// Engine reconciles transaction totals. It keeps no state between runs.
type Engine struct {
	config   *Config
	patterns PatternSet
	logger   logger.Logger
}

// NewEngine creates an engine; a nil config selects the defaults.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Patterns) == 0 {
		config.Patterns = DefaultPatterns()
	}
	return &Engine{
		config:   config,
		patterns: PatternSet(config.Patterns),
		logger:   logger.GetGlobalLogger().WithComponent("checksum"),
	}
}

// ValidateAndFixChecksums runs the default engine.
func ValidateAndFixChecksums(txs []models.Transaction, metadata *models.StatementMetadata) (*ChecksumValidationResult, error) {
	return NewEngine(nil).ValidateAndFixChecksums(txs, metadata)
}

// ValidateAndFixChecksums compares computed totals with control totals,
// applies the fixes allowed by the thresholds and validates the outcome. The
// input slice is not modified; metadata may be nil.
func (e *Engine) ValidateAndFixChecksums(txs []models.Transaction, metadata *models.StatementMetadata) (*ChecksumValidationResult, error) {
	if txs == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "transactions", nil, nil)
	}
	if err := e.config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "checksum config", nil, err)
	}

	working := models.CloneTransactions(txs)
	control := e.controlRows(working)

	actual := computeTotals(working, control)
	e.logger.WithFields(logger.Fields{
		"debit":        actual.TotalDebit.String(),
		"credit":       actual.TotalCredit.String(),
		"count":        actual.Count,
		"control_rows": len(control),
	}).Debug("Actual totals computed")

	totals := e.collectControlTotals(working, metadata)
	discrepancies := compare(actual, totals, metadata)

	f := &fixer{engine: e, working: working, control: control, metadata: metadata}
	totals = f.applyThresholdFixes(actual, discrepancies, totals)
	f.applyRowFixes()

	final := computeTotals(f.working, nil)
	checks := validate(f.working, final, metadata)

	result := &ChecksumValidationResult{
		Transactions:  f.working,
		ActualTotals:  actual,
		ControlTotals: totals,
		Discrepancies: discrepancies,
		Fixes:         f.fixes,
		Suggestions:   f.suggestions,
		Checks:        checks,
		QualityScore:  qualityScore(checks),
		Confidence:    f.confidence(),
	}
	if result.Discrepancies == nil {
		result.Discrepancies = []Discrepancy{}
	}
	if result.Fixes == nil {
		result.Fixes = []Fix{}
	}
	if result.Suggestions == nil {
		result.Suggestions = []FixSuggestion{}
	}

	e.logger.WithFields(logger.Fields{
		"transactions":   len(result.Transactions),
		"control_totals": len(result.ControlTotals),
		"discrepancies":  len(result.Discrepancies),
		"fixes":          len(result.Fixes),
		"suggestions":    len(result.Suggestions),
		"quality":        result.QualityScore,
	}).Info("Checksum validation completed")

	return result, nil
}

var (
	controlKeyword = regexp.MustCompile(`(?i)итого|всего|total|остаток|balance|оборот`)
	wordChars      = regexp.MustCompile(`[\p{L}]+`)
)

func rowText(tx models.Transaction) string {
	return strings.TrimSpace(tx.PaymentPurpose + " " + tx.CounterpartyName)
}

// isControlTotalRow recognises summary lines a parser emitted as
// transactions: text matching a control-total pattern, or a totals keyword
// with an otherwise mostly numeric body.
func (e *Engine) isControlTotalRow(tx models.Transaction) bool {
	text := rowText(tx)
	if text == "" || !controlKeyword.MatchString(text) {
		return false
	}
	if e.patterns.Matches(text) {
		return true
	}
	body := controlKeyword.ReplaceAllString(text, "")
	letters := 0
	for _, w := range wordChars.FindAllString(body, -1) {
		letters += len([]rune(w))
	}
	digits := 0
	for _, r := range body {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits > 0 && digits >= letters
}

func (e *Engine) controlRows(txs []models.Transaction) map[int]bool {
	rows := make(map[int]bool)
	for i, tx := range txs {
		if e.isControlTotalRow(tx) {
			rows[i] = true
		}
	}
	return rows
}

func magnitude(tx models.Transaction) decimal.Decimal {
	if tx.HasDebit() {
		return tx.Debit.Decimal.Abs()
	}
	if tx.HasCredit() {
		return tx.Credit.Decimal.Abs()
	}
	return decimal.Zero
}

// computeTotals sums positive debits and credits of every row not in skip.
func computeTotals(txs []models.Transaction, skip map[int]bool) ActualTotals {
	t := ActualTotals{
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		Average:     decimal.Zero,
		Min:         decimal.Zero,
		Max:         decimal.Zero,
		Currencies:  make(map[string]int),
	}
	sum := decimal.Zero
	for i, tx := range txs {
		if skip[i] {
			continue
		}
		if tx.Debit.Valid && tx.Debit.Decimal.IsPositive() {
			t.TotalDebit = t.TotalDebit.Add(tx.Debit.Decimal)
		}
		if tx.Credit.Valid && tx.Credit.Decimal.IsPositive() {
			t.TotalCredit = t.TotalCredit.Add(tx.Credit.Decimal)
		}
		if c := strings.TrimSpace(tx.Currency); c != "" {
			t.Currencies[normalizer.StandardizeCurrency(c)]++
		}

		amount := magnitude(tx)
		if amount.IsZero() {
			continue
		}
		if t.Count == 0 || amount.LessThan(t.Min) {
			t.Min = amount
		}
		if t.Count == 0 || amount.GreaterThan(t.Max) {
			t.Max = amount
		}
		sum = sum.Add(amount)
		t.Count++
	}
	if t.Count > 0 {
		t.Average = sum.Div(decimal.NewFromInt(int64(t.Count))).Round(2)
	}
	return t
}

// collectControlTotals gathers metadata and text totals and keeps the most
// reliable candidate per type.
func (e *Engine) collectControlTotals(txs []models.Transaction, metadata *models.StatementMetadata) []ControlTotal {
	best := make(map[TotalType]ControlTotal)
	consider := func(ct ControlTotal) {
		if current, ok := best[ct.Type]; !ok || ct.Reliability > current.Reliability {
			best[ct.Type] = ct
		}
	}

	if metadata.HasClosingBalance() {
		consider(ControlTotal{
			Label:       "balanceEnd",
			Type:        BalanceTotal,
			Expected:    metadata.ClosingBalance.Decimal,
			Source:      SourceMetadata,
			Reliability: e.config.MetadataReliability,
		})
	}
	for _, tx := range txs {
		text := rowText(tx)
		if text == "" {
			continue
		}
		for _, ct := range e.patterns.Extract(text, e.config.ExtractedReliability) {
			consider(ct)
		}
	}

	out := make([]ControlTotal, 0, len(best))
	for _, t := range totalTypeOrder {
		if ct, ok := best[t]; ok {
			out = append(out, ct)
		}
	}
	e.logger.WithField("count", len(out)).Debug("Control totals collected")
	return out
}

// actualBalance is opening + credits - debits when the opening balance is
// declared, otherwise |credits - debits|.
func actualBalance(actual ActualTotals, metadata *models.StatementMetadata) decimal.Decimal {
	if metadata != nil && metadata.OpeningBalance.Valid {
		return metadata.OpeningBalance.Decimal.Add(actual.TotalCredit).Sub(actual.TotalDebit)
	}
	return actual.TotalCredit.Sub(actual.TotalDebit).Abs()
}

func actualFor(t TotalType, actual ActualTotals, metadata *models.StatementMetadata) decimal.Decimal {
	switch t {
	case DebitTotal:
		return actual.TotalDebit
	case CreditTotal:
		return actual.TotalCredit
	case BalanceTotal:
		return actualBalance(actual, metadata)
	default:
		return actual.TotalDebit.Add(actual.TotalCredit)
	}
}

// PercentageDifference is difference/|expected|*100, or 100 when nothing was
// expected.
func PercentageDifference(expected, actual decimal.Decimal) decimal.Decimal {
	difference := actual.Sub(expected).Abs()
	if expected.IsZero() {
		return hundred
	}
	return difference.Div(expected.Abs()).Mul(hundred)
}

// BalanceSeverity bands a balance mismatch percentage.
func BalanceSeverity(pct decimal.Decimal) models.Severity {
	switch {
	case pct.GreaterThan(decimal.NewFromInt(10)):
		return models.SeverityCritical
	case pct.GreaterThan(decimal.NewFromInt(5)):
		return models.SeverityHigh
	case pct.GreaterThan(decimal.NewFromInt(1)):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// TotalSeverity bands a debit, credit or turnover mismatch percentage.
func TotalSeverity(pct decimal.Decimal) models.Severity {
	switch {
	case pct.GreaterThan(decimal.NewFromInt(5)):
		return models.SeverityHigh
	case pct.GreaterThan(decimal.NewFromInt(1)):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

var discrepancyTypes = map[TotalType]DiscrepancyType{
	DebitTotal:    DebitTotalMismatch,
	CreditTotal:   CreditTotalMismatch,
	BalanceTotal:  BalanceMismatch,
	TurnoverTotal: TurnoverMismatch,
}

func compare(actual ActualTotals, totals []ControlTotal, metadata *models.StatementMetadata) []Discrepancy {
	if len(totals) == 0 {
		balance := actualBalance(actual, metadata)
		return []Discrepancy{{
			Type:                 MissingControlTotal,
			Severity:             models.SeverityMedium,
			Expected:             decimal.Zero,
			Actual:               balance,
			Difference:           balance,
			PercentageDifference: decimal.Zero,
			AutoFixable:          true,
			Description:          "no control totals found in metadata or statement text",
		}}
	}

	var out []Discrepancy
	for _, ct := range totals {
		got := actualFor(ct.Type, actual, metadata)
		difference := got.Sub(ct.Expected).Abs()
		if !difference.GreaterThan(Tolerance) {
			continue
		}
		pct := PercentageDifference(ct.Expected, got)

		d := Discrepancy{
			Type:                 discrepancyTypes[ct.Type],
			TotalType:            ct.Type,
			Expected:             ct.Expected,
			Actual:               got,
			Difference:           difference,
			PercentageDifference: pct,
		}
		if ct.Type == BalanceTotal {
			d.Severity = BalanceSeverity(pct)
			d.AutoFixable = pct.LessThan(decimal.NewFromInt(2))
		} else {
			d.Severity = TotalSeverity(pct)
			d.AutoFixable = pct.LessThan(decimal.NewFromInt(1))
		}
		d.Description = fmt.Sprintf("%s (%s) declares %s, computed %s (%s%%)",
			ct.Label, ct.Source, ct.Expected.StringFixed(2), got.StringFixed(2), pct.StringFixed(2))
		out = append(out, d)
	}
	return out
}
