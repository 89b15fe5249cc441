package checksum

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"

	"statement-quality-service/internal/normalizer"
)

// TotalType is the kind of aggregate a control total declares.
type TotalType string

const (
	DebitTotal    TotalType = "debit_total"
	CreditTotal   TotalType = "credit_total"
	BalanceTotal  TotalType = "balance_total"
	TurnoverTotal TotalType = "turnover_total"
)

// totalTypeOrder fixes the output order of control totals and discrepancies.
var totalTypeOrder = []TotalType{DebitTotal, CreditTotal, BalanceTotal, TurnoverTotal}

// Source tells where a control total came from.
type Source string

const (
	SourceMetadata  Source = "metadata"
	SourceExtracted Source = "extracted"
	SourceComputed  Source = "computed"
)

// ControlTotal is a declared aggregate used to check computed sums.
type ControlTotal struct {
	Label       string          `json:"label"`
	Type        TotalType       `json:"type"`
	Expected    decimal.Decimal `json:"expected"`
	Source      Source          `json:"source"`
	Reliability float64         `json:"reliability"`
}

// ControlTotalPattern is one entry of the extraction table. The regexp must
// capture the amount in its first group. Lower Priority values are tried
// first.
type ControlTotalPattern struct {
	Type     TotalType
	Label    string
	Language string
	Priority int
	Regexp   *regexp.Regexp
}

// amountGroup matches "1 234 567,89", "1,234.56" and "1234.5".
const amountGroup = `(\d{1,3}(?:[ \x{00A0}]\d{3})+(?:[.,]\d{1,2})?|\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

func totalPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + prefix + `\s*[:\-]?\s*` + amountGroup)
}

// DefaultPatterns returns the Russian and English control-total table.
func DefaultPatterns() []ControlTotalPattern {
	return []ControlTotalPattern{
		{DebitTotal, "итого по дебету", normalizer.LocaleRU, 1, totalPattern(`(?:итого|всего)\s+(?:по\s+)?дебет[уа]?`)},
		{CreditTotal, "итого по кредиту", normalizer.LocaleRU, 1, totalPattern(`(?:итого|всего)\s+(?:по\s+)?кредит[уа]?`)},
		{DebitTotal, "обороты по дебету", normalizer.LocaleRU, 2, totalPattern(`обороты?\s+по\s+дебету`)},
		{CreditTotal, "обороты по кредиту", normalizer.LocaleRU, 2, totalPattern(`обороты?\s+по\s+кредиту`)},
		{DebitTotal, "total debits", normalizer.LocaleEN, 3, totalPattern(`total\s+(?:debits?|withdrawals?)`)},
		{CreditTotal, "total credits", normalizer.LocaleEN, 3, totalPattern(`total\s+(?:credits?|deposits?)`)},
		{BalanceTotal, "исходящий остаток", normalizer.LocaleRU, 1, totalPattern(`(?:исходящий|конечный)\s+остаток`)},
		{BalanceTotal, "остаток на конец периода", normalizer.LocaleRU, 2, totalPattern(`остаток\s+на\s+конец(?:\s+периода)?`)},
		{BalanceTotal, "closing balance", normalizer.LocaleEN, 3, totalPattern(`(?:closing|ending)\s+balance`)},
		{TurnoverTotal, "итого обороты", normalizer.LocaleRU, 1, regexp.MustCompile(`(?i)(?:итого\s+)?обороты?\s*[:\-]\s*` + amountGroup)},
		{TurnoverTotal, "total turnover", normalizer.LocaleEN, 2, totalPattern(`total\s+turnover`)},
	}
}

// PatternSet is an ordered control-total table.
type PatternSet []ControlTotalPattern

// Validate checks every entry is usable.
func (s PatternSet) Validate() error {
	for i, p := range s {
		if p.Regexp == nil {
			return fmt.Errorf("pattern %d (%s) has no regexp", i, p.Label)
		}
		if p.Regexp.NumSubexp() < 1 {
			return fmt.Errorf("pattern %q does not capture an amount", p.Label)
		}
		switch p.Type {
		case DebitTotal, CreditTotal, BalanceTotal, TurnoverTotal:
		default:
			return fmt.Errorf("pattern %q has unknown type %q", p.Label, p.Type)
		}
	}
	return nil
}

// sorted returns the table ordered by priority; equal priorities keep table
// order.
func (s PatternSet) sorted() PatternSet {
	out := append(PatternSet(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Extract returns at most one control total per type: the first match of the
// highest-priority pattern that yields a parseable amount.
func (s PatternSet) Extract(text string, reliability float64) []ControlTotal {
	found := make(map[TotalType]ControlTotal)
	for _, p := range s.sorted() {
		if _, ok := found[p.Type]; ok {
			continue
		}
		m := p.Regexp.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, ok := normalizer.Default.NormalizeAmount(m[1], p.Language)
		if !ok {
			continue
		}
		found[p.Type] = ControlTotal{
			Label:       p.Label,
			Type:        p.Type,
			Expected:    amount,
			Source:      SourceExtracted,
			Reliability: reliability,
		}
	}

	out := make([]ControlTotal, 0, len(found))
	for _, t := range totalTypeOrder {
		if ct, ok := found[t]; ok {
			out = append(out, ct)
		}
	}
	return out
}

// Matches reports whether any pattern matches the text.
func (s PatternSet) Matches(text string) bool {
	for _, p := range s {
		if p.Regexp.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractControlTotals runs the default table over free text.
func ExtractControlTotals(text string) []ControlTotal {
	return PatternSet(DefaultPatterns()).Extract(text, defaultExtractedReliability)
}
