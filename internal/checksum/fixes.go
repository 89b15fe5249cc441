package checksum

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/pkg/logger"
)

// FixKind names a checksum repair.
type FixKind string

const (
	FixRoundingAccepted     FixKind = "rounding_accepted"
	FixBalanceAdjusted      FixKind = "balance_adjusted"
	FixTotalsSynthesized    FixKind = "totals_synthesized"
	FixControlRowRemoved    FixKind = "control_row_removed"
	FixAmountInferred       FixKind = "amount_inferred"
	FixCurrencyStandardized FixKind = "currency_standardized"
	FixAmountRounded        FixKind = "amount_rounded"
)

// Fix is one applied repair. Fixes that change transactions carry a
// PatchDiff that RevertTransactions can undo.
type Fix struct {
	Kind         FixKind     `json:"kind"`
	Description  string      `json:"description"`
	RowsAffected int         `json:"rows_affected"`
	Diff         models.Diff `json:"diff,omitempty"`
}

// FixSuggestion is a balance correction that needs confirmation before it is
// applied.
type FixSuggestion struct {
	Row      int              `json:"row"`
	Field    string           `json:"field"`
	Current  decimal.Decimal  `json:"current"`
	Proposed decimal.Decimal  `json:"proposed"`
	Reason   string           `json:"reason"`
	Diff     models.PatchDiff `json:"diff"`
}

// fixer carries the working copy through steps 4 and 5.
type fixer struct {
	engine   *Engine
	working  []models.Transaction
	control  map[int]bool
	metadata *models.StatementMetadata

	fixes       []Fix
	suggestions []FixSuggestion
	attempted   int
	succeeded   int
}

func (f *fixer) attempt(ok bool) {
	f.attempted++
	if ok {
		f.succeeded++
	}
}

func (f *fixer) confidence() float64 {
	if f.attempted == 0 {
		return 1
	}
	return float64(f.succeeded) / float64(f.attempted)
}

// applyThresholdFixes handles the auto-fixable discrepancies and returns the
// control totals, extended with synthesized ones when none were declared.
func (f *fixer) applyThresholdFixes(actual ActualTotals, discrepancies []Discrepancy, totals []ControlTotal) []ControlTotal {
	for _, d := range discrepancies {
		if !d.AutoFixable {
			continue
		}
		switch d.Type {
		case MissingControlTotal:
			balance := actual.TotalCredit.Sub(actual.TotalDebit).Abs()
			totals = append(totals,
				ControlTotal{Label: "computed debit total", Type: DebitTotal, Expected: actual.TotalDebit, Source: SourceComputed, Reliability: computedReliability},
				ControlTotal{Label: "computed credit total", Type: CreditTotal, Expected: actual.TotalCredit, Source: SourceComputed, Reliability: computedReliability},
				ControlTotal{Label: "balanceEnd", Type: BalanceTotal, Expected: balance, Source: SourceComputed, Reliability: computedReliability},
			)
			f.fixes = append(f.fixes, Fix{
				Kind:        FixTotalsSynthesized,
				Description: fmt.Sprintf("synthesized control totals from computed sums, balanceEnd %s", balance.StringFixed(2)),
			})
			f.attempt(true)

		case BalanceMismatch:
			f.attempt(f.fixBalance(d))

		default:
			f.fixes = append(f.fixes, Fix{
				Kind: FixRoundingAccepted,
				Description: fmt.Sprintf("%s off by %s (%s%%), accepted as rounding; computed %s is authoritative",
					d.TotalType, d.Difference.StringFixed(2), d.PercentageDifference.StringFixed(2), d.Actual.StringFixed(2)),
			})
			f.attempt(true)
		}
	}
	return totals
}

func zeroOrAbsent(old decimal.NullDecimal) decimal.NullDecimal {
	if old.Valid {
		return models.Amount(decimal.Zero)
	}
	return models.NoAmount
}

func sameAmount(a, b decimal.NullDecimal) bool {
	return a.Valid == b.Valid && (!a.Valid || a.Decimal.Equal(b.Decimal))
}

// fixBalance looks for the one sub-tolerance transaction whose new value
// closes the balance gap. Several candidates make the target ambiguous and
// nothing is proposed.
func (f *fixer) fixBalance(d Discrepancy) bool {
	var candidates []int
	for i, tx := range f.working {
		if f.control[i] {
			continue
		}
		if magnitude(tx).LessThan(Tolerance) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) != 1 {
		f.engine.logger.WithField("candidates", len(candidates)).Debug("Balance fix skipped: no single small transaction")
		return false
	}

	row := candidates[0]
	original := f.working[row]
	gap := d.Expected.Sub(d.Actual)
	current := original.SignedAmount()

	for _, proposed := range []decimal.Decimal{current.Add(gap).Round(2), current.Sub(gap).Round(2)} {
		patched := original
		var ops []models.PatchOp
		field := models.FieldCredit

		newDebit, newCredit := zeroOrAbsent(original.Debit), models.Amount(proposed)
		if proposed.IsNegative() {
			field = models.FieldDebit
			newDebit, newCredit = models.Amount(proposed.Abs()), zeroOrAbsent(original.Credit)
		}
		if !sameAmount(patched.Debit, newDebit) {
			op, err := models.SetFieldOp(&patched, row, models.FieldDebit, newDebit)
			if err != nil {
				return false
			}
			ops = append(ops, op)
		}
		if !sameAmount(patched.Credit, newCredit) {
			op, err := models.SetFieldOp(&patched, row, models.FieldCredit, newCredit)
			if err != nil {
				return false
			}
			ops = append(ops, op)
		}

		trial := models.CloneTransactions(f.working)
		trial[row] = patched
		balance := actualBalance(computeTotals(trial, f.control), f.metadata)
		if balance.Sub(d.Expected).Abs().GreaterThan(Tolerance) {
			continue
		}

		diff := models.PatchDiff{Ops: ops}
		reason := fmt.Sprintf("row %d (%s) explains the balance gap of %s", row, current.StringFixed(2), gap.StringFixed(2))
		if f.engine.config.ApplyBalanceFixes {
			f.working[row] = patched
			f.fixes = append(f.fixes, Fix{Kind: FixBalanceAdjusted, Description: reason, RowsAffected: 1, Diff: diff})
		} else {
			f.suggestions = append(f.suggestions, FixSuggestion{
				Row: row, Field: field, Current: current, Proposed: proposed, Reason: reason, Diff: diff,
			})
		}
		f.engine.logger.WithFields(logger.Fields{
			"row":      row,
			"proposed": proposed.String(),
			"applied":  f.engine.config.ApplyBalanceFixes,
		}).Debug("Balance fix found")
		return true
	}
	return false
}

// applyRowFixes runs the row-level repairs that do not depend on
// discrepancies.
func (f *fixer) applyRowFixes() {
	f.removeControlRows()
	f.inferAmounts()
	f.standardizeCurrencies()
	f.roundAmounts()
}

func (f *fixer) addPatchFix(kind FixKind, description string, ops []models.PatchOp, rows int) {
	if len(ops) == 0 {
		return
	}
	f.fixes = append(f.fixes, Fix{Kind: kind, Description: description, RowsAffected: rows, Diff: models.PatchDiff{Ops: ops}})
	f.engine.logger.WithFields(logger.Fields{
		"fix":  kind,
		"rows": rows,
	}).Debug("Row fix applied")
}

func (f *fixer) removeControlRows() {
	var ops []models.PatchOp
	for i := len(f.working) - 1; i >= 0; i-- {
		if !f.control[i] {
			continue
		}
		removed := f.working[i]
		ops = append(ops, models.PatchOp{Kind: models.OpRemoveRow, Row: i, Removed: &removed})
		f.working = append(f.working[:i], f.working[i+1:]...)
		f.attempt(true)
	}
	f.control = nil
	f.addPatchFix(FixControlRowRemoved, "removed summary lines parsed as transactions", ops, len(ops))
}

func (f *fixer) inferAmounts() {
	var ops []models.PatchOp
	rows := 0
	for i := range f.working {
		tx := &f.working[i]
		if tx.HasDebit() || tx.HasCredit() {
			continue
		}
		amount, ok := normalizer.ExtractAmount(tx.PaymentPurpose, f.engine.config.Locale)
		if !ok || amount.IsZero() {
			f.attempt(false)
			continue
		}
		field := models.FieldCredit
		if normalizer.IsExpenseText(tx.PaymentPurpose) {
			field = models.FieldDebit
		}
		op, err := models.SetFieldOp(tx, i, field, models.Amount(amount.Round(2)))
		if err != nil {
			f.attempt(false)
			continue
		}
		ops = append(ops, op)
		rows++
		f.attempt(true)
	}
	f.addPatchFix(FixAmountInferred, "inferred missing amounts from the payment purpose", ops, rows)
}

func (f *fixer) standardizeCurrencies() {
	var ops []models.PatchOp
	for i := range f.working {
		tx := &f.working[i]
		if strings.TrimSpace(tx.Currency) == "" {
			continue
		}
		code := normalizer.StandardizeCurrency(tx.Currency)
		if code == tx.Currency {
			continue
		}
		op, err := models.SetFieldOp(tx, i, models.FieldCurrency, code)
		if err != nil {
			continue
		}
		ops = append(ops, op)
		f.attempt(true)
	}
	f.addPatchFix(FixCurrencyStandardized, "replaced currency symbols with ISO codes", ops, len(ops))
}

func (f *fixer) roundAmounts() {
	var ops []models.PatchOp
	rows := make(map[int]bool)
	for i := range f.working {
		tx := &f.working[i]
		for _, field := range []string{models.FieldDebit, models.FieldCredit, models.FieldAmountForeign} {
			value, _ := tx.Field(field)
			amount := value.(decimal.NullDecimal)
			if !amount.Valid {
				continue
			}
			rounded := amount.Decimal.Round(2)
			if rounded.Equal(amount.Decimal) {
				continue
			}
			op, err := models.SetFieldOp(tx, i, field, models.Amount(rounded))
			if err != nil {
				continue
			}
			ops = append(ops, op)
			rows[i] = true
		}
	}
	if len(rows) > 0 {
		f.attempt(true)
	}
	f.addPatchFix(FixAmountRounded, "rounded monetary amounts to 2 decimals", ops, len(rows))
}
