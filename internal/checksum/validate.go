package checksum

import (
	"fmt"

	"statement-quality-service/internal/models"
)

// ValidationCheck is one of the final pass/fail checks.
type ValidationCheck struct {
	Name        string `json:"name"`
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
}

const (
	CheckBalanceConsistency = "balance_consistency"
	CheckNoZeroAmounts      = "no_zero_amount_rows"
	CheckTotalsInRange      = "totals_in_range"
)

// validate runs the three final checks on the fixed transactions. Without a
// declared closing balance the balance check passes.
func validate(txs []models.Transaction, totals ActualTotals, metadata *models.StatementMetadata) []ValidationCheck {
	checks := make([]ValidationCheck, 0, 3)

	balance := ValidationCheck{Name: CheckBalanceConsistency, Passed: true, Description: "no declared closing balance"}
	if metadata.HasClosingBalance() {
		got := actualBalance(totals, metadata)
		diff := got.Sub(metadata.ClosingBalance.Decimal).Abs()
		balance.Passed = !diff.GreaterThan(Tolerance)
		balance.Description = fmt.Sprintf("closing balance %s, computed %s",
			metadata.ClosingBalance.Decimal.StringFixed(2), got.StringFixed(2))
	}
	checks = append(checks, balance)

	zero := 0
	for _, tx := range txs {
		if !tx.HasDebit() && !tx.HasCredit() {
			zero++
		}
	}
	checks = append(checks, ValidationCheck{
		Name:        CheckNoZeroAmounts,
		Passed:      zero == 0,
		Description: fmt.Sprintf("%d transactions without an amount", zero),
	})

	inRange := !totals.TotalDebit.IsNegative() && totals.TotalDebit.LessThan(MaxTotal) &&
		!totals.TotalCredit.IsNegative() && totals.TotalCredit.LessThan(MaxTotal)
	checks = append(checks, ValidationCheck{
		Name:   CheckTotalsInRange,
		Passed: inRange,
		Description: fmt.Sprintf("debit total %s, credit total %s",
			totals.TotalDebit.StringFixed(2), totals.TotalCredit.StringFixed(2)),
	})

	return checks
}

func qualityScore(checks []ValidationCheck) float64 {
	if len(checks) == 0 {
		return 0
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}
