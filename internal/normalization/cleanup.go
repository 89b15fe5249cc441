package normalization

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalizer"
)

// cleanTransaction returns a tidied copy of tx: trimmed text, ISO currency,
// negative amounts moved to the opposite side and money rounded to cents.
// A transaction without a date, or one with a negative amount that cannot be
// moved, is reported as an error.
func cleanTransaction(tx models.Transaction) (models.Transaction, error) {
	out := tx

	out.DocumentNumber = strings.TrimSpace(out.DocumentNumber)
	out.CounterpartyName = collapseSpaces(out.CounterpartyName)
	out.CounterpartyBIN = strings.TrimSpace(out.CounterpartyBIN)
	out.CounterpartyAccount = strings.TrimSpace(out.CounterpartyAccount)
	out.CounterpartyBank = collapseSpaces(out.CounterpartyBank)
	out.PaymentPurpose = collapseSpaces(out.PaymentPurpose)
	if strings.TrimSpace(out.Currency) != "" {
		out.Currency = normalizer.StandardizeCurrency(out.Currency)
	}

	if out.Debit.Valid && out.Debit.Decimal.IsNegative() {
		if out.HasCredit() {
			return tx, fmt.Errorf("negative debit %s with credit %s set", out.Debit.Decimal, out.Credit.Decimal)
		}
		out.Credit = models.Amount(out.Debit.Decimal.Abs())
		out.Debit = models.Amount(decimal.Zero)
	}
	if out.Credit.Valid && out.Credit.Decimal.IsNegative() {
		if out.HasDebit() {
			return tx, fmt.Errorf("negative credit %s with debit %s set", out.Credit.Decimal, out.Debit.Decimal)
		}
		out.Debit = models.Amount(out.Credit.Decimal.Abs())
		out.Credit = models.Amount(decimal.Zero)
	}

	roundMoney(&out)

	if out.Date.IsZero() {
		return tx, fmt.Errorf("transaction has no date")
	}
	return out, nil
}

func roundMoney(tx *models.Transaction) {
	if tx.Debit.Valid {
		tx.Debit.Decimal = tx.Debit.Decimal.Round(2)
	}
	if tx.Credit.Valid {
		tx.Credit.Decimal = tx.Credit.Decimal.Round(2)
	}
	if tx.AmountForeign.Valid {
		tx.AmountForeign.Decimal = tx.AmountForeign.Decimal.Round(2)
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
