package gridquality

import (
	"github.com/shopspring/decimal"

	"statement-quality-service/internal/models"
)

// TransactionColumns is the column layout produced by TransactionsToGrid.
var TransactionColumns = []string{
	models.FieldDate,
	models.FieldDocumentNumber,
	models.FieldCounterpartyName,
	models.FieldCounterpartyBIN,
	models.FieldDebit,
	models.FieldCredit,
	models.FieldPaymentPurpose,
	models.FieldCurrency,
}

// TransactionColumnTypes matches TransactionColumns.
func TransactionColumnTypes() []ColumnType {
	return []ColumnType{
		ColumnDate,
		ColumnString,
		ColumnString,
		ColumnString,
		ColumnNumber,
		ColumnNumber,
		ColumnString,
		ColumnCurrency,
	}
}

// TransactionOptions returns analysis options suited to TransactionsToGrid
// output.
func TransactionOptions(locale string) *Options {
	opts := DefaultOptions()
	opts.ExpectedColumns = len(TransactionColumns)
	opts.ColumnTypes = TransactionColumnTypes()
	if locale != "" {
		opts.Locale = locale
	}
	return opts
}

// TransactionsToGrid renders transactions as a header-less grid. Amounts use
// a dot decimal separator and absent values become empty cells.
func TransactionsToGrid(txs []models.Transaction) models.Grid {
	grid := make(models.Grid, 0, len(txs))
	for _, tx := range txs {
		grid = append(grid, []string{
			models.FormatDate(tx.Date),
			tx.DocumentNumber,
			tx.CounterpartyName,
			tx.CounterpartyBIN,
			amountCell(tx.Debit),
			amountCell(tx.Credit),
			tx.PaymentPurpose,
			tx.Currency,
		})
	}
	return grid
}

func amountCell(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
