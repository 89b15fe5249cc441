package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date-only layout used in keys and JSON.
const DateLayout = "2006-01-02"

// Record field names shared by the untyped record shape, the column schema
// and Transaction JSON.
const (
	FieldDate                = "date"
	FieldDocumentNumber      = "documentNumber"
	FieldCounterpartyName    = "counterpartyName"
	FieldCounterpartyBIN     = "counterpartyBin"
	FieldCounterpartyAccount = "counterpartyAccount"
	FieldCounterpartyBank    = "counterpartyBank"
	FieldDebit               = "debit"
	FieldCredit              = "credit"
	FieldPaymentPurpose      = "paymentPurpose"
	FieldCurrency            = "currency"
	FieldExchangeRate        = "exchangeRate"
	FieldAmountForeign       = "amountForeign"
)

// Transaction is the working record of one statement line.
//
// Debit and Credit are optional; at any stable point of the pipeline at most
// one of them is nonzero.
type Transaction struct {
	Date                time.Time           `json:"date"`
	DocumentNumber      string              `json:"documentNumber,omitempty"`
	CounterpartyName    string              `json:"counterpartyName"`
	CounterpartyBIN     string              `json:"counterpartyBin,omitempty"`
	CounterpartyAccount string              `json:"counterpartyAccount,omitempty"`
	CounterpartyBank    string              `json:"counterpartyBank,omitempty"`
	Debit               decimal.NullDecimal `json:"debit"`
	Credit              decimal.NullDecimal `json:"credit"`
	PaymentPurpose      string              `json:"paymentPurpose"`
	Currency            string              `json:"currency,omitempty"`
	ExchangeRate        decimal.NullDecimal `json:"exchangeRate"`
	AmountForeign       decimal.NullDecimal `json:"amountForeign"`
}

// Amount builds a valid NullDecimal.
func Amount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}

// NoAmount is the absent optional amount.
var NoAmount = decimal.NullDecimal{}

// HasDebit reports whether the transaction carries a nonzero debit.
func (t Transaction) HasDebit() bool {
	return t.Debit.Valid && !t.Debit.Decimal.IsZero()
}

// HasCredit reports whether the transaction carries a nonzero credit.
func (t Transaction) HasCredit() bool {
	return t.Credit.Valid && !t.Credit.Decimal.IsZero()
}

// SignedAmount returns credit minus debit, treating absent sides as zero.
func (t Transaction) SignedAmount() decimal.Decimal {
	amount := decimal.Zero
	if t.Credit.Valid {
		amount = amount.Add(t.Credit.Decimal)
	}
	if t.Debit.Valid {
		amount = amount.Sub(t.Debit.Decimal)
	}
	return amount
}

// Magnitude returns the absolute value of the signed amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.SignedAmount().Abs()
}

// FilledOptionalFields counts populated optional fields. Deduplication uses it
// to decide which of two colliding records is richer.
func (t Transaction) FilledOptionalFields() int {
	n := 0
	for _, s := range []string{t.DocumentNumber, t.CounterpartyBIN, t.CounterpartyAccount,
		t.CounterpartyBank, t.PaymentPurpose, t.Currency} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	if t.ExchangeRate.Valid {
		n++
	}
	if t.AmountForeign.Valid {
		n++
	}
	return n
}

// String returns a string representation of the Transaction
func (t Transaction) String() string {
	return fmt.Sprintf("Transaction{Date: %s, Doc: %s, Counterparty: %s, Amount: %s %s}",
		FormatDate(t.Date), t.DocumentNumber, t.CounterpartyName, t.SignedAmount().StringFixed(2), t.Currency)
}

// MarshalJSON writes dates as YYYY-MM-DD and a missing date as "".
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Date string `json:"date"`
		Alias
	}{
		Date:  FormatDate(t.Date),
		Alias: Alias(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Date string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	date, err := ParseDate(aux.Date)
	if err != nil {
		return err
	}
	t.Date = date
	return nil
}

// Field returns the typed value of a record field: string, time.Time or
// decimal.NullDecimal.
func (t Transaction) Field(name string) (interface{}, bool) {
	switch name {
	case FieldDate:
		return t.Date, true
	case FieldDocumentNumber:
		return t.DocumentNumber, true
	case FieldCounterpartyName:
		return t.CounterpartyName, true
	case FieldCounterpartyBIN:
		return t.CounterpartyBIN, true
	case FieldCounterpartyAccount:
		return t.CounterpartyAccount, true
	case FieldCounterpartyBank:
		return t.CounterpartyBank, true
	case FieldDebit:
		return t.Debit, true
	case FieldCredit:
		return t.Credit, true
	case FieldPaymentPurpose:
		return t.PaymentPurpose, true
	case FieldCurrency:
		return t.Currency, true
	case FieldExchangeRate:
		return t.ExchangeRate, true
	case FieldAmountForeign:
		return t.AmountForeign, true
	default:
		return nil, false
	}
}

// SetField assigns a value previously obtained from Field.
func (t *Transaction) SetField(name string, value interface{}) error {
	switch name {
	case FieldDate:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("field %s expects time.Time, got %T", name, value)
		}
		t.Date = v
		return nil
	case FieldDebit, FieldCredit, FieldExchangeRate, FieldAmountForeign:
		v, ok := value.(decimal.NullDecimal)
		if !ok {
			return fmt.Errorf("field %s expects decimal.NullDecimal, got %T", name, value)
		}
		switch name {
		case FieldDebit:
			t.Debit = v
		case FieldCredit:
			t.Credit = v
		case FieldExchangeRate:
			t.ExchangeRate = v
		default:
			t.AmountForeign = v
		}
		return nil
	}

	v, ok := value.(string)
	if !ok {
		return fmt.Errorf("field %s expects string, got %T", name, value)
	}
	switch name {
	case FieldDocumentNumber:
		t.DocumentNumber = v
	case FieldCounterpartyName:
		t.CounterpartyName = v
	case FieldCounterpartyBIN:
		t.CounterpartyBIN = v
	case FieldCounterpartyAccount:
		t.CounterpartyAccount = v
	case FieldCounterpartyBank:
		t.CounterpartyBank = v
	case FieldPaymentPurpose:
		t.PaymentPurpose = v
	case FieldCurrency:
		t.Currency = v
	default:
		return fmt.Errorf("unknown transaction field %q", name)
	}
	return nil
}

// CloneTransactions returns a copy of the slice. Transaction holds only value
// types so a shallow copy is a deep copy.
func CloneTransactions(txs []Transaction) []Transaction {
	if txs == nil {
		return nil
	}
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out
}

// Record is an untyped transaction record as handed over by a parser.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToRecord converts the transaction into the untyped shape. Empty strings,
// absent amounts and a zero date are left out.
func (t Transaction) ToRecord() Record {
	r := Record{}
	if !t.Date.IsZero() {
		r[FieldDate] = t.Date
	}
	setString := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			r[key] = value
		}
	}
	setAmount := func(key string, value decimal.NullDecimal) {
		if value.Valid {
			r[key] = value.Decimal
		}
	}
	setString(FieldDocumentNumber, t.DocumentNumber)
	setString(FieldCounterpartyName, t.CounterpartyName)
	setString(FieldCounterpartyBIN, t.CounterpartyBIN)
	setString(FieldCounterpartyAccount, t.CounterpartyAccount)
	setString(FieldCounterpartyBank, t.CounterpartyBank)
	setAmount(FieldDebit, t.Debit)
	setAmount(FieldCredit, t.Credit)
	setString(FieldPaymentPurpose, t.PaymentPurpose)
	setString(FieldCurrency, t.Currency)
	setAmount(FieldExchangeRate, t.ExchangeRate)
	setAmount(FieldAmountForeign, t.AmountForeign)
	return r
}

// TransactionFromRecord converts a record whose values have already been
// coerced (time.Time dates, decimal or numeric amounts) back into a
// Transaction. Values of an unexpected type are skipped.
func TransactionFromRecord(r Record) Transaction {
	var t Transaction
	switch v := r[FieldDate].(type) {
	case time.Time:
		t.Date = v
	case string:
		if d, err := ParseDate(v); err == nil {
			t.Date = d
		}
	}
	t.DocumentNumber = recordString(r, FieldDocumentNumber)
	t.CounterpartyName = recordString(r, FieldCounterpartyName)
	t.CounterpartyBIN = recordString(r, FieldCounterpartyBIN)
	t.CounterpartyAccount = recordString(r, FieldCounterpartyAccount)
	t.CounterpartyBank = recordString(r, FieldCounterpartyBank)
	t.Debit = recordAmount(r, FieldDebit)
	t.Credit = recordAmount(r, FieldCredit)
	t.PaymentPurpose = recordString(r, FieldPaymentPurpose)
	t.Currency = recordString(r, FieldCurrency)
	t.ExchangeRate = recordAmount(r, FieldExchangeRate)
	t.AmountForeign = recordAmount(r, FieldAmountForeign)
	return t
}

func recordString(r Record, key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func recordAmount(r Record, key string) decimal.NullDecimal {
	if d, ok := DecimalFromValue(r[key]); ok {
		return Amount(d)
	}
	return NoAmount
}

// DecimalFromValue converts numeric record values into a decimal. Strings are
// not parsed here; locale-aware parsing belongs to the normalizer.
func DecimalFromValue(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case decimal.NullDecimal:
		return n.Decimal, n.Valid
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt32(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// StatementMetadata carries the statement-level control values.
type StatementMetadata struct {
	AccountNumber  string              `json:"accountNumber,omitempty"`
	PeriodStart    time.Time           `json:"periodStart"`
	PeriodEnd      time.Time           `json:"periodEnd"`
	OpeningBalance decimal.NullDecimal `json:"balanceStart"`
	ClosingBalance decimal.NullDecimal `json:"balanceEnd"`
	Currency       string              `json:"currency,omitempty"`
}

// HasClosingBalance reports whether a declared closing balance is available.
func (m *StatementMetadata) HasClosingBalance() bool {
	return m != nil && m.ClosingBalance.Valid
}

// MarshalJSON writes period dates as YYYY-MM-DD.
func (m StatementMetadata) MarshalJSON() ([]byte, error) {
	type Alias StatementMetadata
	return json.Marshal(&struct {
		PeriodStart string `json:"periodStart"`
		PeriodEnd   string `json:"periodEnd"`
		Alias
	}{
		PeriodStart: FormatDate(m.PeriodStart),
		PeriodEnd:   FormatDate(m.PeriodEnd),
		Alias:       Alias(m),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for StatementMetadata
func (m *StatementMetadata) UnmarshalJSON(data []byte) error {
	type Alias StatementMetadata
	aux := &struct {
		PeriodStart string `json:"periodStart"`
		PeriodEnd   string `json:"periodEnd"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if m.PeriodStart, err = ParseDate(aux.PeriodStart); err != nil {
		return fmt.Errorf("invalid periodStart: %w", err)
	}
	if m.PeriodEnd, err = ParseDate(aux.PeriodEnd); err != nil {
		return fmt.Errorf("invalid periodEnd: %w", err)
	}
	return nil
}

// Grid is a rows-of-cells view of tabular source data. Rows may differ in
// length.
type Grid [][]string

// Clone returns a deep copy of the grid.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// Equal reports whether two grids hold the same cells.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if len(g[i]) != len(other[i]) {
			return false
		}
		for j := range g[i] {
			if g[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Severity ranks data-quality findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities low < medium < high < critical. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Escalate raises low to medium and medium to high. High and critical are
// returned unchanged.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return s
	}
}

// Worst returns the higher ranked of the two severities.
func Worst(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// FormatDate renders a date as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate accepts the canonical serialized forms. An empty string yields the
// zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"02.01.2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}
