package columns

import (
	"fmt"
	"regexp"

	"statement-quality-service/internal/models"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
)

// FieldSchema describes one field of the record shape.
type FieldSchema struct {
	Name     string
	Required bool
	Type     FieldType
	// Pattern is only checked for string fields; a mismatch is reported, not fixed.
	Pattern *regexp.Regexp
	// InferFrom lists fields whose text may reveal a missing value.
	InferFrom []string
	// Aliases are alternative keys parsers use for this field.
	Aliases []string
}

// Schema is an ordered list of fields.
type Schema []FieldSchema

// Validate checks names are unique and types known.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	seen := make(map[string]bool, len(s))
	for i, f := range s {
		if f.Name == "" {
			return fmt.Errorf("schema field %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case TypeString, TypeNumber, TypeDate, TypeBoolean:
		default:
			return fmt.Errorf("schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Field returns the schema entry with the given name.
func (s Schema) Field(name string) (FieldSchema, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// DefaultTransactionSchema covers every Transaction field. Date,
// counterparty and purpose are required.
func DefaultTransactionSchema() Schema {
	return Schema{
		{
			Name:     models.FieldDate,
			Required: true,
			Type:     TypeDate,
			Aliases:  []string{"дата", "operation_date", "transaction_date", "value_date", "дата операции"},
		},
		{
			Name:      models.FieldDocumentNumber,
			Type:      TypeString,
			InferFrom: []string{models.FieldPaymentPurpose},
			Aliases:   []string{"document_number", "docNumber", "doc_no", "номер документа", "№ документа"},
		},
		{
			Name:     models.FieldCounterpartyName,
			Required: true,
			Type:     TypeString,
			Aliases:  []string{"counterparty", "контрагент", "beneficiary", "payee", "наименование"},
		},
		{
			Name:      models.FieldCounterpartyBIN,
			Type:      TypeString,
			Pattern:   regexp.MustCompile(`^\d{12}$`),
			InferFrom: []string{models.FieldPaymentPurpose, models.FieldCounterpartyName},
			Aliases:   []string{"bin", "бин", "iin", "иин", "бин/иин", "counterparty_bin"},
		},
		{
			Name:    models.FieldCounterpartyAccount,
			Type:    TypeString,
			Aliases: []string{"account", "iban", "счет", "счёт", "counterparty_account"},
		},
		{
			Name:      models.FieldCounterpartyBank,
			Type:      TypeString,
			InferFrom: []string{models.FieldPaymentPurpose, models.FieldCounterpartyName},
			Aliases:   []string{"bank", "банк", "bank_name", "counterparty_bank"},
		},
		{
			Name:    models.FieldDebit,
			Type:    TypeNumber,
			Aliases: []string{"дебет", "withdrawal", "expense", "расход"},
		},
		{
			Name:    models.FieldCredit,
			Type:    TypeNumber,
			Aliases: []string{"кредит", "deposit", "income", "приход"},
		},
		{
			Name:     models.FieldPaymentPurpose,
			Required: true,
			Type:     TypeString,
			Aliases:  []string{"purpose", "назначение платежа", "назначение", "description", "details", "payment_purpose"},
		},
		{
			Name:      models.FieldCurrency,
			Type:      TypeString,
			Pattern:   regexp.MustCompile(`^[A-Z]{3}$`),
			InferFrom: []string{models.FieldPaymentPurpose},
			Aliases:   []string{"валюта", "ccy", "curr"},
		},
		{
			Name:    models.FieldExchangeRate,
			Type:    TypeNumber,
			Aliases: []string{"rate", "курс", "exchange_rate"},
		},
		{
			Name:    models.FieldAmountForeign,
			Type:    TypeNumber,
			Aliases: []string{"amount_foreign", "foreignAmount", "сумма в валюте"},
		},
	}
}
