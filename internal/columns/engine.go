// Package columns validates untyped transaction records against a field
// schema and repairs what it can: misnamed keys, missing required values,
// type mismatches and the debit/credit exclusivity rule.
package columns

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// Config holds the engine settings.
type Config struct {
	Locale string `json:"locale"`
	// MaxAliasDistance is the largest Levenshtein distance at which an
	// unknown key is treated as a misspelled schema field.
	MaxAliasDistance int `json:"max_alias_distance"`
	// MinFuzzyKeyLength keeps short keys out of fuzzy matching.
	MinFuzzyKeyLength int              `json:"min_fuzzy_key_length"`
	DefaultText       string           `json:"default_text"`
	DefaultPurpose    string           `json:"default_purpose"`
	Now               func() time.Time `json:"-"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Locale:            normalizer.LocaleRU,
		MaxAliasDistance:  2,
		MinFuzzyKeyLength: 4,
		DefaultText:       "Unknown",
		DefaultPurpose:    "Transaction",
		Now:               time.Now,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxAliasDistance < 0 {
		return fmt.Errorf("max alias distance cannot be negative")
	}
	if c.MinFuzzyKeyLength < 1 {
		return fmt.Errorf("min fuzzy key length must be positive")
	}
	if strings.TrimSpace(c.DefaultText) == "" || strings.TrimSpace(c.DefaultPurpose) == "" {
		return fmt.Errorf("default text values cannot be empty")
	}
	return nil
}

// Engine validates and fixes records. It keeps no state between runs.
type Engine struct {
	config     *Config
	normalizer normalizer.Normalizer
	logger     logger.Logger
}

// NewEngine creates an engine; nil arguments select defaults.
func NewEngine(config *Config, n normalizer.Normalizer) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if n == nil {
		n = normalizer.Default
	}
	return &Engine{
		config:     config,
		normalizer: n,
		logger:     logger.GetGlobalLogger().WithComponent("columns"),
	}
}

// ValidateAndFixColumns runs the default engine.
func ValidateAndFixColumns(records []models.Record, schema Schema) (*ColumnInconsistencyResult, error) {
	return NewEngine(nil, nil).ValidateAndFixColumns(records, schema)
}

// ValidateAndFixTransactions runs the default engine over typed transactions.
func ValidateAndFixTransactions(txs []models.Transaction, schema Schema) (*TransactionFixResult, error) {
	return NewEngine(nil, nil).ValidateAndFixTransactions(txs, schema)
}

type run struct {
	schema  Schema
	names   map[string]bool
	present map[string]bool
	issues  *issueSet
	fixes   *fixSet
}

// ValidateAndFixColumns checks every record against the schema and returns
// fixed copies. A nil schema selects DefaultTransactionSchema. Only a nil
// record list or an invalid schema produce an error.
func (e *Engine) ValidateAndFixColumns(records []models.Record, schema Schema) (*ColumnInconsistencyResult, error) {
	if records == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "records", nil, nil)
	}
	if schema == nil {
		schema = DefaultTransactionSchema()
	}
	if err := schema.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "column schema", len(schema), err)
	}

	r := &run{
		schema:  schema,
		names:   make(map[string]bool, len(schema)),
		present: make(map[string]bool, len(schema)),
		issues:  newIssueSet(),
		fixes:   newFixSet(),
	}
	for _, f := range schema {
		r.names[f.Name] = true
	}

	fixed := make([]models.Record, len(records))
	for i, rec := range records {
		fixed[i] = e.processRecord(i, rec, r)
	}

	for _, f := range schema {
		if len(records) > 0 && !r.present[f.Name] {
			severity := models.SeverityLow
			if f.Required {
				severity = models.SeverityHigh
			}
			r.issues.add(IssueMissingColumn, f.Name, -1, severity, f.Required,
				fmt.Sprintf("column %q is absent from every record", f.Name))
		}
	}

	e.runAdvancedPasses(fixed, r)

	result := &ColumnInconsistencyResult{
		Records: fixed,
		Issues:  r.issues.list(),
		Fixes:   r.fixes.list(),
		Metrics: computeMetrics(fixed, schema),
	}

	e.logger.WithFields(logger.Fields{
		"records":      len(records),
		"issues":       len(result.Issues),
		"fixes":        len(result.Fixes),
		"data_quality": result.Metrics.DataQualityScore,
	}).Info("Column consistency checked")

	return result, nil
}

// ValidateAndFixTransactions converts transactions to records, fixes them and
// converts them back. The input slice is not modified.
func (e *Engine) ValidateAndFixTransactions(txs []models.Transaction, schema Schema) (*TransactionFixResult, error) {
	if txs == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "transactions", nil, nil)
	}

	records := make([]models.Record, len(txs))
	for i, tx := range txs {
		records[i] = tx.ToRecord()
	}

	result, err := e.ValidateAndFixColumns(records, schema)
	if err != nil {
		return nil, err
	}

	out := make([]models.Transaction, len(result.Records))
	for i, rec := range result.Records {
		out[i] = models.TransactionFromRecord(rec)
	}
	return &TransactionFixResult{ColumnInconsistencyResult: result, Transactions: out}, nil
}

func (e *Engine) processRecord(i int, rec models.Record, r *run) models.Record {
	working := rec.Clone()

	e.realign(i, working, r)
	for key, value := range working {
		if r.names[key] && !isEmpty(value) {
			r.present[key] = true
		}
	}

	for _, f := range r.schema {
		e.fixField(i, working, f, r)
	}

	if _, ok := r.schema.Field(models.FieldDebit); ok {
		if _, ok := r.schema.Field(models.FieldCredit); ok {
			e.enforceExclusivity(i, working, r)
		}
	}
	return working
}

func isEmpty(v interface{}) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	case decimal.NullDecimal:
		return !s.Valid
	case time.Time:
		return s.IsZero()
	}
	return false
}

// realign moves values stored under aliases or misspelled keys to their
// schema field.
func (e *Engine) realign(i int, working models.Record, r *run) {
	for _, key := range working.Keys() {
		if r.names[key] {
			continue
		}

		target, ok := e.resolveKey(key, r.schema)
		if !ok {
			r.issues.add(IssueExtraColumn, key, i, models.SeverityLow, false,
				fmt.Sprintf("column %q is not part of the schema and was kept", key))
			continue
		}

		if !isEmpty(working[target]) {
			r.issues.add(IssueMisalignedColumn, target, i, models.SeverityMedium, false,
				fmt.Sprintf("column %q looks like %q but %q is already set", key, target, target))
			continue
		}

		working[target] = working[key]
		delete(working, key)
		r.issues.add(IssueMisalignedColumn, target, i, models.SeverityMedium, true,
			fmt.Sprintf("value under %q belongs to %q", key, target))
		r.fixes.add(FixColumnRealigned, target, 0.8, "moved values from misnamed columns to their schema field")
	}
}

func (e *Engine) resolveKey(key string, schema Schema) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, f := range schema {
		if strings.ToLower(f.Name) == lower {
			return f.Name, true
		}
		for _, alias := range f.Aliases {
			if strings.ToLower(alias) == lower {
				return f.Name, true
			}
		}
	}

	if utf8.RuneCountInString(lower) < e.config.MinFuzzyKeyLength {
		return "", false
	}

	best, bestDistance := "", e.config.MaxAliasDistance+1
	for _, f := range schema {
		candidates := append([]string{f.Name}, f.Aliases...)
		for _, c := range candidates {
			d := levenshtein.DistanceForStrings([]rune(lower), []rune(strings.ToLower(c)), levenshtein.DefaultOptions)
			if d < bestDistance {
				best, bestDistance = f.Name, d
			}
		}
	}
	return best, best != ""
}

type coerceOutcome int

const (
	coerceOK coerceOutcome = iota
	coerceAdjusted
	coerceFailed
)

func (e *Engine) fixField(i int, working models.Record, f FieldSchema, r *run) {
	value, present := working[f.Name]
	if isEmpty(value) {
		if present {
			delete(working, f.Name)
		}
		if !f.Required {
			return
		}
		r.issues.add(IssueEmptyCriticalField, f.Name, i, models.SeverityHigh, true,
			fmt.Sprintf("required field %q is empty", f.Name))
		if inferred, ok := e.infer(f, working); ok {
			working[f.Name] = inferred
			r.fixes.add(FixFieldInferred, f.Name, 0.7, fmt.Sprintf("inferred %q from related fields", f.Name))
			return
		}
		working[f.Name] = e.defaultValue(f)
		r.fixes.add(FixDefaultApplied, f.Name, 0.3, fmt.Sprintf("filled %q with a default value", f.Name))
		return
	}

	coerced, outcome := e.coerce(f, value)
	switch outcome {
	case coerceOK:
		working[f.Name] = coerced
	case coerceAdjusted:
		working[f.Name] = coerced
		r.issues.add(IssueTypeMismatch, f.Name, i, models.SeverityLow, true,
			fmt.Sprintf("field %q expected %s", f.Name, f.Type))
		r.fixes.add(FixTypeCoerced, f.Name, 0.9, fmt.Sprintf("converted %q values to %s", f.Name, f.Type))
	case coerceFailed:
		delete(working, f.Name)
		r.issues.add(IssueTypeMismatch, f.Name, i, models.SeverityMedium, true,
			fmt.Sprintf("field %q could not be read as %s", f.Name, f.Type))
		r.fixes.add(FixTypeCoerced, f.Name, 0.9, fmt.Sprintf("converted %q values to %s", f.Name, f.Type))
		if f.Required {
			working[f.Name] = e.defaultValue(f)
			r.fixes.add(FixDefaultApplied, f.Name, 0.3, fmt.Sprintf("filled %q with a default value", f.Name))
		}
		return
	}

	if f.Type == TypeString && f.Pattern != nil {
		if s, ok := working[f.Name].(string); ok && !f.Pattern.MatchString(s) {
			r.issues.add(IssueTypeMismatch, f.Name, i, models.SeverityLow, false,
				fmt.Sprintf("field %q does not match %s", f.Name, f.Pattern.String()))
		}
	}
}

var nonNumeric = regexp.MustCompile(`[^0-9.,\-]`)

var (
	trueTokens  = map[string]bool{"true": true, "1": true, "yes": true, "да": true}
	falseTokens = map[string]bool{"false": true, "0": true, "no": true, "нет": true}
)

func (e *Engine) coerce(f FieldSchema, value interface{}) (interface{}, coerceOutcome) {
	switch f.Type {
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, coerceOK
		case decimal.Decimal:
			return v.String(), coerceAdjusted
		case time.Time:
			return models.FormatDate(v), coerceAdjusted
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), coerceAdjusted
		default:
			return fmt.Sprint(v), coerceAdjusted
		}

	case TypeNumber:
		if d, ok := models.DecimalFromValue(value); ok {
			return d, coerceOK
		}
		switch v := value.(type) {
		case string:
			if d, ok := e.normalizer.NormalizeAmount(v, e.config.Locale); ok {
				return d, coerceOK
			}
			stripped := nonNumeric.ReplaceAllString(v, "")
			if d, ok := e.normalizer.NormalizeAmount(stripped, e.config.Locale); ok {
				return d, coerceAdjusted
			}
		case bool:
			if v {
				return decimal.NewFromInt(1), coerceAdjusted
			}
			return decimal.Zero, coerceAdjusted
		}
		return nil, coerceFailed

	case TypeDate:
		switch v := value.(type) {
		case time.Time:
			return v, coerceOK
		case string:
			if t, ok := e.normalizer.NormalizeDate(v); ok {
				return t, coerceOK
			}
		}
		return nil, coerceFailed

	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, coerceOK
		case string:
			token := strings.ToLower(strings.TrimSpace(v))
			if trueTokens[token] {
				return true, coerceAdjusted
			}
			if falseTokens[token] {
				return false, coerceAdjusted
			}
		default:
			if d, ok := models.DecimalFromValue(v); ok {
				if d.Equal(decimal.NewFromInt(1)) {
					return true, coerceAdjusted
				}
				if d.IsZero() {
					return false, coerceAdjusted
				}
			}
		}
		return nil, coerceFailed
	}
	return value, coerceOK
}

func (e *Engine) defaultValue(f FieldSchema) interface{} {
	switch f.Type {
	case TypeDate:
		return e.config.Now()
	case TypeNumber:
		return decimal.Zero
	case TypeBoolean:
		return false
	}
	if f.Name == models.FieldPaymentPurpose {
		return e.config.DefaultPurpose
	}
	return e.config.DefaultText
}

var (
	docNumberPattern = regexp.MustCompile(`(?i)(?:(?:№|#|no\.|док\.?|документ|doc\.?|invoice)\s*(?:№|#|no\.?)?|сч[её]т[уа]?\s*(?:№|#|no\.?))\s*(\d[\dA-Za-z\-/]*)`)
	amountTail       = regexp.MustCompile(`^[.,]\d{1,2}\b`)
	binPattern       = regexp.MustCompile(`\b\d{12}\b`)
	bankPattern      = regexp.MustCompile(`(?i)(?:банк|bank)\s*[:\-]?\s*["«]?([^"«»,;]{2,60})`)
	dateInText       = regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{2,4}|\d{4}-\d{2}-\d{2}`)
)

// findDocumentNumber returns the first marked document number in text. A
// capture followed by decimal digits is an amount and is skipped.
func findDocumentNumber(text string) (string, bool) {
	for _, m := range docNumberPattern.FindAllStringSubmatchIndex(text, -1) {
		if amountTail.MatchString(text[m[3]:]) {
			continue
		}
		return text[m[2]:m[3]], true
	}
	return "", false
}

// infer looks for a value for f in the text of its InferFrom fields.
func (e *Engine) infer(f FieldSchema, working models.Record) (interface{}, bool) {
	var parts []string
	for _, source := range f.InferFrom {
		if s, ok := working[source].(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil, false
	}
	text := strings.Join(parts, " ")

	switch f.Name {
	case models.FieldCurrency:
		return normalizer.DetectCurrency(text)
	case models.FieldDocumentNumber:
		if doc, ok := findDocumentNumber(text); ok {
			return doc, true
		}
		return nil, false
	case models.FieldCounterpartyBIN:
		if m := binPattern.FindString(text); m != "" {
			return m, true
		}
		return nil, false
	case models.FieldCounterpartyBank:
		if m := bankPattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), true
		}
		return nil, false
	}

	switch f.Type {
	case TypeDate:
		for _, candidate := range dateInText.FindAllString(text, -1) {
			if t, ok := e.normalizer.NormalizeDate(candidate); ok {
				return t, true
			}
		}
	case TypeNumber:
		if d, ok := normalizer.ExtractAmount(text, e.config.Locale); ok {
			return d, true
		}
	}
	return nil, false
}

// enforceExclusivity keeps at most one of debit and credit nonzero. When
// neither is set, missing and zero alike, it tries to read an amount from the
// purpose text.
func (e *Engine) enforceExclusivity(i int, working models.Record, r *run) {
	debit, hasDebit := models.DecimalFromValue(working[models.FieldDebit])
	credit, hasCredit := models.DecimalFromValue(working[models.FieldCredit])
	debitSet := hasDebit && !debit.IsZero()
	creditSet := hasCredit && !credit.IsZero()

	switch {
	case debitSet && creditSet:
		if credit.Abs().GreaterThan(debit.Abs()) {
			working[models.FieldDebit] = decimal.Zero
		} else {
			working[models.FieldCredit] = decimal.Zero
		}
		r.issues.add(IssueTypeMismatch, "debit/credit", i, models.SeverityMedium, true,
			"both debit and credit are set")
		r.fixes.add(FixDataTypeMismatch, "debit/credit", 0.9,
			"both debit and credit were set; kept the larger amount and zeroed the other")

	case !debitSet && !creditSet:
		purpose, _ := working[models.FieldPaymentPurpose].(string)
		amount, ok := normalizer.ExtractAmount(purpose, e.config.Locale)
		if !ok || amount.IsZero() {
			r.issues.add(IssueEmptyCriticalField, "amount", i, models.SeverityHigh, false,
				"neither debit nor credit is set and the purpose holds no amount")
			return
		}
		field := models.FieldCredit
		if normalizer.IsExpenseText(purpose) {
			field = models.FieldDebit
		}
		working[field] = amount
		r.issues.add(IssueEmptyCriticalField, "amount", i, models.SeverityMedium, true,
			"neither debit nor credit is set")
		r.fixes.add(FixAmountExtracted, field, 0.6, "read the amount from the payment purpose")
	}
}

func computeMetrics(records []models.Record, schema Schema) Metrics {
	m := Metrics{TotalFields: len(records) * len(schema)}
	withData := make(map[string]bool, len(schema))
	for _, rec := range records {
		for _, f := range schema {
			if !isEmpty(rec[f.Name]) {
				m.FilledFields++
				withData[f.Name] = true
			}
		}
	}
	m.ColumnsWithData = len(withData)

	if m.TotalFields > 0 {
		m.CompletenessRatio = float64(m.FilledFields) / float64(m.TotalFields)
	}
	if len(schema) > 0 {
		m.AlignmentScore = float64(m.ColumnsWithData) / float64(len(schema))
	}
	m.DataQualityScore = (m.CompletenessRatio + m.AlignmentScore) / 2
	return m
}
