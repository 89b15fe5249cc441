package columns

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/pkg/logger"
)

// runAdvancedPasses fills optional fields from statement-wide evidence. Each
// pass counts its own affected rows.
func (e *Engine) runAdvancedPasses(records []models.Record, r *run) {
	passes := []struct {
		field string
		fn    func([]models.Record) AppliedFix
	}{
		{models.FieldDocumentNumber, extractDocumentNumbers},
		{models.FieldCounterpartyBIN, extractBINs},
		{models.FieldCurrency, fillCurrency},
		{models.FieldExchangeRate, fillExchangeRates},
	}

	for _, p := range passes {
		if _, ok := r.schema.Field(p.field); !ok {
			continue
		}
		fix := p.fn(records)
		if fix.AffectedRows > 0 {
			e.logger.WithFields(logger.Fields{
				"fix":        fix.Type,
				"rows":       fix.AffectedRows,
				"confidence": fix.Confidence,
			}).Debug("Advanced column pass applied")
		}
		r.fixes.record(fix)
	}
}

func purposeOf(rec models.Record) string {
	s, _ := rec[models.FieldPaymentPurpose].(string)
	return s
}

func extractDocumentNumbers(records []models.Record) AppliedFix {
	fix := AppliedFix{Type: FixDocumentNumber, Field: models.FieldDocumentNumber, Confidence: 0.8,
		Description: "extracted document numbers from the payment purpose"}
	for _, rec := range records {
		if !isEmpty(rec[models.FieldDocumentNumber]) {
			continue
		}
		if doc, ok := findDocumentNumber(purposeOf(rec)); ok {
			rec[models.FieldDocumentNumber] = doc
			fix.AffectedRows++
		}
	}
	return fix
}

func extractBINs(records []models.Record) AppliedFix {
	fix := AppliedFix{Type: FixBINExtracted, Field: models.FieldCounterpartyBIN, Confidence: 0.9,
		Description: "extracted 12-digit BIN values from text fields"}
	for _, rec := range records {
		if !isEmpty(rec[models.FieldCounterpartyBIN]) {
			continue
		}
		name, _ := rec[models.FieldCounterpartyName].(string)
		if m := binPattern.FindString(purposeOf(rec) + " " + name); m != "" {
			rec[models.FieldCounterpartyBIN] = m
			fix.AffectedRows++
		}
	}
	return fix
}

func fillCurrency(records []models.Record) AppliedFix {
	counts := make(map[string]int)
	known := 0
	for _, rec := range records {
		if s, ok := rec[models.FieldCurrency].(string); ok && strings.TrimSpace(s) != "" {
			counts[normalizer.StandardizeCurrency(s)]++
			known++
		}
	}

	dominant, best := "", 0
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if counts[code] > best {
			dominant, best = code, counts[code]
		}
	}

	fix := AppliedFix{Type: FixCurrencyFilled, Field: models.FieldCurrency, Confidence: 0.5,
		Description: "filled missing currency from the purpose text or the statement's main currency"}
	if known > 0 {
		fix.Confidence = float64(best) / float64(known)
		fix.Description = fmt.Sprintf("filled missing currency from the purpose text or the statement's main currency %s", dominant)
	}

	for _, rec := range records {
		if !isEmpty(rec[models.FieldCurrency]) {
			continue
		}
		if code, ok := normalizer.DetectCurrency(purposeOf(rec)); ok {
			rec[models.FieldCurrency] = code
			fix.AffectedRows++
			continue
		}
		if dominant != "" {
			rec[models.FieldCurrency] = dominant
			fix.AffectedRows++
		}
	}
	return fix
}

func fillExchangeRates(records []models.Record) AppliedFix {
	sum := decimal.Zero
	n := 0
	for _, rec := range records {
		if rate, ok := models.DecimalFromValue(rec[models.FieldExchangeRate]); ok && rate.IsPositive() {
			sum = sum.Add(rate)
			n++
		}
	}

	fix := AppliedFix{Type: FixExchangeRateFilled, Field: models.FieldExchangeRate, Confidence: 0.6,
		Description: "filled missing exchange rates with the average known rate"}
	if n == 0 {
		return fix
	}
	average := sum.Div(decimal.NewFromInt(int64(n))).Round(6)

	for _, rec := range records {
		if _, ok := models.DecimalFromValue(rec[models.FieldAmountForeign]); !ok {
			continue
		}
		if !isEmpty(rec[models.FieldExchangeRate]) {
			continue
		}
		rec[models.FieldExchangeRate] = average
		fix.AffectedRows++
	}
	return fix
}
