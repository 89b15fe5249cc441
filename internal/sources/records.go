package sources

import (
	"fmt"
	"strings"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// fieldNames maps lower-cased field names to their canonical spelling.
var fieldNames = func() map[string]string {
	m := make(map[string]string)
	for _, f := range []string{
		models.FieldDate, models.FieldDocumentNumber, models.FieldCounterpartyName,
		models.FieldCounterpartyBIN, models.FieldCounterpartyAccount, models.FieldCounterpartyBank,
		models.FieldDebit, models.FieldCredit, models.FieldPaymentPurpose,
		models.FieldCurrency, models.FieldExchangeRate, models.FieldAmountForeign,
	} {
		m[strings.ToLower(f)] = f
	}
	return m
}()

// headerKey returns the record key for a header cell. Canonical field names
// match case-insensitively, configured aliases are applied next, and any
// other header is kept as written so the column engine can realign it.
func (l *Loader) headerKey(header string) string {
	trimmed := strings.TrimSpace(header)
	lower := strings.ToLower(trimmed)
	if f, ok := fieldNames[lower]; ok {
		return f
	}
	if f, ok := l.config.ColumnAliases[lower]; ok {
		if canonical, ok := fieldNames[strings.ToLower(f)]; ok {
			return canonical
		}
		return f
	}
	return trimmed
}

// GridToRecords turns a headed grid into records keyed by header. Blank rows
// are skipped, empty cells are left out and surplus cells beyond the header
// are kept under "column_N" keys.
func (l *Loader) GridToRecords(grid models.Grid) ([]models.Record, error) {
	if !l.config.HasHeader {
		return nil, errors.ConfigurationError(errors.CodeConfigConflict, "has_header", false,
			fmt.Errorf("records need a header row")).
			WithSuggestion("Use a file with a header row")
	}
	if len(grid) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
			WithSuggestion("Ensure the file contains header and data rows")
	}

	keys := make([]string, len(grid[0]))
	seen := make(map[string]int)
	for i, header := range grid[0] {
		base := l.headerKey(header)
		if base == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		key := base
		if n := seen[base]; n > 0 {
			key = fmt.Sprintf("%s_%d", base, n+1)
		}
		seen[base]++
		keys[i] = key
	}

	records := make([]models.Record, 0, len(grid)-1)
	for _, row := range grid[1:] {
		if isEmptyRecord(row) {
			continue
		}
		rec := make(models.Record, len(row))
		for i, cell := range row {
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			key := fmt.Sprintf("column_%d", i+1)
			if i < len(keys) {
				key = keys[i]
			}
			rec[key] = value
		}
		records = append(records, rec)
	}

	l.logger.WithFields(logger.Fields{
		"headers": keys,
		"records": len(records),
	}).Debug("Grid converted to records")
	return records, nil
}
