// Package sources loads statement data from files.
//
// Grids come from CSV or XLSX exports, raw statement text from PDF or plain
// text files, and already parsed transactions, records and metadata from
// JSON. Loaders never interpret cell values; that is left to the quality
// engines.
//
// Example usage:
//
//	loader := sources.NewLoader(nil)
//	grid, err := loader.LoadGrid("statement.xlsx")
//	records, err := loader.GridToRecords(grid)
package sources

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// Loader reads statement files.
type Loader struct {
	config *Config
	logger logger.Logger
}

// NewLoader creates a loader; a nil config selects the defaults.
func NewLoader(config *Config) *Loader {
	if config == nil {
		config = DefaultConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("sources")
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"has_header":        config.HasHeader,
		"validate_encoding": config.ValidateEncoding,
	}).Debug("Created source loader")

	return &Loader{config: config, logger: log}
}

// LoadGrid reads a CSV or XLSX file into a grid, choosing the format by the
// file extension.
func (l *Loader) LoadGrid(path string) (models.Grid, error) {
	if err := l.config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "sources", path, err)
	}

	data, err := readFile(path)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", path).Error("Failed to read grid file")
		return nil, err
	}

	var grid models.Grid
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		grid, err = l.ReadCSV(bytes.NewReader(data), path)
	case ".xlsx", ".xlsm":
		grid, err = l.ReadXLSX(bytes.NewReader(data), path)
	default:
		return nil, errors.FileError(errors.CodeUnsupportedFile, path, fmt.Errorf("unsupported grid format %q", ext)).
			WithSuggestion("Use a .csv, .tsv or .xlsx file")
	}
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(grid),
	}).Info("Grid loaded")
	return grid, nil
}

// ReadCSV reads delimited text. Rows may have different lengths; the grid
// analyzer reports that rather than the reader rejecting it.
func (l *Loader) ReadCSV(r io.Reader, name string) (models.Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}
	if l.config.ValidateEncoding {
		if err := validateEncoding(data, name); err != nil {
			return nil, err
		}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = l.config.Delimiter
	reader.Comment = l.config.Comment
	reader.TrimLeadingSpace = l.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	grid := models.Grid{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, name, line, "", "", err).
				WithSuggestion("Check the delimiter and quoting of the file")
		}
		if l.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		if err := l.checkFieldSizes(record, name, line); err != nil {
			return nil, err
		}
		grid = append(grid, record)
	}

	l.logger.WithFields(logger.Fields{"source": name, "rows": len(grid)}).Debug("CSV read")
	return grid, nil
}

// ReadXLSX reads one worksheet of a workbook.
func (l *Loader) ReadXLSX(r io.Reader, name string) (models.Grid, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, fmt.Errorf("parse excel: %w", err))
	}
	defer xl.Close()

	sheet := l.config.Sheet
	if sheet == "" {
		sheet = xl.GetSheetName(0)
	}
	rows, err := xl.GetRows(sheet)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, "sheet", sheet, fmt.Errorf("get rows: %w", err)).
			WithSuggestion("Check the worksheet name")
	}

	grid := make(models.Grid, 0, len(rows))
	for i, row := range rows {
		if l.config.SkipEmptyRows && isEmptyRecord(row) {
			continue
		}
		if err := l.checkFieldSizes(row, name, i+1); err != nil {
			return nil, err
		}
		grid = append(grid, row)
	}

	l.logger.WithFields(logger.Fields{"source": name, "sheet": sheet, "rows": len(grid)}).Debug("Worksheet read")
	return grid, nil
}

func (l *Loader) checkFieldSizes(record []string, name string, line int) error {
	if l.config.MaxFieldSize <= 0 {
		return nil
	}
	for i, field := range record {
		if len(field) > l.config.MaxFieldSize {
			l.logger.WithFields(logger.Fields{
				"line_number": line,
				"column":      i,
				"field_size":  len(field),
				"max_size":    l.config.MaxFieldSize,
			}).Warn("Field exceeds maximum size limit")
			return errors.ParseError(errors.CodeInvalidData, name, line, fmt.Sprintf("field_%d", i), field[:50]+"...",
				fmt.Errorf("field size limit exceeded")).
				WithSuggestion(fmt.Sprintf("Reduce field size to under %d bytes", l.config.MaxFieldSize))
		}
	}
	return nil
}

// validateEncoding checks the first lines are valid UTF-8.
func validateEncoding(data []byte, name string) error {
	for i, line := range bytes.SplitN(data, []byte("\n"), 101) {
		if i == 100 {
			break
		}
		if !utf8.Valid(line) {
			return errors.ParseError(errors.CodeEncodingError, name, i+1, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	return nil
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return data, nil
}
