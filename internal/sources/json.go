package sources

import (
	"bytes"
	"encoding/json"
	"fmt"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// StatementFile is the JSON layout of an already parsed statement. A file
// holding a bare array is read as the transactions alone.
type StatementFile struct {
	Metadata     *models.StatementMetadata `json:"metadata,omitempty"`
	Transactions []models.Transaction      `json:"transactions"`
	SourceText   string                    `json:"sourceText,omitempty"`
}

// LoadStatement reads a statement JSON file.
func (l *Loader) LoadStatement(path string) (*StatementFile, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	stmt, err := DecodeStatement(data, path)
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logger.Fields{
		"file_path":    path,
		"transactions": len(stmt.Transactions),
		"metadata":     stmt.Metadata != nil,
	}).Info("Statement loaded")
	return stmt, nil
}

// DecodeStatement parses statement JSON.
func DecodeStatement(data []byte, name string) (*StatementFile, error) {
	data = bytes.TrimSpace(data)
	stmt := &StatementFile{}
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &stmt.Transactions); err != nil {
			return nil, jsonError(name, err)
		}
	} else if err := json.Unmarshal(data, stmt); err != nil {
		return nil, jsonError(name, err)
	}
	if stmt.Transactions == nil {
		stmt.Transactions = []models.Transaction{}
	}
	return stmt, nil
}

// LoadRecords reads untyped records from a JSON array, or from the
// "transactions" array of a statement object. Numbers are kept as
// json.Number so no precision is lost before the column engine sees them.
func (l *Loader) LoadRecords(path string) ([]models.Record, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	records, err := DecodeRecords(data, path)
	if err != nil {
		return nil, err
	}
	l.logger.WithFields(logger.Fields{"file_path": path, "records": len(records)}).Info("Records loaded")
	return records, nil
}

// DecodeRecords parses record JSON.
func DecodeRecords(data []byte, name string) ([]models.Record, error) {
	data = bytes.TrimSpace(data)
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var records []models.Record
	if bytes.HasPrefix(data, []byte("[")) {
		if err := decoder.Decode(&records); err != nil {
			return nil, jsonError(name, err)
		}
	} else {
		var wrapper struct {
			Transactions []models.Record `json:"transactions"`
		}
		if err := decoder.Decode(&wrapper); err != nil {
			return nil, jsonError(name, err)
		}
		records = wrapper.Transactions
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}

// LoadMetadata reads statement metadata from a JSON object.
func (l *Loader) LoadMetadata(path string) (*models.StatementMetadata, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var md models.StatementMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, jsonError(path, err)
	}
	return &md, nil
}

func jsonError(name string, err error) error {
	return errors.ParseError(errors.CodeInvalidFormat, name, 0, "json", "", fmt.Errorf("decode JSON: %w", err)).
		WithSuggestion("Check that the file is valid JSON in the statement layout")
}
