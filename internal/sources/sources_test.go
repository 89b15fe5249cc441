package sources

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		content string
		want    models.Grid
	}{
		{
			name:    "comma with quotes",
			config:  DefaultConfig(),
			content: "date,amount\n2024-01-05,\"1,500.00\"\n",
			want:    models.Grid{{"date", "amount"}, {"2024-01-05", "1,500.00"}},
		},
		{
			name:    "semicolon with BOM",
			config:  SemicolonConfig,
			content: "\xef\xbb\xbfДата;Сумма\n05.01.2024;1 500,00\n",
			want:    models.Grid{{"Дата", "Сумма"}, {"05.01.2024", "1 500,00"}},
		},
		{
			name:    "ragged rows are kept",
			config:  DefaultConfig(),
			content: "a,b,c\n1,2\n1,2,3,4\n",
			want:    models.Grid{{"a", "b", "c"}, {"1", "2"}, {"1", "2", "3", "4"}},
		},
		{
			name:    "blank rows are kept by default",
			config:  DefaultConfig(),
			content: "a,b\n,\n1,2\n",
			want:    models.Grid{{"a", "b"}, {"", ""}, {"1", "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := NewLoader(tt.config).ReadCSV(strings.NewReader(tt.content), "test.csv")
			if err != nil {
				t.Fatalf("ReadCSV() error = %v", err)
			}
			if len(grid) != len(tt.want) {
				t.Fatalf("grid = %q, want %q", grid, tt.want)
			}
			for i := range tt.want {
				if strings.Join(grid[i], "|") != strings.Join(tt.want[i], "|") {
					t.Errorf("row %d = %q, want %q", i, grid[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadCSVRejectsInvalidUTF8(t *testing.T) {
	_, err := NewLoader(nil).ReadCSV(strings.NewReader("a,b\n\xff\xfe,1\n"), "bad.csv")
	perr, ok := errors.AsPipelineError(err)
	if !ok || perr.Code != errors.CodeEncodingError {
		t.Errorf("expected encoding error, got %v", err)
	}
}

func TestLoadGridErrors(t *testing.T) {
	loader := NewLoader(nil)

	_, err := loader.LoadGrid(filepath.Join(t.TempDir(), "missing.csv"))
	if perr, ok := errors.AsPipelineError(err); !ok || perr.Code != errors.CodeFileNotFound {
		t.Errorf("missing file: got %v", err)
	}

	_, err = loader.LoadGrid(writeFile(t, "statement.doc", "x"))
	if perr, ok := errors.AsPipelineError(err); !ok || perr.Code != errors.CodeUnsupportedFile {
		t.Errorf("unsupported file: got %v", err)
	}
}

func TestLoadGridXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Дата", "Контрагент", "Дебет"},
		{"05.01.2024", "ACME", "150,00"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "statement.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}

	grid, err := NewLoader(nil).LoadGrid(path)
	if err != nil {
		t.Fatalf("LoadGrid() error = %v", err)
	}
	if len(grid) != 2 || grid[0][0] != "Дата" || grid[1][2] != "150,00" {
		t.Errorf("unexpected grid %q", grid)
	}

	config := DefaultConfig()
	config.Sheet = "Missing"
	if _, err := NewLoader(config).LoadGrid(path); err == nil {
		t.Error("expected error for unknown sheet")
	}
}

func TestGridToRecords(t *testing.T) {
	config := DefaultConfig()
	config.ColumnAliases = map[string]string{"сумма списания": models.FieldDebit}
	loader := NewLoader(config)

	grid := models.Grid{
		{"DATE", "Сумма списания", "Контрагент", "note", "note", ""},
		{"05.01.2024", "150,00", "ACME", "a", "b", "x", "extra"},
		{"", "", ""},
		{"06.01.2024", "", "Beta"},
	}

	records, err := loader.GridToRecords(grid)
	if err != nil {
		t.Fatalf("GridToRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	checks := map[string]string{
		models.FieldDate:  "05.01.2024",
		models.FieldDebit: "150,00",
		"Контрагент":      "ACME",
		"note":            "a",
		"note_2":          "b",
		"column_6":        "x",
		"column_7":        "extra",
	}
	for key, want := range checks {
		if first[key] != want {
			t.Errorf("record[%q] = %v, want %q", key, first[key], want)
		}
	}
	if _, ok := records[1][models.FieldDebit]; ok {
		t.Error("empty cells must be left out")
	}

	if _, err := loader.GridToRecords(models.Grid{}); err == nil {
		t.Error("expected error for empty grid")
	}
}

func TestDecodeStatement(t *testing.T) {
	object := `{
		"metadata": {"accountNumber": "KZ123", "balanceEnd": "330.00"},
		"transactions": [
			{"date": "2024-01-05", "counterpartyName": "ACME", "debit": "150", "credit": null, "paymentPurpose": "Оплата"}
		],
		"sourceText": "raw"
	}`
	stmt, err := DecodeStatement([]byte(object), "statement.json")
	if err != nil {
		t.Fatalf("DecodeStatement() error = %v", err)
	}
	if len(stmt.Transactions) != 1 || stmt.SourceText != "raw" {
		t.Fatalf("unexpected statement %+v", stmt)
	}
	tx := stmt.Transactions[0]
	if tx.Date.Day() != 5 || !tx.Debit.Decimal.Equal(decimal.NewFromInt(150)) || tx.HasCredit() {
		t.Errorf("unexpected transaction %+v", tx)
	}
	if stmt.Metadata == nil || stmt.Metadata.AccountNumber != "KZ123" || !stmt.Metadata.HasClosingBalance() {
		t.Errorf("unexpected metadata %+v", stmt.Metadata)
	}

	array := `[{"date": "2024-01-06", "counterpartyName": "Beta", "credit": "10"}]`
	stmt, err = DecodeStatement([]byte(array), "array.json")
	if err != nil {
		t.Fatalf("DecodeStatement(array) error = %v", err)
	}
	if len(stmt.Transactions) != 1 || stmt.Metadata != nil {
		t.Errorf("unexpected statement %+v", stmt)
	}

	if _, err := DecodeStatement([]byte("{broken"), "bad.json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDecodeRecordsKeepsNumbers(t *testing.T) {
	records, err := DecodeRecords([]byte(`[{"debit": 1500.10, "Дата": "05.01.2024"}]`), "records.json")
	if err != nil {
		t.Fatalf("DecodeRecords() error = %v", err)
	}
	if n, ok := records[0]["debit"].(json.Number); !ok || n.String() != "1500.10" {
		t.Errorf("debit = %#v, want json.Number 1500.10", records[0]["debit"])
	}

	wrapped, err := DecodeRecords([]byte(`{"transactions": [{"a": 1}, {"b": 2}]}`), "wrapped.json")
	if err != nil || len(wrapped) != 2 {
		t.Errorf("wrapped records = %v, err = %v", wrapped, err)
	}
}

func TestLoadText(t *testing.T) {
	loader := NewLoader(nil)

	text, err := loader.LoadText(writeFile(t, "statement.txt", "Итого по дебету: 1 500,00"))
	if err != nil || !strings.Contains(text, "1 500,00") {
		t.Errorf("LoadText() = %q, %v", text, err)
	}

	if _, err := loader.LoadText(writeFile(t, "broken.pdf", "not a pdf")); err == nil {
		t.Error("expected error for a broken PDF")
	}
}

func TestConfigForDelimiter(t *testing.T) {
	tests := map[string]rune{"": ',', "comma": ',', "semicolon": ';', ";": ';', "tab": '\t', "\t": '\t'}
	for name, want := range tests {
		c, err := ConfigForDelimiter(name)
		if err != nil {
			t.Errorf("ConfigForDelimiter(%q) error = %v", name, err)
			continue
		}
		if c.Delimiter != want {
			t.Errorf("ConfigForDelimiter(%q) = %q, want %q", name, c.Delimiter, want)
		}
	}
	if _, err := ConfigForDelimiter("pipe"); err == nil {
		t.Error("expected error for unknown delimiter")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	c := DefaultConfig()
	c.Delimiter = '"'
	if err := c.Validate(); err == nil {
		t.Error("expected error for quote delimiter")
	}
	c = DefaultConfig()
	c.Comment = ','
	if err := c.Validate(); err == nil {
		t.Error("expected error for comment equal to delimiter")
	}
}
