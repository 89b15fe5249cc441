package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statement-quality-service/internal/checksum"
	"statement-quality-service/internal/dedup"
	"statement-quality-service/internal/gridquality"
	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalization"
	"statement-quality-service/pkg/errors"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func plainConfig(format OutputFormat) *ReportConfig {
	config := DefaultReportConfig()
	config.Format = format
	config.UseColors = false
	return config
}

func sampleResult() *normalization.NormalizationResult {
	started := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		{
			Date:             day(5),
			CounterpartyName: "ACME",
			Debit:            models.Amount(decimal.NewFromInt(150)),
			PaymentPurpose:   "Оплата аренды",
			Currency:         "KZT",
		},
		{
			Date:             day(6),
			CounterpartyName: "Beta",
			Credit:           models.Amount(decimal.NewFromInt(500)),
			PaymentPurpose:   "Поступление выручки",
			Currency:         "KZT",
		},
	}
	return &normalization.NormalizationResult{
		RunID: "3f2b8c1e-0000-4000-8000-000000000001",
		State: normalization.StateDone,
		Transitions: []normalization.Transition{
			{From: normalization.StateReceived, To: normalization.StateNormalized, At: started, Duration: time.Millisecond},
		},
		Transactions: txs,
		Metrics: normalization.Metrics{
			Total:                  3,
			SuccessfullyNormalized: 3,
			DuplicatesRemoved:      1,
			DataQualityScore:       0.95,
		},
		Errors:   []string{},
		Warnings: []string{"column consistency skipped: no records"},
		Stages: normalization.StageResults{
			Dedup: &dedup.Result{
				Transactions:      txs,
				DuplicatesRemoved: 1,
				Groups:            []dedup.Group{{GroupID: "g1", Key: "k", Kept: 1, Members: []int{0, 1}, Reason: "identical key"}},
			},
			Checksum: &checksum.ChecksumValidationResult{
				ActualTotals: checksum.ActualTotals{TotalDebit: decimal.NewFromInt(150), TotalCredit: decimal.NewFromInt(500)},
				Checks: []checksum.ValidationCheck{
					{Name: checksum.CheckBalanceConsistency, Passed: false, Description: "closing balance differs"},
					{Name: checksum.CheckNoZeroAmounts, Passed: true, Description: "no zero rows"},
				},
				Discrepancies: []checksum.Discrepancy{{
					Type:                 checksum.BalanceMismatch,
					Severity:             models.SeverityHigh,
					Difference:           decimal.NewFromInt(10),
					PercentageDifference: decimal.NewFromInt(2),
					Description:          "closing balance mismatch",
				}},
				QualityScore: 0.9,
				Confidence:   1,
			},
		},
		OracleNotes: []string{"AI disabled"},
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Second),
	}
}

func sampleGridReport() *gridquality.QualityReport {
	return &gridquality.QualityReport{
		OriginalMetrics: gridquality.Metrics{TotalRows: 3, OverallQuality: 0.6},
		Metrics:         gridquality.Metrics{TotalRows: 2, OverallQuality: 0.9},
		Issues: []gridquality.Issue{
			{Type: gridquality.IssueDuplicateRows, Severity: models.SeverityHigh, Description: "1 duplicate rows", AffectedRows: []int{2}},
			{Type: gridquality.IssueMissingData, Severity: models.SeverityLow, Description: "2 empty cells"},
		},
		Fixes: []gridquality.Fix{
			{IssueType: gridquality.IssueDuplicateRows, Description: "removed duplicate rows", RowsAffected: 1},
		},
		FixedGrid:       models.Grid{{"date", "amount"}, {"2024-01-05", "150.00"}},
		Summary:         "Grid quality 90.0%",
		Recommendations: []string{"Check the export for empty cells"},
		StrictMode:      true,
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name: "invalid format",
			config: &ReportConfig{
				Format:        "invalid",
				TableMaxWidth: 120,
				MaxListItems:  10,
				CSVDelimiter:  ',',
			},
			expectError: true,
		},
		{
			name: "table width too small",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 30,
				MaxListItems:  10,
				CSVDelimiter:  ',',
			},
			expectError: true,
		},
		{
			name: "quote delimiter",
			config: &ReportConfig{
				Format:        FormatCSV,
				TableMaxWidth: 120,
				MaxListItems:  10,
				CSVDelimiter:  '"',
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if generator.GetConfiguration() == nil {
				t.Error("expected configuration to be set")
			}
		})
	}
}

func TestOutputFormatIsValid(t *testing.T) {
	for _, f := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		if !f.IsValid() {
			t.Errorf("%s should be valid", f)
		}
	}
	if OutputFormat("xml").IsValid() {
		t.Error("xml should not be valid")
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	generator, err := NewReportGenerator(plainConfig(FormatConsole))
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"STATEMENT QUALITY REPORT",
		"State:    done",
		"Duration: 2s",
		"Duplicates removed:      1",
		"Data quality score:      0.95 (95.0%)",
		"=== DUPLICATES ===",
		"kept row 2 of rows [1 2]: identical key",
		"=== CHECKSUM VALIDATION ===",
		"[FAIL] balance_consistency: closing balance differs",
		"[PASS] no_zero_amount_rows",
		"[HIGH] balance_mismatch: closing balance mismatch (difference: 10.00, 2.00%)",
		"=== ORACLE NOTES ===",
		"=== WARNINGS ===",
		"column consistency skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console report missing %q\n%s", want, out)
		}
	}

	if strings.Contains(out, "=== TRANSACTIONS ===") {
		t.Error("transactions should be omitted by default")
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("colors disabled but escape codes written")
	}
}

func TestGenerateConsoleReportTransactions(t *testing.T) {
	config := plainConfig(FormatConsole)
	config.IncludeTransactions = true
	config.IncludeTransitions = true
	config.SortByAmount = true
	config.MaxListItems = 1
	generator, _ := NewReportGenerator(config)

	result := sampleResult()
	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "received -> normalized") {
		t.Error("expected transitions section")
	}
	if !strings.Contains(out, "1. 2024-01-06  +500.00") {
		t.Errorf("expected the larger amount first\n%s", out)
	}
	if !strings.Contains(out, "... and 1 more") {
		t.Errorf("expected list to be cut after one item\n%s", out)
	}
	if result.Transactions[0].CounterpartyName != "ACME" {
		t.Error("sorting must not reorder the result")
	}
}

func TestGenerateConsoleReportFailedRun(t *testing.T) {
	generator, _ := NewReportGenerator(plainConfig(FormatConsole))
	result := &normalization.NormalizationResult{
		RunID:  "r-failed",
		State:  normalization.StateFailed,
		Errors: []string{"PROCESSING_ERROR: checksum validation failed"},
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "=== ERRORS ===") || !strings.Contains(out, "checksum validation failed") {
		t.Errorf("expected errors section\n%s", out)
	}
	if strings.Contains(out, "Duration:") {
		t.Error("duration needs a finish time")
	}
}

func TestGenerateJSONReport(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*ReportConfig)
		present []string
		absent  []string
	}{
		{
			name:    "defaults",
			present: []string{"run_id", "state", "metrics", "stages", "oracle_notes"},
			absent:  []string{"transactions", "transitions"},
		},
		{
			name: "everything",
			modify: func(c *ReportConfig) {
				c.IncludeTransactions = true
				c.IncludeTransitions = true
			},
			present: []string{"transactions", "transitions", "stages"},
		},
		{
			name: "summary only",
			modify: func(c *ReportConfig) {
				c.IncludeStageDetails = false
				c.IncludeOracleNotes = false
			},
			present: []string{"metrics", "warnings"},
			absent:  []string{"stages", "oracle_notes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := plainConfig(FormatJSON)
			if tt.modify != nil {
				tt.modify(config)
			}
			generator, _ := NewReportGenerator(config)

			var buf bytes.Buffer
			if err := generator.GenerateReport(sampleResult(), &buf); err != nil {
				t.Fatalf("GenerateReport() error = %v", err)
			}

			var decoded map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			for _, key := range tt.present {
				if _, ok := decoded[key]; !ok {
					t.Errorf("expected key %q", key)
				}
			}
			for _, key := range tt.absent {
				if _, ok := decoded[key]; ok {
					t.Errorf("unexpected key %q", key)
				}
			}
			if decoded["state"] != "done" {
				t.Errorf("state = %v, want done", decoded["state"])
			}
		})
	}
}

func TestGenerateCSVReport(t *testing.T) {
	config := plainConfig(FormatCSV)
	config.CSVDelimiter = ';'
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleResult(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	reader := csv.NewReader(&buf)
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Row" || rows[0][6] != "Debit" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "2024-01-05" || rows[1][6] != "150.00" || rows[1][7] != "" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if rows[2][7] != "500.00" || rows[2][9] != "Поступление выручки" {
		t.Errorf("unexpected second row %v", rows[2])
	}
}

func batchResults() []*normalization.NormalizationResult {
	second := sampleResult()
	second.RunID = "run-2"
	second.Metrics = normalization.Metrics{Total: 2, SuccessfullyNormalized: 2, DataQualityScore: 0.75}
	failed := &normalization.NormalizationResult{
		RunID:  "run-failed",
		State:  normalization.StateFailed,
		Errors: []string{"statement rejected: transactions are required"},
	}
	return []*normalization.NormalizationResult{sampleResult(), failed, nil, second}
}

func TestSummarizeBatch(t *testing.T) {
	s := summarizeBatch(batchResults())
	if s.Runs != 3 || s.Completed != 2 || s.Failed != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.Transactions != 5 || s.DuplicatesRemoved != 1 {
		t.Errorf("unexpected totals %+v", s)
	}
	if math.Abs(s.AverageQuality-0.85) > 1e-9 {
		t.Errorf("AverageQuality = %v, want 0.85", s.AverageQuality)
	}

	if empty := summarizeBatch(nil); empty.AverageQuality != 0 || empty.Runs != 0 {
		t.Errorf("unexpected empty summary %+v", empty)
	}
}

func TestGenerateBatchReport(t *testing.T) {
	t.Run("console", func(t *testing.T) {
		generator, _ := NewReportGenerator(plainConfig(FormatConsole))
		var buf bytes.Buffer
		if err := generator.GenerateBatchReport(batchResults(), &buf); err != nil {
			t.Fatalf("GenerateBatchReport() error = %v", err)
		}
		out := buf.String()
		for _, want := range []string{"BATCH QUALITY REPORT", "Runs:               3", "3f2b8c1e", "statement rejected"} {
			if !strings.Contains(out, want) {
				t.Errorf("batch report missing %q\n%s", want, out)
			}
		}
	})

	t.Run("csv", func(t *testing.T) {
		generator, _ := NewReportGenerator(plainConfig(FormatCSV))
		var buf bytes.Buffer
		if err := generator.GenerateBatchReport(batchResults(), &buf); err != nil {
			t.Fatalf("GenerateBatchReport() error = %v", err)
		}
		rows, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(rows) != 4 {
			t.Fatalf("expected header and 3 rows, got %d", len(rows))
		}
		if rows[2][0] != "run-failed" || rows[2][1] != "failed" {
			t.Errorf("unexpected failed row %v", rows[2])
		}
		if rows[1][6] != "0.9500" {
			t.Errorf("quality = %q, want 0.9500", rows[1][6])
		}
	})

	t.Run("json", func(t *testing.T) {
		generator, _ := NewReportGenerator(plainConfig(FormatJSON))
		var buf bytes.Buffer
		if err := generator.GenerateBatchReport(batchResults(), &buf); err != nil {
			t.Fatalf("GenerateBatchReport() error = %v", err)
		}
		var decoded struct {
			Summary BatchSummary             `json:"summary"`
			Runs    []map[string]interface{} `json:"runs"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Summary.Runs != 3 || len(decoded.Runs) != 3 {
			t.Errorf("unexpected batch JSON %+v", decoded.Summary)
		}
	})
}

func TestGenerateGridReport(t *testing.T) {
	t.Run("console", func(t *testing.T) {
		generator, _ := NewReportGenerator(plainConfig(FormatConsole))
		var buf bytes.Buffer
		if err := generator.GenerateGridReport(sampleGridReport(), &buf); err != nil {
			t.Fatalf("GenerateGridReport() error = %v", err)
		}
		out := buf.String()
		for _, want := range []string{
			"GRID QUALITY REPORT",
			"Strict mode: blocking issues found",
			"Overall quality",
			"60.0%",
			"90.0%",
			"HIGH Severity (1):",
			"duplicate_rows: 1 duplicate rows (1 rows)",
			"LOW Severity (1):",
			"removed duplicate rows (1 rows)",
			"Check the export for empty cells",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("grid report missing %q\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		config := plainConfig(FormatJSON)
		generator, _ := NewReportGenerator(config)
		var buf bytes.Buffer
		if err := generator.GenerateGridReport(sampleGridReport(), &buf); err != nil {
			t.Fatalf("GenerateGridReport() error = %v", err)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded["blocking"] != true {
			t.Errorf("blocking = %v, want true", decoded["blocking"])
		}
		if _, ok := decoded["fixed_grid"]; ok {
			t.Error("fixed grid should be omitted by default")
		}
	})

	t.Run("csv issues", func(t *testing.T) {
		generator, _ := NewReportGenerator(plainConfig(FormatCSV))
		var buf bytes.Buffer
		if err := generator.GenerateGridReport(sampleGridReport(), &buf); err != nil {
			t.Fatalf("GenerateGridReport() error = %v", err)
		}
		rows, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(rows) != 3 || rows[1][0] != "duplicate_rows" || rows[1][3] != "2" {
			t.Errorf("unexpected issue rows %v", rows)
		}
	})

	t.Run("csv fixed grid", func(t *testing.T) {
		config := plainConfig(FormatCSV)
		config.IncludeFixedGrid = true
		generator, _ := NewReportGenerator(config)
		var buf bytes.Buffer
		if err := generator.GenerateGridReport(sampleGridReport(), &buf); err != nil {
			t.Fatalf("GenerateGridReport() error = %v", err)
		}
		if got := buf.String(); got != "date,amount\n2024-01-05,150.00\n" {
			t.Errorf("fixed grid CSV = %q", got)
		}
	})

	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateGridReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil report")
	}
}

func TestTruncate(t *testing.T) {
	generator, _ := NewReportGenerator(plainConfig(FormatConsole))
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"Оплата аренды за январь", 10, "Оплата ..."},
		{"exactly10!", 10, "exactly10!"},
	}
	for _, tt := range tests {
		if got := generator.truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestUpdateConfiguration(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.UpdateConfiguration(&ReportConfig{Format: "bad"}); err == nil {
		t.Error("expected error for invalid configuration")
	}
	if err := generator.UpdateConfiguration(plainConfig(FormatJSON)); err != nil {
		t.Fatalf("UpdateConfiguration() error = %v", err)
	}
	if generator.GetConfiguration().Format != FormatJSON {
		t.Error("configuration not updated")
	}
}

type failOnceWriter struct {
	buf    bytes.Buffer
	failed bool
}

func (w *failOnceWriter) Write(p []byte) (int, error) {
	if !w.failed {
		w.failed = true
		return 0, fmt.Errorf("write refused")
	}
	return w.buf.Write(p)
}

func TestSafeReportGenerator(t *testing.T) {
	t.Run("rejects unknown result types", func(t *testing.T) {
		srg, err := NewSafeReportGenerator(plainConfig(FormatConsole), nil)
		if err != nil {
			t.Fatalf("NewSafeReportGenerator() error = %v", err)
		}
		err = srg.GenerateReportSafely("not a result", &bytes.Buffer{})
		if perr, ok := errors.AsPipelineError(err); !ok || perr.Code != errors.CodeInvalidData {
			t.Errorf("expected invalid data error, got %v", err)
		}

		var missing *normalization.NormalizationResult
		err = srg.GenerateReportSafely(missing, &bytes.Buffer{})
		if perr, ok := errors.AsPipelineError(err); !ok || perr.Code != errors.CodeMissingField {
			t.Errorf("expected missing field error, got %v", err)
		}
	})

	t.Run("falls back to console", func(t *testing.T) {
		srg, _ := NewSafeReportGenerator(plainConfig(FormatJSON), nil)
		w := &failOnceWriter{}
		if err := srg.GenerateReportSafely(sampleResult(), w); err != nil {
			t.Fatalf("GenerateReportSafely() error = %v", err)
		}
		out := w.buf.String()
		if !strings.Contains(out, "NOTE: Report generated in fallback format") || !strings.Contains(out, "STATEMENT QUALITY REPORT") {
			t.Errorf("expected console fallback\n%s", out)
		}
	})

	t.Run("renders every result kind", func(t *testing.T) {
		srg, _ := NewSafeReportGenerator(plainConfig(FormatConsole), nil)
		for _, result := range []interface{}{sampleResult(), batchResults(), sampleGridReport()} {
			var buf bytes.Buffer
			if err := srg.GenerateReportSafely(result, &buf); err != nil {
				t.Errorf("GenerateReportSafely(%T) error = %v", result, err)
			}
			if buf.Len() == 0 {
				t.Errorf("GenerateReportSafely(%T) wrote nothing", result)
			}
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewSafeReportGenerator(&ReportConfig{Format: "xml"}, nil)
		if perr, ok := errors.AsPipelineError(err); !ok || perr.Category != errors.CategoryConfiguration {
			t.Errorf("expected configuration error, got %v", err)
		}
	})
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath("/tmp/out/report.json"); got != "/tmp/out/report_backup.json" {
		t.Errorf("generateBackupPath() = %q", got)
	}
	if got := generateBackupPath("report"); got != "report_backup" {
		t.Errorf("generateBackupPath() = %q", got)
	}
}
