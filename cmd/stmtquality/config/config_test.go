package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"statement-quality-service/internal/gridquality"
	"statement-quality-service/internal/reporter"
	"statement-quality-service/pkg/logger"
)

func newViper(values map[string]interface{}) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(newViper(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Locale != "ru" {
		t.Errorf("expected locale 'ru', got '%s'", s.Locale)
	}
	if s.OutputFormat != "console" {
		t.Errorf("expected output format 'console', got '%s'", s.OutputFormat)
	}
	if s.Delimiter != "comma" {
		t.Errorf("expected delimiter 'comma', got '%s'", s.Delimiter)
	}
	if !s.AutoFix {
		t.Error("expected AutoFix to default to true")
	}
	if !s.ColumnEngine {
		t.Error("expected ColumnEngine to default to true")
	}
	if s.MaxConcurrency != 4 {
		t.Errorf("expected MaxConcurrency 4, got %d", s.MaxConcurrency)
	}
	if s.OracleTimeout != 30*time.Second {
		t.Errorf("expected oracle timeout 30s, got %v", s.OracleTimeout)
	}
	if s.MinQuality != 0.7 {
		t.Errorf("expected MinQuality 0.7, got %v", s.MinQuality)
	}
}

func TestLoadColumnTypes(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected []string
	}{
		{
			name:     "comma separated string",
			value:    "date, string,number",
			expected: []string{"date", "string", "number"},
		},
		{
			name:     "list",
			value:    []string{"date", "currency"},
			expected: []string{"date", "currency"},
		},
		{
			name:     "list with joined item",
			value:    []string{"date,any", "number"},
			expected: []string{"date", "any", "number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(newViper(map[string]interface{}{KeyColumnTypes: tt.value}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(s.ColumnTypes) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, s.ColumnTypes)
			}
			for i := range tt.expected {
				if s.ColumnTypes[i] != tt.expected[i] {
					t.Errorf("type %d: expected '%s', got '%s'", i, tt.expected[i], s.ColumnTypes[i])
				}
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		values      map[string]interface{}
		expectError bool
	}{
		{
			name:        "defaults",
			expectError: false,
		},
		{
			name:        "json output",
			values:      map[string]interface{}{KeyOutputFormat: "JSON"},
			expectError: false,
		},
		{
			name:        "invalid output format",
			values:      map[string]interface{}{KeyOutputFormat: "xml"},
			expectError: true,
		},
		{
			name:        "negative expected columns",
			values:      map[string]interface{}{KeyExpectedColumns: -1},
			expectError: true,
		},
		{
			name:        "invalid column type",
			values:      map[string]interface{}{KeyColumnTypes: "date,money"},
			expectError: true,
		},
		{
			name:        "any column type",
			values:      map[string]interface{}{KeyColumnTypes: "any,date"},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(tt.values))
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateLoggerConfig(t *testing.T) {
	s := &Settings{LogLevel: "warn", LogFormat: "json"}
	config := CreateLoggerConfig(s)
	if config.Level != logger.WarnLevel {
		t.Errorf("expected level warn, got %s", config.Level)
	}
	if config.Format != logger.JSONFormat {
		t.Errorf("expected format json, got %s", config.Format)
	}

	s.Verbose = true
	if config := CreateLoggerConfig(s); config.Level != logger.DebugLevel {
		t.Errorf("expected verbose to force debug, got %s", config.Level)
	}
}

func TestCreateSourceConfig(t *testing.T) {
	tests := []struct {
		name        string
		delimiter   string
		expected    rune
		expectError bool
	}{
		{"comma", "comma", ',', false},
		{"semicolon", "semicolon", ';', false},
		{"tab", "tab", '\t', false},
		{"unsupported", "pipe", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{
				Delimiter:     tt.delimiter,
				Sheet:         "Выписка",
				ColumnAliases: map[string]string{" Сумма ": "debit"},
			}
			config, err := CreateSourceConfig(s)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Delimiter != tt.expected {
				t.Errorf("expected delimiter %q, got %q", tt.expected, config.Delimiter)
			}
			if config.Sheet != "Выписка" {
				t.Errorf("expected sheet 'Выписка', got '%s'", config.Sheet)
			}
			if config.ColumnAliases["сумма"] != "debit" {
				t.Errorf("expected alias 'сумма' to map to 'debit', got %v", config.ColumnAliases)
			}
		})
	}
}

func TestCreateGridOptions(t *testing.T) {
	s := &Settings{
		Locale:          "kk",
		Strict:          true,
		AutoFix:         true,
		ExpectedColumns: 3,
		ColumnTypes:     []string{"date", "any", "number"},
	}

	options, err := CreateGridOptions(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if options.Locale != "kk" {
		t.Errorf("expected locale 'kk', got '%s'", options.Locale)
	}
	if !options.StrictMode {
		t.Error("expected StrictMode to be true")
	}
	if options.ExpectedColumns != 3 {
		t.Errorf("expected 3 columns, got %d", options.ExpectedColumns)
	}
	expected := []gridquality.ColumnType{gridquality.ColumnDate, gridquality.ColumnAny, gridquality.ColumnNumber}
	if len(options.ColumnTypes) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, options.ColumnTypes)
	}
	for i := range expected {
		if options.ColumnTypes[i] != expected[i] {
			t.Errorf("type %d: expected %q, got %q", i, expected[i], options.ColumnTypes[i])
		}
	}
}

func TestCreateOrchestratorConfig(t *testing.T) {
	s, err := Load(newViper(map[string]interface{}{
		KeyLocale:            "en",
		KeyStrict:            true,
		KeyApplyBalanceFixes: true,
		KeyMaxConcurrency:    2,
		KeyOracle:            true,
		KeyOracleTimeout:     "45s",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	config, err := CreateOrchestratorConfig(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Locale != "en" {
		t.Errorf("expected locale 'en', got '%s'", config.Locale)
	}
	if !config.StrictMode || !config.ApplyBalanceFixes {
		t.Error("expected strict mode and balance fixes to be enabled")
	}
	if config.MaxConcurrency != 2 {
		t.Errorf("expected MaxConcurrency 2, got %d", config.MaxConcurrency)
	}
	if !config.Oracle.Enabled {
		t.Error("expected oracle to be enabled")
	}
	if config.Oracle.Timeout != 45*time.Second {
		t.Errorf("expected oracle timeout 45s, got %v", config.Oracle.Timeout)
	}
	if config.Oracle.Model != "gemini-2.5-flash" {
		t.Errorf("expected default model, got '%s'", config.Oracle.Model)
	}

	s.MaxConcurrency = 0
	if _, err := CreateOrchestratorConfig(s); err == nil {
		t.Error("expected error for zero concurrency")
	}
}

func TestCreateMetricsConfig(t *testing.T) {
	s := &Settings{MinQuality: 0.8, MaxDuplicateRatio: 0.2, MaxFailedRatio: 0.1}
	config, err := CreateMetricsConfig(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.MinQualityScore != 0.8 {
		t.Errorf("expected MinQualityScore 0.8, got %v", config.MinQualityScore)
	}

	s.MinQuality = 1.5
	if _, err := CreateMetricsConfig(s); err == nil {
		t.Error("expected error for quality threshold above 1")
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		name                string
		settings            *Settings
		expectedFormat      reporter.OutputFormat
		expectedColors      bool
		expectedTxs         bool
		expectedTransitions bool
	}{
		{
			name:                "console to terminal",
			settings:            &Settings{OutputFormat: "console", Colors: true},
			expectedFormat:      reporter.FormatConsole,
			expectedColors:      true,
			expectedTxs:         false,
			expectedTransitions: false,
		},
		{
			name:                "console to file",
			settings:            &Settings{OutputFormat: "console", Colors: true, OutputFile: "report.txt", Verbose: true},
			expectedFormat:      reporter.FormatConsole,
			expectedColors:      false,
			expectedTxs:         false,
			expectedTransitions: true,
		},
		{
			name:                "json",
			settings:            &Settings{OutputFormat: "json", Colors: true, IncludeTransactions: true},
			expectedFormat:      reporter.FormatJSON,
			expectedColors:      false,
			expectedTxs:         true,
			expectedTransitions: true,
		},
		{
			name:                "csv",
			settings:            &Settings{OutputFormat: "csv"},
			expectedFormat:      reporter.FormatCSV,
			expectedColors:      false,
			expectedTxs:         true,
			expectedTransitions: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := CreateReportConfig(tt.settings)
			if config.Format != tt.expectedFormat {
				t.Errorf("expected format %s, got %s", tt.expectedFormat, config.Format)
			}
			if config.UseColors != tt.expectedColors {
				t.Errorf("expected UseColors %v, got %v", tt.expectedColors, config.UseColors)
			}
			if config.IncludeTransactions != tt.expectedTxs {
				t.Errorf("expected IncludeTransactions %v, got %v", tt.expectedTxs, config.IncludeTransactions)
			}
			if config.IncludeTransitions != tt.expectedTransitions {
				t.Errorf("expected IncludeTransitions %v, got %v", tt.expectedTransitions, config.IncludeTransitions)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("report config should be valid: %v", err)
			}
		})
	}
}

func TestIsSupportedLocale(t *testing.T) {
	for _, locale := range []string{"ru", "kk", "en"} {
		if !IsSupportedLocale(locale) {
			t.Errorf("expected locale '%s' to be supported", locale)
		}
	}
	if IsSupportedLocale("de") {
		t.Error("expected locale 'de' to be unsupported")
	}
}
