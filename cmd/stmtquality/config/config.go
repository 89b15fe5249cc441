// Package config turns viper settings into the engine configurations used
// by the stmtquality commands.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"statement-quality-service/internal/gridquality"
	"statement-quality-service/internal/metrics"
	"statement-quality-service/internal/normalization"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/internal/oracle"
	"statement-quality-service/internal/reporter"
	"statement-quality-service/internal/sources"
	"statement-quality-service/pkg/logger"
)

// Viper keys shared by flags, the config file and STMTQ_ environment
// variables.
const (
	KeyVerbose             = "verbose"
	KeyLogLevel            = "log-level"
	KeyLogFormat           = "log-format"
	KeyLocale              = "locale"
	KeyStrict              = "strict"
	KeyDelimiter           = "delimiter"
	KeySheet               = "sheet"
	KeyColumnAliases       = "column-aliases"
	KeyOutputFormat        = "output-format"
	KeyOutputFile          = "output-file"
	KeyColors              = "colors"
	KeyIncludeTransactions = "include-transactions"
	KeyFixedGrid           = "fixed-grid"
	KeyExpectedColumns     = "expected-columns"
	KeyColumnTypes         = "column-types"
	KeyAutoFix             = "auto-fix"
	KeyColumnEngine        = "column-engine"
	KeyApplyBalanceFixes   = "apply-balance-fixes"
	KeyMaxConcurrency      = "max-concurrency"
	KeyOracle              = "oracle"
	KeyOracleModel         = "oracle-model"
	KeyOracleTimeout       = "oracle-timeout"
	KeyMetricsDB           = "metrics-db"
	KeyMinQuality          = "min-quality"
	KeyMaxDuplicateRatio   = "max-duplicate-ratio"
	KeyMaxFailedRatio      = "max-failed-ratio"
)

// Settings is the flat view of every option the commands read.
type Settings struct {
	Verbose   bool
	LogLevel  string
	LogFormat string

	Locale string
	Strict bool

	Delimiter     string
	Sheet         string
	ColumnAliases map[string]string

	OutputFormat        string
	OutputFile          string
	Colors              bool
	IncludeTransactions bool
	FixedGrid           bool

	ExpectedColumns int
	ColumnTypes     []string
	AutoFix         bool

	ColumnEngine      bool
	ApplyBalanceFixes bool
	MaxConcurrency    int

	Oracle        bool
	OracleModel   string
	OracleTimeout time.Duration

	MetricsDB         string
	MinQuality        float64
	MaxDuplicateRatio float64
	MaxFailedRatio    float64
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	orchestrator := normalization.DefaultConfig()
	oracleConfig := oracle.DefaultConfig()
	thresholds := metrics.DefaultConfig()

	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
	v.SetDefault(KeyLocale, orchestrator.Locale)
	v.SetDefault(KeyDelimiter, "comma")
	v.SetDefault(KeyOutputFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyColors, true)
	v.SetDefault(KeyAutoFix, true)
	v.SetDefault(KeyColumnEngine, orchestrator.RunColumnEngine)
	v.SetDefault(KeyMaxConcurrency, orchestrator.MaxConcurrency)
	v.SetDefault(KeyOracleModel, oracleConfig.Model)
	v.SetDefault(KeyOracleTimeout, oracleConfig.Timeout)
	v.SetDefault(KeyMinQuality, thresholds.MinQualityScore)
	v.SetDefault(KeyMaxDuplicateRatio, thresholds.MaxDuplicateRatio)
	v.SetDefault(KeyMaxFailedRatio, thresholds.MaxFailedRatio)
}

// Load reads the settings from v. Column types may come as a list or as one
// comma-separated string.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Verbose:             v.GetBool(KeyVerbose),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFormat:           v.GetString(KeyLogFormat),
		Locale:              strings.ToLower(strings.TrimSpace(v.GetString(KeyLocale))),
		Strict:              v.GetBool(KeyStrict),
		Delimiter:           v.GetString(KeyDelimiter),
		Sheet:               v.GetString(KeySheet),
		ColumnAliases:       v.GetStringMapString(KeyColumnAliases),
		OutputFormat:        strings.ToLower(v.GetString(KeyOutputFormat)),
		OutputFile:          v.GetString(KeyOutputFile),
		Colors:              v.GetBool(KeyColors),
		IncludeTransactions: v.GetBool(KeyIncludeTransactions),
		FixedGrid:           v.GetBool(KeyFixedGrid),
		ExpectedColumns:     v.GetInt(KeyExpectedColumns),
		AutoFix:             v.GetBool(KeyAutoFix),
		ColumnEngine:        v.GetBool(KeyColumnEngine),
		ApplyBalanceFixes:   v.GetBool(KeyApplyBalanceFixes),
		MaxConcurrency:      v.GetInt(KeyMaxConcurrency),
		Oracle:              v.GetBool(KeyOracle),
		OracleModel:         v.GetString(KeyOracleModel),
		OracleTimeout:       v.GetDuration(KeyOracleTimeout),
		MetricsDB:           v.GetString(KeyMetricsDB),
		MinQuality:          v.GetFloat64(KeyMinQuality),
		MaxDuplicateRatio:   v.GetFloat64(KeyMaxDuplicateRatio),
		MaxFailedRatio:      v.GetFloat64(KeyMaxFailedRatio),
	}

	for _, item := range v.GetStringSlice(KeyColumnTypes) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				s.ColumnTypes = append(s.ColumnTypes, part)
			}
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the values that no engine config validates on its own.
func (s *Settings) Validate() error {
	if !reporter.OutputFormat(s.OutputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", s.OutputFormat)
	}
	if s.ExpectedColumns < 0 {
		return fmt.Errorf("expected columns cannot be negative")
	}
	for _, t := range s.ColumnTypes {
		if t == "any" {
			continue
		}
		if ct := gridquality.ColumnType(t); ct == gridquality.ColumnAny || !ct.IsValid() {
			return fmt.Errorf("invalid column type '%s'. Valid types: any, string, number, date, currency", t)
		}
	}
	return nil
}

// CreateLoggerConfig creates the logger configuration. Verbose forces the
// debug level.
func CreateLoggerConfig(s *Settings) *logger.Config {
	config := logger.DefaultConfig()
	config.Level = logger.Level(s.LogLevel)
	config.Format = logger.Format(s.LogFormat)
	if s.Verbose {
		config.Level = logger.DebugLevel
	}
	return config
}

// CreateSourceConfig creates the file loader configuration.
func CreateSourceConfig(s *Settings) (*sources.Config, error) {
	config, err := sources.ConfigForDelimiter(s.Delimiter)
	if err != nil {
		return nil, err
	}
	config.Sheet = s.Sheet
	if len(s.ColumnAliases) > 0 {
		config.ColumnAliases = make(map[string]string, len(s.ColumnAliases))
		for alias, field := range s.ColumnAliases {
			config.ColumnAliases[strings.ToLower(strings.TrimSpace(alias))] = field
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}
	return config, nil
}

// CreateGridOptions creates the options of a standalone grid analysis.
func CreateGridOptions(s *Settings) (*gridquality.Options, error) {
	options := gridquality.DefaultOptions()
	options.Locale = s.Locale
	options.StrictMode = s.Strict
	options.AutoFix = s.AutoFix
	options.ExpectedColumns = s.ExpectedColumns
	for _, t := range s.ColumnTypes {
		if t == "any" {
			t = ""
		}
		options.ColumnTypes = append(options.ColumnTypes, gridquality.ColumnType(t))
	}
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid options: %w", err)
	}
	return options, nil
}

// CreateOrchestratorConfig creates the normalization pipeline configuration.
func CreateOrchestratorConfig(s *Settings) (*normalization.Config, error) {
	config := normalization.DefaultConfig()
	config.Locale = s.Locale
	config.StrictMode = s.Strict
	config.RunColumnEngine = s.ColumnEngine
	config.ApplyBalanceFixes = s.ApplyBalanceFixes
	config.MaxConcurrency = s.MaxConcurrency
	config.Oracle = CreateOracleConfig(s)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid normalization config: %w", err)
	}
	return config, nil
}

// CreateOracleConfig creates the AI oracle configuration.
func CreateOracleConfig(s *Settings) *oracle.Config {
	config := oracle.DefaultConfig()
	config.Enabled = s.Oracle
	config.Model = s.OracleModel
	if s.OracleTimeout > 0 {
		config.Timeout = s.OracleTimeout
	}
	return config
}

// CreateMetricsConfig creates the alert thresholds.
func CreateMetricsConfig(s *Settings) (*metrics.Config, error) {
	config := metrics.DefaultConfig()
	config.MinQualityScore = s.MinQuality
	config.MaxDuplicateRatio = s.MaxDuplicateRatio
	config.MaxFailedRatio = s.MaxFailedRatio
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the output format.
func CreateReportConfig(s *Settings) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(s.OutputFormat)
	config.IncludeTransactions = s.IncludeTransactions
	config.IncludeFixedGrid = s.FixedGrid

	switch config.Format {
	case reporter.FormatConsole:
		config.UseColors = s.Colors && s.OutputFile == ""
		config.IncludeTransitions = s.Verbose
	case reporter.FormatJSON:
		config.UseColors = false
		config.IncludeTransitions = true
	case reporter.FormatCSV:
		config.UseColors = false
		// CSV of a run is its transaction list.
		config.IncludeTransactions = true
	}

	return config
}

// IsSupportedLocale reports whether the normalizer knows the locale.
func IsSupportedLocale(locale string) bool {
	switch locale {
	case normalizer.LocaleRU, normalizer.LocaleKK, normalizer.LocaleEN:
		return true
	}
	return false
}
