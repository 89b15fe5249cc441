package gridquality

import (
	"fmt"

	"statement-quality-service/internal/normalizer"
)

// ColumnType declares what a grid column is expected to hold.
type ColumnType string

const (
	ColumnAny      ColumnType = ""
	ColumnString   ColumnType = "string"
	ColumnNumber   ColumnType = "number"
	ColumnDate     ColumnType = "date"
	ColumnCurrency ColumnType = "currency"
)

// IsValid checks if the column type is known
func (c ColumnType) IsValid() bool {
	switch c {
	case ColumnAny, ColumnString, ColumnNumber, ColumnDate, ColumnCurrency:
		return true
	}
	return false
}

// Options configures a single analysis run.
type Options struct {
	// ExpectedColumns is the column count the caller expects; 0 disables
	// the missing-columns check.
	ExpectedColumns int          `json:"expected_columns,omitempty"`
	ColumnTypes     []ColumnType `json:"column_types,omitempty"`
	// StrictMode raises every issue one severity step and disables auto-fix.
	StrictMode bool   `json:"strict_mode"`
	AutoFix    bool   `json:"auto_fix"`
	Locale     string `json:"locale"`
}

// DefaultOptions returns options with auto-fix on and the Russian locale.
func DefaultOptions() *Options {
	return &Options{
		AutoFix: true,
		Locale:  normalizer.LocaleRU,
	}
}

// Validate validates the options
func (o *Options) Validate() error {
	if o.ExpectedColumns < 0 {
		return fmt.Errorf("expected columns cannot be negative: %d", o.ExpectedColumns)
	}
	for i, ct := range o.ColumnTypes {
		if !ct.IsValid() {
			return fmt.Errorf("invalid column type %q at index %d", ct, i)
		}
	}
	return nil
}

// fixesEnabled reports whether auto-fix may run for these options.
func (o *Options) fixesEnabled() bool {
	return o.AutoFix && !o.StrictMode
}
