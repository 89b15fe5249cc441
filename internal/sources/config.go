package sources

import (
	"fmt"
	"strings"
)

// Config holds configuration for reading statement files
type Config struct {
	Delimiter        rune `json:"delimiter"`
	Comment          rune `json:"comment"`
	HasHeader        bool `json:"has_header"`
	TrimLeadingSpace bool `json:"trim_leading_space"`
	SkipEmptyRows    bool `json:"skip_empty_rows"`
	MaxFieldSize     int  `json:"max_field_size"`
	ValidateEncoding bool `json:"validate_encoding"`
	// Sheet selects the worksheet of an XLSX file; empty means the first.
	Sheet string `json:"sheet,omitempty"`
	// ColumnAliases maps a lower-cased header to a transaction field name.
	ColumnAliases map[string]string `json:"column_aliases,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Delimiter:        ',',
		HasHeader:        true,
		TrimLeadingSpace: true,
		SkipEmptyRows:    false,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
		ColumnAliases:    make(map[string]string),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.Comment != 0 && c.Comment == c.Delimiter {
		return fmt.Errorf("comment character cannot equal the delimiter")
	}
	if c.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative")
	}
	for header, field := range c.ColumnAliases {
		if strings.TrimSpace(header) == "" || strings.TrimSpace(field) == "" {
			return fmt.Errorf("column aliases cannot be empty")
		}
	}
	return nil
}

// Predefined configurations for common statement exports
var (
	// SemicolonConfig reads the semicolon separated exports of 1C and most
	// Kazakh online banks.
	SemicolonConfig = &Config{
		Delimiter:        ';',
		HasHeader:        true,
		TrimLeadingSpace: true,
		MaxFieldSize:     1000000,
		ValidateEncoding: true,
	}

	// TabConfig reads tab separated exports.
	TabConfig = &Config{
		Delimiter:        '\t',
		HasHeader:        true,
		TrimLeadingSpace: true,
		MaxFieldSize:     1000000,
		ValidateEncoding: true,
	}
)

// ConfigForDelimiter returns the predefined configuration for a delimiter
// name ("comma", "semicolon" or "tab").
func ConfigForDelimiter(name string) (*Config, error) {
	if name == "\t" || name == "\\t" {
		name = "tab"
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "comma", ",":
		return DefaultConfig(), nil
	case "semicolon", ";":
		c := *SemicolonConfig
		return &c, nil
	case "tab":
		c := *TabConfig
		return &c, nil
	default:
		return nil, fmt.Errorf("unsupported delimiter %q", name)
	}
}
