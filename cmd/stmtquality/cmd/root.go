package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-quality-service/cmd/stmtquality/config"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

var (
	cfgFile   string
	configErr error
	settings  *config.Settings
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stmtquality",
	Short: "Bank statement quality and normalization tool",
	Long: `stmtquality checks and repairs bank statement exports. It scores raw
CSV/XLSX grids, realigns columns, removes duplicates and reconciles
transactions against the statement's control totals and balances.

Settings can come from flags, a config file (--config) or STMTQ_
environment variables, e.g. STMTQ_LOCALE=kk or STMTQ_OUTPUT_FORMAT=json.

Examples:
  stmtquality grid statement.csv --delimiter semicolon
  stmtquality normalize statement.json --output-format json
  stmtquality normalize export.xlsx --metadata header.json --text statement.pdf
  stmtquality normalize jan.json feb.json mar.json --metrics-db quality.db
  stmtquality history --metrics-db quality.db`,
	Version:           getVersionString(),
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	return NewCLIErrorHandler(os.Stderr).HandleError(err)
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.BoolP(config.KeyVerbose, "v", false, "verbose output")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	flags.String(config.KeyLogFormat, "text", "log format: text, json")

	// Input flags
	flags.StringP(config.KeyLocale, "l", "ru", "number and date locale: ru, kk, en")
	flags.Bool(config.KeyStrict, false, "strict mode: louder severities and no automatic grid fixes")
	flags.StringP(config.KeyDelimiter, "d", "comma", "CSV delimiter: comma, semicolon, tab")
	flags.String(config.KeySheet, "", "XLSX worksheet (default: first sheet)")

	// Output flags
	flags.StringP(config.KeyOutputFormat, "f", "console", "output format: console, json, csv")
	flags.StringP(config.KeyOutputFile, "o", "", "output file path (default: stdout)")
	flags.Bool(config.KeyColors, true, "colored console output")

	// Shared by normalize and history
	flags.String(config.KeyMetricsDB, "", "SQLite file for the quality history (default: in memory)")

	for _, key := range []string{
		config.KeyVerbose, config.KeyLogLevel, config.KeyLogFormat,
		config.KeyLocale, config.KeyStrict, config.KeyDelimiter, config.KeySheet,
		config.KeyOutputFormat, config.KeyOutputFile, config.KeyColors,
		config.KeyMetricsDB,
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configErr = errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("Check the config file path and its YAML/JSON/TOML syntax")
			return
		}

		if viper.GetBool(config.KeyVerbose) {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("STMTQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadSettings resolves flags, config file and environment into settings and
// installs the global logger.
func loadSettings(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return configErr
	}

	s, err := config.Load(viper.GetViper())
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "flags", nil, err).
			WithSuggestion("Use 'stmtquality " + cmd.Name() + " --help' to see all available options")
	}
	if !config.IsSupportedLocale(s.Locale) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyLocale, s.Locale,
			fmt.Errorf("unsupported locale %q", s.Locale)).
			WithSuggestion("Use one of: ru, kk, en")
	}

	log, err := logger.NewLogger(config.CreateLoggerConfig(s))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", s.LogLevel, err)
	}
	logger.SetGlobalLogger(log)

	settings = s
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
