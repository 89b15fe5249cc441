package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"statement-quality-service/cmd/stmtquality/config"
	"statement-quality-service/internal/columns"
	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalization"
	"statement-quality-service/internal/normalizer"
	"statement-quality-service/internal/reporter"
	"statement-quality-service/internal/sources"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithSuggestion(fmt.Sprintf("Check that the %s exists", description))
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeUnsupportedFile, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

// validateOutputFile checks the directory of the output file exists.
func validateOutputFile(outputFile string) error {
	if outputFile == "" {
		return nil
	}
	dir := filepath.Dir(outputFile)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, dir, fmt.Errorf("output directory does not exist: %s", dir))
	}
	return nil
}

// openOutput returns stdout or the created output file and its closer.
func openOutput(outputFile string) (io.Writer, func() error, error) {
	if outputFile == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, errors.FileError(errors.CodeFilePermission, outputFile, err).
			WithSuggestion("Check that the output directory is writable")
	}
	return f, f.Close, nil
}

// writeReport renders result (a run, a batch or a grid report) to the
// configured output.
func writeReport(s *config.Settings, result interface{}) error {
	generator, err := reporter.NewSafeReportGenerator(config.CreateReportConfig(s), logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(s.OutputFile)
	if err != nil {
		return err
	}
	if err := generator.GenerateReportSafely(result, out); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

// statementLoader builds pipeline input from statement files.
type statementLoader struct {
	loader  *sources.Loader
	columns *columns.Engine
	schema  columns.Schema
	rawJSON bool
	logger  logger.Logger
}

func newStatementLoader(s *config.Settings, rawJSON bool) (*statementLoader, error) {
	sourceConfig, err := config.CreateSourceConfig(s)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyDelimiter, s.Delimiter, err)
	}

	columnsConfig := columns.DefaultConfig()
	columnsConfig.Locale = s.Locale

	return &statementLoader{
		loader:  sources.NewLoader(sourceConfig),
		columns: columns.NewEngine(columnsConfig, normalizer.New()),
		schema:  columns.DefaultTransactionSchema(),
		rawJSON: rawJSON,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
	}, nil
}

// Load reads one statement. Typed JSON statements are used as they are;
// grids and raw JSON records go through the column consistency engine first
// so their headers and values line up with the transaction fields.
func (sl *statementLoader) Load(path string) (normalization.Statement, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") && !sl.rawJSON {
		file, err := sl.loader.LoadStatement(path)
		if err != nil {
			return normalization.Statement{}, err
		}
		return normalization.Statement{
			Transactions: file.Transactions,
			Metadata:     file.Metadata,
			SourceText:   file.SourceText,
		}, nil
	}

	var records []models.Record
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var err error
		if records, err = sl.loader.LoadRecords(path); err != nil {
			return normalization.Statement{}, err
		}
	} else {
		grid, err := sl.loader.LoadGrid(path)
		if err != nil {
			return normalization.Statement{}, err
		}
		if records, err = sl.loader.GridToRecords(grid); err != nil {
			return normalization.Statement{}, err
		}
	}

	fixed, err := sl.columns.ValidateAndFixColumns(records, sl.schema)
	if err != nil {
		return normalization.Statement{}, err
	}
	sl.logger.WithFields(logger.Fields{
		"file_path": path,
		"records":   len(fixed.Records),
		"issues":    len(fixed.Issues),
		"fixes":     len(fixed.Fixes),
	}).Info("Columns aligned")

	txs := make([]models.Transaction, len(fixed.Records))
	for i, rec := range fixed.Records {
		txs[i] = models.TransactionFromRecord(rec)
	}
	return normalization.Statement{Transactions: txs}, nil
}
