package errors

import (
	"errors"
	"testing"
)

func TestPipelineError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "oracle error",
			category:   CategoryOracle,
			code:       CodeOracleTimeout,
			message:    "oracle timed out",
			cause:      errors.New("deadline exceeded"),
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *PipelineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestPipelineErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/statement.xlsx").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/statement.xlsx" {
		t.Errorf("expected file context, got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/file.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/test/file.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeMissingField, "transactions", nil, nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Context["field"] != "transactions" {
			t.Errorf("expected field context, got %v", err.Context["field"])
		}
	})

	t.Run("OracleError", func(t *testing.T) {
		err := OracleError(CodeOracleResponse, "gemini-2.5-flash", errors.New("bad json"))

		if err.Category != CategoryOracle {
			t.Errorf("expected oracle category, got %s", err.Category)
		}
		if err.Context["model"] != "gemini-2.5-flash" {
			t.Errorf("expected model context, got %v", err.Context["model"])
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		err := InternalError(CodeUnexpectedError, "statement normalization", errors.New("boom"))

		if err.GetExitCode() != 5 {
			t.Errorf("expected exit code 5, got %d", err.GetExitCode())
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*PipelineError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryFile, CodeFilePermission, "error 2"),
		New(CategoryParse, CodeInvalidFormat, "error 3"),
		New(CategoryConfiguration, CodeInvalidConfig, "error 4"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 4 {
		t.Errorf("expected total 4, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryFile] != 2 {
		t.Errorf("expected 2 file errors, got %d", summary.ByCategory[CategoryFile])
	}
	if !summary.HasCode(CodeInvalidConfig) {
		t.Error("expected invalid config code")
	}
	if summary.HasCategory(CategoryOracle) {
		t.Error("expected not to have oracle category")
	}
	if summary.GetExitCode() != 4 {
		t.Errorf("expected highest exit code 4, got %d", summary.GetExitCode())
	}
	if len(summary.SampleErrors) != 4 {
		t.Errorf("expected 4 sample errors, got %d", len(summary.SampleErrors))
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestAsPipelineError(t *testing.T) {
	pipelineErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if !IsPipelineError(pipelineErr) {
		t.Error("expected IsPipelineError to return true")
	}
	if IsPipelineError(genericErr) {
		t.Error("expected IsPipelineError to return false for generic error")
	}
	if extracted, ok := AsPipelineError(pipelineErr); !ok || extracted != pipelineErr {
		t.Error("expected AsPipelineError to extract PipelineError")
	}
	if _, ok := AsPipelineError(nil); ok {
		t.Error("expected AsPipelineError to return false for nil")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	pipelineErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if WrapIfNeeded(pipelineErr, CategoryParse, CodeInvalidFormat, "wrapped") != pipelineErr {
		t.Error("expected WrapIfNeeded to return original PipelineError")
	}

	wrapped := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if wrapped.Cause != genericErr || wrapped.Category != CategoryParse {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}
