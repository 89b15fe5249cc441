package sources

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"statement-quality-service/pkg/errors"
)

// LoadText returns the raw text of a statement. PDFs are read page by page,
// rebuilding lines from text rows; any other file is read as UTF-8 text.
func (l *Loader) LoadText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		pages, err := ExtractPDFText(path)
		if err != nil {
			l.logger.WithError(err).WithField("file_path", path).Warn("PDF text extraction failed")
			return "", err
		}
		return strings.Join(pages, "\n\n"), nil
	}

	data, err := readFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.ParseError(errors.CodeEncodingError, path, 0, "encoding", "",
			fmt.Errorf("invalid UTF-8 encoding detected")).
			WithSuggestion("Save the file in UTF-8 encoding and try again")
	}
	return string(data), nil
}

// ExtractPDFText returns the text of each page. The PDF library panics on
// some malformed files; that is reported as an error.
func ExtractPDFText(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("PDF library crashed: %v", r))
		}
	}()

	f, r, openErr := pdf.Open(path)
	if openErr != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, openErr)
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("PDF has no pages"))
	}

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, rowErr := page.GetTextByRow()
		if rowErr != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}

	if len(pages) == 0 {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("no text found; the PDF may be scanned"))
	}
	return pages, nil
}
