// Package ingest turns uploaded annotation logs into rows and checks them
// structurally before aggregation.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
)

// ReadCSV reads a header-first CSV document. Headers and values are
// trimmed, blank lines are skipped and short rows are padded with empty
// values.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to read CSV input")
	}

	text, err := decodeText(data)
	if err != nil {
		return nil, apperrors.NewValidationError("Unable to decode CSV text", err.Error())
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, parseError(err)
	}

	t := &Table{Headers: make([]string, 0, len(header))}
	for _, h := range header {
		t.Headers = append(t.Headers, strings.TrimSpace(h))
	}

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError(err)
		}
		if blank(fields) {
			continue
		}

		rec := make(Record, len(t.Headers))
		for i, h := range t.Headers {
			if h == "" {
				continue
			}
			if _, dup := rec[h]; dup {
				continue
			}
			value := ""
			if i < len(fields) {
				value = strings.TrimSpace(fields[i])
			}
			rec[h] = value
		}
		t.Records = append(t.Records, rec)
	}

	return t, nil
}

// decodeText converts the input to UTF-8. A byte order mark selects UTF-8
// or UTF-16; without one, input that is not valid UTF-8 is read as
// Windows-1252, the usual spreadsheet export encoding.
func decodeText(data []byte) ([]byte, error) {
	var fallback transform.Transformer = unicode.UTF8.NewDecoder()
	if !utf8.Valid(data) {
		fallback = charmap.Windows1252.NewDecoder()
	}

	text, _, err := transform.Bytes(unicode.BOMOverride(fallback), data)
	if err != nil {
		return nil, err
	}
	return text, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return apperrors.NewValidationError("Malformed CSV",
			fmt.Sprintf("Row %d: %v", pe.Line, pe.Err))
	}
	return apperrors.NewValidationError("Malformed CSV", err.Error())
}
