// Package recipient parses recipient sources into validated (name, email)
// pairs for the send pipeline.
package recipient

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/mailrun/mailrun/internal/domain/model"
)

// Required column headers, matched case-insensitively.
const (
	ColumnFirstName = "FirstName"
	ColumnEmail     = "Email"
)

// SchemaError indicates the source is readable but its header row lacks a
// required column. The job fails before any send is attempted.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("recipient source missing required column(s): %s",
		strings.Join(e.Missing, ", "))
}

// SourceError indicates the source itself could not be read or parsed.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return "recipient source unreadable: " + e.Err.Error()
}

func (e *SourceError) Unwrap() error { return e.Err }

// CSVSource parses CSV recipient files. Safe for concurrent use.
type CSVSource struct {
	logger *slog.Logger
}

// NewCSVSource creates a CSV recipient source. Logger may be nil.
func NewCSVSource(logger *slog.Logger) *CSVSource {
	return &CSVSource{logger: logger}
}

// Parse reads the full source and returns the valid recipients in file
// order. Rows with an email lacking '@' are skipped, not errors; fields are
// whitespace-trimmed. A leading UTF-8 BOM is stripped so exports from
// spreadsheet tools parse cleanly.
func (s *CSVSource) Parse(r io.Reader) ([]model.Recipient, error) {
	reader := csv.NewReader(bomStrippingReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &SchemaError{Missing: []string{ColumnFirstName, ColumnEmail}}
		}
		return nil, &SourceError{Err: err}
	}

	nameIdx, emailIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case strings.ToLower(ColumnFirstName):
			if nameIdx == -1 {
				nameIdx = i
			}
		case strings.ToLower(ColumnEmail):
			if emailIdx == -1 {
				emailIdx = i
			}
		}
	}

	var missing []string
	if nameIdx == -1 {
		missing = append(missing, ColumnFirstName)
	}
	if emailIdx == -1 {
		missing = append(missing, ColumnEmail)
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	var recipients []model.Recipient
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &SourceError{Err: err}
		}
		if nameIdx >= len(record) || emailIdx >= len(record) {
			skipped++
			continue
		}

		email := strings.TrimSpace(record[emailIdx])
		if !strings.Contains(email, "@") {
			skipped++
			continue
		}
		recipients = append(recipients, model.Recipient{
			Email:     email,
			FirstName: strings.TrimSpace(record[nameIdx]),
		})
	}

	if s.logger != nil && skipped > 0 {
		s.logger.Debug("skipped invalid recipient rows",
			"skipped", skipped, "valid", len(recipients))
	}
	return recipients, nil
}

// bomStrippingReader wraps r so a leading UTF-8 BOM never reaches the CSV
// parser, where it would corrupt the first header name.
func bomStrippingReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}
