// Package importer turns uploaded spreadsheet data into RawTables. Column
// layouts are unknown ahead of time, so everything stays positional until
// the user maps columns to schema fields.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"routeline/internal/domain"
)

// Reader parses one tabular source into a RawTable.
type Reader interface {
	Read(r io.Reader) (domain.RawTable, error)
}

// CSVReader reads comma-separated data. Ragged rows are allowed; missing
// trailing cells read back as empty.
type CSVReader struct {
	Comma rune
}

func (c CSVReader) Read(r io.Reader) (domain.RawTable, error) {
	cr := csv.NewReader(r)
	if c.Comma != 0 {
		cr.Comma = c.Comma
	}
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return domain.RawTable{}, nil
	}

	// Files exported without a header row start straight with data. When
	// every first-row cell is a number or a coordinate pair, treat the
	// first row as data and synthesize positional column names.
	if headerless(records[0]) {
		header := make([]string, len(records[0]))
		for i := range header {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
		return domain.RawTable{Header: header, Rows: records}, nil
	}
	return domain.RawTable{Header: records[0], Rows: records[1:]}, nil
}

func headerless(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		if !numericOrCommaLike(cell) {
			return false
		}
	}
	return true
}

func numericOrCommaLike(cell string) bool {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return true
	}
	parts := strings.Split(cell, ",")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return false
		}
	}
	return true
}
