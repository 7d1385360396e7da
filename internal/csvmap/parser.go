// parser.go — CSV loading with RFC-4180 quoting.
// First line is the header row; rows may be ragged (missing cells read as
// empty during substitution).
package csvmap

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is a parsed CSV document.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Parse reads UTF-8 CSV text. Double quotes wrap fields; "" inside a quoted
// field is a literal quote. No trailing-newline requirement.
func Parse(data string) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1 // rows may be ragged

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse csv: %w", io.ErrUnexpectedEOF)
	}

	table := &Table{Headers: records[0]}
	for _, record := range records[1:] {
		if len(record) > len(table.Headers) {
			return nil, fmt.Errorf("csv row has %d cells, header has %d columns", len(record), len(table.Headers))
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}
