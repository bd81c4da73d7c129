package ui

import (
	"encoding/json"
	"os"
	"strings"
	"text/tabwriter"
)

// Table represents a simple text table
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Print prints the table to stdout
func (t *Table) Print() {
	if len(t.rows) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	w.Write([]byte(strings.Join(t.headers, "\t") + "\n"))
	for _, row := range t.rows {
		w.Write([]byte(strings.Join(row, "\t") + "\n"))
	}
}

// PrintJSON prints data as JSON
func PrintJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
