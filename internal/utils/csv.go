package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WriteCSV writes header and rows to path.
func WriteCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Sync()
}

// Table is a csv file read into memory with its columns indexed by name.
type Table struct {
	path    string
	columns map[string]int
	Header  []string
	Rows    [][]string
}

// ReadCSV reads a csv file with a header row. Every required column must
// be present.
func ReadCSV(path string, required ...string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	t := &Table{path: path, columns: make(map[string]int), Rows: records[1:]}
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		t.columns[name] = i
		t.Header = append(t.Header, name)
	}
	for _, name := range required {
		if _, ok := t.columns[name]; !ok {
			return nil, fmt.Errorf("%s has no column %q", path, name)
		}
	}
	return t, nil
}

// Str returns the trimmed cell of column, empty when absent.
func (t *Table) Str(row []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Float parses the cell of column, 0 when empty.
func (t *Table) Float(row []string, column string) (float64, error) {
	raw := t.Str(row, column)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: column %s: %w", t.path, column, err)
	}
	return v, nil
}

func (t *Table) Int(row []string, column string) (int64, error) {
	v, err := t.Float(row, column)
	return int64(v), err
}

