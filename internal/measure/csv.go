package measure

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// WriteCSV writes the table as plain tabular text with a leading "time"
// column.
func WriteCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time"}, t.Columns...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(t.Columns)+1)
	for r := 0; r < t.Rows(); r++ {
		row[0] = strconv.FormatInt(t.Times[r], 10)
		for c := range t.Columns {
			row[c+1] = strconv.FormatFloat(t.Values[c][r], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV reads a table previously written by WriteCSV.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, fmt.Errorf("%s: missing time header", path)
	}

	columns := records[0][1:]
	rows := records[1:]
	t := NewTable(make([]int64, len(rows)), columns)
	for r, rec := range rows {
		if len(rec) != len(columns)+1 {
			return nil, fmt.Errorf("%s: row %d has %d fields, want %d", path, r, len(rec), len(columns)+1)
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: bad time: %w", path, r, err)
		}
		t.Times[r] = ts
		for c := range columns {
			v, err := strconv.ParseFloat(rec[c+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: bad value: %w", path, r, err)
			}
			t.Values[c][r] = v
		}
	}
	return t, nil
}
