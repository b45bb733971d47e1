package service

import "fmt"

// Tally accumulates the outcome of one reconciliation run.
// MissingRows never exceeds TotalRows. Malformed rows are only counted when the
// checker skips them, and are not part of TotalRows.
type Tally struct {
	TotalRows     int `json:"total_rows"`
	MissingRows   int `json:"missing_rows"`
	DuplicateRows int `json:"duplicate_rows"`
	MalformedRows int `json:"malformed_rows"`
}

// OK reports whether every processed row was found in the store.
func (t Tally) OK() bool {
	return t.MissingRows == 0
}

// MissingPercentage returns the share of missing rows, 0 when nothing was processed.
func (t Tally) MissingPercentage() float64 {
	if t.TotalRows == 0 {
		return 0
	}
	return float64(t.MissingRows) * 100 / float64(t.TotalRows)
}

// Report renders the one line summary for fileName.
func (t Tally) Report(fileName string) string {
	switch {
	case t.MissingRows == 0:
		return fmt.Sprintf("All data in CSV file %s is in the database.", fileName)
	case t.MissingRows == t.TotalRows:
		return "All rows from CSV file are not in the database!"
	default:
		return fmt.Sprintf("%d rows (%.1f%%) out of %d from CSV file %s are not in the database!",
			t.MissingRows,
			t.MissingPercentage(),
			t.TotalRows,
			fileName,
		)
	}
}
