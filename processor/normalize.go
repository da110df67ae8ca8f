package processor

import (
	"sort"

	"histflow/models"
)

// Normalize returns a copy of t sorted by time, with one row per timestamp
// and only rows inside tr. For duplicate timestamps the row seen last wins.
func Normalize(t *models.Table, tr models.TimeRange) *models.Table {
	out := models.NewTable(t.DataType)
	if t.Len() == 0 {
		return out
	}

	rows := make([]models.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if tr.Contains(r.Time) {
			rows = append(rows, r)
		}
	}

	// stable keeps arrival order among equal timestamps
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })

	for i := 0; i < len(rows); i++ {
		if n := len(out.Rows); n > 0 && out.Rows[n-1].Time.Equal(rows[i].Time) {
			out.Rows[n-1] = rows[i]
			continue
		}
		out.Rows = append(out.Rows, rows[i])
	}
	return out
}

// Merge combines two tables of the same data type and normalizes them to tr.
// Rows from b replace rows from a on equal timestamps.
func Merge(a, b *models.Table, tr models.TimeRange) *models.Table {
	dt := a.DataType
	if dt == "" {
		dt = b.DataType
	}
	all := models.NewTable(dt)
	all.Append(a.Rows...)
	all.Append(b.Rows...)
	return Normalize(all, tr)
}

// Validate reports the first index whose timestamp does not strictly follow
// its predecessor, or -1 when the table is ordered.
func Validate(t *models.Table) int {
	for i := 1; i < t.Len(); i++ {
		if !t.Rows[i].Time.After(t.Rows[i-1].Time) {
			return i
		}
	}
	return -1
}
