package models

import "time"

// Row is one timestamped record. Values follow DataType.Columns order; for
// funding_rate the funding_time column holds Unix milliseconds.
type Row struct {
	Time   time.Time
	Values []float64
}

// Table is the normalized result of one fetch request.
type Table struct {
	DataType DataType
	Rows     []Row
}

func NewTable(dt DataType) *Table {
	return &Table{DataType: dt}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) Append(rows ...Row) {
	t.Rows = append(t.Rows, rows...)
}

// First and Last return the zero time for an empty table.
func (t *Table) First() time.Time {
	if t.Len() == 0 {
		return time.Time{}
	}
	return t.Rows[0].Time
}

func (t *Table) Last() time.Time {
	if t.Len() == 0 {
		return time.Time{}
	}
	return t.Rows[len(t.Rows)-1].Time
}

// FloorMinute truncates a millisecond timestamp to the start of its minute.
func FloorMinute(ms int64) time.Time {
	return time.UnixMilli(ms).UTC().Truncate(time.Minute)
}
