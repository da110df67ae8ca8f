package models

import "fmt"

// FetchRequest is one unit of work: a single exchange, symbol, data type,
// interval and date range.
type FetchRequest struct {
	Exchange string
	Symbol   string
	DataType DataType
	Interval Interval
	Range    TimeRange
}

// Filename is the artifact name the request always maps to.
func (r FetchRequest) Filename() string {
	return fmt.Sprintf("%s_%s_%s_%s_%s_to_%s.csv",
		r.Exchange, r.Symbol, r.DataType, r.Interval, r.Range.StartDate(), r.Range.EndDate())
}

// FilePrefix is the part of Filename shared by every date range.
func (r FetchRequest) FilePrefix() string {
	return fmt.Sprintf("%s_%s_%s_%s_", r.Exchange, r.Symbol, r.DataType, r.Interval)
}

// Key labels the request in summaries.
func (r FetchRequest) Key() string {
	return r.Exchange + "/" + string(r.DataType)
}

// WithRange returns a copy of the request for a different date range.
func (r FetchRequest) WithRange(tr TimeRange) FetchRequest {
	r.Range = tr
	return r
}
