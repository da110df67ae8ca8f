package models

import (
	"fmt"
	"strings"
)

// DataType selects the exchange endpoint and the column schema of a result.
type DataType string

const (
	Price        DataType = "price"
	PriceIndex   DataType = "price_index"
	FundingRate  DataType = "funding_rate"
	PremiumIndex DataType = "premium_index"
)

var columns = map[DataType][]string{
	Price:        {"open", "high", "low", "close", "volume"},
	PriceIndex:   {"price"},
	FundingRate:  {"funding_rate", "funding_time"},
	PremiumIndex: {"premium_index"},
}

// AllDataTypes returns every data type in canonical order.
func AllDataTypes() []DataType {
	return []DataType{Price, PriceIndex, FundingRate, PremiumIndex}
}

// ParseDataType accepts the lowercase names used in file names and flags.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := columns[dt]; !ok {
		return "", fmt.Errorf("%w: unknown data type %q", ErrInvalidInput, s)
	}
	return dt, nil
}

// Columns lists the value columns, excluding the leading timestamp.
func (d DataType) Columns() []string {
	return columns[d]
}

// UsesInterval reports whether the data type is sampled at the requested
// interval. Funding events follow the exchange's own cadence.
func (d DataType) UsesInterval() bool {
	return d != FundingRate
}

func (d DataType) String() string { return string(d) }
