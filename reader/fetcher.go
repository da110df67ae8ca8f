// Package reader defines the contract every exchange client implements and
// the pagination, retry and pacing rules they share.
package reader

import (
	"context"
	"fmt"

	"histflow/models"
)

// Fetcher is one exchange's view of historical market data. Each fetch
// returns a table with strictly increasing timestamps inside tr.
type Fetcher interface {
	Name() string
	// Symbols lists tradable USDT perpetuals in canonical spelling.
	Symbols(ctx context.Context) ([]string, error)
	SupportsInterval(iv models.Interval) bool

	FetchPrice(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error)
	FetchPriceIndex(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error)
	FetchFundingRate(ctx context.Context, symbol string, tr models.TimeRange) (*models.Table, error)
	FetchPremiumIndex(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error)
}

// Fetch runs req against f.
func Fetch(ctx context.Context, f Fetcher, req models.FetchRequest) (*models.Table, error) {
	if req.DataType.UsesInterval() && !f.SupportsInterval(req.Interval) {
		return nil, fmt.Errorf("%w: %s does not offer interval %s", models.ErrInvalidInput, f.Name(), req.Interval)
	}
	switch req.DataType {
	case models.Price:
		return f.FetchPrice(ctx, req.Symbol, req.Range, req.Interval)
	case models.PriceIndex:
		return f.FetchPriceIndex(ctx, req.Symbol, req.Range, req.Interval)
	case models.FundingRate:
		return f.FetchFundingRate(ctx, req.Symbol, req.Range)
	case models.PremiumIndex:
		return f.FetchPremiumIndex(ctx, req.Symbol, req.Range, req.Interval)
	default:
		return nil, fmt.Errorf("%w: unknown data type %q", models.ErrInvalidInput, req.DataType)
	}
}
