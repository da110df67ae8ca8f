package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"histflow/internal/symbols"
	"histflow/models"
	"histflow/reader"
)

type fundingItem struct {
	Symbol               string `json:"symbol"`
	FundingRate          string `json:"fundingRate"`
	FundingRateTimestamp string `json:"fundingRateTimestamp"`
}

type fundingResult struct {
	List []fundingItem `json:"list"`
}

// FetchFundingRate walks /v5/market/funding/history. Bybit returns the
// newest events first; the pager sorts them.
func (r *Reader) FetchFundingRate(ctx context.Context, symbol string, tr models.TimeRange) (*models.Table, error) {
	sym := symbols.ToExchange(Name, symbol)
	spec := reader.FundingSpec(symbol, tr, r.limits.FundingRate)
	return r.pager.Paginate(ctx, spec, func(ctx context.Context, w models.Window, limit int) (reader.Page, error) {
		params := map[string]interface{}{
			"category":  r.category,
			"symbol":    sym,
			"startTime": ms(w.Start),
			"endTime":   ms(w.End),
			"limit":     strconv.Itoa(limit),
		}
		resp, err := r.client.NewUtaBybitServiceWithParams(params).GetFundingRateHistory(ctx)
		if err != nil {
			return reader.Page{}, err
		}
		var res fundingResult
		if err := decode(resp, &res); err != nil {
			return reader.Page{}, err
		}

		var page reader.Page
		for _, it := range res.List {
			ts, err := strconv.ParseInt(it.FundingRateTimestamp, 10, 64)
			if err != nil {
				return reader.Page{}, reader.Permanent(fmt.Errorf("bybit: funding timestamp %q: %w", it.FundingRateTimestamp, err))
			}
			rate, err := strconv.ParseFloat(it.FundingRate, 64)
			if err != nil {
				return reader.Page{}, reader.Permanent(fmt.Errorf("bybit: funding rate %q: %w", it.FundingRate, err))
			}
			at := models.FloorMinute(ts)
			page.Rows = append(page.Rows, models.Row{Time: at, Values: []float64{rate, float64(at.UnixMilli())}})
			if raw := time.UnixMilli(ts).UTC(); raw.After(page.Cursor) {
				page.Cursor = raw
			}
		}
		return page, nil
	})
}
