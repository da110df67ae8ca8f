package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"histflow/internal/symbols"
	"histflow/models"
	"histflow/reader"
)

// FetchFundingRate walks /fapi/v1/fundingRate by the last returned
// fundingTime. Funding times are floored to the minute.
func (r *Reader) FetchFundingRate(ctx context.Context, symbol string, tr models.TimeRange) (*models.Table, error) {
	sym := symbols.ToExchange(Name, symbol)
	spec := reader.FundingSpec(symbol, tr, r.limits.FundingRate)
	return r.pager.Paginate(ctx, spec, func(ctx context.Context, w models.Window, limit int) (reader.Page, error) {
		rates, err := r.client.NewFundingRateService().
			Symbol(sym).
			StartTime(ms(w.Start)).
			EndTime(ms(w.End)).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return reader.Page{}, classify(err)
		}

		var page reader.Page
		for _, fr := range rates {
			if fr == nil {
				continue
			}
			rate, err := strconv.ParseFloat(fr.FundingRate, 64)
			if err != nil {
				return reader.Page{}, reader.Permanent(fmt.Errorf("binance funding rate at %d: %w", fr.FundingTime, err))
			}
			at := models.FloorMinute(fr.FundingTime)
			page.Rows = append(page.Rows, models.Row{Time: at, Values: []float64{rate, float64(at.UnixMilli())}})
			if raw := time.UnixMilli(fr.FundingTime).UTC(); raw.After(page.Cursor) {
				page.Cursor = raw
			}
		}
		return page, nil
	})
}
