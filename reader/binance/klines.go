package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"histflow/internal/symbols"
	"histflow/models"
	"histflow/reader"
)

func ms(t time.Time) int64 { return t.UnixMilli() }

func (r *Reader) FetchPrice(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error) {
	sym := symbols.ToExchange(Name, symbol)
	spec := reader.CandleSpec(symbol, models.Price, tr, iv, r.limits.Price)
	return r.pager.Paginate(ctx, spec, func(ctx context.Context, w models.Window, limit int) (reader.Page, error) {
		ks, err := r.client.NewKlinesService().
			Symbol(sym).
			Interval(string(iv)).
			StartTime(ms(w.Start)).
			EndTime(ms(w.End)).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return reader.Page{}, classify(err)
		}
		return klinePage(ks, true)
	})
}

// FetchPriceIndex reads the index price klines; for USDT perpetuals the
// pair equals the symbol.
func (r *Reader) FetchPriceIndex(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error) {
	pair := symbols.ToExchange(Name, symbol)
	spec := reader.CandleSpec(symbol, models.PriceIndex, tr, iv, r.limits.PriceIndex)
	return r.pager.Paginate(ctx, spec, func(ctx context.Context, w models.Window, limit int) (reader.Page, error) {
		ks, err := r.client.NewIndexPriceKlinesService().
			Pair(pair).
			Interval(string(iv)).
			StartTime(ms(w.Start)).
			EndTime(ms(w.End)).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return reader.Page{}, classify(err)
		}
		return klinePage(ks, false)
	})
}

func (r *Reader) FetchPremiumIndex(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error) {
	sym := symbols.ToExchange(Name, symbol)
	spec := reader.CandleSpec(symbol, models.PremiumIndex, tr, iv, r.limits.PremiumIndex)
	return r.pager.Paginate(ctx, spec, func(ctx context.Context, w models.Window, limit int) (reader.Page, error) {
		ks, err := r.client.NewPremiumIndexKlinesService().
			Symbol(sym).
			Interval(string(iv)).
			StartTime(ms(w.Start)).
			EndTime(ms(w.End)).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return reader.Page{}, classify(err)
		}
		return klinePage(ks, false)
	})
}

// klinePage maps klines to rows. Full candles keep OHLCV; index and premium
// series keep only the close.
func klinePage(ks []*futures.Kline, ohlcv bool) (reader.Page, error) {
	var page reader.Page
	for _, k := range ks {
		if k == nil {
			continue
		}
		var (
			vals []float64
			err  error
		)
		if ohlcv {
			vals, err = parseFloats(k.Open, k.High, k.Low, k.Close, k.Volume)
		} else {
			vals, err = parseFloats(k.Close)
		}
		if err != nil {
			return reader.Page{}, reader.Permanent(fmt.Errorf("binance kline at %d: %w", k.OpenTime, err))
		}
		page.Rows = append(page.Rows, models.Row{Time: time.UnixMilli(k.OpenTime).UTC(), Values: vals})
	}
	return page, nil
}

func parseFloats(ss ...string) ([]float64, error) {
	out := make([]float64, len(ss))
	for i, s := range ss {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
