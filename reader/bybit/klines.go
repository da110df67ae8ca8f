package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"histflow/internal/symbols"
	"histflow/models"
	"histflow/reader"
)

// klineResult is the shared shape of the kline endpoints. Rows arrive
// newest first as string arrays: [start, open, high, low, close, ...].
type klineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}

type klineCall func(ctx context.Context, params map[string]interface{}) (*bybit.ServerResponse, error)

const (
	indexPriceKlinePath   = "/v5/market/index-price-kline"
	premiumIndexKlinePath = "/v5/market/premium-index-price-kline"
)

func (r *Reader) FetchPrice(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error) {
	return r.klines(ctx, symbol, models.Price, tr, iv, r.limits.Price, func(ctx context.Context, params map[string]interface{}) (*bybit.ServerResponse, error) {
		return r.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	})
}

// The SDK's GetIndexPriceKline and GetPremiumIndexPriceKline both hit
// mark-price-kline, so these two go out through getPublic.
func (r *Reader) FetchPriceIndex(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error) {
	return r.klines(ctx, symbol, models.PriceIndex, tr, iv, r.limits.PriceIndex, func(ctx context.Context, params map[string]interface{}) (*bybit.ServerResponse, error) {
		return r.getPublic(ctx, indexPriceKlinePath, params)
	})
}

func (r *Reader) FetchPremiumIndex(ctx context.Context, symbol string, tr models.TimeRange, iv models.Interval) (*models.Table, error) {
	return r.klines(ctx, symbol, models.PremiumIndex, tr, iv, r.limits.PremiumIndex, func(ctx context.Context, params map[string]interface{}) (*bybit.ServerResponse, error) {
		return r.getPublic(ctx, premiumIndexKlinePath, params)
	})
}

func (r *Reader) klines(ctx context.Context, symbol string, dt models.DataType, tr models.TimeRange, iv models.Interval, limit int, call klineCall) (*models.Table, error) {
	code, ok := intervals[iv]
	if !ok {
		return nil, fmt.Errorf("%w: bybit does not offer interval %s", models.ErrInvalidInput, iv)
	}
	sym := symbols.ToExchange(Name, symbol)
	ohlcv := dt == models.Price

	spec := reader.CandleSpec(symbol, dt, tr, iv, limit)
	return r.pager.Paginate(ctx, spec, func(ctx context.Context, w models.Window, limit int) (reader.Page, error) {
		params := map[string]interface{}{
			"category": r.category,
			"symbol":   sym,
			"interval": code,
			"start":    ms(w.Start),
			"end":      ms(w.End),
			"limit":    strconv.Itoa(limit),
		}
		resp, err := call(ctx, params)
		if err != nil {
			return reader.Page{}, err
		}
		var res klineResult
		if err := decode(resp, &res); err != nil {
			return reader.Page{}, err
		}
		return klinePage(res.List, ohlcv)
	})
}

func klinePage(list [][]string, ohlcv bool) (reader.Page, error) {
	var page reader.Page
	want := 5
	for _, item := range list {
		if len(item) < want {
			return reader.Page{}, reader.Permanent(fmt.Errorf("bybit: kline row has %d fields", len(item)))
		}
		start, err := strconv.ParseInt(item[0], 10, 64)
		if err != nil {
			return reader.Page{}, reader.Permanent(fmt.Errorf("bybit: kline start %q: %w", item[0], err))
		}
		var fields []string
		if ohlcv {
			if len(item) < 6 {
				return reader.Page{}, reader.Permanent(fmt.Errorf("bybit: kline row has %d fields", len(item)))
			}
			fields = item[1:6]
		} else {
			fields = item[4:5]
		}
		vals := make([]float64, len(fields))
		for i, s := range fields {
			if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
				return reader.Page{}, reader.Permanent(fmt.Errorf("bybit: kline value %q: %w", s, err))
			}
		}
		page.Rows = append(page.Rows, models.Row{Time: time.UnixMilli(start).UTC(), Values: vals})
	}
	return page, nil
}
