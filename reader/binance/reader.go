package binance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	futures "github.com/adshao/go-binance/v2/futures"

	"histflow/config"
	ratemetrics "histflow/internal/metrics/rate"
	"histflow/internal/symbols"
	"histflow/logger"
	"histflow/models"
	"histflow/reader"
)

const Name = "binance"

// Reader fetches USDⓈ-M futures history from Binance.
type Reader struct {
	client *futures.Client
	pager  *reader.Pager
	limits config.LimitsConfig
	log    *logger.Log
}

var _ reader.Fetcher = (*Reader)(nil)

// NewReader creates a Reader on the go-binance futures client, pointed at
// source.binance.base_url.
func NewReader(cfg *config.Config) *Reader {
	log := logger.GetLogger()
	src := cfg.Source.Binance

	client := futures.NewClient("", "")
	client.HTTPClient = reader.NewHTTPClient(Name, src.ConnectionPool, cfg.Reader.Timeout)
	base := strings.TrimRight(src.BaseURL, "/")
	client.SetApiEndpoint(base)

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"base_url":           base,
		"max_idle_conns":     src.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": src.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Reader.Timeout.String(),
	}).Debug("binance reader initialized")

	return &Reader{
		client: client,
		pager:  reader.NewPager(Name, cfg.Reader),
		limits: src.Limits,
		log:    log,
	}
}

func (r *Reader) Name() string { return Name }

// SupportsInterval is true for every interval; Binance offers them all.
func (r *Reader) SupportsInterval(iv models.Interval) bool {
	_, err := models.ParseInterval(string(iv))
	return err == nil
}

// Symbols lists trading USDT perpetual contracts.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	info, err := reader.Call(ctx, r.pager, "exchange_info", func(ctx context.Context) (*futures.ExchangeInfo, error) {
		info, err := r.client.NewExchangeInfoService().Do(ctx)
		return info, classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("binance symbols: %w", err)
	}

	if limit := ratemetrics.RequestWeightLimit(info); limit > 0 {
		r.log.WithComponent("binance_reader").WithField("request_weight_limit", limit).Info("binance weight limit")
	}

	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if string(s.ContractType) != "PERPETUAL" || s.QuoteAsset != "USDT" || s.Status != "TRADING" {
			continue
		}
		out = append(out, symbols.Canonical(Name, s.Symbol))
	}
	sort.Strings(out)

	r.log.WithComponent("binance_reader").WithField("count", len(out)).Info("listed binance symbols")
	return out, nil
}

// classify marks request parameter rejections (codes -1100 to -1199, such as
// -1121 invalid symbol) as permanent. Everything else stays retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code <= -1100 && apiErr.Code > -1200 {
		return reader.Permanent(err)
	}
	return err
}
