package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"histflow/config"
	"histflow/internal/symbols"
	"histflow/logger"
	"histflow/models"
	"histflow/reader"
)

const Name = "bybit"

// intervals maps canonical intervals to Bybit's v5 kline codes. 8h and 3d
// have no Bybit equivalent.
var intervals = map[models.Interval]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

// retCodes that mean the parameters are wrong and a retry cannot help.
var permanentCodes = map[int]bool{
	10001: true, // params error
	10029: true, // symbol not allowed
}

// Reader fetches linear perpetual history from the Bybit v5 API.
type Reader struct {
	client   *bybit.Client
	httpc    *http.Client
	base     string
	pager    *reader.Pager
	category string
	limits   config.LimitsConfig
	log      *logger.Log
}

var _ reader.Fetcher = (*Reader)(nil)

func NewReader(cfg *config.Config) *Reader {
	log := logger.GetLogger()
	src := cfg.Source.Bybit

	base := strings.TrimRight(src.BaseURL, "/")
	httpClient := reader.NewHTTPClient(Name, src.ConnectionPool, cfg.Reader.Timeout)
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	client.HTTPClient = httpClient

	category := src.Category
	if category == "" {
		category = "linear"
	}

	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"base_url":           base,
		"category":           category,
		"max_idle_conns":     src.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": src.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Reader.Timeout.String(),
	}).Debug("bybit reader initialized")

	return &Reader{
		client:   client,
		httpc:    httpClient,
		base:     base,
		pager:    reader.NewPager(Name, cfg.Reader),
		category: category,
		limits:   src.Limits,
		log:      log,
	}
}

func (r *Reader) Name() string { return Name }

func (r *Reader) SupportsInterval(iv models.Interval) bool {
	_, ok := intervals[iv]
	return ok
}

type instrument struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
	QuoteCoin    string `json:"quoteCoin"`
}

type instrumentsResult struct {
	List           []instrument `json:"list"`
	NextPageCursor string       `json:"nextPageCursor"`
}

// Symbols lists trading USDT linear perpetuals, following nextPageCursor
// until the listing is exhausted.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	cursor := ""
	for page := 0; ; page++ {
		params := map[string]interface{}{"category": r.category, "limit": "1000"}
		if cursor != "" {
			params["cursor"] = cursor
		}
		res, err := reader.Call(ctx, r.pager, "instruments_info", func(ctx context.Context) (instrumentsResult, error) {
			var res instrumentsResult
			resp, err := r.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
			if err != nil {
				return res, err
			}
			return res, decode(resp, &res)
		})
		if err != nil {
			return nil, fmt.Errorf("bybit symbols: %w", err)
		}

		for _, in := range res.List {
			if in.Status != "Trading" || in.QuoteCoin != "USDT" || in.ContractType != "LinearPerpetual" {
				continue
			}
			out = append(out, symbols.Canonical(Name, in.Symbol))
		}
		if res.NextPageCursor == "" || res.NextPageCursor == cursor || len(res.List) == 0 {
			break
		}
		cursor = res.NextPageCursor
	}
	sort.Strings(out)

	r.log.WithComponent("bybit_reader").WithField("count", len(out)).Info("listed bybit symbols")
	return out, nil
}

// apiError is a response with a non-zero retCode.
type apiError struct {
	Code int
	Msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("bybit: retCode=%d retMsg=%s", e.Code, e.Msg)
}

// decode checks retCode and unpacks resp.Result into v.
func decode(resp *bybit.ServerResponse, v interface{}) error {
	if resp == nil {
		return fmt.Errorf("bybit: empty response")
	}
	if resp.RetCode != 0 {
		err := &apiError{Code: resp.RetCode, Msg: resp.RetMsg}
		if permanentCodes[resp.RetCode] {
			return reader.Permanent(err)
		}
		return err
	}
	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return reader.Permanent(fmt.Errorf("bybit: marshal result: %w", err))
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return reader.Permanent(fmt.Errorf("bybit: decode result: %w", err))
	}
	return nil
}

// getPublic sends an unsigned GET to a v5 market endpoint and returns the
// envelope in the SDK's shape, ready for decode.
func (r *Reader) getPublic(ctx context.Context, path string, params map[string]interface{}) (*bybit.ServerResponse, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, reader.Permanent(fmt.Errorf("bybit: build request: %w", err))
	}
	res, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("bybit: GET %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body)))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusForbidden {
			return nil, reader.Permanent(err)
		}
		return nil, err
	}
	var resp bybit.ServerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode %s: %w", path, err)
	}
	return &resp, nil
}

func ms(t time.Time) string { return fmt.Sprintf("%d", t.UnixMilli()) }
