// Package rest implements model.ExchangeClient against a JSON HTTP candle
// endpoint, grounded on the teacher's pkg/smartconnect client: a shared
// http.Client with an explicit Timeout, a route template, and a doRequest
// helper that decodes a JSON envelope and maps non-2xx statuses to errors.
// It also implements StreamTrades by polling the same endpoint's ticker
// route, since this adapter targets a REST-only exchange (no WS feed).
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"perpquant/internal/model"
)

// Config configures the REST exchange adapter.
type Config struct {
	// BaseURL of the exchange's REST API, e.g. "https://api.exchange.test".
	BaseURL string

	// Timeout per HTTP request. Defaults to 10s.
	Timeout time.Duration

	// PollInterval used by StreamTrades between ticker polls. Defaults to 2s.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
}

// Client is a thin REST adapter satisfying model.ExchangeClient.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client against cfg.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type candleResponse struct {
	Candles [][]json.RawMessage `json:"candles"` // [ts, open, high, low, close, volume]
}

// FetchCandles retrieves closed candles for (symbol, tfMin) in [start, end].
// The exchange is expected to return already-closed candles only; the
// ingest engine still floors and validates every candle it receives.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("resolution", strconv.Itoa(tfMin))
	q.Set("from", strconv.FormatInt(start.Unix(), 10))
	q.Set("to", strconv.FormatInt(end.Unix(), 10))

	var resp candleResponse
	if err := c.doRequest(ctx, "/v1/candles", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}

	out := make([]model.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		if len(row) < 6 {
			continue
		}
		cndl, err := parseCandleRow(symbol, tfMin, row)
		if err != nil {
			continue
		}
		out = append(out, cndl)
	}
	return out, nil
}

func parseCandleRow(symbol string, tfMin int, row []json.RawMessage) (model.Candle, error) {
	ts, err := parseTimestamp(row[0])
	if err != nil {
		return model.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	open, err := parseFloat(row[1])
	if err != nil {
		return model.Candle{}, err
	}
	high, err := parseFloat(row[2])
	if err != nil {
		return model.Candle{}, err
	}
	low, err := parseFloat(row[3])
	if err != nil {
		return model.Candle{}, err
	}
	closePx, err := parseFloat(row[4])
	if err != nil {
		return model.Candle{}, err
	}
	vol, err := parseFloat(row[5])
	if err != nil {
		return model.Candle{}, err
	}
	return model.Candle{
		Symbol:       symbol,
		TimeframeMin: tfMin,
		TS:           ts,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        closePx,
		Volume:       vol,
		Source:       "rest",
	}, nil
}

func parseFloat(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// parseTimestamp accepts the three wire formats spec.md §4.D allows: an
// RFC3339 string, or a bare number that is either seconds or milliseconds
// since epoch (disambiguated by normalizeTS's magnitude check).
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return normalizeTS(i), nil
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparseable ISO timestamp %q: %w", s, err)
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp wire format: %s", string(raw))
}

// normalizeTS detects whether a raw numeric timestamp is in seconds or
// milliseconds, per the ingest engine's "magnitude < 10^11" rule.
func normalizeTS(raw int64) time.Time {
	if raw < 100_000_000_000 {
		return time.Unix(raw, 0).UTC()
	}
	return time.UnixMilli(raw).UTC()
}

type tickerResponse struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
	TS    int64   `json:"ts"`
}

// StreamTrades polls the ticker endpoint at cfg.PollInterval and emits one
// synthetic MarketTrade per poll. Blocks until ctx is cancelled.
func (c *Client) StreamTrades(ctx context.Context, symbol string, out chan<- model.MarketTrade) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var resp tickerResponse
			q := url.Values{}
			q.Set("symbol", symbol)
			if err := c.doRequest(ctx, "/v1/ticker", q, &resp); err != nil {
				continue
			}
			trade := model.MarketTrade{
				Symbol: symbol,
				Price:  resp.Price,
				Qty:    resp.Qty,
				TS:     normalizeTS(resp.TS),
			}
			select {
			case out <- trade:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values, dst interface{}) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("exchange returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
