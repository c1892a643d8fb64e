// Package wssim provides a WebSocket ingest client that connects to a
// simulated perpetual-futures trade feed and streams ticks out as
// model.MarketTrade values.
//
// The expected JSON message format on the wire is identical to
// model.MarketTrade:
//
//	{"symbol":"BTC-PERPETUAL","price":64250.5,"qty":0.01,"ts":"..."}
//
// It implements model.ExchangeClient for trade streaming only (FetchCandles
// is unsupported); nothing under cmd/ or the paper runner wires it in, and
// it never touches the candle store directly.
package wssim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"perpquant/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the simulated WS ingest.
type Config struct {
	// URL of the trade WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a plain-JSON WebSocket trade server and pushes
// model.MarketTrade values into tradeCh.
type Ingest struct {
	cfg Config

	// Optional hook — called each time a reconnection happens.
	OnReconnect func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects to the simulated WebSocket and streams trades into tradeCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, tradeCh chan<- model.MarketTrade) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, tradeCh)
		if err == nil {
			return nil
		}

		log.Printf("[wssim] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// StreamTrades implements model.ExchangeClient for the simulated feed,
// ignoring symbol (the simulated server serves a single instrument per URL).
func (ing *Ingest) StreamTrades(ctx context.Context, symbol string, out chan<- model.MarketTrade) error {
	return ing.Start(ctx, out)
}

// FetchCandles is unsupported on the simulated trade feed: it serves a raw
// tick stream only, no historical OHLCV endpoint. Satisfies model.ExchangeClient
// so this adapter can stand in wherever only StreamTrades is actually called.
func (ing *Ingest) FetchCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]model.Candle, error) {
	return nil, fmt.Errorf("wssim: FetchCandles unsupported, this adapter only streams live trades")
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, tradeCh chan<- model.MarketTrade) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[wssim] connected to %s", ing.cfg.URL)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var trade model.MarketTrade
		if err := json.Unmarshal(raw, &trade); err != nil {
			log.Printf("[wssim] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if trade.Symbol == "" {
			log.Printf("[wssim] skipping trade with empty symbol")
			continue
		}

		select {
		case tradeCh <- trade:
		default:
			log.Println("[wssim] tradeCh full, dropping trade")
		}
	}
}
