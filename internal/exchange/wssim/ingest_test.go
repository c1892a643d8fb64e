package wssim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"perpquant/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestIngest_StreamsTradesFromWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		msg := `{"symbol":"BTC-PERPETUAL","price":64250.5,"qty":0.01,"ts":"2024-01-01T00:00:00Z"}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ing, err := New(Config{URL: wsURL})
	require.NoError(t, err)

	out := make(chan model.MarketTrade, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go ing.StreamTrades(ctx, "BTC-PERPETUAL", out)

	select {
	case trade := <-out:
		require.Equal(t, "BTC-PERPETUAL", trade.Symbol)
		require.Equal(t, 64250.5, trade.Price)
	case <-ctx.Done():
		t.Fatal("timed out waiting for trade")
	}
}

func TestIngest_FetchCandlesUnsupported(t *testing.T) {
	ing, err := New(Config{URL: "ws://localhost:9999/ws"})
	require.NoError(t, err)
	_, err = ing.FetchCandles(context.Background(), "BTC-PERPETUAL", 1, time.Now(), time.Now())
	require.Error(t, err)
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New(Config{URL: "://not-a-url"})
	require.Error(t, err)
}
