package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp_NumericSeconds(t *testing.T) {
	raw := json.RawMessage(`1704067200`)
	ts, err := parseTimestamp(raw)
	assert.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseTimestamp_NumericMilliseconds(t *testing.T) {
	raw := json.RawMessage(`1704067200000`)
	ts, err := parseTimestamp(raw)
	assert.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseTimestamp_ISO8601String(t *testing.T) {
	raw := json.RawMessage(`"2024-01-01T00:00:00Z"`)
	ts, err := parseTimestamp(raw)
	assert.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseTimestamp_UnparseableStringErrors(t *testing.T) {
	raw := json.RawMessage(`"not-a-timestamp"`)
	_, err := parseTimestamp(raw)
	assert.Error(t, err)
}

func TestParseTimestamp_UnrecognizedWireFormatErrors(t *testing.T) {
	raw := json.RawMessage(`null`)
	_, err := parseTimestamp(raw)
	assert.Error(t, err)
}

func TestParseCandleRow_MixesNumericAndISOAcrossRows(t *testing.T) {
	numericRow := []json.RawMessage{
		json.RawMessage(`1704067200`),
		json.RawMessage(`100.5`),
		json.RawMessage(`101`),
		json.RawMessage(`99.5`),
		json.RawMessage(`100.25`),
		json.RawMessage(`42`),
	}
	c, err := parseCandleRow("BTC-PERPETUAL", 1, numericRow)
	assert.NoError(t, err)
	assert.True(t, c.TS.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 100.5, c.Open)
	assert.Equal(t, "BTC-PERPETUAL", c.Symbol)
	assert.Equal(t, 1, c.TimeframeMin)

	isoRow := []json.RawMessage{
		json.RawMessage(`"2024-01-01T00:01:00Z"`),
		json.RawMessage(`100.5`),
		json.RawMessage(`101`),
		json.RawMessage(`99.5`),
		json.RawMessage(`100.25`),
		json.RawMessage(`42`),
	}
	c2, err := parseCandleRow("BTC-PERPETUAL", 1, isoRow)
	assert.NoError(t, err)
	assert.True(t, c2.TS.Equal(time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)))
}

func TestFetchCandles_ParsesISOTimestampsOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candles":[["2024-01-01T00:00:00Z",1,2,0,1.5,10],["2024-01-01T00:01:00Z",1,2,0,1.5,10]]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	candles, err := c.FetchCandles(context.Background(), "BTC-PERPETUAL", 1,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.True(t, candles[0].TS.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFetchCandles_DropsMalformedRowsWithoutFailingTheWholeBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candles":[["not-a-timestamp",1,2,0,1.5,10],[1704067200,1,2,0,1.5,10]]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	candles, err := c.FetchCandles(context.Background(), "BTC-PERPETUAL", 1,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Len(t, candles, 1)
}
