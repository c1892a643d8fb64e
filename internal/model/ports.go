package model

import (
	"context"
	"time"
)

// ── Storage port interfaces ──
// These decouple the ingest/state/backtest/optimizer/paper packages from
// concrete storage implementations (SQLite, Redis). Each store satisfies
// the subset it is responsible for, mirroring the teacher's CandleWriter/
// CandleReader/SnapshotStore split in internal/model/ports.go.

// CandleStore persists and reads candles, the ingest engine's sole write
// target.
type CandleStore interface {
	UpsertCandles(ctx context.Context, candles []Candle) error
	LastCandleTS(ctx context.Context, symbol string, tfMin int) (time.Time, bool, error)
	ReadCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]Candle, error)
}

// StateStore persists and reads timeframe state, the state builder's sole
// write target.
type StateStore interface {
	UpsertState(ctx context.Context, s TimeframeState) error
	LatestState(ctx context.Context, symbol string, tfMin int) (TimeframeState, bool, error)
}

// OptimizerStore persists optimizer run records and their children.
type OptimizerStore interface {
	CreateOptimizerRun(ctx context.Context, run OptimizerRun) error
	PatchOptimizerRunCounts(ctx context.Context, runID string, total, valid int) error
	SaveTopConfigs(ctx context.Context, configs []TopConfig) error
	SaveAllConfigs(ctx context.Context, configs []AllConfig) error
	SaveOOSResults(ctx context.Context, results []OOSResult) error
	LoadTopConfigs(ctx context.Context, runID string, n int) ([]TopConfig, error)
}

// PaperStore persists paper-run state: runs, configs, accounts, trades,
// equity snapshots, and append-only events.
type PaperStore interface {
	LoadOrCreatePaperRun(ctx context.Context, id, symbol string) (PaperRun, bool, error)
	SavePaperConfigs(ctx context.Context, configs []PaperConfig) error
	LoadPaperConfigs(ctx context.Context, runID string) ([]PaperConfig, error)
	LoadOrInitAccount(ctx context.Context, runID, configID string, startBalance float64) (PaperAccount, error)
	SaveAccountCheckpoint(ctx context.Context, acct PaperAccount) error
	DeactivateConfig(ctx context.Context, runID, configID, reason string) error
	InsertTrade(ctx context.Context, t Trade) (Trade, error) // idempotent: returns existing row on conflict
	UpdateTradeClose(ctx context.Context, t Trade) error
	InsertEquitySnapshot(ctx context.Context, snap EquitySnapshot) error
	PatchRunStatus(ctx context.Context, runID string, status PaperRunStatus) error
	AppendEvent(ctx context.Context, runID, configID, kind, detail string) error
}

// ExchangeClient is the thin external collaborator that returns candle
// batches and a live trade-tick stream for one symbol.
type ExchangeClient interface {
	FetchCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]Candle, error)
	StreamTrades(ctx context.Context, symbol string, out chan<- MarketTrade) error
}

// Notifier delivers alerts to an external sink (webhook, etc.).
type Notifier interface {
	Notify(ctx context.Context, level, title, message string) error
}
