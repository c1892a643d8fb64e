// Package sqlite persists candles, timeframe state, optimizer runs, and
// paper-trade runs in a single SQLite file. It is grounded on the teacher's
// internal/store/sqlite writer: a single WAL-mode connection
// (SetMaxOpenConns(1)), batched-transaction INSERT OR REPLACE upserts, and
// plain database/sql reads — generalized from the teacher's NSE candle/
// indicator-snapshot schema to the §6 store schema table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"perpquant/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a single-connection SQLite store satisfying model.CandleStore,
// model.StateStore, model.OptimizerStore, and model.PaperStore.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB, used by the metrics package for
// connection-pool health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (creating if absent) a WAL-mode SQLite database at path and
// ensures the full schema exists.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ── CandleStore ──

func (s *Store) UpsertCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe_min, ts, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.TimeframeMin, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume, c.Source); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) LastCandleTS(ctx context.Context, symbol string, tfMin int) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND timeframe_min = ?`, symbol, tfMin,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

func (s *Store) ReadCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, source FROM candles
		WHERE symbol = ? AND timeframe_min = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, tfMin, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var ts int64
		c := model.Candle{Symbol: symbol, TimeframeMin: tfMin}
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Source); err != nil {
			return nil, err
		}
		c.TS = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// ── StateStore ──

func (s *Store) UpsertState(ctx context.Context, st model.TimeframeState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO timeframe_state
			(symbol, timeframe_min, ts, trend, atr, last_pivot_high, last_pivot_high_ts,
			 last_pivot_low, last_pivot_low_ts, last_bos, last_choch, pivot_length,
			 pivot_high_count, pivot_low_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, st.Symbol, st.TimeframeMin, st.TS.Unix(), string(st.Trend), st.ATR,
		nullFloat(st.LastPivotHigh.Price), nullUnix(st.LastPivotHigh.TS),
		nullFloat(st.LastPivotLow.Price), nullUnix(st.LastPivotLow.TS),
		string(st.LastBOS), string(st.LastCHoCH),
		st.PivotLength, st.PivotHighCnt, st.PivotLowCnt)
	return err
}

func (s *Store) LatestState(ctx context.Context, symbol string, tfMin int) (model.TimeframeState, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, trend, atr, last_pivot_high, last_pivot_high_ts, last_pivot_low, last_pivot_low_ts,
		       last_bos, last_choch, pivot_length, pivot_high_count, pivot_low_count
		FROM timeframe_state WHERE symbol = ? AND timeframe_min = ? ORDER BY ts DESC LIMIT 1
	`, symbol, tfMin)

	var ts, highTS, lowTS sql.NullInt64
	var high, low sql.NullFloat64
	var trend, bos, choch string
	st := model.TimeframeState{Symbol: symbol, TimeframeMin: tfMin}
	err := row.Scan(&ts, &trend, &st.ATR, &high, &highTS, &low, &lowTS, &bos, &choch,
		&st.PivotLength, &st.PivotHighCnt, &st.PivotLowCnt)
	if err == sql.ErrNoRows {
		return model.TimeframeState{}, false, nil
	}
	if err != nil {
		return model.TimeframeState{}, false, err
	}

	st.TS = time.Unix(ts.Int64, 0).UTC()
	st.Trend = model.Trend(trend)
	st.LastBOS = model.StructureEvent(bos)
	st.LastCHoCH = model.StructureEvent(choch)
	if high.Valid {
		st.LastPivotHigh = model.Pivot{Price: high.Float64, TS: time.Unix(highTS.Int64, 0).UTC()}
	}
	if low.Valid {
		st.LastPivotLow = model.Pivot{Price: low.Float64, TS: time.Unix(lowTS.Int64, 0).UTC()}
	}
	return st, true, nil
}

// ── OptimizerStore ──

func (s *Store) CreateOptimizerRun(ctx context.Context, run model.OptimizerRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO optimizer_runs (id, symbol, train_start_ts, train_end_ts, dd_limit_pct, total_configs, valid_configs)
		VALUES (?, ?, ?, ?, ?, 0, 0)
	`, run.ID, run.Symbol, run.TrainStartTS.Unix(), run.TrainEndTS.Unix(), run.DDLimitPct)
	return err
}

func (s *Store) PatchOptimizerRunCounts(ctx context.Context, runID string, total, valid int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE optimizer_runs SET total_configs = ?, valid_configs = ? WHERE id = ?`, total, valid, runID)
	return err
}

func (s *Store) SaveTopConfigs(ctx context.Context, configs []model.TopConfig) error {
	for _, c := range configs {
		cfgJSON, err := json.Marshal(c.Config)
		if err != nil {
			return err
		}
		metJSON, err := json.Marshal(c.Metrics)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO optimizer_run_top_configs (run_id, rank, score, config, metrics)
			VALUES (?, ?, ?, ?, ?)
		`, c.RunID, c.Rank, c.Score, string(cfgJSON), string(metJSON)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveAllConfigs(ctx context.Context, configs []model.AllConfig) error {
	for _, c := range configs {
		cfgJSON, err := json.Marshal(c.Config)
		if err != nil {
			return err
		}
		metJSON, err := json.Marshal(c.Metrics)
		if err != nil {
			return err
		}
		errored := 0
		if c.Errored {
			errored = 1
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO optimizer_run_configs (run_id, config, metrics, errored)
			VALUES (?, ?, ?, ?)
		`, c.RunID, string(cfgJSON), string(metJSON), errored); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveOOSResults(ctx context.Context, results []model.OOSResult) error {
	for _, r := range results {
		metJSON, err := json.Marshal(r.Metrics)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO optimizer_oos_results (run_id, rank, symbol, window_start, window_end, metrics)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.RunID, r.Rank, r.Symbol, r.WindowStart.Unix(), r.WindowEnd.Unix(), string(metJSON)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) LoadTopConfigs(ctx context.Context, runID string, n int) ([]model.TopConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, score, config, metrics FROM optimizer_run_top_configs
		WHERE run_id = ? ORDER BY rank ASC LIMIT ?
	`, runID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TopConfig
	for rows.Next() {
		var cfgJSON, metJSON string
		tc := model.TopConfig{RunID: runID}
		if err := rows.Scan(&tc.Rank, &tc.Score, &cfgJSON, &metJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cfgJSON), &tc.Config); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metJSON), &tc.Metrics); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func nullFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullUnix(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
