package sqlite

import "database/sql"

// createSchema creates every logical table from §6's store schema table if
// it does not already exist. Conflict keys are expressed as SQLite
// composite primary keys so INSERT OR REPLACE gives upsert-on-conflict
// semantics, the same idiom the teacher used for candles_1s/candles_tf.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol        TEXT    NOT NULL,
			timeframe_min INTEGER NOT NULL,
			ts            INTEGER NOT NULL,
			open          REAL    NOT NULL,
			high          REAL    NOT NULL,
			low           REAL    NOT NULL,
			close         REAL    NOT NULL,
			volume        REAL    NOT NULL,
			source        TEXT    NOT NULL,
			PRIMARY KEY (symbol, timeframe_min, ts)
		);

		CREATE TABLE IF NOT EXISTS timeframe_state (
			symbol          TEXT    NOT NULL,
			timeframe_min   INTEGER NOT NULL,
			ts              INTEGER NOT NULL,
			trend           TEXT    NOT NULL,
			atr             REAL    NOT NULL,
			last_pivot_high REAL,
			last_pivot_high_ts INTEGER,
			last_pivot_low  REAL,
			last_pivot_low_ts  INTEGER,
			last_bos        TEXT,
			last_choch      TEXT,
			pivot_length    INTEGER NOT NULL,
			pivot_high_count INTEGER NOT NULL,
			pivot_low_count  INTEGER NOT NULL,
			PRIMARY KEY (symbol, timeframe_min, ts)
		);

		CREATE TABLE IF NOT EXISTS optimizer_runs (
			id              TEXT PRIMARY KEY,
			symbol          TEXT    NOT NULL,
			train_start_ts  INTEGER NOT NULL,
			train_end_ts    INTEGER NOT NULL,
			dd_limit_pct    REAL    NOT NULL,
			total_configs   INTEGER NOT NULL DEFAULT 0,
			valid_configs   INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS optimizer_run_top_configs (
			run_id   TEXT    NOT NULL,
			rank     INTEGER NOT NULL,
			score    REAL    NOT NULL,
			config   TEXT    NOT NULL,
			metrics  TEXT    NOT NULL,
			PRIMARY KEY (run_id, rank)
		);

		CREATE TABLE IF NOT EXISTS optimizer_run_configs (
			run_id   TEXT NOT NULL,
			config   TEXT NOT NULL,
			metrics  TEXT NOT NULL,
			errored  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, config)
		);

		CREATE TABLE IF NOT EXISTS optimizer_oos_results (
			run_id       TEXT    NOT NULL,
			rank         INTEGER NOT NULL,
			symbol       TEXT    NOT NULL,
			window_start INTEGER NOT NULL,
			window_end   INTEGER NOT NULL,
			metrics      TEXT    NOT NULL,
			PRIMARY KEY (run_id, rank)
		);

		CREATE TABLE IF NOT EXISTS paper_runs (
			id             TEXT PRIMARY KEY,
			symbol         TEXT    NOT NULL,
			timeframe_min  INTEGER NOT NULL DEFAULT 1,
			status         TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS paper_configs (
			run_id       TEXT    NOT NULL,
			rank         INTEGER NOT NULL,
			config       TEXT    NOT NULL,
			is_active    INTEGER NOT NULL DEFAULT 1,
			kill_reason  TEXT,
			PRIMARY KEY (run_id, rank)
		);

		CREATE TABLE IF NOT EXISTS paper_accounts (
			run_id             TEXT    NOT NULL,
			paper_config_id    TEXT    NOT NULL,
			balance_start      REAL    NOT NULL,
			balance            REAL    NOT NULL,
			equity             REAL    NOT NULL,
			max_equity         REAL    NOT NULL,
			max_drawdown_pct   REAL    NOT NULL,
			open_positions     TEXT,
			trades_count       INTEGER NOT NULL DEFAULT 0,
			wins_count         INTEGER NOT NULL DEFAULT 0,
			losses_count       INTEGER NOT NULL DEFAULT 0,
			gross_wins         REAL    NOT NULL DEFAULT 0,
			gross_losses       REAL    NOT NULL DEFAULT 0,
			profit_factor      REAL    NOT NULL DEFAULT 0,
			last_candle_ts     INTEGER,
			PRIMARY KEY (run_id, paper_config_id)
		);

		CREATE TABLE IF NOT EXISTS paper_trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT    NOT NULL,
			config_id    TEXT    NOT NULL,
			opened_ts    INTEGER NOT NULL,
			side         TEXT    NOT NULL,
			entry        REAL    NOT NULL,
			size         REAL    NOT NULL,
			sl           REAL    NOT NULL,
			tp           REAL    NOT NULL,
			closed_ts    INTEGER,
			exit         REAL,
			pnl_pct      REAL,
			pnl_abs      REAL,
			fees_abs     REAL    NOT NULL DEFAULT 0,
			result       TEXT,
			exit_reason  TEXT,
			meta         TEXT,
			UNIQUE (run_id, config_id, opened_ts, side, entry)
		);

		CREATE TABLE IF NOT EXISTS paper_equity_snapshots (
			run_id     TEXT    NOT NULL,
			config_id  TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			equity     REAL    NOT NULL,
			balance    REAL    NOT NULL,
			dd_pct     REAL    NOT NULL,
			PRIMARY KEY (run_id, config_id, ts)
		);

		CREATE TABLE IF NOT EXISTS paper_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL,
			config_id  TEXT,
			kind       TEXT    NOT NULL,
			detail     TEXT,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}
