package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"perpquant/internal/model"
)

// ── PaperStore ──

func (s *Store) LoadOrCreatePaperRun(ctx context.Context, id, symbol string) (model.PaperRun, bool, error) {
	run, found, err := s.loadPaperRun(ctx, id)
	if err != nil {
		return model.PaperRun{}, false, err
	}
	if found {
		return run, true, nil
	}
	run = model.PaperRun{ID: id, Symbol: symbol, TimeframeMin: 1, Status: model.PaperRunRunning}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paper_runs (id, symbol, timeframe_min, status) VALUES (?, ?, ?, ?)
	`, run.ID, run.Symbol, run.TimeframeMin, string(run.Status))
	return run, false, err
}

func (s *Store) loadPaperRun(ctx context.Context, id string) (model.PaperRun, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, symbol, timeframe_min, status FROM paper_runs WHERE id = ?`, id)
	run := model.PaperRun{}
	var status string
	err := row.Scan(&run.ID, &run.Symbol, &run.TimeframeMin, &status)
	if err == sql.ErrNoRows {
		return model.PaperRun{}, false, nil
	}
	if err != nil {
		return model.PaperRun{}, false, err
	}
	run.Status = model.PaperRunStatus(status)
	return run, true, nil
}

func (s *Store) SavePaperConfigs(ctx context.Context, configs []model.PaperConfig) error {
	for _, c := range configs {
		cfgJSON, err := json.Marshal(c.Config)
		if err != nil {
			return err
		}
		active := 1
		if !c.IsActive {
			active = 0
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO paper_configs (run_id, rank, config, is_active, kill_reason)
			VALUES (?, ?, ?, ?, ?)
		`, c.RunID, c.Rank, string(cfgJSON), active, c.KillReason); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) LoadPaperConfigs(ctx context.Context, runID string) ([]model.PaperConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, config, is_active, kill_reason FROM paper_configs WHERE run_id = ? ORDER BY rank ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PaperConfig
	for rows.Next() {
		var cfgJSON string
		var active int
		var killReason sql.NullString
		pc := model.PaperConfig{RunID: runID}
		if err := rows.Scan(&pc.Rank, &cfgJSON, &active, &killReason); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cfgJSON), &pc.Config); err != nil {
			return nil, err
		}
		pc.IsActive = active != 0
		pc.KillReason = killReason.String
		pc.ID = paperConfigID(runID, pc.Rank)
		out = append(out, pc)
	}
	return out, rows.Err()
}

// paperConfigID derives the stable paper_config_id used as the foreign key
// into paper_accounts/paper_trades from (run_id, rank), since
// PaperConfig has no independently generated id column.
func paperConfigID(runID string, rank int) string {
	return runID + "#" + model.Itoa(rank)
}

func (s *Store) LoadOrInitAccount(ctx context.Context, runID, configID string, startBalance float64) (model.PaperAccount, error) {
	acct, found, err := s.loadAccount(ctx, runID, configID)
	if err != nil {
		return model.PaperAccount{}, err
	}
	if found {
		return acct, nil
	}
	acct = model.PaperAccount{
		RunID: runID, ConfigID: configID,
		BalanceStart: startBalance, Balance: startBalance,
		Equity: startBalance, MaxEquity: startBalance,
	}
	err = s.SaveAccountCheckpoint(ctx, acct)
	return acct, err
}

func (s *Store) loadAccount(ctx context.Context, runID, configID string) (model.PaperAccount, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT balance_start, balance, equity, max_equity, max_drawdown_pct, open_positions,
		       trades_count, wins_count, losses_count, gross_wins, gross_losses, profit_factor, last_candle_ts
		FROM paper_accounts WHERE run_id = ? AND paper_config_id = ?
	`, runID, configID)

	acct := model.PaperAccount{RunID: runID, ConfigID: configID}
	var openJSON sql.NullString
	var lastTS sql.NullInt64
	err := row.Scan(&acct.BalanceStart, &acct.Balance, &acct.Equity, &acct.MaxEquity, &acct.MaxDrawdownPct,
		&openJSON, &acct.TradesCount, &acct.WinsCount, &acct.LossesCount, &acct.GrossWins, &acct.GrossLosses,
		&acct.ProfitFactor, &lastTS)
	if err == sql.ErrNoRows {
		return model.PaperAccount{}, false, nil
	}
	if err != nil {
		return model.PaperAccount{}, false, err
	}
	if openJSON.Valid && openJSON.String != "" {
		if err := json.Unmarshal([]byte(openJSON.String), &acct.OpenPositions); err != nil {
			return model.PaperAccount{}, false, err
		}
	}
	if lastTS.Valid {
		t := time.Unix(lastTS.Int64, 0).UTC()
		acct.LastCandleTS = &t
	}
	return acct, true, nil
}

func (s *Store) SaveAccountCheckpoint(ctx context.Context, acct model.PaperAccount) error {
	openJSON, err := json.Marshal(acct.OpenPositions)
	if err != nil {
		return err
	}
	var lastTS interface{}
	if acct.LastCandleTS != nil {
		lastTS = acct.LastCandleTS.Unix()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO paper_accounts
			(run_id, paper_config_id, balance_start, balance, equity, max_equity, max_drawdown_pct,
			 open_positions, trades_count, wins_count, losses_count, gross_wins, gross_losses,
			 profit_factor, last_candle_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, acct.RunID, acct.ConfigID, acct.BalanceStart, acct.Balance, acct.Equity, acct.MaxEquity, acct.MaxDrawdownPct,
		string(openJSON), acct.TradesCount, acct.WinsCount, acct.LossesCount, acct.GrossWins, acct.GrossLosses,
		acct.ProfitFactor, lastTS)
	return err
}

func (s *Store) DeactivateConfig(ctx context.Context, runID, configID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE paper_configs SET is_active = 0, kill_reason = ?
		WHERE run_id = ? AND (run_id || '#' || rank) = ?
	`, reason, runID, configID)
	return err
}

func (s *Store) InsertTrade(ctx context.Context, t model.Trade) (model.Trade, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO paper_trades (run_id, config_id, opened_ts, side, entry, size, sl, tp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.RunID, t.ConfigID, t.OpenedAt.Unix(), string(t.Side), t.Entry, t.Size, t.SL, t.TP)
	if err != nil {
		return model.Trade{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Trade{}, err
	}
	var id int64
	if n > 0 {
		if id, err = res.LastInsertId(); err != nil {
			return model.Trade{}, err
		}
	} else {
		// Conflict: the row already existed — return the existing row for idempotency.
		row := s.db.QueryRowContext(ctx, `
			SELECT id FROM paper_trades WHERE run_id = ? AND config_id = ? AND opened_ts = ? AND side = ? AND entry = ?
		`, t.RunID, t.ConfigID, t.OpenedAt.Unix(), string(t.Side), t.Entry)
		if err := row.Scan(&id); err != nil {
			return model.Trade{}, err
		}
	}
	t.ID = id
	return t, nil
}

func (s *Store) UpdateTradeClose(ctx context.Context, t model.Trade) error {
	var closedTS interface{}
	if t.ClosedAt != nil {
		closedTS = t.ClosedAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE paper_trades SET closed_ts = ?, exit = ?, pnl_pct = ?, pnl_abs = ?, fees_abs = ?, result = ?, exit_reason = ?, meta = ?
		WHERE id = ?
	`, closedTS, t.Exit, t.PnLPct, t.PnLAbs, t.FeesAbs, string(t.Result), t.ExitReason, t.Meta, t.ID)
	return err
}

func (s *Store) InsertEquitySnapshot(ctx context.Context, snap model.EquitySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO paper_equity_snapshots (run_id, config_id, ts, equity, balance, dd_pct)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.RunID, snap.ConfigID, snap.TS.Unix(), snap.Equity, snap.Balance, snap.DDPct)
	return err
}

func (s *Store) PatchRunStatus(ctx context.Context, runID string, status model.PaperRunStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE paper_runs SET status = ? WHERE id = ?`, string(status), runID)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, runID, configID, kind, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_events (run_id, config_id, kind, detail) VALUES (?, ?, ?, ?)
	`, runID, configID, kind, detail)
	return err
}
