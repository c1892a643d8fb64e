// Package runner drives the paper-trade worker: it resumes or creates a
// PaperRun, seeds one PaperAccount per ranked config, and polls forever,
// advancing each account independently over newly closed candles with
// safe-lag semantics, periodic checkpoints, and kill rules. It is grounded
// on the teacher's gateway poll loop shape (cooperative tick, stop flag
// checked at iteration boundaries) generalized from order-routing to
// multi-account simulation.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"perpquant/internal/metrics"
	"perpquant/internal/model"
	pengine "perpquant/internal/paper/engine"
	"perpquant/internal/state"
	"perpquant/internal/strategy"
	"perpquant/internal/store/redis"
	"perpquant/internal/tf"

	"github.com/google/uuid"
)

var requiredTFs = []int{1, 5, 15, 60}
var safeLagTFs = []int{1, 5, 15}

const (
	baseTFMin        = 1
	lookback         = 24 * time.Hour
	checkpointEvery  = 100
	snapshotEvery    = 10
	leaderboardEvery = time.Minute
)

// Options configures one paper-trade runner instance.
type Options struct {
	Symbol              string
	RunID               string // resume existing run if set
	OptimizerRunID      string // required when RunID is empty, to seed configs
	TopN                int
	BalanceStart        float64
	PollInterval        time.Duration
	SafeLagMin          int
	MinTradesBeforeKill int
	KillMaxDDPct        float64
	KillMinPF           float64
	KillMinPnLPct       float64
}

// Runner owns one paper-trade worker's lifecycle.
type Runner struct {
	log         *slog.Logger
	candles     model.CandleStore
	optimizer   model.OptimizerStore
	paper       model.PaperStore
	notifier    model.Notifier
	leaderboard *redis.Cache     // optional, nil-safe
	mtx         *metrics.Metrics // optional, nil-safe

	opts Options

	runID          string
	configs        []model.PaperConfig
	accounts       map[string]*model.PaperAccount // keyed by config ID
	startupCapped  bool
	lastBoardAt    time.Time
}

// New builds a Runner. leaderboard and mtx may both be nil to disable the
// pub/sub fanout and Prometheus instrumentation respectively.
func New(log *slog.Logger, candles model.CandleStore, optimizer model.OptimizerStore, paper model.PaperStore, notifier model.Notifier, leaderboard *redis.Cache, mtx *metrics.Metrics, opts Options) *Runner {
	return &Runner{
		log: log, candles: candles, optimizer: optimizer, paper: paper,
		notifier: notifier, leaderboard: leaderboard, mtx: mtx, opts: opts,
		accounts: make(map[string]*model.PaperAccount),
	}
}

// Init resumes or creates the PaperRun, seeds configs and accounts.
func (r *Runner) Init(ctx context.Context) error {
	id := r.opts.RunID
	if id == "" {
		id = uuid.NewString()
	}

	run, found, err := r.paper.LoadOrCreatePaperRun(ctx, id, r.opts.Symbol)
	if err != nil {
		return fmt.Errorf("load or create paper run: %w", err)
	}
	r.runID = run.ID

	if !found {
		if r.opts.OptimizerRunID == "" {
			return fmt.Errorf("runner: new paper run requires an optimizer run id to seed configs")
		}
		top, err := r.optimizer.LoadTopConfigs(ctx, r.opts.OptimizerRunID, r.opts.TopN)
		if err != nil {
			return fmt.Errorf("load top configs: %w", err)
		}
		configs := make([]model.PaperConfig, 0, len(top))
		for _, tc := range top {
			configs = append(configs, model.PaperConfig{
				RunID: r.runID, Rank: tc.Rank, Config: tc.Config, IsActive: true,
			})
		}
		if err := r.paper.SavePaperConfigs(ctx, configs); err != nil {
			return fmt.Errorf("save paper configs: %w", err)
		}
		r.configs = configs
	} else {
		r.configs, err = r.paper.LoadPaperConfigs(ctx, r.runID)
		if err != nil {
			return fmt.Errorf("load paper configs: %w", err)
		}
	}

	for i := range r.configs {
		cfg := &r.configs[i]
		if cfg.ID == "" {
			cfg.ID = paperConfigID(r.runID, cfg.Rank)
		}
		acct, err := r.paper.LoadOrInitAccount(ctx, r.runID, cfg.ID, r.opts.BalanceStart)
		if err != nil {
			return fmt.Errorf("load or init account %s: %w", cfg.ID, err)
		}
		a := acct
		r.accounts[cfg.ID] = &a
	}

	r.log.Info("paper runner initialized", "run_id", r.runID, "configs", len(r.configs), "resumed", found)
	return nil
}

func paperConfigID(runID string, rank int) string {
	return runID + "#" + model.Itoa(rank)
}

// Run polls until ctx is cancelled, then patches the run status to stopped
// and returns.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("paper runner stopping", "run_id", r.runID)
			if err := r.paper.PatchRunStatus(context.Background(), r.runID, model.PaperRunStopped); err != nil {
				r.log.Error("failed to patch run status on shutdown", "err", err)
			}
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.mtx != nil {
		r.mtx.PaperTicksTotal.Inc()
	}
	safeEnd, err := r.computeSafeEnd(ctx)
	if err != nil {
		r.log.Error("compute safe end failed", "err", err)
		return
	}

	if !r.startupCapped {
		r.capStartupLag(ctx, safeEnd)
		r.startupCapped = true
	}

	for i := range r.configs {
		cfg := &r.configs[i]
		if !cfg.IsActive {
			continue
		}
		if err := r.processAccount(ctx, cfg, safeEnd); err != nil {
			r.log.Error("process account failed", "config_id", cfg.ID, "err", err)
		}
	}

	if time.Since(r.lastBoardAt) >= leaderboardEvery {
		r.logLeaderboard(ctx)
		r.lastBoardAt = time.Now()
	}
}

// computeSafeEnd returns the min over required timeframes of
// maxTs[tf] - SAFE_LAG_MIN*tf minutes, the last boundary guaranteed closed
// on every timeframe the evaluator reads.
func (r *Runner) computeSafeEnd(ctx context.Context) (time.Time, error) {
	var safeEnd time.Time
	for _, tfMin := range safeLagTFs {
		maxTS, found, err := r.candles.LastCandleTS(ctx, r.opts.Symbol, tfMin)
		if err != nil {
			return time.Time{}, fmt.Errorf("last candle ts tf=%d: %w", tfMin, err)
		}
		if !found {
			return time.Time{}, fmt.Errorf("no candles stored yet for tf=%d", tfMin)
		}
		end := tf.AddMinutes(maxTS, -r.opts.SafeLagMin*tfMin)
		if safeEnd.IsZero() || end.Before(safeEnd) {
			safeEnd = end
		}
	}
	return safeEnd, nil
}

// capStartupLag caps any account whose lastCandleTs already runs past
// safeEnd (e.g. resumed after a long safe-lag config change) and writes a
// corrective checkpoint, once, at startup only.
func (r *Runner) capStartupLag(ctx context.Context, safeEnd time.Time) {
	capped := tf.AddMinutes(safeEnd, -baseTFMin)
	for _, cfg := range r.configs {
		acct := r.accounts[cfg.ID]
		if acct.LastCandleTS != nil && acct.LastCandleTS.After(safeEnd) {
			acct.LastCandleTS = &capped
			if err := r.paper.SaveAccountCheckpoint(ctx, *acct); err != nil {
				r.log.Error("corrective checkpoint failed", "config_id", cfg.ID, "err", err)
			}
		}
	}
}

func (r *Runner) processAccount(ctx context.Context, cfg *model.PaperConfig, safeEnd time.Time) error {
	acct := r.accounts[cfg.ID]

	start := tf.AddMinutes(safeEnd, -24*60)
	if acct.LastCandleTS != nil {
		start = tf.AddMinutes(*acct.LastCandleTS, baseTFMin)
	}
	if !start.Before(safeEnd) {
		return nil
	}

	candles, err := r.candles.ReadCandles(ctx, r.opts.Symbol, baseTFMin, start, safeEnd)
	if err != nil {
		return fmt.Errorf("read candles: %w", err)
	}
	if len(candles) == 0 {
		return nil
	}

	processed := 0
	for _, candle := range candles {
		cache, err := r.buildStateCache(ctx, candle.TS)
		if err != nil {
			return fmt.Errorf("build state cache at %s: %w", candle.TS, err)
		}
		if err := r.stepAccount(ctx, cfg, acct, candle, cache); err != nil {
			return fmt.Errorf("step account at %s: %w", candle.TS, err)
		}
		processed++

		if processed%checkpointEvery == 0 {
			if err := r.saveCheckpoint(ctx, *acct); err != nil {
				r.log.Error("checkpoint failed", "config_id", cfg.ID, "err", err)
			}
		}
		if processed%snapshotEvery == 0 {
			r.saveSnapshot(ctx, cfg.ID, *acct, candle.TS)
		}
	}

	if processed > 0 {
		if err := r.saveCheckpoint(ctx, *acct); err != nil {
			r.log.Error("final checkpoint failed", "config_id", cfg.ID, "err", err)
		}
	}

	if acct.TradesCount >= r.opts.MinTradesBeforeKill {
		r.applyKillRules(ctx, cfg, acct)
	}
	return nil
}

// saveCheckpoint wraps PaperStore.SaveAccountCheckpoint with optional
// duration instrumentation.
func (r *Runner) saveCheckpoint(ctx context.Context, acct model.PaperAccount) error {
	if r.mtx == nil {
		return r.paper.SaveAccountCheckpoint(ctx, acct)
	}
	started := time.Now()
	err := r.paper.SaveAccountCheckpoint(ctx, acct)
	r.mtx.PaperCheckpointDur.Observe(time.Since(started).Seconds())
	return err
}

func (r *Runner) saveSnapshot(ctx context.Context, configID string, acct model.PaperAccount, ts time.Time) {
	snap := model.EquitySnapshot{
		RunID: r.runID, ConfigID: configID, TS: ts,
		Equity: acct.Equity, Balance: acct.Balance, DDPct: acct.MaxDrawdownPct,
	}
	if err := r.paper.InsertEquitySnapshot(ctx, snap); err != nil {
		r.log.Error("equity snapshot failed", "config_id", configID, "err", err)
	}
}

// buildStateCache recomputes the timeframe-state snapshot for every
// required timeframe from candles with ts <= at, the same pure-recompute
// approach the backtest engine uses.
func (r *Runner) buildStateCache(ctx context.Context, at time.Time) (strategy.StateCache, error) {
	cache := make(strategy.StateCache, len(requiredTFs))
	for _, tfMin := range requiredTFs {
		cs, err := r.candles.ReadCandles(ctx, r.opts.Symbol, tfMin, at.Add(-lookback), at)
		if err != nil {
			return nil, fmt.Errorf("read candles tf=%d: %w", tfMin, err)
		}
		started := time.Now()
		st, ok := state.Build(r.opts.Symbol, tfMin, cs)
		if r.mtx != nil {
			r.mtx.StateBuildDur.Observe(time.Since(started).Seconds())
			r.mtx.StateRecomputeTotal.WithLabelValues(model.Itoa(tfMin)).Inc()
		}
		if ok {
			cache[tfMin] = st
		}
	}
	return cache, nil
}

// stepAccount runs the paper-account step for one candle: close any open
// side that's been hit, mark to market, then evaluate a new entry.
func (r *Runner) stepAccount(ctx context.Context, cfg *model.PaperConfig, acct *model.PaperAccount, candle model.Candle, cache strategy.StateCache) error {
	for _, side := range []model.Side{model.SideLong, model.SideShort} {
		pos := acct.OpenPositions.Get(side)
		if pos == nil {
			continue
		}
		pengine.UpdateExcursion(pos, candle)
		exitPx, reason, hit := pengine.CheckExit(*pos, candle)
		if !hit {
			continue
		}
		if err := r.closePosition(ctx, cfg.ID, acct, pos, exitPx, string(reason), candle.TS, cfg.Config); err != nil {
			return err
		}
		acct.OpenPositions.Clear(side)
	}

	acct.Equity = pengine.MarkToMarket(acct.Balance, acct.OpenPositions, candle.Close)
	acct.MaxEquity, acct.MaxDrawdownPct = pengine.UpdateEquityAndDD(acct.Equity, acct.MaxEquity)
	if r.mtx != nil {
		r.mtx.PaperEquity.WithLabelValues(cfg.ID).Set(acct.Equity)
		r.mtx.PaperDrawdownPct.WithLabelValues(cfg.ID).Set(acct.MaxDrawdownPct)
	}

	if sig := strategy.Evaluate(cache, candle, cfg.Config); sig != nil {
		if acct.OpenPositions.Get(sig.Side) != nil {
			r.log.Debug("signal ignored, side already open", "config_id", cfg.ID, "side", sig.Side)
		} else if err := r.openPosition(ctx, cfg.ID, acct, sig, candle, cfg.Config); err != nil {
			return err
		}
	}

	lastTS := candle.TS
	acct.LastCandleTS = &lastTS
	return nil
}

func (r *Runner) openPosition(ctx context.Context, configID string, acct *model.PaperAccount, sig *strategy.Signal, candle model.Candle, cfg model.StrategyConfig) error {
	pos := pengine.OpenPosition(sig.Side, sig.Entry, sig.SL, sig.TP, acct.Equity, cfg.MinRiskPct, cfg, candle.TS, "")

	trade := model.Trade{
		RunID: r.runID, ConfigID: configID, OpenedAt: candle.TS, Side: sig.Side,
		Entry: pos.Entry, Size: pos.Size, SL: pos.StopLoss, TP: pos.TakeProfit, FeesAbs: pos.FeesPaid,
	}
	inserted, err := r.paper.InsertTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	pos.TradeID = strconv.FormatInt(inserted.ID, 10)
	acct.OpenPositions.Set(sig.Side, &pos)
	if r.mtx != nil {
		r.mtx.PaperTradesOpened.WithLabelValues(configID).Inc()
	}
	return nil
}

func (r *Runner) closePosition(ctx context.Context, configID string, acct *model.PaperAccount, pos *model.Position, exitPx float64, reason string, closedAt time.Time, cfg model.StrategyConfig) error {
	pnlAbs, pnlPct, fees, result := pengine.ClosePosition(*pos, exitPx, cfg)
	acct.Balance += pnlAbs
	acct.TradesCount++
	switch result {
	case model.ResultWin:
		acct.WinsCount++
		acct.GrossWins += pnlAbs
	case model.ResultLoss:
		acct.LossesCount++
		acct.GrossLosses += -pnlAbs
	}
	acct.UpdateProfitFactor()

	tradeID, err := strconv.ParseInt(pos.TradeID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse trade id %q: %w", pos.TradeID, err)
	}
	t := model.Trade{
		ID: tradeID, RunID: r.runID, ConfigID: configID,
		ClosedAt: &closedAt, Exit: &exitPx, PnLAbs: &pnlAbs, PnLPct: &pnlPct,
		FeesAbs: fees, Result: result, ExitReason: reason,
	}
	if err := r.paper.UpdateTradeClose(ctx, t); err != nil {
		return fmt.Errorf("update trade close: %w", err)
	}
	if r.mtx != nil {
		r.mtx.PaperTradesClosed.WithLabelValues(configID, string(result)).Inc()
	}
	return nil
}

func (r *Runner) applyKillRules(ctx context.Context, cfg *model.PaperConfig, acct *model.PaperAccount) {
	var reason string
	switch {
	case acct.MaxDrawdownPct > r.opts.KillMaxDDPct:
		reason = fmt.Sprintf("max drawdown %.2f%% exceeded limit %.2f%%", acct.MaxDrawdownPct, r.opts.KillMaxDDPct)
	case acct.ProfitFactor < r.opts.KillMinPF:
		reason = fmt.Sprintf("profit factor %.2f below minimum %.2f", acct.ProfitFactor, r.opts.KillMinPF)
	case acct.RealizedPnLPct() < r.opts.KillMinPnLPct:
		reason = fmt.Sprintf("realized pnl %.2f%% below minimum %.2f%%", acct.RealizedPnLPct(), r.opts.KillMinPnLPct)
	default:
		return
	}

	cfg.IsActive = false
	cfg.KillReason = reason
	if r.mtx != nil {
		r.mtx.PaperKillsTotal.Inc()
	}
	if err := r.paper.DeactivateConfig(ctx, r.runID, cfg.ID, reason); err != nil {
		r.log.Error("deactivate config failed", "config_id", cfg.ID, "err", err)
	}
	if err := r.paper.AppendEvent(ctx, r.runID, cfg.ID, "killed", reason); err != nil {
		r.log.Error("append kill event failed", "config_id", cfg.ID, "err", err)
	}
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, "warning", "paper config killed", fmt.Sprintf("%s: %s", cfg.ID, reason)); err != nil {
			r.log.Error("kill notification failed", "config_id", cfg.ID, "err", err)
		}
	}
	r.log.Warn("paper config killed", "config_id", cfg.ID, "reason", reason)
}

func (r *Runner) logLeaderboard(ctx context.Context) {
	type row struct {
		configID string
		rank     int
		equity   float64
		ddPct    float64
	}
	rows := make([]row, 0, len(r.configs))
	for _, cfg := range r.configs {
		acct := r.accounts[cfg.ID]
		rows = append(rows, row{configID: cfg.ID, rank: cfg.Rank, equity: acct.Equity, ddPct: acct.MaxDrawdownPct})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].equity > rows[j].equity })
	if len(rows) > 5 {
		rows = rows[:5]
	}

	entries := make([]redis.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		r.log.Info("leaderboard", "config_id", row.configID, "rank", row.rank, "equity", row.equity, "dd_pct", row.ddPct)
		entries = append(entries, redis.LeaderboardEntry{ConfigID: row.configID, Rank: row.rank, Equity: row.equity, DDPct: row.ddPct})
	}
	if r.leaderboard != nil {
		r.leaderboard.PublishLeaderboard(ctx, entries)
	}
}
