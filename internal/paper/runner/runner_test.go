package runner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"perpquant/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCandleStore struct {
	bySymbolTF map[string][]model.Candle
}

func key(symbol string, tfMin int) string { return symbol + ":" + model.Itoa(tfMin) }

func newFakeCandleStore() *fakeCandleStore {
	return &fakeCandleStore{bySymbolTF: make(map[string][]model.Candle)}
}

func (s *fakeCandleStore) seed(symbol string, tfMin int, candles []model.Candle) {
	s.bySymbolTF[key(symbol, tfMin)] = candles
}

func (s *fakeCandleStore) UpsertCandles(ctx context.Context, candles []model.Candle) error {
	return nil
}

func (s *fakeCandleStore) LastCandleTS(ctx context.Context, symbol string, tfMin int) (time.Time, bool, error) {
	cs := s.bySymbolTF[key(symbol, tfMin)]
	if len(cs) == 0 {
		return time.Time{}, false, nil
	}
	return cs[len(cs)-1].TS, true, nil
}

func (s *fakeCandleStore) ReadCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range s.bySymbolTF[key(symbol, tfMin)] {
		if !c.TS.Before(start) && !c.TS.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeOptimizerStore struct {
	top []model.TopConfig
}

func (s *fakeOptimizerStore) CreateOptimizerRun(ctx context.Context, run model.OptimizerRun) error {
	return nil
}
func (s *fakeOptimizerStore) PatchOptimizerRunCounts(ctx context.Context, runID string, total, valid int) error {
	return nil
}
func (s *fakeOptimizerStore) SaveTopConfigs(ctx context.Context, configs []model.TopConfig) error {
	return nil
}
func (s *fakeOptimizerStore) SaveAllConfigs(ctx context.Context, configs []model.AllConfig) error {
	return nil
}
func (s *fakeOptimizerStore) SaveOOSResults(ctx context.Context, results []model.OOSResult) error {
	return nil
}
func (s *fakeOptimizerStore) LoadTopConfigs(ctx context.Context, runID string, n int) ([]model.TopConfig, error) {
	if n < len(s.top) {
		return s.top[:n], nil
	}
	return s.top, nil
}

type fakePaperStore struct {
	runs     map[string]model.PaperRun
	configs  map[string][]model.PaperConfig
	accounts map[string]model.PaperAccount
	trades   map[int64]model.Trade
	nextID   int64
	snaps    []model.EquitySnapshot
	events   []string
}

func newFakePaperStore() *fakePaperStore {
	return &fakePaperStore{
		runs:     make(map[string]model.PaperRun),
		configs:  make(map[string][]model.PaperConfig),
		accounts: make(map[string]model.PaperAccount),
		trades:   make(map[int64]model.Trade),
	}
}

func (s *fakePaperStore) LoadOrCreatePaperRun(ctx context.Context, id, symbol string) (model.PaperRun, bool, error) {
	if run, ok := s.runs[id]; ok {
		return run, true, nil
	}
	run := model.PaperRun{ID: id, Symbol: symbol, TimeframeMin: 1, Status: model.PaperRunRunning}
	s.runs[id] = run
	return run, false, nil
}

func (s *fakePaperStore) SavePaperConfigs(ctx context.Context, configs []model.PaperConfig) error {
	if len(configs) == 0 {
		return nil
	}
	s.configs[configs[0].RunID] = configs
	return nil
}

func (s *fakePaperStore) LoadPaperConfigs(ctx context.Context, runID string) ([]model.PaperConfig, error) {
	return s.configs[runID], nil
}

func (s *fakePaperStore) LoadOrInitAccount(ctx context.Context, runID, configID string, startBalance float64) (model.PaperAccount, error) {
	k := runID + "|" + configID
	if acct, ok := s.accounts[k]; ok {
		return acct, nil
	}
	acct := model.PaperAccount{RunID: runID, ConfigID: configID, BalanceStart: startBalance, Balance: startBalance, Equity: startBalance, MaxEquity: startBalance}
	s.accounts[k] = acct
	return acct, nil
}

func (s *fakePaperStore) SaveAccountCheckpoint(ctx context.Context, acct model.PaperAccount) error {
	s.accounts[acct.RunID+"|"+acct.ConfigID] = acct
	return nil
}

func (s *fakePaperStore) DeactivateConfig(ctx context.Context, runID, configID, reason string) error {
	return nil
}

func (s *fakePaperStore) InsertTrade(ctx context.Context, t model.Trade) (model.Trade, error) {
	s.nextID++
	t.ID = s.nextID
	s.trades[t.ID] = t
	return t, nil
}

func (s *fakePaperStore) UpdateTradeClose(ctx context.Context, t model.Trade) error {
	existing := s.trades[t.ID]
	existing.ClosedAt = t.ClosedAt
	existing.Exit = t.Exit
	existing.PnLAbs = t.PnLAbs
	existing.PnLPct = t.PnLPct
	existing.FeesAbs = t.FeesAbs
	existing.Result = t.Result
	existing.ExitReason = t.ExitReason
	s.trades[t.ID] = existing
	return nil
}

func (s *fakePaperStore) InsertEquitySnapshot(ctx context.Context, snap model.EquitySnapshot) error {
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *fakePaperStore) PatchRunStatus(ctx context.Context, runID string, status model.PaperRunStatus) error {
	run := s.runs[runID]
	run.Status = status
	s.runs[runID] = run
	return nil
}

func (s *fakePaperStore) AppendEvent(ctx context.Context, runID, configID, kind, detail string) error {
	s.events = append(s.events, kind+":"+detail)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() model.StrategyConfig {
	return model.StrategyConfig{
		EntryTrigger: model.TriggerEither,
		RRTarget:     2,
		SLATRBuffer:  0.3,
		MinRiskPct:   0.001,
		TakerFeeBps:  5,
		SlippageBps:  2,
	}
}

func TestInit_SeedsConfigsAndAccountsFromOptimizerRun(t *testing.T) {
	paper := newFakePaperStore()
	optimizer := &fakeOptimizerStore{top: []model.TopConfig{
		{RunID: "opt-1", Rank: 1, Config: testConfig()},
		{RunID: "opt-1", Rank: 2, Config: testConfig()},
	}}
	candleStore := newFakeCandleStore()

	r := New(testLogger(), candleStore, optimizer, paper, nil, nil, nil, Options{
		Symbol: "BTC-PERPETUAL", OptimizerRunID: "opt-1", TopN: 2, BalanceStart: 1000, PollInterval: time.Second, SafeLagMin: 1,
	})

	err := r.Init(context.Background())
	require.NoError(t, err)
	assert.Len(t, r.configs, 2)
	assert.Len(t, r.accounts, 2)
	for _, cfg := range r.configs {
		acct := r.accounts[cfg.ID]
		assert.Equal(t, 1000.0, acct.Balance)
	}
}

func TestProcessAccount_SkipsWhenNoSafeCandles(t *testing.T) {
	paper := newFakePaperStore()
	optimizer := &fakeOptimizerStore{top: []model.TopConfig{{RunID: "opt-1", Rank: 1, Config: testConfig()}}}
	candleStore := newFakeCandleStore()

	r := New(testLogger(), candleStore, optimizer, paper, nil, nil, nil, Options{
		Symbol: "BTC-PERPETUAL", OptimizerRunID: "opt-1", TopN: 1, BalanceStart: 1000, PollInterval: time.Second, SafeLagMin: 1,
	})
	require.NoError(t, r.Init(context.Background()))

	cfg := &r.configs[0]
	safeEnd := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := r.processAccount(context.Background(), cfg, safeEnd)
	require.NoError(t, err)

	acct := r.accounts[cfg.ID]
	assert.Nil(t, acct.LastCandleTS)
	assert.Empty(t, paper.snaps)
}

func TestApplyKillRules_DeactivatesOnDrawdownBreach(t *testing.T) {
	paper := newFakePaperStore()
	optimizer := &fakeOptimizerStore{top: []model.TopConfig{{RunID: "opt-1", Rank: 1, Config: testConfig()}}}
	candleStore := newFakeCandleStore()

	r := New(testLogger(), candleStore, optimizer, paper, nil, nil, nil, Options{
		Symbol: "BTC-PERPETUAL", OptimizerRunID: "opt-1", TopN: 1, BalanceStart: 1000, PollInterval: time.Second,
		SafeLagMin: 1, MinTradesBeforeKill: 1, KillMaxDDPct: 10, KillMinPF: 0.5, KillMinPnLPct: -50,
	})
	require.NoError(t, r.Init(context.Background()))

	cfg := &r.configs[0]
	acct := r.accounts[cfg.ID]
	acct.MaxDrawdownPct = 15
	acct.TradesCount = 5

	r.applyKillRules(context.Background(), cfg, acct)

	assert.False(t, cfg.IsActive)
	assert.Contains(t, cfg.KillReason, "drawdown")
	assert.NotEmpty(t, paper.events)
}
