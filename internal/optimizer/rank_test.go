package optimizer

import (
	"testing"

	"perpquant/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestRank_BonusCapChangesOrdering(t *testing.T) {
	candidates := []scoredConfig{
		{cfg: model.StrategyConfig{RRTarget: 1.5}, metrics: model.BacktestMetrics{ExpectancyPct: 1.0, ProfitFactor: 2, MaxDrawdownPct: 5}},
		{cfg: model.StrategyConfig{RRTarget: 2.0}, metrics: model.BacktestMetrics{ExpectancyPct: 0.9, ProfitFactor: 10, MaxDrawdownPct: 5}},
		{cfg: model.StrategyConfig{RRTarget: 2.5}, metrics: model.BacktestMetrics{ExpectancyPct: 1.1, ProfitFactor: 1, MaxDrawdownPct: 15}},
	}
	survivors := rank(candidates, 10)

	assert.Len(t, survivors, 2)
	assert.InDelta(t, 1.4, survivors[0].score, 1e-9)
	assert.InDelta(t, 1.2, survivors[1].score, 1e-9)
	assert.Equal(t, 2.0, survivors[0].cfg.RRTarget)
}

func TestRank_ErroredRunsExcluded(t *testing.T) {
	candidates := []scoredConfig{
		{cfg: model.StrategyConfig{}, errored: true},
		{cfg: model.StrategyConfig{}, metrics: model.BacktestMetrics{ExpectancyPct: 0.5, MaxDrawdownPct: 2}},
	}
	survivors := rank(candidates, 10)
	assert.Len(t, survivors, 1)
}

func TestGenerateGrid_PrunesDegenerateCombinations(t *testing.T) {
	grid := GenerateGrid()
	for _, cfg := range grid {
		assert.False(t, cfg.Require5mAlign && cfg.Require60mAlign)
		assert.False(t, cfg.EntryTrigger == model.TriggerCHoCH && cfg.Require5mAlign)
	}
	assert.NotEmpty(t, grid)
}
