package optimizer

import (
	"math"
	"sort"

	"perpquant/internal/model"
)

// scoredConfig pairs a grid point with its in-sample backtest outcome.
type scoredConfig struct {
	cfg     model.StrategyConfig
	metrics model.BacktestMetrics
	errored bool
	score   float64
}

// score computes expectancy_pct + min(profit_factor/10, 0.5), the bonus
// capped so a handful of outsized winners can't dominate a mediocre
// expectancy. Errored runs score negative infinity so they never rank.
func score(m model.BacktestMetrics, errored bool) float64 {
	if errored {
		return math.Inf(-1)
	}
	bonus := m.ProfitFactor / 10
	if bonus > 0.5 {
		bonus = 0.5
	}
	return m.ExpectancyPct + bonus
}

// rank filters out runs whose drawdown exceeds ddLimitPct, scores the
// remainder, and returns the top 10 sorted by score descending.
func rank(candidates []scoredConfig, ddLimitPct float64) []scoredConfig {
	var survivors []scoredConfig
	for _, c := range candidates {
		if c.errored || c.metrics.MaxDrawdownPct > ddLimitPct {
			continue
		}
		c.score = score(c.metrics, false)
		survivors = append(survivors, c)
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].score > survivors[j].score
	})
	if len(survivors) > 10 {
		survivors = survivors[:10]
	}
	return survivors
}
