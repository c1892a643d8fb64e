package optimizer

import "perpquant/internal/model"

// gridBools, gridTriggers, gridRR, gridSLBuf are the knob-sets enumerated in
// the external-interface spec: every other field on StrategyConfig is fixed.
var (
	gridBools    = []bool{false, true}
	gridTriggers = []model.EntryTrigger{model.TriggerCHoCH, model.TriggerBOS, model.TriggerEither}
	gridRR       = []float64{1.5, 2.0, 2.5}
	gridSLBuf    = []float64{0.2, 0.3}
)

const (
	fixedTakerFeeBps = 5
	fixedSlippageBps = 2
	fixedMinRiskPct  = 0.001
	fixedTimeoutMin  = 0
)

// GenerateGrid produces the cartesian product of the knob-sets, pruning two
// combinations considered degenerate: requiring both 5m and 60m alignment is
// too restrictive, and CHoCH-only entry combined with 5m alignment is
// redundant (CHoCH already implies a 5m-scale structure shift).
func GenerateGrid() []model.StrategyConfig {
	var out []model.StrategyConfig
	for _, req5 := range gridBools {
		for _, req60 := range gridBools {
			if req5 && req60 {
				continue
			}
			for _, trigger := range gridTriggers {
				if trigger == model.TriggerCHoCH && req5 {
					continue
				}
				for _, rr := range gridRR {
					for _, slBuf := range gridSLBuf {
						out = append(out, model.StrategyConfig{
							Require5mAlign:  req5,
							Require60mAlign: req60,
							EntryTrigger:    trigger,
							RRTarget:        rr,
							SLATRBuffer:     slBuf,
							MinRiskPct:      fixedMinRiskPct,
							TimeoutMin:      fixedTimeoutMin,
							TakerFeeBps:     fixedTakerFeeBps,
							SlippageBps:     fixedSlippageBps,
						})
					}
				}
			}
		}
	}
	return out
}
