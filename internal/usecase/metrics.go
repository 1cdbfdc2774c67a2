package usecase

import (
	"math"
	"sort"

	"eval-orchestrator/internal/domain"
)

// DefaultIndifferenceThreshold is the relative margin below which a
// comparison axis is declared a tie.
const DefaultIndifferenceThreshold = 0.05

// Overall-score weights per rubric axis, renormalized over the axes
// that actually have data.
var overallWeights = map[string]float64{
	domain.AxisAccuracy:           0.30,
	domain.AxisFaithfulness:       0.30,
	domain.AxisReasoning:          0.20,
	domain.AxisContextUtilization: 0.20,
}

// ModelMetrics is a derived projection over one model's raw results.
// It is always recomputable and never a source of truth.
type ModelMetrics struct {
	ModelKey string `json:"model_key"`

	AnswerCount int     `json:"answer_count"`
	ErrorCount  int     `json:"error_count"`
	ErrorRate   float64 `json:"error_rate"`

	MeanLatencyMS   float64 `json:"mean_latency_ms"`
	MedianLatencyMS float64 `json:"median_latency_ms"`
	P95LatencyMS    float64 `json:"p95_latency_ms"`

	TotalCostUSD float64 `json:"total_cost_usd"`
	MeanCostUSD  float64 `json:"mean_cost_usd"`

	TotalTokensIn  int     `json:"total_tokens_in"`
	TotalTokensOut int     `json:"total_tokens_out"`
	MeanTokensOut  float64 `json:"mean_tokens_out"`

	WinRate  float64 `json:"win_rate"`
	TieRate  float64 `json:"tie_rate"`
	LossRate float64 `json:"loss_rate"`
	Judged   int     `json:"judged"`

	MeanPairwiseScore  float64            `json:"mean_pairwise_score"`
	MeanCriterionScore map[string]float64 `json:"mean_criterion_score,omitempty"`

	MeanRubric   map[string]float64 `json:"mean_rubric,omitempty"`
	OverallScore float64            `json:"overall_score"`
}

// AxisWinner is the outcome of one comparison axis.
type AxisWinner struct {
	Winner string  `json:"winner"` // model key, or "tie"
	Margin float64 `json:"margin"`
}

// ModelComparison is a two-model comparison across quality, speed, and
// cost.
type ModelComparison struct {
	ModelA  string     `json:"model_a"`
	ModelB  string     `json:"model_b"`
	Quality AxisWinner `json:"quality"`
	Speed   AxisWinner `json:"speed"`
	Cost    AxisWinner `json:"cost"`
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Median returns the middle value, averaging the two central values for
// even-length input. 0 for empty input.
func Median(data []float64) float64 {
	return Percentile(data, 50)
}

// Percentile computes the p-th percentile with linear interpolation
// between nearest ranks, so Percentile(data, 50) equals the median.
// Returns 0 for empty input.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// CalculateOverallScore folds the rubric axes into one [0,1] score.
// Weights renormalize over the axes present in scores; an empty map
// scores 0.
func CalculateOverallScore(scores map[string]float64) float64 {
	var weighted, weightSum float64
	for axis, score := range scores {
		w, ok := overallWeights[axis]
		if !ok {
			continue
		}
		weighted += w * score
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return weighted / weightSum
}

// CalculateModelMetrics aggregates one model's raw results and verdicts.
// Failed generations count toward the error rate but are excluded from
// latency, cost, and token denominators. Verdicts the model did not
// participate in are ignored.
func CalculateModelMetrics(modelKey string, results []*domain.GenerationResult, verdicts []*domain.JudgeVerdict) ModelMetrics {
	m := ModelMetrics{ModelKey: modelKey}

	var latencies, costs []float64
	rubricSums := map[string]float64{}
	rubricCounts := map[string]int{}

	for _, r := range results {
		if r.ModelKey != modelKey {
			continue
		}
		m.AnswerCount++
		if r.Failed() {
			m.ErrorCount++
			continue
		}
		latencies = append(latencies, float64(r.LatencyMS))
		costs = append(costs, r.CostUSD)
		m.TotalTokensIn += r.TokensIn
		m.TotalTokensOut += r.TokensOut

		if q := r.Quality; q != nil {
			if q.Accuracy != nil {
				rubricSums[domain.AxisAccuracy] += *q.Accuracy
				rubricCounts[domain.AxisAccuracy]++
			}
			rubricSums[domain.AxisFaithfulness] += q.Faithfulness
			rubricCounts[domain.AxisFaithfulness]++
			rubricSums[domain.AxisReasoning] += q.Reasoning
			rubricCounts[domain.AxisReasoning]++
			rubricSums[domain.AxisContextUtilization] += q.ContextUtilization
			rubricCounts[domain.AxisContextUtilization]++
		}
	}

	if m.AnswerCount > 0 {
		m.ErrorRate = 100 * float64(m.ErrorCount) / float64(m.AnswerCount)
	}
	if len(latencies) > 0 {
		m.MeanLatencyMS = Mean(latencies)
		m.MedianLatencyMS = Median(latencies)
		m.P95LatencyMS = Percentile(latencies, 95)
		m.MeanCostUSD = Mean(costs)
		m.MeanTokensOut = float64(m.TotalTokensOut) / float64(len(latencies))
	}
	for _, c := range costs {
		m.TotalCostUSD += c
	}

	if len(rubricCounts) > 0 {
		m.MeanRubric = make(map[string]float64, len(rubricCounts))
		for axis, n := range rubricCounts {
			m.MeanRubric[axis] = rubricSums[axis] / float64(n)
		}
		m.OverallScore = CalculateOverallScore(m.MeanRubric)
	}

	var wins, ties, losses int
	var pairScores []float64
	criterionSums := map[string]float64{}
	criterionCounts := map[string]int{}
	for _, v := range verdicts {
		var own float64
		var side string
		switch modelKey {
		case v.ModelAKey:
			own, side = v.ScoreA, "a"
		case v.ModelBKey:
			own, side = v.ScoreB, "b"
		default:
			continue
		}
		m.Judged++
		switch {
		case v.Winner == domain.WinnerTie:
			ties++
		case string(v.Winner) == side:
			wins++
		default:
			losses++
		}
		pairScores = append(pairScores, own)
		for name, cs := range v.Criteria {
			score := cs.ScoreA
			if side == "b" {
				score = cs.ScoreB
			}
			criterionSums[name] += score
			criterionCounts[name]++
		}
	}
	if m.Judged > 0 {
		m.WinRate = 100 * float64(wins) / float64(m.Judged)
		m.TieRate = 100 * float64(ties) / float64(m.Judged)
		m.LossRate = 100 * float64(losses) / float64(m.Judged)
		m.MeanPairwiseScore = Mean(pairScores)
	}
	if len(criterionCounts) > 0 {
		m.MeanCriterionScore = make(map[string]float64, len(criterionCounts))
		for name, n := range criterionCounts {
			m.MeanCriterionScore[name] = criterionSums[name] / float64(n)
		}
	}
	return m
}

// CompareModels decides a winner per axis with an indifference
// threshold: relative differences below it tie the axis. Quality favors
// higher scores; speed and cost favor lower values.
func CompareModels(a, b ModelMetrics, threshold float64) ModelComparison {
	if threshold <= 0 {
		threshold = DefaultIndifferenceThreshold
	}
	qualityA := a.OverallScore
	qualityB := b.OverallScore
	if qualityA == 0 && qualityB == 0 {
		// Fall back to pairwise scores when rubric data is absent.
		qualityA = a.MeanPairwiseScore
		qualityB = b.MeanPairwiseScore
	}
	return ModelComparison{
		ModelA:  a.ModelKey,
		ModelB:  b.ModelKey,
		Quality: decideAxis(a.ModelKey, b.ModelKey, qualityA, qualityB, true, threshold),
		Speed:   decideAxis(a.ModelKey, b.ModelKey, a.MeanLatencyMS, b.MeanLatencyMS, false, threshold),
		Cost:    decideAxis(a.ModelKey, b.ModelKey, a.MeanCostUSD, b.MeanCostUSD, false, threshold),
	}
}

func decideAxis(keyA, keyB string, valA, valB float64, higherWins bool, threshold float64) AxisWinner {
	base := math.Max(math.Abs(valA), math.Abs(valB))
	if base == 0 {
		return AxisWinner{Winner: "tie"}
	}
	margin := math.Abs(valA-valB) / base
	if margin < threshold {
		return AxisWinner{Winner: "tie", Margin: margin}
	}
	aWins := valA > valB
	if !higherWins {
		aWins = valA < valB
	}
	if aWins {
		return AxisWinner{Winner: keyA, Margin: margin}
	}
	return AxisWinner{Winner: keyB, Margin: margin}
}
