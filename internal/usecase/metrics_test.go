package usecase_test

import (
	"testing"

	"eval-orchestrator/internal/domain"
	"eval-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestPercentile_MatchesMedian(t *testing.T) {
	datasets := [][]float64{
		{5},
		{1, 2},
		{3, 1, 2},
		{10, 20, 30, 40},
		{2.5, 7.5, 1.25, 9.75, 4.5, 6.25},
		{100, 100, 100},
	}
	for _, data := range datasets {
		assert.InDelta(t, usecase.Median(data), usecase.Percentile(data, 50), 1e-9)
	}
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50}

	assert.InDelta(t, 30, usecase.Percentile(data, 50), 1e-9)
	assert.InDelta(t, 48, usecase.Percentile(data, 95), 1e-9)
	assert.InDelta(t, 10, usecase.Percentile(data, 0), 1e-9)
	assert.InDelta(t, 50, usecase.Percentile(data, 100), 1e-9)

	// Midway between ranks.
	assert.InDelta(t, 25, usecase.Percentile([]float64{10, 20, 30, 40}, 50), 1e-9)
}

func TestPercentile_EmptyInput(t *testing.T) {
	assert.Zero(t, usecase.Percentile(nil, 95))
	assert.Zero(t, usecase.Median(nil))
	assert.Zero(t, usecase.Mean(nil))
}

func TestCalculateOverallScore(t *testing.T) {
	t.Run("empty scores zero", func(t *testing.T) {
		assert.Zero(t, usecase.CalculateOverallScore(map[string]float64{}))
	})

	t.Run("all axes at one score one", func(t *testing.T) {
		scores := map[string]float64{
			domain.AxisAccuracy:           1.0,
			domain.AxisFaithfulness:       1.0,
			domain.AxisReasoning:          1.0,
			domain.AxisContextUtilization: 1.0,
		}
		assert.InDelta(t, 1.0, usecase.CalculateOverallScore(scores), 1e-9)
	})

	t.Run("renormalizes over present axes", func(t *testing.T) {
		// Without accuracy the remaining weights are 0.30/0.20/0.20.
		scores := map[string]float64{
			domain.AxisFaithfulness:       1.0,
			domain.AxisReasoning:          0.0,
			domain.AxisContextUtilization: 0.0,
		}
		assert.InDelta(t, 0.30/0.70, usecase.CalculateOverallScore(scores), 1e-9)
	})

	t.Run("unknown axes ignored", func(t *testing.T) {
		assert.Zero(t, usecase.CalculateOverallScore(map[string]float64{"vibes": 1.0}))
	})
}

func TestCalculateModelMetrics_RatesSumToHundred(t *testing.T) {
	runID := uuid.New()
	var verdicts []*domain.JudgeVerdict
	winners := []domain.Winner{domain.WinnerA, domain.WinnerB, domain.WinnerTie, domain.WinnerA, domain.WinnerB}
	for _, w := range winners {
		verdicts = append(verdicts, &domain.JudgeVerdict{
			ID:         uuid.New(),
			RunID:      runID,
			QuestionID: uuid.New(),
			ModelAKey:  "openai:gpt-4o",
			ModelBKey:  "anthropic:claude",
			Winner:     w,
			ScoreA:     7,
			ScoreB:     6,
		})
	}

	for _, key := range []string{"openai:gpt-4o", "anthropic:claude"} {
		m := usecase.CalculateModelMetrics(key, nil, verdicts)
		assert.InDelta(t, 100, m.WinRate+m.TieRate+m.LossRate, 1e-9, "rates for %s", key)
		assert.Equal(t, 5, m.Judged)
	}

	a := usecase.CalculateModelMetrics("openai:gpt-4o", nil, verdicts)
	assert.InDelta(t, 40, a.WinRate, 1e-9)
	assert.InDelta(t, 20, a.TieRate, 1e-9)
	assert.InDelta(t, 40, a.LossRate, 1e-9)
}

func TestCalculateModelMetrics_ErrorsExcludedFromDenominators(t *testing.T) {
	runID := uuid.New()
	results := []*domain.GenerationResult{
		{RunID: runID, ModelKey: "m:one", LatencyMS: 100, CostUSD: 0.01, TokensIn: 10, TokensOut: 20},
		{RunID: runID, ModelKey: "m:one", LatencyMS: 300, CostUSD: 0.03, TokensIn: 10, TokensOut: 40},
		{RunID: runID, ModelKey: "m:one", ErrorMessage: "rate limited"},
		{RunID: runID, ModelKey: "m:other", LatencyMS: 999},
	}

	m := usecase.CalculateModelMetrics("m:one", results, nil)
	assert.Equal(t, 3, m.AnswerCount)
	assert.Equal(t, 1, m.ErrorCount)
	assert.InDelta(t, 100.0/3, m.ErrorRate, 1e-9)
	assert.InDelta(t, 200, m.MeanLatencyMS, 1e-9)
	assert.InDelta(t, 0.04, m.TotalCostUSD, 1e-9)
	assert.Equal(t, 20, m.TotalTokensIn)
	assert.Equal(t, 60, m.TotalTokensOut)
	assert.InDelta(t, 30, m.MeanTokensOut, 1e-9)
}

func TestCalculateModelMetrics_RubricAggregation(t *testing.T) {
	results := []*domain.GenerationResult{
		{ModelKey: "m:one", Quality: &domain.QualityScores{
			Accuracy:           floatPtr(0.8),
			Faithfulness:       1.0,
			Reasoning:          0.6,
			ContextUtilization: 0.4,
		}},
		{ModelKey: "m:one", Quality: &domain.QualityScores{
			Faithfulness:       0.6,
			Reasoning:          0.8,
			ContextUtilization: 0.6,
		}},
	}

	m := usecase.CalculateModelMetrics("m:one", results, nil)
	require.NotNil(t, m.MeanRubric)
	// Accuracy averages only over results that have it.
	assert.InDelta(t, 0.8, m.MeanRubric[domain.AxisAccuracy], 1e-9)
	assert.InDelta(t, 0.8, m.MeanRubric[domain.AxisFaithfulness], 1e-9)
	assert.InDelta(t, 0.7, m.MeanRubric[domain.AxisReasoning], 1e-9)
	assert.InDelta(t, 0.5, m.MeanRubric[domain.AxisContextUtilization], 1e-9)
	assert.Greater(t, m.OverallScore, 0.0)
}

func TestCompareModels(t *testing.T) {
	t.Run("clear winners per axis", func(t *testing.T) {
		a := usecase.ModelMetrics{ModelKey: "a", OverallScore: 0.9, MeanLatencyMS: 100, MeanCostUSD: 0.05}
		b := usecase.ModelMetrics{ModelKey: "b", OverallScore: 0.5, MeanLatencyMS: 400, MeanCostUSD: 0.01}

		cmp := usecase.CompareModels(a, b, 0.05)
		assert.Equal(t, "a", cmp.Quality.Winner)
		assert.Equal(t, "a", cmp.Speed.Winner)
		assert.Equal(t, "b", cmp.Cost.Winner)
	})

	t.Run("differences under threshold tie", func(t *testing.T) {
		a := usecase.ModelMetrics{ModelKey: "a", OverallScore: 0.80, MeanLatencyMS: 100, MeanCostUSD: 0.0100}
		b := usecase.ModelMetrics{ModelKey: "b", OverallScore: 0.81, MeanLatencyMS: 102, MeanCostUSD: 0.0101}

		cmp := usecase.CompareModels(a, b, 0.05)
		assert.Equal(t, "tie", cmp.Quality.Winner)
		assert.Equal(t, "tie", cmp.Speed.Winner)
		assert.Equal(t, "tie", cmp.Cost.Winner)
	})

	t.Run("no data ties everything", func(t *testing.T) {
		cmp := usecase.CompareModels(usecase.ModelMetrics{ModelKey: "a"}, usecase.ModelMetrics{ModelKey: "b"}, 0.05)
		assert.Equal(t, "tie", cmp.Quality.Winner)
		assert.Equal(t, "tie", cmp.Speed.Winner)
		assert.Equal(t, "tie", cmp.Cost.Winner)
	})
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0, usecase.Progress(0, 5))
	assert.Equal(t, 20, usecase.Progress(1, 5))
	assert.Equal(t, 40, usecase.Progress(2, 5))
	assert.Equal(t, 66, usecase.Progress(2, 3))
	assert.Equal(t, 100, usecase.Progress(5, 5))
	assert.Equal(t, 100, usecase.Progress(0, 0))
}
