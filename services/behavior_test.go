package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/codeforge-academy/sentinel_api/shared"
)

func sequenceOf(base time.Time, gapSeconds int, scores []float64, classifications []string) []dto.SequenceEntry {
	entries := make([]dto.SequenceEntry, len(scores))
	for i := range scores {
		entries[i] = dto.SequenceEntry{
			Timestamp:      base.Add(time.Duration(i*gapSeconds) * time.Second),
			RiskScore:      scores[i],
			Classification: classifications[i],
		}
	}
	return entries
}

func TestDetectGamingPatterns_InsufficientData(t *testing.T) {
	svc := &BehaviorAnalysisService{}
	base := time.Now()

	result := svc.DetectGamingPatterns(sequenceOf(base, 5,
		[]float64{50, 60},
		[]string{shared.ClassificationWarning, shared.ClassificationWarning}))

	assert.Equal(t, 0.0, result.OverallRisk)
	assert.False(t, result.IsGamingAttempt)
	assert.Empty(t, result.DetectedPatterns)
	assert.Equal(t, []string{"Insufficient data for behavioral analysis"}, result.Recommendations)
}

func TestDetectGamingPatterns_SolutionExtractionBurst(t *testing.T) {
	svc := &BehaviorAnalysisService{}
	base := time.Now()

	// Three blocked prompts two seconds apart with escalating risk trip every
	// detector at once.
	result := svc.DetectGamingPatterns(sequenceOf(base, 2,
		[]float64{80, 85, 90},
		[]string{shared.ClassificationBlocked, shared.ClassificationBlocked, shared.ClassificationBlocked}))

	assert.Equal(t, 100.0, result.OverallRisk)
	assert.True(t, result.IsGamingAttempt)

	names := make([]string, len(result.DetectedPatterns))
	for i, p := range result.DetectedPatterns {
		names[i] = p.Pattern
	}
	assert.Contains(t, names, shared.PatternRapidFire)
	assert.Contains(t, names, shared.PatternIterativeRefinement)
	assert.Contains(t, names, shared.PatternSolutionBuilding)

	assert.InDelta(t, 2.0, result.BehaviorMetrics.AvgIntervalSeconds, 0.001)
	assert.Len(t, result.Recommendations, 3)
}

func TestDetectGamingPatterns_HealthyUsage(t *testing.T) {
	svc := &BehaviorAnalysisService{}
	base := time.Now()

	result := svc.DetectGamingPatterns(sequenceOf(base, 60,
		[]float64{10, 15, 12, 8, 14},
		[]string{
			shared.ClassificationSafe, shared.ClassificationSafe, shared.ClassificationSafe,
			shared.ClassificationSafe, shared.ClassificationSafe,
		}))

	assert.Equal(t, 0.0, result.OverallRisk)
	assert.False(t, result.IsGamingAttempt)
	assert.Empty(t, result.DetectedPatterns)
	assert.Equal(t, "stable", result.BehaviorMetrics.ComplexityTrend)
	assert.Equal(t, []string{"Healthy usage pattern, keep it up"}, result.Recommendations)
}

func TestDetectGamingPatterns_RapidFireOnly(t *testing.T) {
	svc := &BehaviorAnalysisService{}
	base := time.Now()

	// Quick low-risk probing: rapid fire plus the fast-interval modifier, but
	// nothing else, stays below the gaming threshold.
	result := svc.DetectGamingPatterns(sequenceOf(base, 3,
		[]float64{10, 10, 10, 10},
		[]string{
			shared.ClassificationSafe, shared.ClassificationSafe,
			shared.ClassificationSafe, shared.ClassificationSafe,
		}))

	require.Len(t, result.DetectedPatterns, 1)
	assert.Equal(t, shared.PatternRapidFire, result.DetectedPatterns[0].Pattern)
	assert.Equal(t, []int{0, 1, 2, 3}, result.DetectedPatterns[0].Indices)
	assert.InDelta(t, 50.0, result.OverallRisk, 0.001) // 30 full-confidence + 20 fast interval
	assert.False(t, result.IsGamingAttempt)
}

func TestDetectGamingPatterns_SimultaneousEntries(t *testing.T) {
	svc := &BehaviorAnalysisService{}
	base := time.Now()

	// Zero-gap entries are the extreme of a fast cadence: a zero average
	// interval still counts as under the fast-interval cutoff.
	result := svc.DetectGamingPatterns(sequenceOf(base, 0,
		[]float64{10, 10, 10},
		[]string{
			shared.ClassificationSafe, shared.ClassificationSafe,
			shared.ClassificationSafe,
		}))

	assert.Equal(t, 0.0, result.BehaviorMetrics.AvgIntervalSeconds)
	assert.InDelta(t, 50.0, result.OverallRisk, 0.001) // 30 full-confidence rapid fire + 20 fast interval
}

func TestDetectGamingPatterns_ErraticTrend(t *testing.T) {
	svc := &BehaviorAnalysisService{}
	base := time.Now()

	result := svc.DetectGamingPatterns(sequenceOf(base, 60,
		[]float64{90, 10, 50, 50, 10, 90},
		[]string{
			shared.ClassificationWarning, shared.ClassificationSafe, shared.ClassificationWarning,
			shared.ClassificationWarning, shared.ClassificationSafe, shared.ClassificationWarning,
		}))

	assert.Equal(t, "erratic", result.BehaviorMetrics.ComplexityTrend)
	assert.InDelta(t, erraticTrendRisk, result.OverallRisk, 0.001)
}

func TestAnalyzePromptSequence_LoadsHistoryWindow(t *testing.T) {
	sqlSvc := newTestDB(t)
	svc := &BehaviorAnalysisService{sqlSvc: sqlSvc}
	now := time.Now()

	createValidationLogs(t, sqlSvc, "user-1", "attempt-1", []model.ValidationLog{
		{RiskScore: 80, Classification: shared.ClassificationBlocked, Timestamp: secondsAgo(now, 6)},
		{RiskScore: 85, Classification: shared.ClassificationBlocked, Timestamp: secondsAgo(now, 4)},
		{RiskScore: 90, Classification: shared.ClassificationBlocked, Timestamp: secondsAgo(now, 2)},
		// Outside the lookback window.
		{RiskScore: 10, Classification: shared.ClassificationSafe, Timestamp: now.Add(-2 * time.Hour)},
	})
	// A different attempt must not leak in.
	createValidationLogs(t, sqlSvc, "user-1", "attempt-2", []model.ValidationLog{
		{RiskScore: 5, Classification: shared.ClassificationSafe, Timestamp: secondsAgo(now, 3)},
	})

	result, err := svc.AnalyzePromptSequence(context.Background(), "user-1", "attempt-1", 30)
	require.NoError(t, err)

	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "attempt-1", result.AttemptID)
	assert.Equal(t, 3, result.WindowAnalyzed.Count)
	assert.True(t, result.IsGamingAttempt)
}

func TestAnalyzePromptSequence_DefaultLookback(t *testing.T) {
	sqlSvc := newTestDB(t)
	svc := &BehaviorAnalysisService{sqlSvc: sqlSvc}

	result, err := svc.AnalyzePromptSequence(context.Background(), "user-1", "attempt-1", 0)
	require.NoError(t, err)

	window := result.WindowAnalyzed.End.Sub(result.WindowAnalyzed.Start)
	assert.Equal(t, 30*time.Minute, window)
	assert.Equal(t, 0, result.WindowAnalyzed.Count)
	assert.Equal(t, 0.0, result.OverallRisk)
}

func TestCalculateBehaviorRisk(t *testing.T) {
	sqlSvc := newTestDB(t)
	svc := &BehaviorAnalysisService{sqlSvc: sqlSvc}
	now := time.Now()

	createValidationLogs(t, sqlSvc, "user-1", "attempt-1", []model.ValidationLog{
		{RiskScore: 80, Classification: shared.ClassificationBlocked, Timestamp: secondsAgo(now, 30)},
		{RiskScore: 20, Classification: shared.ClassificationSafe, Timestamp: secondsAgo(now, 20)},
	})

	risk, err := svc.CalculateBehaviorRisk(context.Background(), "user-1", "attempt-1", time.Hour)
	require.NoError(t, err)
	// 50% blocked contributes 25, average risk 50 contributes 25.
	assert.InDelta(t, 50.0, risk, 0.001)
}

func TestCalculateBehaviorRisk_EmptyHistory(t *testing.T) {
	sqlSvc := newTestDB(t)
	svc := &BehaviorAnalysisService{sqlSvc: sqlSvc}

	risk, err := svc.CalculateBehaviorRisk(context.Background(), "user-1", "attempt-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0.0, risk)
}
