package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/shared"
)

// BehaviorAnalysisService detects gaming patterns in a user's recent
// validation-outcome history and aggregates them into one risk score. Results
// are computed fresh per request and never mutated.
//
// History-store errors propagate; callers own the degrade policy.
type BehaviorAnalysisService struct {
	appContext.DefaultService

	sqlSvc *PostgresService
}

const BEHAVIOR_SVC = "behavior_svc"

const (
	rapidFireGapSeconds  = 10.0
	rapidFireRisk        = 30.0
	refinementRisk       = 40.0
	refinementMinRatio   = 0.5
	solutionBuildRisk    = 50.0
	solutionBuildMinRate = 0.3

	fastIntervalSeconds = 5.0
	fastIntervalRisk    = 20.0
	increasingTrendRisk = 15.0
	erraticTrendRisk    = 10.0

	gamingRiskThreshold = 70.0
)

func (svc BehaviorAnalysisService) Id() string {
	return BEHAVIOR_SVC
}

func (svc *BehaviorAnalysisService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *BehaviorAnalysisService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

// ==================== PUBLIC CONTRACT ====================

// AnalyzePromptSequence loads the attempt's outcome history for the lookback
// window and scores it for gaming patterns.
func (svc *BehaviorAnalysisService) AnalyzePromptSequence(ctx context.Context, userID, attemptID string, lookbackMinutes int) (*dto.TemporalAnalysisResult, error) {
	if lookbackMinutes <= 0 {
		lookbackMinutes = 30
	}

	end := time.Now()
	start := end.Add(-time.Duration(lookbackMinutes) * time.Minute)

	logs, err := svc.sqlSvc.Governance().GetValidationLogs(userID, attemptID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation history: %w", err)
	}

	entries := make([]dto.SequenceEntry, len(logs))
	for i, entry := range logs {
		entries[i] = dto.SequenceEntry{
			Timestamp:      entry.Timestamp,
			RiskScore:      entry.RiskScore,
			Classification: entry.Classification,
		}
	}

	result := svc.DetectGamingPatterns(entries)
	result.UserID = userID
	result.AttemptID = attemptID
	result.WindowAnalyzed = dto.AnalysisWindow{Start: start, End: end, Count: len(entries)}
	return result, nil
}

// DetectGamingPatterns scores an in-memory sequence. Fewer than 3 entries is
// too little signal to call anything a pattern.
func (svc *BehaviorAnalysisService) DetectGamingPatterns(entries []dto.SequenceEntry) *dto.TemporalAnalysisResult {
	if len(entries) < 3 {
		return &dto.TemporalAnalysisResult{
			DetectedPatterns: []dto.DetectedPattern{},
			BehaviorMetrics:  dto.BehaviorMetrics{ComplexityTrend: "stable", DependencyTrend: "stable"},
			OverallRisk:      0,
			IsGamingAttempt:  false,
			Recommendations:  []string{"Insufficient data for behavioral analysis"},
		}
	}

	var patterns []dto.DetectedPattern
	if p := detectRapidFire(entries); p != nil {
		patterns = append(patterns, *p)
	}
	if p := detectIterativeRefinement(entries); p != nil {
		patterns = append(patterns, *p)
	}
	if p := detectSolutionBuilding(entries); p != nil {
		patterns = append(patterns, *p)
	}

	metrics := computeBehaviorMetrics(entries)

	risk := 0.0
	for _, p := range patterns {
		risk += p.RiskContribution * p.Confidence / 100
	}
	if metrics.AvgIntervalSeconds < fastIntervalSeconds {
		risk += fastIntervalRisk
	}
	switch metrics.ComplexityTrend {
	case "increasing":
		risk += increasingTrendRisk
	case "erratic":
		risk += erraticTrendRisk
	}
	risk = clampRisk(risk)

	if patterns == nil {
		patterns = []dto.DetectedPattern{}
	}

	return &dto.TemporalAnalysisResult{
		DetectedPatterns: patterns,
		BehaviorMetrics:  metrics,
		OverallRisk:      risk,
		IsGamingAttempt:  risk >= gamingRiskThreshold,
		Recommendations:  buildRecommendations(patterns, risk),
	}
}

// CalculateBehaviorRisk is the cheap aggregate over a raw window: blocked
// ratio plus average risk, capped at 100.
func (svc *BehaviorAnalysisService) CalculateBehaviorRisk(ctx context.Context, userID, attemptID string, window time.Duration) (float64, error) {
	end := time.Now()
	logs, err := svc.sqlSvc.Governance().GetValidationLogs(userID, attemptID, end.Add(-window), end)
	if err != nil {
		return 0, fmt.Errorf("failed to load validation history: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	blocked := 0
	totalRisk := 0.0
	for _, entry := range logs {
		if entry.Classification == shared.ClassificationBlocked {
			blocked++
		}
		totalRisk += entry.RiskScore
	}

	blockedRatio := float64(blocked) / float64(len(logs))
	avgRisk := totalRisk / float64(len(logs))

	risk := blockedRatio*50 + avgRisk*0.5
	if risk > 100 {
		risk = 100
	}
	return risk, nil
}

// ==================== DETECTORS ====================

func detectRapidFire(entries []dto.SequenceEntry) *dto.DetectedPattern {
	flagged := map[int]bool{}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Sub(entries[i-1].Timestamp).Seconds() < rapidFireGapSeconds {
			flagged[i-1] = true
			flagged[i] = true
		}
	}
	if len(flagged) == 0 {
		return nil
	}

	indices := sortedIndices(flagged)
	return &dto.DetectedPattern{
		Pattern:          shared.PatternRapidFire,
		Confidence:       float64(len(indices)) / float64(len(entries)) * 100,
		RiskContribution: rapidFireRisk,
		Indices:          indices,
	}
}

func detectIterativeRefinement(entries []dto.SequenceEntry) *dto.DetectedPattern {
	transitions := len(entries) - 1
	increasing := 0
	flagged := map[int]bool{}
	for i := 1; i < len(entries); i++ {
		if entries[i].RiskScore > entries[i-1].RiskScore {
			increasing++
			flagged[i-1] = true
			flagged[i] = true
		}
	}

	ratio := float64(increasing) / float64(transitions)
	if ratio <= refinementMinRatio {
		return nil
	}

	return &dto.DetectedPattern{
		Pattern:          shared.PatternIterativeRefinement,
		Confidence:       float64(increasing) / float64(transitions) * 100,
		RiskContribution: refinementRisk,
		Indices:          sortedIndices(flagged),
	}
}

func detectSolutionBuilding(entries []dto.SequenceEntry) *dto.DetectedPattern {
	var indices []int
	for i, entry := range entries {
		if entry.Classification == shared.ClassificationBlocked {
			indices = append(indices, i)
		}
	}

	ratio := float64(len(indices)) / float64(len(entries))
	if ratio <= solutionBuildMinRate {
		return nil
	}

	return &dto.DetectedPattern{
		Pattern:          shared.PatternSolutionBuilding,
		Confidence:       ratio * 100,
		RiskContribution: solutionBuildRisk,
		Indices:          indices,
	}
}

// ==================== METRICS ====================

func computeBehaviorMetrics(entries []dto.SequenceEntry) dto.BehaviorMetrics {
	totalInterval := 0.0
	for i := 1; i < len(entries); i++ {
		totalInterval += entries[i].Timestamp.Sub(entries[i-1].Timestamp).Seconds()
	}
	avgInterval := totalInterval / float64(len(entries)-1)

	return dto.BehaviorMetrics{
		AvgIntervalSeconds: avgInterval,
		// Coherence needs prompt content, which the outcome history does not
		// carry; neutral until the content scorer exposes it.
		Coherence:       0.5,
		ComplexityTrend: complexityTrend(entries),
		DependencyTrend: "stable",
	}
}

// complexityTrend compares first-half vs second-half mean risk; a large gap
// reads as a directional trend, high variance as erratic.
func complexityTrend(entries []dto.SequenceEntry) string {
	half := len(entries) / 2
	firstMean := meanRisk(entries[:half])
	secondMean := meanRisk(entries[half:])

	diff := secondMean - firstMean
	if diff > 20 {
		return "increasing"
	}
	if diff < -20 {
		return "decreasing"
	}

	overall := meanRisk(entries)
	variance := 0.0
	for _, e := range entries {
		d := e.RiskScore - overall
		variance += d * d
	}
	variance /= float64(len(entries))
	if variance > 400 {
		return "erratic"
	}

	return "stable"
}

func meanRisk(entries []dto.SequenceEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	total := 0.0
	for _, e := range entries {
		total += e.RiskScore
	}
	return total / float64(len(entries))
}

// ==================== RECOMMENDATIONS ====================

var patternRecommendations = map[string]string{
	shared.PatternRapidFire:           "Slow down between prompts and work through the problem before asking again",
	shared.PatternIterativeRefinement: "Rephrase what you are stuck on instead of escalating the same request",
	shared.PatternSolutionBuilding:    "Repeated blocked prompts suggest the assistant is being asked for the solution; focus questions on concepts",
}

func buildRecommendations(patterns []dto.DetectedPattern, risk float64) []string {
	var recs []string
	for _, p := range patterns {
		if msg, ok := patternRecommendations[p.Pattern]; ok {
			recs = append(recs, msg)
		}
	}

	if len(recs) == 0 && risk < gamingRiskThreshold {
		recs = append(recs, "Healthy usage pattern, keep it up")
	}

	return recs
}

func sortedIndices(flagged map[int]bool) []int {
	indices := make([]int, 0, len(flagged))
	for i := range flagged {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

func clampRisk(risk float64) float64 {
	if risk < 0 {
		return 0
	}
	if risk > 100 {
		return 100
	}
	return risk
}
