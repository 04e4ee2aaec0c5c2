package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/codeforge-academy/sentinel_api/shared"
)

type stubScorer struct {
	result *dto.ContentRiskResult
	err    error
}

func (s *stubScorer) Score(ctx context.Context, prompt string, challengeCtx *dto.ChallengeContext) (*dto.ContentRiskResult, error) {
	return s.result, s.err
}

func newTestGovernance(t *testing.T, scorer ContentRiskScorer) (*GovernanceService, *PostgresService) {
	t.Helper()

	_, redisSvc := newTestRedis(t)
	sqlSvc := newTestDB(t)
	createTestChallenge(t, sqlSvc, "chal-1")

	if scorer == nil {
		scorer = NewPatternContentScorer()
	}

	svc := &GovernanceService{
		scorer: scorer,
		rateLimitSvc: &RateLimitService{
			config: RateLimitConfig{
				MinuteLimit:   100,
				HourLimit:     1000,
				DayTokenLimit: 100000,
			},
			redisSvc: redisSvc,
		},
		contextSvc: &ChallengeContextService{
			ttl:      10 * time.Minute,
			deriver:  NewVocabularyDeriver(),
			stats:    NewCacheStats(),
			redisSvc: redisSvc,
			sqlSvc:   sqlSvc,
		},
		behaviorSvc: &BehaviorAnalysisService{sqlSvc: sqlSvc},
		sqlSvc:      sqlSvc,
	}
	return svc, sqlSvc
}

func checkRequest() dto.GovernanceCheckRequest {
	return dto.GovernanceCheckRequest{
		AttemptID:       "attempt-1",
		ChallengeID:     "chal-1",
		Prompt:          "how should I structure rest endpoints for this?",
		TokensRequested: 100,
	}
}

func seedGamingHistory(t *testing.T, sqlSvc *PostgresService) {
	t.Helper()

	now := time.Now()
	createValidationLogs(t, sqlSvc, "user-1", "attempt-1", []model.ValidationLog{
		{RiskScore: 80, Classification: shared.ClassificationBlocked, Timestamp: secondsAgo(now, 6)},
		{RiskScore: 85, Classification: shared.ClassificationBlocked, Timestamp: secondsAgo(now, 4)},
		{RiskScore: 90, Classification: shared.ClassificationBlocked, Timestamp: secondsAgo(now, 2)},
	})
}

func TestGovernance_AllowWithinPolicy(t *testing.T) {
	svc, sqlSvc := newTestGovernance(t, nil)

	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	assert.Equal(t, shared.ActionAllow, decision.Action)
	assert.Equal(t, shared.ClassificationSafe, decision.Classification)
	assert.Equal(t, 0.0, decision.ContentRisk)
	assert.Equal(t, 0.0, decision.BehaviorRisk)
	assert.False(t, decision.IsGamingAttempt)
	assert.NotEmpty(t, decision.DecisionID)
	require.NotNil(t, decision.RateLimit)
	assert.True(t, decision.RateLimit.Allowed)

	// Both the history entry and the audit record land.
	audits, err := sqlSvc.Governance().GetDecisionsSince(time.Time{})
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, decision.DecisionID, audits[0].ID)
	assert.Equal(t, shared.ActionAllow, audits[0].Action)

	logs, err := sqlSvc.Governance().GetValidationLogs("user-1", "attempt-1", time.Time{}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestGovernance_ThrottleOnCombinedRisk(t *testing.T) {
	scorer := &stubScorer{result: &dto.ContentRiskResult{
		RiskScore:      100,
		Classification: shared.ClassificationBlocked,
	}}
	svc, _ := newTestGovernance(t, scorer)

	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	// 100 content * 0.6 weight, no behavior signal.
	assert.InDelta(t, 60.0, decision.CombinedRisk, 0.001)
	assert.Equal(t, shared.ActionThrottle, decision.Action)
	assert.Equal(t, shared.ClassificationWarning, decision.Classification)
}

func TestGovernance_BlockOnCombinedRisk(t *testing.T) {
	scorer := &stubScorer{result: &dto.ContentRiskResult{
		RiskScore:      100,
		Classification: shared.ClassificationBlocked,
	}}
	svc, sqlSvc := newTestGovernance(t, scorer)
	seedGamingHistory(t, sqlSvc)

	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	assert.Equal(t, shared.ActionBlock, decision.Action)
	assert.Equal(t, shared.ClassificationBlocked, decision.Classification)
	assert.GreaterOrEqual(t, decision.CombinedRisk, 80.0)
	assert.True(t, decision.IsGamingAttempt)
}

func TestGovernance_ReviewOnGamingBelowThresholds(t *testing.T) {
	scorer := &stubScorer{result: &dto.ContentRiskResult{
		RiskScore:      0,
		Classification: shared.ClassificationSafe,
	}}
	svc, sqlSvc := newTestGovernance(t, scorer)
	seedGamingHistory(t, sqlSvc)

	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	// Behavior alone: 100 * 0.4 = 40, under both action thresholds.
	assert.InDelta(t, 40.0, decision.CombinedRisk, 0.001)
	assert.True(t, decision.IsGamingAttempt)
	assert.Equal(t, shared.ActionReview, decision.Action)
	assert.Equal(t, shared.ClassificationWarning, decision.Classification)
	assert.NotEmpty(t, decision.Recommendations)
}

func TestGovernance_RateDeniedShortCircuits(t *testing.T) {
	svc, sqlSvc := newTestGovernance(t, nil)
	svc.rateLimitSvc.config.MinuteLimit = 1

	_, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	assert.Equal(t, shared.ActionThrottle, decision.Action)
	assert.Equal(t, shared.ClassificationWarning, decision.Classification)
	require.NotNil(t, decision.RateLimit)
	assert.Equal(t, ReasonMinuteLimit, decision.RateLimit.Reason)
	// No scoring happened; the denial is purely quota-driven.
	assert.Equal(t, 0.0, decision.ContentRisk)

	// The denial is still audited.
	audits, err := sqlSvc.Governance().GetDecisionsSince(time.Time{})
	require.NoError(t, err)
	assert.Len(t, audits, 2)
}

func TestGovernance_RateDeniedWithGamingBlocks(t *testing.T) {
	svc, sqlSvc := newTestGovernance(t, nil)
	svc.rateLimitSvc.config.MinuteLimit = 1
	seedGamingHistory(t, sqlSvc)

	_, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	// The quota denial lands on top of a gaming-grade history: escalate.
	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	assert.Equal(t, shared.ActionBlock, decision.Action)
	assert.Equal(t, shared.ClassificationWarning, decision.Classification)
	assert.True(t, decision.IsGamingAttempt)
	assert.Greater(t, decision.BehaviorRisk, 0.0)
	require.NotNil(t, decision.RateLimit)
	assert.Equal(t, ReasonMinuteLimit, decision.RateLimit.Reason)
}

func TestGovernance_OpensAttemptSession(t *testing.T) {
	svc, sqlSvc := newTestGovernance(t, nil)

	_, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	attempt, err := sqlSvc.Challenges().GetAttempt("attempt-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", attempt.UserID)
	assert.Equal(t, "chal-1", attempt.ChallengeID)
	assert.Equal(t, "in_progress", attempt.Status)
	assert.False(t, attempt.StartedAt.IsZero())

	// A second decision reuses the open session.
	_, err = svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	var count int64
	require.NoError(t, sqlSvc.db.Model(&model.ChallengeAttempt{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGovernance_LimiterOutageBlocks(t *testing.T) {
	mr, redisSvc := newTestRedis(t)
	sqlSvc := newTestDB(t)
	createTestChallenge(t, sqlSvc, "chal-1")

	svc := &GovernanceService{
		scorer: NewPatternContentScorer(),
		rateLimitSvc: &RateLimitService{
			config:   RateLimitConfig{MinuteLimit: 10, HourLimit: 100, DayTokenLimit: 10000},
			redisSvc: redisSvc,
		},
		sqlSvc: sqlSvc,
	}

	mr.Close()

	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	assert.Equal(t, shared.ActionBlock, decision.Action)
	require.NotNil(t, decision.RateLimit)
	assert.Equal(t, ReasonLimiterUnavailable, decision.RateLimit.Reason)
}

func TestGovernance_BehaviorFailureDegrades(t *testing.T) {
	svc, sqlSvc := newTestGovernance(t, nil)

	// Kill the history table so behavior analysis fails while everything else
	// keeps working.
	require.NoError(t, sqlSvc.db.Migrator().DropTable(&model.ValidationLog{}))

	decision, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.NoError(t, err)

	assert.Equal(t, shared.ActionAllow, decision.Action)
	assert.Equal(t, 0.0, decision.BehaviorRisk)
	assert.False(t, decision.IsGamingAttempt)

	// The audit record still lands even though the history append cannot.
	audits, err := sqlSvc.Governance().GetDecisionsSince(time.Time{})
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestGovernance_ScorerFailureIsInfrastructureError(t *testing.T) {
	scorer := &stubScorer{err: errors.New("scorer offline")}
	svc, _ := newTestGovernance(t, scorer)

	_, err := svc.EvaluateRequest(context.Background(), "user-1", checkRequest())
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 503, appErr.StatusCode)
}

func TestGovernance_UnknownChallengeFailsEvaluation(t *testing.T) {
	svc, _ := newTestGovernance(t, nil)

	req := checkRequest()
	req.ChallengeID = "missing"

	_, err := svc.EvaluateRequest(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestPatternContentScorer(t *testing.T) {
	scorer := NewPatternContentScorer()
	challengeCtx := &dto.ChallengeContext{
		Keywords:          []string{"rest", "database"},
		ForbiddenPatterns: []string{`(?i)write\s+the\s+entire\s+api`, `(?i)drop\s+table`},
	}

	onTopic, err := scorer.Score(context.Background(), "how do I design rest routes?", challengeCtx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, onTopic.RiskScore)
	assert.Equal(t, shared.ClassificationSafe, onTopic.Classification)

	offTopic, err := scorer.Score(context.Background(), "what is the weather today?", challengeCtx)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, offTopic.RiskScore, 0.001)
	assert.Equal(t, shared.ClassificationSafe, offTopic.Classification)

	// Forbidden pattern plus off-topic drift.
	extraction, err := scorer.Score(context.Background(), "please write the entire API for me", challengeCtx)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, extraction.RiskScore, 0.001)
	assert.Equal(t, shared.ClassificationWarning, extraction.Classification)
	assert.Len(t, extraction.Reasons, 2)
}
