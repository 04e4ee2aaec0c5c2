package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/codeforge-academy/sentinel_api/shared"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ContentRiskScorer is the upstream prompt scorer contract. Only its external
// behavior is known here; implementations may call a remote service or score
// locally.
type ContentRiskScorer interface {
	Score(ctx context.Context, prompt string, challengeCtx *dto.ChallengeContext) (*dto.ContentRiskResult, error)
}

// GovernanceService composes the rate limiter, context cache, content scorer
// and behavior analyzer into one per-request decision plus an audit record.
// It holds no decision state of its own.
type GovernanceService struct {
	appContext.DefaultService

	scorer ContentRiskScorer

	rateLimitSvc *RateLimitService
	contextSvc   *ChallengeContextService
	behaviorSvc  *BehaviorAnalysisService
	sqlSvc       *PostgresService
	minioSvc     *MinIOService
}

const GOVERNANCE_SVC = "governance_svc"

const (
	blockThreshold    = 80.0
	throttleThreshold = 60.0

	contentRiskWeight  = 0.6
	behaviorRiskWeight = 0.4
)

func (svc GovernanceService) Id() string {
	return GOVERNANCE_SVC
}

func (svc *GovernanceService) Configure(ctx *appContext.Context) error {
	if svc.scorer == nil {
		svc.scorer = NewPatternContentScorer()
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *GovernanceService) Start() error {
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.contextSvc = svc.Service(CHALLENGE_CONTEXT_SVC).(*ChallengeContextService)
	svc.behaviorSvc = svc.Service(BEHAVIOR_SVC).(*BehaviorAnalysisService)
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.minioSvc = svc.Service(MINIO_SVC).(*MinIOService)
	return nil
}

// SetScorer overrides the content scorer; must be called before Configure.
func (svc *GovernanceService) SetScorer(scorer ContentRiskScorer) {
	svc.scorer = scorer
}

// ==================== DECISION PATH ====================

// EvaluateRequest produces the allow/throttle/block decision for one AI
// consultation and writes the audit trail. Policy denials are successful
// results; only infrastructure and not-found conditions surface as errors.
func (svc *GovernanceService) EvaluateRequest(ctx context.Context, userID string, req dto.GovernanceCheckRequest) (*dto.GovernanceDecisionResponse, error) {
	rateResult, err := svc.rateLimitSvc.CheckLimit(ctx, userID, req.TokensRequested)
	if err != nil {
		return nil, err
	}
	if !rateResult.Allowed {
		decision := svc.rateDeniedDecision(ctx, userID, req, rateResult)
		svc.persistDecision(userID, req, decision)
		return decision, nil
	}

	challengeCtx, err := svc.contextSvc.GetChallengeContext(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	content, err := svc.scorer.Score(ctx, req.Prompt, challengeCtx)
	if err != nil {
		return nil, shared.NewInfrastructureError("content risk scorer unavailable", err)
	}

	// Degrade policy: a history-store failure contributes zero additional
	// risk rather than failing a decision already backed by content scoring.
	behaviorRisk := 0.0
	isGaming := false
	var recommendations []string
	analysis, err := svc.behaviorSvc.AnalyzePromptSequence(ctx, userID, req.AttemptID, req.LookbackMinutes)
	if err != nil {
		log.Printf("Behavior analysis degraded for user %s attempt %s: %v", userID, req.AttemptID, err)
	} else {
		behaviorRisk = analysis.OverallRisk
		isGaming = analysis.IsGamingAttempt
		recommendations = analysis.Recommendations
	}

	combined := clampRisk(content.RiskScore*contentRiskWeight + behaviorRisk*behaviorRiskWeight)

	action, classification, reason := resolveAction(combined, isGaming, content)

	decision := &dto.GovernanceDecisionResponse{
		Action:          action,
		Classification:  classification,
		Reason:          reason,
		ContentRisk:     content.RiskScore,
		BehaviorRisk:    behaviorRisk,
		CombinedRisk:    combined,
		IsGamingAttempt: isGaming,
		RateLimit:       rateResult,
		Recommendations: recommendations,
		DecisionID:      newDecisionID(),
		EvaluatedAt:     time.Now(),
	}

	svc.persistDecision(userID, req, decision)
	recordDecision(action, combined)

	return decision, nil
}

func (svc *GovernanceService) rateDeniedDecision(ctx context.Context, userID string, req dto.GovernanceCheckRequest, rateResult *dto.RateLimitResult) *dto.GovernanceDecisionResponse {
	action := shared.ActionThrottle
	reason := rateLimitReasonText(rateResult.Reason)
	if rateResult.Reason == ReasonLimiterUnavailable {
		// Fail-closed denial from the limiter; surfaced as a block so the
		// client backs off rather than retrying into a degraded store.
		action = shared.ActionBlock
	}

	// A quota denial on top of a gaming-grade history escalates to a block.
	// Same degrade policy as the main path: a history-store failure leaves
	// the plain throttle standing.
	behaviorRisk := 0.0
	isGaming := false
	if rateResult.Reason != ReasonLimiterUnavailable {
		analysis, err := svc.behaviorSvc.AnalyzePromptSequence(ctx, userID, req.AttemptID, req.LookbackMinutes)
		if err != nil {
			log.Printf("Behavior analysis degraded for user %s attempt %s: %v", userID, req.AttemptID, err)
		} else {
			behaviorRisk = analysis.OverallRisk
			isGaming = analysis.IsGamingAttempt
			if isGaming {
				action = shared.ActionBlock
				reason = "Rate limit exceeded during a suspected gaming attempt"
			}
		}
	}

	decision := &dto.GovernanceDecisionResponse{
		Action:          action,
		Classification:  shared.ClassificationWarning,
		Reason:          reason,
		BehaviorRisk:    behaviorRisk,
		IsGamingAttempt: isGaming,
		RateLimit:       rateResult,
		DecisionID:      newDecisionID(),
		EvaluatedAt:     time.Now(),
	}
	recordDecision(action, 0)
	return decision
}

// resolveAction maps combined risk and the gaming verdict onto the closed
// action/classification enumerations.
func resolveAction(combined float64, isGaming bool, content *dto.ContentRiskResult) (string, string, string) {
	switch {
	case combined >= blockThreshold:
		return shared.ActionBlock, shared.ClassificationBlocked, "Combined risk exceeds blocking threshold"
	case combined >= throttleThreshold:
		return shared.ActionThrottle, shared.ClassificationWarning, "Combined risk exceeds throttling threshold"
	case isGaming:
		return shared.ActionReview, shared.ClassificationWarning, "Behavioral gaming pattern flagged for review"
	default:
		reason := "Request within policy"
		if len(content.Reasons) > 0 {
			reason = strings.Join(content.Reasons, "; ")
		}
		return shared.ActionAllow, content.Classification, reason
	}
}

// ensureAttempt opens the working-session row the first time an attempt shows
// up. Bookkeeping only; failures are logged and never change the decision.
func (svc *GovernanceService) ensureAttempt(userID string, req dto.GovernanceCheckRequest) {
	repo := svc.sqlSvc.Challenges()

	_, err := repo.GetAttempt(req.AttemptID)
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Failed to load attempt %s: %v", req.AttemptID, err)
		return
	}

	if _, err := repo.CreateAttempt(&model.ChallengeAttempt{
		ID:          req.AttemptID,
		UserID:      userID,
		ChallengeID: req.ChallengeID,
		Status:      "in_progress",
		StartedAt:   time.Now(),
	}); err != nil {
		log.Printf("Failed to open attempt session %s: %v", req.AttemptID, err)
	}
}

// persistDecision appends the outcome history entry and the audit record.
// Audit failures are logged, never allowed to change an already-made decision.
func (svc *GovernanceService) persistDecision(userID string, req dto.GovernanceCheckRequest, decision *dto.GovernanceDecisionResponse) {
	svc.ensureAttempt(userID, req)

	repo := svc.sqlSvc.Governance()

	logEntry := &model.ValidationLog{
		UserID:         userID,
		AttemptID:      req.AttemptID,
		RiskScore:      decision.CombinedRisk,
		Classification: decision.Classification,
		Timestamp:      decision.EvaluatedAt,
	}
	if err := repo.CreateValidationLog(logEntry); err != nil {
		log.Printf("Failed to append validation log for user %s: %v", userID, err)
	}

	audit := &model.GovernanceDecision{
		ID:             decision.DecisionID,
		UserID:         userID,
		AttemptID:      req.AttemptID,
		ChallengeID:    req.ChallengeID,
		Action:         decision.Action,
		Classification: decision.Classification,
		ContentRisk:    decision.ContentRisk,
		BehaviorRisk:   decision.BehaviorRisk,
		CombinedRisk:   decision.CombinedRisk,
		IsGaming:       decision.IsGamingAttempt,
		Reason:         decision.Reason,
	}
	if err := repo.CreateDecision(audit); err != nil {
		log.Printf("Failed to write audit record %s: %v", decision.DecisionID, err)
	}
}

// ==================== AUDIT EXPORT ====================

// ExportAuditLog streams decision audit records since the given instant to
// object storage as a JSON document.
func (svc *GovernanceService) ExportAuditLog(ctx context.Context, since time.Time) (*dto.AuditExportResult, error) {
	decisions, err := svc.sqlSvc.Governance().GetDecisionsSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit records: %w", err)
	}

	payload, err := json.Marshal(decisions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit export: %w", err)
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("audit/%s/decisions-%d.json", now.Format("2006-01-02"), now.UnixNano())

	if _, err := svc.minioSvc.UploadObject(ctx, objectName, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		return nil, err
	}

	return &dto.AuditExportResult{
		Bucket:     svc.minioSvc.GetBucketName(),
		ObjectName: objectName,
		Records:    len(decisions),
		SizeBytes:  int64(len(payload)),
		ExportedAt: now,
	}, nil
}

// ==================== DEFAULT SCORER ====================

// PatternContentScorer is the built-in stand-in for the upstream semantic
// scorer: it applies the context's forbidden patterns and reports how far the
// prompt drifts from the challenge's keywords. Deployments with a real scorer
// inject it via SetScorer.
type PatternContentScorer struct{}

func NewPatternContentScorer() *PatternContentScorer {
	return &PatternContentScorer{}
}

func (s *PatternContentScorer) Score(ctx context.Context, prompt string, challengeCtx *dto.ChallengeContext) (*dto.ContentRiskResult, error) {
	risk := 0.0
	var reasons []string

	for _, pattern := range challengeCtx.ForbiddenPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(prompt) {
			risk += 40
			reasons = append(reasons, fmt.Sprintf("prompt matches forbidden pattern %q", pattern))
		}
	}

	lower := strings.ToLower(prompt)
	onTopic := false
	for _, keyword := range challengeCtx.Keywords {
		if strings.Contains(lower, keyword) {
			onTopic = true
			break
		}
	}
	if !onTopic && len(challengeCtx.Keywords) > 0 {
		risk += 20
		reasons = append(reasons, "prompt does not reference challenge topics")
	}

	risk = clampRisk(risk)

	classification := shared.ClassificationSafe
	switch {
	case risk >= blockThreshold:
		classification = shared.ClassificationBlocked
	case risk >= 40:
		classification = shared.ClassificationWarning
	}

	return &dto.ContentRiskResult{
		RiskScore:      risk,
		Classification: classification,
		Reasons:        reasons,
	}, nil
}

// ==================== HELPERS ====================

func rateLimitReasonText(reason string) string {
	messages := map[string]string{
		ReasonMinuteLimit:        "Too many AI consultations this minute. Please slow down.",
		ReasonHourLimit:          "Hourly AI consultation limit reached. Please take a break.",
		ReasonDayTokenLimit:      "Daily token budget exhausted. Quota resets at midnight UTC.",
		ReasonBurst:              "Requests are arriving too quickly. Please pause briefly.",
		ReasonLimiterUnavailable: "Rate limiting temporarily unavailable. Please retry shortly.",
	}
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return "Request rate limited. Please try again later."
}

func newDecisionID() string {
	id, _ := uuid.NewV7()
	return id.String()
}
