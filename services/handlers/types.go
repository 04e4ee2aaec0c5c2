package handlers

import (
	"context"
	"time"

	"github.com/codeforge-academy/sentinel_api/dto"
)

type GovernanceServiceInterface interface {
	EvaluateRequest(ctx context.Context, userID string, req dto.GovernanceCheckRequest) (*dto.GovernanceDecisionResponse, error)
	ExportAuditLog(ctx context.Context, since time.Time) (*dto.AuditExportResult, error)
}

type RateLimitServiceInterface interface {
	GetRemainingQuota(ctx context.Context, userID string) (*dto.QuotaStatus, error)
	ResetUserLimits(ctx context.Context, userID string) (int, error)
}

type CopyPasteServiceInterface interface {
	TrackCopyPaste(ctx context.Context, userID string, req dto.CopyPasteRequest) (*dto.CopyPasteResult, error)
}

type BehaviorServiceInterface interface {
	AnalyzePromptSequence(ctx context.Context, userID, attemptID string, lookbackMinutes int) (*dto.TemporalAnalysisResult, error)
}

type JWTServiceInterface interface {
	GenerateTokenPair(userID, role string) (*dto.TokenPair, error)
}

type ChallengeContextServiceInterface interface {
	RefreshChallengeContext(ctx context.Context, challengeID string) (*dto.ChallengeContext, error)
	PrewarmCache(ctx context.Context, challengeIDs []string) *dto.PrewarmResult
	GetContextStats(ctx context.Context) (*dto.ContextCacheStats, error)
}
