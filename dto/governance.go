package dto

import "time"

// ==================== CHALLENGE CONTEXT ====================

type ChallengeContext struct {
	ChallengeID        string            `json:"challenge_id"`
	Title              string            `json:"title"`
	Category           string            `json:"category"`
	Difficulty         string            `json:"difficulty"`
	Keywords           []string          `json:"keywords"`
	AllowedTopics      []string          `json:"allowed_topics"`
	ForbiddenPatterns  []string          `json:"forbidden_patterns"` // regex strings
	TargetMetrics      map[string]string `json:"target_metrics,omitempty"`
	LearningObjectives []string          `json:"learning_objectives"`
	TechStack          []string          `json:"tech_stack"`
	DerivedAt          time.Time         `json:"derived_at"`
}

type PrewarmFailure struct {
	ChallengeID string `json:"challenge_id"`
	Error       string `json:"error"`
}

type PrewarmResult struct {
	Requested int              `json:"requested"`
	Warmed    int              `json:"warmed"`
	Failures  []PrewarmFailure `json:"failures,omitempty"`
}

type ContextCacheStats struct {
	SampledEntries     int            `json:"sampled_entries"`
	AvgKeywords        float64        `json:"avg_keywords"`
	AvgPatterns        float64        `json:"avg_patterns"`
	CategoryCounts     map[string]int `json:"category_counts"`
	Hits               int64          `json:"hits"`
	Misses             int64          `json:"misses"`
	HitRate            float64        `json:"hit_rate"`
	StatsCollectedFrom time.Time      `json:"stats_collected_from"`
}

// ==================== COPY-PASTE ====================

type CopyPasteRequest struct {
	AttemptID           string `json:"attempt_id" validate:"required"`
	Action              string `json:"action" validate:"required,oneof=copy paste"`
	Content             string `json:"content" validate:"required"`
	LineCount           int    `json:"line_count,omitempty"`
	SourceInteractionID string `json:"source_interaction_id,omitempty"`
}

type CopyPasteResult struct {
	Tracked       bool    `json:"tracked"`
	Matched       bool    `json:"matched"`
	Similarity    float64 `json:"similarity,omitempty"`
	InteractionID string  `json:"interaction_id,omitempty"`
	TimeDeltaMs   int64   `json:"time_delta_ms,omitempty"`
}

// CopyEvent is the short-lived record stored between a copy and a later paste.
type CopyEvent struct {
	UserID              string    `json:"user_id"`
	AttemptID           string    `json:"attempt_id"`
	Content             string    `json:"content"`
	LineCount           int       `json:"line_count"`
	SourceInteractionID string    `json:"source_interaction_id,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// ==================== TEMPORAL ANALYSIS ====================

type SequenceEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	RiskScore      float64   `json:"risk_score"`
	Classification string    `json:"classification"`
}

type DetectedPattern struct {
	Pattern          string  `json:"pattern"`
	Confidence       float64 `json:"confidence"`
	RiskContribution float64 `json:"risk_contribution"`
	Indices          []int   `json:"indices"`
}

type BehaviorMetrics struct {
	AvgIntervalSeconds float64 `json:"avg_interval_seconds"`
	Coherence          float64 `json:"coherence"`
	ComplexityTrend    string  `json:"complexity_trend"` // increasing, decreasing, erratic, stable
	DependencyTrend    string  `json:"dependency_trend"`
}

type AnalysisWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
}

type TemporalAnalysisResult struct {
	UserID           string            `json:"user_id"`
	AttemptID        string            `json:"attempt_id"`
	WindowAnalyzed   AnalysisWindow    `json:"window_analyzed"`
	DetectedPatterns []DetectedPattern `json:"detected_patterns"`
	BehaviorMetrics  BehaviorMetrics   `json:"behavior_metrics"`
	OverallRisk      float64           `json:"overall_risk"`
	IsGamingAttempt  bool              `json:"is_gaming_attempt"`
	Recommendations  []string          `json:"recommendations"`
}

// ==================== ORCHESTRATION ====================

type GovernanceCheckRequest struct {
	AttemptID       string `json:"attempt_id" validate:"required"`
	ChallengeID     string `json:"challenge_id" validate:"required"`
	Prompt          string `json:"prompt" validate:"required,max=20000"`
	TokensRequested int    `json:"tokens_requested" validate:"min=0"`
	LookbackMinutes int    `json:"lookback_minutes,omitempty" validate:"min=0,max=1440"`
}

type ContentRiskResult struct {
	RiskScore      float64  `json:"risk_score"`
	Classification string   `json:"classification"`
	Reasons        []string `json:"reasons,omitempty"`
}

type GovernanceDecisionResponse struct {
	Action          string             `json:"action"`
	Classification  string             `json:"classification"`
	Reason          string             `json:"reason"`
	ContentRisk     float64            `json:"content_risk"`
	BehaviorRisk    float64            `json:"behavior_risk"`
	CombinedRisk    float64            `json:"combined_risk"`
	IsGamingAttempt bool               `json:"is_gaming_attempt"`
	RateLimit       *RateLimitResult   `json:"rate_limit,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	DecisionID      string             `json:"decision_id"`
	EvaluatedAt     time.Time          `json:"evaluated_at"`
}

type AuditExportResult struct {
	Bucket     string    `json:"bucket"`
	ObjectName string    `json:"object_name"`
	Records    int       `json:"records"`
	SizeBytes  int64     `json:"size_bytes"`
	ExportedAt time.Time `json:"exported_at"`
}
