// model/governance.go
package model

import "time"

// ValidationLog is the append-only outcome history the temporal analyzer reads.
type ValidationLog struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	UserID         string    `json:"user_id" gorm:"not null;index:idx_validation_user_attempt"`
	AttemptID      string    `json:"attempt_id" gorm:"not null;index:idx_validation_user_attempt"`
	RiskScore      float64   `json:"risk_score" gorm:"not null"`
	Classification string    `json:"classification" gorm:"size:20;not null"` // SAFE, WARNING, BLOCKED
	Timestamp      time.Time `json:"timestamp" gorm:"not null;index"`
	CreatedAt      time.Time `json:"created_at"`
}

// AIInteraction records one AI-assistant response shown to a user. Copy and
// paste marks land here so generated output can be traced into submissions.
type AIInteraction struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	UserID          string     `json:"user_id" gorm:"not null;index"`
	AttemptID       string     `json:"attempt_id" gorm:"not null;index"`
	ResponseChars   int        `json:"response_chars" gorm:"default:0"`
	WasCopied       bool       `json:"was_copied" gorm:"default:false"`
	CopiedAt        *time.Time `json:"copied_at,omitempty"`
	WasPasted       bool       `json:"was_pasted" gorm:"default:false"`
	PastedAt        *time.Time `json:"pasted_at,omitempty"`
	PastedCodeChars int        `json:"pasted_code_chars" gorm:"default:0"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CodeProvenance is the durable "pasted-from-AI" attribution record emitted
// when a paste is matched back to a tracked copy.
type CodeProvenance struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"not null;index"`
	AttemptID     string    `json:"attempt_id" gorm:"not null;index"`
	InteractionID string    `json:"interaction_id" gorm:"index"`
	PastedChars   int       `json:"pasted_chars" gorm:"not null"`
	LineCount     int       `json:"line_count" gorm:"default:0"`
	Similarity    float64   `json:"similarity" gorm:"not null"`
	TimeDeltaMs   int64     `json:"time_delta_ms" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}

// GovernanceDecision is the audit record for one orchestrated check.
type GovernanceDecision struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	UserID         string    `json:"user_id" gorm:"not null;index"`
	AttemptID      string    `json:"attempt_id" gorm:"index"`
	ChallengeID    string    `json:"challenge_id" gorm:"index"`
	Action         string    `json:"action" gorm:"size:20;not null"`         // ALLOW, THROTTLE, BLOCK, REVIEW
	Classification string    `json:"classification" gorm:"size:20;not null"` // SAFE, WARNING, BLOCKED
	ContentRisk    float64   `json:"content_risk" gorm:"not null"`
	BehaviorRisk   float64   `json:"behavior_risk" gorm:"not null"`
	CombinedRisk   float64   `json:"combined_risk" gorm:"not null"`
	IsGaming       bool      `json:"is_gaming" gorm:"default:false"`
	Reason         string    `json:"reason" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}
