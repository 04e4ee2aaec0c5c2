// model/challenge.go
package model

import (
	"encoding/json"
	"time"
)

// Challenge is the canonical content record a ChallengeContext is derived from.
type Challenge struct {
	ID                string          `json:"id" gorm:"primaryKey"`
	Title             string          `json:"title" gorm:"not null"`
	Description       string          `json:"description" gorm:"type:text"`
	Instructions      string          `json:"instructions" gorm:"type:text"`
	Category          string          `json:"category" gorm:"index;size:50"`
	Difficulty        string          `json:"difficulty" gorm:"size:20"` // beginner, intermediate, advanced
	TechStack         json.RawMessage `json:"tech_stack" gorm:"type:text"`         // JSON array of technologies
	LearningGoals     json.RawMessage `json:"learning_goals" gorm:"type:text"`     // JSON array of objectives
	TargetMetrics     json.RawMessage `json:"target_metrics" gorm:"type:text"`     // JSON object of pass metrics
	DetectionPatterns json.RawMessage `json:"detection_patterns" gorm:"type:text"` // JSON array of per-item regex strings
	XPReward          int             `json:"xp_reward" gorm:"default:50"`
	IsActive          bool            `json:"is_active" gorm:"default:true"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ChallengeAttempt tracks a user's working session on a challenge.
type ChallengeAttempt struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	UserID      string     `json:"user_id" gorm:"not null;index"`
	ChallengeID string     `json:"challenge_id" gorm:"not null;index"`
	Status      string     `json:"status" gorm:"size:20;default:'in_progress'"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Challenge Challenge `json:"challenge" gorm:"foreignKey:ChallengeID"`
}

// AttemptStats aggregates per-attempt observability values, including the
// dependency index (fraction of submitted code attributable to AI output).
type AttemptStats struct {
	AttemptID       string    `json:"attempt_id" gorm:"primaryKey"`
	SubmittedChars  int       `json:"submitted_chars" gorm:"default:0"`
	AICopiedChars   int       `json:"ai_copied_chars" gorm:"default:0"`
	DependencyIndex float64   `json:"dependency_index" gorm:"default:0"`
	PasteCount      int       `json:"paste_count" gorm:"default:0"`
	UpdatedAt       time.Time `json:"updated_at"`
}
