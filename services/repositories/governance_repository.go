package repositories

import (
	"time"

	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GovernanceRepository handles validation history, provenance and audit records
type GovernanceRepository struct {
	BaseRepository
}

func NewGovernanceRepository(db *gorm.DB) *GovernanceRepository {
	return &GovernanceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// GetValidationLogs returns the time-ordered outcome history for one attempt
// within [since, until].
func (ds *GovernanceRepository) GetValidationLogs(userID, attemptID string, since, until time.Time) ([]model.ValidationLog, error) {
	var logs []model.ValidationLog
	err := ds.db.
		Where("user_id = ? AND attempt_id = ? AND timestamp >= ? AND timestamp <= ?", userID, attemptID, since, until).
		Order("timestamp ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (ds *GovernanceRepository) CreateValidationLog(entry *model.ValidationLog) error {
	if entry.ID == "" {
		id, _ := uuid.NewV7()
		entry.ID = id.String()
	}
	entry.CreatedAt = time.Now()
	return ds.db.Create(entry).Error
}

func (ds *GovernanceRepository) GetInteraction(id string) (*model.AIInteraction, error) {
	var interaction model.AIInteraction
	if err := ds.db.Where("id = ?", id).First(&interaction).Error; err != nil {
		return nil, err
	}
	return &interaction, nil
}

func (ds *GovernanceRepository) CreateInteraction(interaction *model.AIInteraction) (*model.AIInteraction, error) {
	if interaction.ID == "" {
		id, _ := uuid.NewV7()
		interaction.ID = id.String()
	}
	interaction.CreatedAt = time.Now()
	interaction.UpdatedAt = time.Now()
	if err := ds.db.Create(interaction).Error; err != nil {
		return nil, err
	}
	return interaction, nil
}

func (ds *GovernanceRepository) MarkInteractionCopied(id string, at time.Time) error {
	return ds.db.Model(&model.AIInteraction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"was_copied": true,
			"copied_at":  at,
			"updated_at": time.Now(),
		}).Error
}

func (ds *GovernanceRepository) MarkInteractionPasted(id string, at time.Time, pastedChars int) error {
	return ds.db.Model(&model.AIInteraction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"was_pasted":        true,
			"pasted_at":         at,
			"pasted_code_chars": pastedChars,
			"updated_at":        time.Now(),
		}).Error
}

func (ds *GovernanceRepository) CreateProvenance(record *model.CodeProvenance) error {
	if record.ID == "" {
		id, _ := uuid.NewV7()
		record.ID = id.String()
	}
	record.CreatedAt = time.Now()
	return ds.db.Create(record).Error
}

// SumProvenanceChars totals AI-attributed pasted characters for an attempt.
func (ds *GovernanceRepository) SumProvenanceChars(attemptID string) (int64, error) {
	var total int64
	err := ds.db.Model(&model.CodeProvenance{}).
		Where("attempt_id = ?", attemptID).
		Select("COALESCE(SUM(pasted_chars), 0)").
		Scan(&total).Error
	return total, err
}

func (ds *GovernanceRepository) CountProvenance(attemptID string) (int64, error) {
	var count int64
	err := ds.db.Model(&model.CodeProvenance{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error
	return count, err
}

func (ds *GovernanceRepository) CreateDecision(decision *model.GovernanceDecision) error {
	if decision.ID == "" {
		id, _ := uuid.NewV7()
		decision.ID = id.String()
	}
	decision.CreatedAt = time.Now()
	return ds.db.Create(decision).Error
}

func (ds *GovernanceRepository) GetDecisionsSince(since time.Time) ([]model.GovernanceDecision, error) {
	var decisions []model.GovernanceDecision
	err := ds.db.
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&decisions).Error
	if err != nil {
		return nil, err
	}
	return decisions, nil
}
