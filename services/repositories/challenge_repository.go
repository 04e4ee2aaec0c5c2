package repositories

import (
	"time"

	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChallengeRepository handles canonical challenge record operations
type ChallengeRepository struct {
	BaseRepository
}

func NewChallengeRepository(db *gorm.DB) *ChallengeRepository {
	return &ChallengeRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (ds *ChallengeRepository) GetChallenge(id string) (*model.Challenge, error) {
	var challenge model.Challenge
	if err := ds.db.Where("id = ?", id).First(&challenge).Error; err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (ds *ChallengeRepository) CreateChallenge(challenge *model.Challenge) (*model.Challenge, error) {
	if challenge.ID == "" {
		id, _ := uuid.NewV7()
		challenge.ID = id.String()
	}
	challenge.CreatedAt = time.Now()
	challenge.UpdatedAt = time.Now()

	if err := ds.db.Create(challenge).Error; err != nil {
		return nil, err
	}
	return challenge, nil
}

func (ds *ChallengeRepository) GetAttempt(id string) (*model.ChallengeAttempt, error) {
	var attempt model.ChallengeAttempt
	if err := ds.db.Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (ds *ChallengeRepository) CreateAttempt(attempt *model.ChallengeAttempt) (*model.ChallengeAttempt, error) {
	if attempt.ID == "" {
		id, _ := uuid.NewV7()
		attempt.ID = id.String()
	}
	if err := ds.db.Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (ds *ChallengeRepository) GetAttemptStats(attemptID string) (*model.AttemptStats, error) {
	var stats model.AttemptStats
	if err := ds.db.Where("attempt_id = ?", attemptID).First(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

func (ds *ChallengeRepository) UpsertAttemptStats(stats *model.AttemptStats) error {
	stats.UpdatedAt = time.Now()
	return ds.db.Save(stats).Error
}
