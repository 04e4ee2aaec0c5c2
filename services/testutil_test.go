package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/codeforge-academy/sentinel_api/services/repositories"
)

// newTestRedis spins up an in-process redis and a RedisService bound to it.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisService) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, &RedisService{redis: client}
}

// newTestDB builds an in-memory database with the full schema and a
// PostgresService wired to it. sqlite stands in for postgres; the
// repositories only use portable gorm operations.
func newTestDB(t *testing.T) *PostgresService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Challenge{},
		&model.ChallengeAttempt{},
		&model.AttemptStats{},
		&model.ValidationLog{},
		&model.AIInteraction{},
		&model.CodeProvenance{},
		&model.GovernanceDecision{},
	))

	return &PostgresService{
		db:             db,
		challengeRepo:  repositories.NewChallengeRepository(db),
		governanceRepo: repositories.NewGovernanceRepository(db),
	}
}

func createTestChallenge(t *testing.T, sqlSvc *PostgresService, id string) *model.Challenge {
	t.Helper()

	challenge := &model.Challenge{
		ID:           id,
		Title:        "Build a REST Todo API",
		Description:  "Implement CRUD endpoints over a database",
		Instructions: "Return JSON and validate inputs",
		Category:     "web",
		Difficulty:   "beginner",
		TechStack:    mustJSON(t, []string{"http", "rest", "sql"}),
		LearningGoals: mustJSON(t, []string{
			"Understand REST resource modeling",
		}),
		DetectionPatterns: mustJSON(t, []string{
			`(?i)write\s+the\s+entire\s+api`,
		}),
		IsActive: true,
	}

	created, err := sqlSvc.Challenges().CreateChallenge(challenge)
	require.NoError(t, err)
	return created
}

func createValidationLogs(t *testing.T, sqlSvc *PostgresService, userID, attemptID string, entries []model.ValidationLog) {
	t.Helper()

	for i := range entries {
		entries[i].UserID = userID
		entries[i].AttemptID = attemptID
		require.NoError(t, sqlSvc.Governance().CreateValidationLog(&entries[i]))
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func secondsAgo(base time.Time, seconds int) time.Time {
	return base.Add(-time.Duration(seconds) * time.Second)
}
