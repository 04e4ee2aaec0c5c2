package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/codeforge-academy/sentinel_api/shared"
)

func newTestContextService(t *testing.T) (*ChallengeContextService, *PostgresService) {
	t.Helper()

	_, redisSvc := newTestRedis(t)
	sqlSvc := newTestDB(t)

	svc := &ChallengeContextService{
		ttl:      10 * time.Minute,
		deriver:  NewVocabularyDeriver(),
		stats:    NewCacheStats(),
		redisSvc: redisSvc,
		sqlSvc:   sqlSvc,
	}
	return svc, sqlSvc
}

func TestChallengeContext_DeriveOnMiss(t *testing.T) {
	svc, sqlSvc := newTestContextService(t)
	createTestChallenge(t, sqlSvc, "chal-1")

	result, err := svc.GetChallengeContext(context.Background(), "chal-1")
	require.NoError(t, err)

	assert.Equal(t, "chal-1", result.ChallengeID)
	assert.Equal(t, "web", result.Category)
	assert.Contains(t, result.Keywords, "rest")
	assert.Contains(t, result.Keywords, "database")
	assert.Contains(t, result.ForbiddenPatterns, `(?i)write\s+the\s+entire\s+api`)
	// Security patterns apply regardless of category.
	assert.Contains(t, result.ForbiddenPatterns, `(?i)drop\s+table`)
	assert.Equal(t, []string{"http", "rest", "sql"}, result.TechStack)

	hits, misses := svc.Stats().Snapshot()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestChallengeContext_SecondReadServedFromCache(t *testing.T) {
	svc, sqlSvc := newTestContextService(t)
	challenge := createTestChallenge(t, sqlSvc, "chal-1")

	first, err := svc.GetChallengeContext(context.Background(), "chal-1")
	require.NoError(t, err)

	// Remove the canonical record; a cached read must not touch it.
	require.NoError(t, sqlSvc.db.Delete(&model.Challenge{}, "id = ?", challenge.ID).Error)

	second, err := svc.GetChallengeContext(context.Background(), "chal-1")
	require.NoError(t, err)
	assert.Equal(t, first.ChallengeID, second.ChallengeID)
	assert.Equal(t, first.Keywords, second.Keywords)

	hits, misses := svc.Stats().Snapshot()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestChallengeContext_UnknownChallengeIsNotFound(t *testing.T) {
	svc, _ := newTestContextService(t)

	_, err := svc.GetChallengeContext(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestChallengeContext_RefreshPicksUpCanonicalEdit(t *testing.T) {
	svc, sqlSvc := newTestContextService(t)
	createTestChallenge(t, sqlSvc, "chal-1")

	stale, err := svc.GetChallengeContext(context.Background(), "chal-1")
	require.NoError(t, err)
	assert.Equal(t, "web", stale.Category)

	require.NoError(t, sqlSvc.db.Model(&model.Challenge{}).
		Where("id = ?", "chal-1").
		Update("category", "databases").Error)

	// A plain read still serves the stale entry.
	cached, err := svc.GetChallengeContext(context.Background(), "chal-1")
	require.NoError(t, err)
	assert.Equal(t, "web", cached.Category)

	fresh, err := svc.RefreshChallengeContext(context.Background(), "chal-1")
	require.NoError(t, err)
	assert.Equal(t, "databases", fresh.Category)
	assert.Contains(t, fresh.AllowedTopics, "query design")
}

func TestChallengeContext_PrewarmIsolatesFailures(t *testing.T) {
	svc, sqlSvc := newTestContextService(t)
	createTestChallenge(t, sqlSvc, "chal-1")
	createTestChallenge(t, sqlSvc, "chal-2")

	result := svc.PrewarmCache(context.Background(), []string{"chal-1", "missing", "chal-2"})

	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Warmed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "missing", result.Failures[0].ChallengeID)
	assert.NotEmpty(t, result.Failures[0].Error)
}

func TestChallengeContext_StatsSampleCachedEntries(t *testing.T) {
	svc, sqlSvc := newTestContextService(t)
	createTestChallenge(t, sqlSvc, "chal-1")
	createTestChallenge(t, sqlSvc, "chal-2")

	svc.PrewarmCache(context.Background(), []string{"chal-1", "chal-2"})
	_, err := svc.GetChallengeContext(context.Background(), "chal-1")
	require.NoError(t, err)

	stats, err := svc.GetContextStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SampledEntries)
	assert.Equal(t, 2, stats.CategoryCounts["web"])
	assert.Greater(t, stats.AvgKeywords, 0.0)
	assert.Greater(t, stats.AvgPatterns, 0.0)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
}
