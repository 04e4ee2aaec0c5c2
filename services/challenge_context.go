package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/shared"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ChallengeContextService is a cache-aside store of derived challenge
// metadata. Entries carry a fixed TTL and are rebuilt from the canonical
// record whenever stale or missing. Two concurrent misses for the same id may
// both rebuild and write an equivalent entry; rebuild is a pure function of
// the canonical record, so the duplicate work is accepted instead of a lock.
type ChallengeContextService struct {
	appContext.DefaultService

	ttl     time.Duration
	deriver ContextDeriver
	stats   *CacheStats

	redisSvc *RedisService
	sqlSvc   *PostgresService
}

// CacheStats counts hits and misses since process start. It is injected
// rather than package-global so tests and multi-cache setups keep their own
// counters; Reset restores the start-of-process state.
type CacheStats struct {
	hits    atomic.Int64
	misses  atomic.Int64
	started time.Time
}

func NewCacheStats() *CacheStats {
	return &CacheStats{started: time.Now()}
}

func (cs *CacheStats) Hit()  { cs.hits.Add(1) }
func (cs *CacheStats) Miss() { cs.misses.Add(1) }

func (cs *CacheStats) Snapshot() (hits, misses int64) {
	return cs.hits.Load(), cs.misses.Load()
}

func (cs *CacheStats) Reset() {
	cs.hits.Store(0)
	cs.misses.Store(0)
	cs.started = time.Now()
}

const CHALLENGE_CONTEXT_SVC = "challenge_context_svc"

const contextKeyPrefix = "challengectx:"

// statsSampleLimit bounds how many cached entries GetContextStats inspects.
const statsSampleLimit = 50

func (svc ChallengeContextService) Id() string {
	return CHALLENGE_CONTEXT_SVC
}

func (svc *ChallengeContextService) Configure(ctx *appContext.Context) error {
	svc.ttl = envDuration("CHALLENGE_CONTEXT_TTL", 10*time.Minute)
	svc.deriver = NewVocabularyDeriver()
	svc.stats = NewCacheStats()
	return svc.DefaultService.Configure(ctx)
}

func (svc *ChallengeContextService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

// SetDeriver swaps the derivation strategy. Intended for vocabularies other
// than the default; safe only before the service starts serving.
func (svc *ChallengeContextService) SetDeriver(deriver ContextDeriver) {
	svc.deriver = deriver
}

func (svc *ChallengeContextService) Stats() *CacheStats {
	return svc.stats
}

// ==================== CACHE-ASIDE PATH ====================

// GetChallengeContext returns the cached context for the challenge, rebuilding
// it from the canonical record on a miss. A missing canonical record is a
// not-found error; a context cannot be synthesized from nothing.
func (svc *ChallengeContextService) GetChallengeContext(ctx context.Context, challengeID string) (*dto.ChallengeContext, error) {
	var cached dto.ChallengeContext
	found, err := svc.redisSvc.GetJSON(ctx, svc.cacheKey(challengeID), &cached)
	if err != nil {
		return nil, fmt.Errorf("failed to read context cache: %w", err)
	}
	if found {
		svc.stats.Hit()
		recordCacheHit()
		return &cached, nil
	}

	svc.stats.Miss()
	recordCacheMiss()
	return svc.rebuild(ctx, challengeID)
}

// RefreshChallengeContext evicts then rebuilds, bypassing the miss path, to
// force freshness after a canonical record edit.
func (svc *ChallengeContextService) RefreshChallengeContext(ctx context.Context, challengeID string) (*dto.ChallengeContext, error) {
	if err := svc.redisSvc.Delete(ctx, svc.cacheKey(challengeID)); err != nil {
		return nil, fmt.Errorf("failed to evict context %s: %w", challengeID, err)
	}
	return svc.rebuild(ctx, challengeID)
}

// PrewarmCache loads contexts sequentially, isolating per-id failures so one
// bad id never aborts the batch.
func (svc *ChallengeContextService) PrewarmCache(ctx context.Context, challengeIDs []string) *dto.PrewarmResult {
	result := &dto.PrewarmResult{Requested: len(challengeIDs)}

	for _, id := range challengeIDs {
		if _, err := svc.GetChallengeContext(ctx, id); err != nil {
			log.Printf("Prewarm failed for challenge %s: %v", id, err)
			result.Failures = append(result.Failures, dto.PrewarmFailure{
				ChallengeID: id,
				Error:       err.Error(),
			})
			continue
		}
		result.Warmed++
	}

	return result
}

// GetContextStats samples a bounded number of cached entries for keyword and
// pattern averages plus a category histogram. The hit rate is best-effort,
// accumulated since process start.
func (svc *ChallengeContextService) GetContextStats(ctx context.Context) (*dto.ContextCacheStats, error) {
	keys, err := svc.redisSvc.ScanKeys(ctx, contextKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate context cache: %w", err)
	}
	if len(keys) > statsSampleLimit {
		keys = keys[:statsSampleLimit]
	}

	stats := &dto.ContextCacheStats{
		CategoryCounts:     map[string]int{},
		StatsCollectedFrom: svc.stats.started,
	}

	var totalKeywords, totalPatterns int
	for _, key := range keys {
		var entry dto.ChallengeContext
		found, err := svc.redisSvc.GetJSON(ctx, key, &entry)
		if err != nil || !found {
			// Entry expired between scan and read; skip it.
			continue
		}
		stats.SampledEntries++
		totalKeywords += len(entry.Keywords)
		totalPatterns += len(entry.ForbiddenPatterns)
		stats.CategoryCounts[entry.Category]++
	}

	if stats.SampledEntries > 0 {
		stats.AvgKeywords = float64(totalKeywords) / float64(stats.SampledEntries)
		stats.AvgPatterns = float64(totalPatterns) / float64(stats.SampledEntries)
	}

	hits, misses := svc.stats.Snapshot()
	stats.Hits = hits
	stats.Misses = misses
	if hits+misses > 0 {
		stats.HitRate = float64(hits) / float64(hits+misses)
	}

	return stats, nil
}

// ==================== REBUILD ====================

func (svc *ChallengeContextService) rebuild(ctx context.Context, challengeID string) (*dto.ChallengeContext, error) {
	challenge, err := svc.sqlSvc.Challenges().GetChallenge(challengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("challenge %s not found", challengeID))
		}
		return nil, fmt.Errorf("failed to load challenge %s: %w", challengeID, err)
	}

	derived := svc.deriver.Derive(challenge)

	if err := svc.redisSvc.Set(ctx, svc.cacheKey(challengeID), derived, svc.ttl); err != nil {
		return nil, fmt.Errorf("failed to cache context %s: %w", challengeID, err)
	}

	return derived, nil
}

func (svc *ChallengeContextService) cacheKey(challengeID string) string {
	return contextKeyPrefix + challengeID
}
