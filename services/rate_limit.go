package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/codeforge-academy/sentinel_api/dto"
	log "github.com/sirupsen/logrus"
)

// RateLimitService enforces per-user AI consultation quotas over fixed
// minute/hour/calendar-day windows plus a short burst window. All counts live
// in the shared counter store; the service itself holds no per-user state.
//
// Infrastructure failures on the mutating path deny the request (fail-closed):
// an unreachable counter store must never open the door to unbounded use.
type RateLimitService struct {
	appContext.DefaultService

	config RateLimitConfig

	redisSvc *RedisService
}

type RateLimitConfig struct {
	MinuteLimit   int
	HourLimit     int
	DayTokenLimit int

	// BurstThreshold <= 0 disables burst checking.
	BurstThreshold int
	BurstWindow    time.Duration
}

const RATE_LIMIT_SVC = "rate_limit_svc"

const (
	ReasonMinuteLimit        = "minute_limit_exceeded"
	ReasonHourLimit          = "hour_limit_exceeded"
	ReasonDayTokenLimit      = "day_token_limit_exceeded"
	ReasonBurst              = "burst_detected"
	ReasonLimiterUnavailable = "rate_limit_unavailable"

	limiterUnavailableRetryAfter = 30 // seconds
)

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.config = RateLimitConfig{
		MinuteLimit:    envInt("AI_RATE_MINUTE_LIMIT", 10),
		HourLimit:      envInt("AI_RATE_HOUR_LIMIT", 100),
		DayTokenLimit:  envInt("AI_RATE_DAY_TOKEN_LIMIT", 50000),
		BurstThreshold: envInt("AI_BURST_THRESHOLD", 5),
		BurstWindow:    envDuration("AI_BURST_WINDOW", 10*time.Second),
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	return nil
}

func (svc *RateLimitService) Config() RateLimitConfig {
	return svc.config
}

// ==================== CORE RATE LIMITING LOGIC ====================

// CheckLimit counts the request against every window and returns whether it
// may proceed. A nil error with Allowed=false is a policy outcome, not a
// failure; store errors surface as a fail-closed denial.
func (svc *RateLimitService) CheckLimit(ctx context.Context, userID string, tokensRequested int) (*dto.RateLimitResult, error) {
	now := time.Now()

	if svc.config.BurstThreshold > 0 {
		bursting, err := svc.checkBurst(ctx, userID, now)
		if err != nil {
			log.Printf("Burst check failed for %s: %v", userID, err)
			return svc.failClosed(), nil
		}
		if bursting {
			resetAt := now.Add(svc.config.BurstWindow)
			return &dto.RateLimitResult{
				Allowed:    false,
				Remaining:  0,
				ResetAt:    &resetAt,
				Reason:     ReasonBurst,
				RetryAfter: int(svc.config.BurstWindow.Seconds()),
			}, nil
		}
	}

	minuteKey, hourKey, dayKey := svc.windowKeys(userID, now)

	counts, err := svc.redisSvc.IncrementBatch(ctx, []CounterIncrement{
		{Key: minuteKey, Amount: 1, Expiry: time.Minute},
		{Key: hourKey, Amount: 1, Expiry: time.Hour},
		{Key: dayKey, Amount: int64(tokensRequested), Expiry: 24 * time.Hour},
	})
	if err != nil {
		log.Printf("Counter batch failed for %s: %v", userID, err)
		return svc.failClosed(), nil
	}

	minuteCount, hourCount, dayTokens := counts[0], counts[1], counts[2]

	if minuteCount > int64(svc.config.MinuteLimit) {
		resetAt := nextMinute(now)
		return denied(ReasonMinuteLimit, resetAt), nil
	}

	if hourCount > int64(svc.config.HourLimit) {
		resetAt := nextHour(now)
		return denied(ReasonHourLimit, resetAt), nil
	}

	if dayTokens > int64(svc.config.DayTokenLimit) {
		resetAt := nextDay(now)
		return denied(ReasonDayTokenLimit, resetAt), nil
	}

	remaining := svc.config.MinuteLimit - int(minuteCount)
	if hourRemaining := svc.config.HourLimit - int(hourCount); hourRemaining < remaining {
		remaining = hourRemaining
	}

	resetAt := nextMinute(now)
	return &dto.RateLimitResult{
		Allowed:   true,
		Remaining: remaining,
		ResetAt:   &resetAt,
	}, nil
}

// GetRemainingQuota recomputes capacity without counting a request. Store
// errors propagate; the read path carries no fail-closed conversion.
func (svc *RateLimitService) GetRemainingQuota(ctx context.Context, userID string) (*dto.QuotaStatus, error) {
	now := time.Now()
	minuteKey, hourKey, dayKey := svc.windowKeys(userID, now)

	minuteCount, err := svc.redisSvc.GetInt(ctx, minuteKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read minute counter: %w", err)
	}
	hourCount, err := svc.redisSvc.GetInt(ctx, hourKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read hour counter: %w", err)
	}
	dayTokens, err := svc.redisSvc.GetInt(ctx, dayKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read day counter: %w", err)
	}

	return &dto.QuotaStatus{
		UserID: userID,
		Minute: windowQuota(svc.config.MinuteLimit, int(minuteCount), nextMinute(now)),
		Hour:   windowQuota(svc.config.HourLimit, int(hourCount), nextHour(now)),
		Day:    windowQuota(svc.config.DayTokenLimit, int(dayTokens), nextDay(now)),
	}, nil
}

// ResetUserLimits deletes every counter key for the user, including the burst
// list. Returns how many keys were removed.
func (svc *RateLimitService) ResetUserLimits(ctx context.Context, userID string) (int, error) {
	deleted, err := svc.redisSvc.DeleteByPrefix(ctx, svc.userPrefix(userID)+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to reset limits for %s: %w", userID, err)
	}
	log.Printf("Reset %d rate limit keys for user %s", deleted, userID)
	return deleted, nil
}

// ==================== BURST WINDOW ====================

// checkBurst prunes the user's recent-timestamp list to the burst window and
// reports whether this request would exceed the threshold. The new timestamp
// is recorded only when the request is not already bursting.
func (svc *RateLimitService) checkBurst(ctx context.Context, userID string, now time.Time) (bool, error) {
	key := svc.burstKey(userID)
	cutoff := now.Add(-svc.config.BurstWindow)

	raw, err := svc.redisSvc.LRange(ctx, key, 0, int64(svc.config.BurstThreshold))
	if err != nil {
		return false, err
	}

	recent := 0
	for _, entry := range raw {
		nanos, parseErr := strconv.ParseInt(entry, 10, 64)
		if parseErr != nil {
			continue
		}
		if time.Unix(0, nanos).After(cutoff) {
			recent++
		}
	}

	if recent >= svc.config.BurstThreshold {
		return true, nil
	}

	if err := svc.redisSvc.LPush(ctx, key, strconv.FormatInt(now.UnixNano(), 10)); err != nil {
		return false, err
	}
	if err := svc.redisSvc.LTrim(ctx, key, 0, int64(svc.config.BurstThreshold)); err != nil {
		return false, err
	}
	if err := svc.redisSvc.Expire(ctx, key, svc.config.BurstWindow); err != nil {
		return false, err
	}

	return false, nil
}

// ==================== HELPERS ====================

func (svc *RateLimitService) failClosed() *dto.RateLimitResult {
	resetAt := time.Now().Add(limiterUnavailableRetryAfter * time.Second)
	return &dto.RateLimitResult{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    &resetAt,
		Reason:     ReasonLimiterUnavailable,
		RetryAfter: limiterUnavailableRetryAfter,
	}
}

func (svc *RateLimitService) userPrefix(userID string) string {
	return fmt.Sprintf("ratelimit:%s:", userID)
}

func (svc *RateLimitService) burstKey(userID string) string {
	return svc.userPrefix(userID) + "burst"
}

func (svc *RateLimitService) windowKeys(userID string, now time.Time) (string, string, string) {
	prefix := svc.userPrefix(userID)
	minuteKey := fmt.Sprintf("%sminute:%d", prefix, now.Unix()/60)
	hourKey := fmt.Sprintf("%shour:%d", prefix, now.Unix()/3600)
	dayKey := fmt.Sprintf("%sday:%s", prefix, now.UTC().Format("2006-01-02"))
	return minuteKey, hourKey, dayKey
}

func denied(reason string, resetAt time.Time) *dto.RateLimitResult {
	retryAfter := int(time.Until(resetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &dto.RateLimitResult{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    &resetAt,
		Reason:     reason,
		RetryAfter: retryAfter,
	}
}

func windowQuota(limit, used int, resetAt time.Time) dto.WindowQuota {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return dto.WindowQuota{
		Limit:     limit,
		Used:      used,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func nextMinute(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

func nextHour(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}

func nextDay(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
