package middleware

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/codeforge-academy/sentinel_api/services"
	"github.com/codeforge-academy/sentinel_api/shared"
)

// RateLimitMiddleware applies endpoint-type request limits at the HTTP edge,
// keyed by client IP or authenticated user. This is transport plumbing; the
// per-user AI consultation quota lives in services.RateLimitService.
type RateLimitMiddleware struct {
	context.DefaultService

	configs map[string]*EndpointLimit
	mutex   sync.RWMutex

	redisSvc *services.RedisService
}

type EndpointLimit struct {
	EndpointType string
	MaxRequests  int
	WindowSize   time.Duration
	Description  string
}

const RATE_LIMIT_MIDDLEWARE_SVC = "rate_limit"

func (svc *RateLimitMiddleware) Id() string {
	return RATE_LIMIT_MIDDLEWARE_SVC
}

func (svc *RateLimitMiddleware) Configure(ctx *context.Context) error {
	svc.redisSvc = ctx.Service(services.REDIS_SVC).(*services.RedisService)

	svc.configs = make(map[string]*EndpointLimit)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitMiddleware) Start() error {
	svc.initDefaultConfigs()
	return nil
}

func (svc *RateLimitMiddleware) initDefaultConfigs() {
	svc.configs = map[string]*EndpointLimit{
		// Copy/paste telemetry arrives per keystroke burst; allow plenty.
		"copypaste_track": {
			EndpointType: "copypaste_track",
			MaxRequests:  120,
			WindowSize:   time.Minute,
			Description:  "Copy-paste tracking rate limit",
		},

		"behavior_analysis": {
			EndpointType: "behavior_analysis",
			MaxRequests:  30,
			WindowSize:   time.Minute,
			Description:  "Behavior analysis rate limit",
		},

		// General API calls per IP
		"api_general": {
			EndpointType: "api_general",
			MaxRequests:  1000,
			WindowSize:   time.Hour,
			Description:  "General API rate limit per IP",
		},

		// Admin batch operations are expensive; keep them rare.
		"admin_batch": {
			EndpointType: "admin_batch",
			MaxRequests:  10,
			WindowSize:   10 * time.Minute,
			Description:  "Admin batch operation rate limit",
		},
	}
}

func (svc *RateLimitMiddleware) IsAllowed(c *fiber.Ctx, identifier, endpointType string) (bool, int, time.Time, error) {
	svc.mutex.RLock()
	config, exists := svc.configs[endpointType]
	svc.mutex.RUnlock()

	now := time.Now()
	if !exists {
		return true, -1, now, nil
	}

	bucket := now.UnixNano() / int64(config.WindowSize)
	key := fmt.Sprintf("httplimit:%s:%s:%d", endpointType, identifier, bucket)

	counts, err := svc.redisSvc.IncrementBatch(c.UserContext(), []services.CounterIncrement{
		{Key: key, Amount: 1, Expiry: config.WindowSize},
	})
	if err != nil {
		return false, 0, now, err
	}

	resetAt := time.Unix(0, (bucket+1)*int64(config.WindowSize))
	remaining := config.MaxRequests - int(counts[0])
	if remaining < 0 {
		remaining = 0
	}

	return counts[0] <= int64(config.MaxRequests), remaining, resetAt, nil
}

// RateLimit creates a rate limiting middleware for specific endpoint types
func (svc *RateLimitMiddleware) RateLimit(endpointType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := svc.getIdentifier(c)

		allowed, remaining, resetAt, err := svc.IsAllowed(c, identifier, endpointType)
		if err != nil {
			log.Printf("Rate limit check error for %s (%s): %v", endpointType, identifier, err)
			// Edge limiting is best-effort; the consultation quota downstream
			// still fails closed.
			return c.Next()
		}

		svc.addRateLimitHeaders(c, remaining, resetAt)

		if !allowed {
			return svc.handleRateLimitExceeded(c, endpointType, resetAt)
		}

		return c.Next()
	}
}

// IPRateLimit applies general rate limiting by IP address
func (svc *RateLimitMiddleware) IPRateLimit() fiber.Handler {
	return svc.RateLimit("api_general")
}

// ==================== HELPER FUNCTIONS ====================

func (svc *RateLimitMiddleware) getIdentifier(c *fiber.Ctx) string {
	if userID, ok := c.Locals(shared.UserID).(string); ok && userID != "" {
		return userID
	}
	return getClientIP(c)
}

func (svc *RateLimitMiddleware) addRateLimitHeaders(c *fiber.Ctx, remaining int, resetAt time.Time) {
	if remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	c.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func (svc *RateLimitMiddleware) handleRateLimitExceeded(c *fiber.Ctx, endpointType string, resetAt time.Time) error {
	retryAfter := int(time.Until(resetAt).Seconds())
	if retryAfter > 0 {
		c.Set("Retry-After", strconv.Itoa(retryAfter))
	}

	response := map[string]interface{}{
		"error":       "Rate limit exceeded",
		"retry_after": retryAfter,
	}

	return shared.ResponseJSON(c, fiber.StatusTooManyRequests, svc.getRateLimitMessage(endpointType), response)
}

func (svc *RateLimitMiddleware) getRateLimitMessage(endpointType string) string {
	messages := map[string]string{
		"copypaste_track":   "Too many tracking events. Please slow down.",
		"behavior_analysis": "Too many analysis requests. Please try again later.",
		"api_general":       "Too many requests. Please slow down.",
		"admin_batch":       "Too many batch operations. Please wait before retrying.",
	}

	if message, exists := messages[endpointType]; exists {
		return message
	}

	return "Too many requests. Please try again later."
}

// ==================== UTILITY FUNCTIONS ====================

func getClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	// Check for real IP header
	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Fall back to remote address
	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}
