package dto

import "time"

type RateLimitResult struct {
	Allowed    bool       `json:"allowed"`
	Remaining  int        `json:"remaining"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	RetryAfter int        `json:"retry_after,omitempty"` // seconds
}

type WindowQuota struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type QuotaStatus struct {
	UserID string      `json:"user_id"`
	Minute WindowQuota `json:"minute"`
	Hour   WindowQuota `json:"hour"`
	Day    WindowQuota `json:"day"` // day quota counts tokens, not requests
}
