package handlers

import (
	"time"

	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/shared"
	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	rateLimitSvc  RateLimitServiceInterface
	contextSvc    ChallengeContextServiceInterface
	governanceSvc GovernanceServiceInterface
	jwtSvc        JWTServiceInterface
}

func NewAdminHandler(
	rateLimitSvc RateLimitServiceInterface,
	contextSvc ChallengeContextServiceInterface,
	governanceSvc GovernanceServiceInterface,
	jwtSvc JWTServiceInterface,
) *AdminHandler {
	return &AdminHandler{
		rateLimitSvc:  rateLimitSvc,
		contextSvc:    contextSvc,
		governanceSvc: governanceSvc,
		jwtSvc:        jwtSvc,
	}
}

// @Summary Reset user limits
// @Description Delete every rate limit counter for a user
// @Tags admin
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/limits/{userId} [delete]
func (h *AdminHandler) ResetUserLimits(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return shared.ResponseBadRequest(c, "Missing user ID")
	}

	deleted, err := h.rateLimitSvc.ResetUserLimits(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", fiber.Map{
		"user_id":      userID,
		"keys_deleted": deleted,
	})
}

type prewarmRequest struct {
	ChallengeIDs []string `json:"challenge_ids" validate:"required,min=1,max=200"`
}

// @Summary Prewarm context cache
// @Description Load challenge contexts into cache, isolating per-id failures
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.PrewarmResult}
// @Router /api/v1/admin/cache/prewarm [post]
func (h *AdminHandler) PrewarmCache(c *fiber.Ctx) error {
	var req prewarmRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}

	if err := dto.GetValidator().Struct(req); err != nil {
		return shared.ResponseJSON(c, fiber.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	result := h.contextSvc.PrewarmCache(c.UserContext(), req.ChallengeIDs)
	return shared.ResponseJSON(c, fiber.StatusOK, "Success", result)
}

// @Summary Refresh challenge context
// @Description Evict and rebuild the cached context for a challenge
// @Tags admin
// @Accept json
// @Produce json
// @Param challengeId path string true "Challenge ID"
// @Success 200 {object} shared.Response{data=dto.ChallengeContext}
// @Router /api/v1/admin/cache/{challengeId}/refresh [post]
func (h *AdminHandler) RefreshContext(c *fiber.Ctx) error {
	challengeID := c.Params("challengeId")
	if challengeID == "" {
		return shared.ResponseBadRequest(c, "Missing challenge ID")
	}

	context, err := h.contextSvc.RefreshChallengeContext(c.UserContext(), challengeID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", context)
}

// @Summary Context cache statistics
// @Description Sampled cache composition plus hit rate since process start
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.ContextCacheStats}
// @Router /api/v1/admin/cache/stats [get]
func (h *AdminHandler) CacheStats(c *fiber.Ctx) error {
	stats, err := h.contextSvc.GetContextStats(c.UserContext())
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", stats)
}

type issueTokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=student admin"`
}

// @Summary Issue a service token
// @Description Mint an access token for a platform integration or test user
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.TokenPair}
// @Router /api/v1/admin/tokens [post]
func (h *AdminHandler) IssueToken(c *fiber.Ctx) error {
	var req issueTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}

	if err := dto.GetValidator().Struct(req); err != nil {
		return shared.ResponseJSON(c, fiber.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	pair, err := h.jwtSvc.GenerateTokenPair(req.UserID, req.Role)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", pair)
}

type auditExportRequest struct {
	SinceHours int `json:"since_hours" validate:"min=1,max=720"`
}

// @Summary Export audit log
// @Description Export governance decision records to object storage
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.AuditExportResult}
// @Router /api/v1/admin/audit/export [post]
func (h *AdminHandler) ExportAudit(c *fiber.Ctx) error {
	req := auditExportRequest{SinceHours: 24}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return shared.ResponseBadRequest(c, "Invalid request body")
		}
	}

	if err := dto.GetValidator().Struct(req); err != nil {
		return shared.ResponseJSON(c, fiber.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	since := time.Now().Add(-time.Duration(req.SinceHours) * time.Hour)
	result, err := h.governanceSvc.ExportAuditLog(c.UserContext(), since)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", result)
}
