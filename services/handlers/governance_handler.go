package handlers

import (
	"strconv"

	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/shared"
	"github.com/gofiber/fiber/v2"
)

type GovernanceHandler struct {
	governanceSvc GovernanceServiceInterface
	copyPasteSvc  CopyPasteServiceInterface
	behaviorSvc   BehaviorServiceInterface
	rateLimitSvc  RateLimitServiceInterface
}

func NewGovernanceHandler(
	governanceSvc GovernanceServiceInterface,
	copyPasteSvc CopyPasteServiceInterface,
	behaviorSvc BehaviorServiceInterface,
	rateLimitSvc RateLimitServiceInterface,
) *GovernanceHandler {
	return &GovernanceHandler{
		governanceSvc: governanceSvc,
		copyPasteSvc:  copyPasteSvc,
		behaviorSvc:   behaviorSvc,
		rateLimitSvc:  rateLimitSvc,
	}
}

// @Summary Evaluate AI consultation
// @Description Run the governance decision for one AI-assistant consultation
// @Tags governance
// @Accept json
// @Produce json
// @Param request body dto.GovernanceCheckRequest true "Consultation to evaluate"
// @Success 200 {object} shared.Response{data=dto.GovernanceDecisionResponse}
// @Router /api/v1/governance/check [post]
func (h *GovernanceHandler) Check(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)

	var req dto.GovernanceCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}

	if err := dto.GetValidator().Struct(req); err != nil {
		return shared.ResponseJSON(c, fiber.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	decision, err := h.governanceSvc.EvaluateRequest(c.UserContext(), userID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", decision)
}

// @Summary Track copy-paste event
// @Description Ingest a copy or paste event for AI-output provenance tracking
// @Tags governance
// @Accept json
// @Produce json
// @Param request body dto.CopyPasteRequest true "Copy or paste event"
// @Success 200 {object} shared.Response{data=dto.CopyPasteResult}
// @Router /api/v1/governance/copypaste [post]
func (h *GovernanceHandler) TrackCopyPaste(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)

	var req dto.CopyPasteRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}

	if err := dto.GetValidator().Struct(req); err != nil {
		return shared.ResponseJSON(c, fiber.StatusBadRequest, "Validation failed", dto.FormatValidationErrors(err))
	}

	result, err := h.copyPasteSvc.TrackCopyPaste(c.UserContext(), userID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", result)
}

// @Summary Analyze prompt sequence
// @Description Score the user's recent validation history for gaming patterns
// @Tags governance
// @Accept json
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Param lookback_minutes query int false "Lookback window in minutes"
// @Success 200 {object} shared.Response{data=dto.TemporalAnalysisResult}
// @Router /api/v1/governance/behavior/{attemptId} [get]
func (h *GovernanceHandler) AnalyzeBehavior(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	attemptID := c.Params("attemptId")
	if attemptID == "" {
		return shared.ResponseBadRequest(c, "Missing attempt ID")
	}

	lookback, _ := strconv.Atoi(c.Query("lookback_minutes", "30"))

	result, err := h.behaviorSvc.AnalyzePromptSequence(c.UserContext(), userID, attemptID, lookback)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", result)
}

// @Summary Get remaining quota
// @Description Read remaining AI consultation quota without counting a request
// @Tags governance
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.QuotaStatus}
// @Router /api/v1/governance/quota [get]
func (h *GovernanceHandler) GetQuota(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)

	quota, err := h.rateLimitSvc.GetRemainingQuota(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", quota)
}
