package api

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	log "github.com/sirupsen/logrus"

	"github.com/codeforge-academy/sentinel_api/middleware"
	"github.com/codeforge-academy/sentinel_api/services"
	"github.com/codeforge-academy/sentinel_api/services/handlers"
	"github.com/codeforge-academy/sentinel_api/shared"
)

type HttpService struct {
	context.DefaultService

	governanceSvc *services.GovernanceService
	rateLimitSvc  *services.RateLimitService
	copyPasteSvc  *services.CopyPasteService
	behaviorSvc   *services.BehaviorAnalysisService
	contextSvc    *services.ChallengeContextService
	monitoringSvc *services.MonitoringService
	jwtSvc        *services.JWTService

	authMiddleware  *middleware.AuthMiddleware
	limitMiddleware *middleware.RateLimitMiddleware

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.governanceSvc = svc.Service(services.GOVERNANCE_SVC).(*services.GovernanceService)
	svc.rateLimitSvc = svc.Service(services.RATE_LIMIT_SVC).(*services.RateLimitService)
	svc.copyPasteSvc = svc.Service(services.COPY_PASTE_SVC).(*services.CopyPasteService)
	svc.behaviorSvc = svc.Service(services.BEHAVIOR_SVC).(*services.BehaviorAnalysisService)
	svc.contextSvc = svc.Service(services.CHALLENGE_CONTEXT_SVC).(*services.ChallengeContextService)
	svc.monitoringSvc = svc.Service(services.MONITORING_SVC).(*services.MonitoringService)
	svc.jwtSvc = svc.Service(services.JWT_SVC).(*services.JWTService)
	svc.authMiddleware = svc.Service(middleware.AUTH_MIDDLEWARE_SVC).(*middleware.AuthMiddleware)
	svc.limitMiddleware = svc.Service(middleware.RATE_LIMIT_MIDDLEWARE_SVC).(*middleware.RateLimitMiddleware)

	svc.app = fiber.New(fiber.Config{
		AppName:      "sentinel_backend",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: svc.handleError,
	})

	corsConfig := cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}
	// fiber rejects credentials together with a wildcard origin
	corsConfig.AllowCredentials = corsConfig.AllowOrigins != "*"

	svc.app.Use(recover.New())
	svc.app.Use(cors.New(corsConfig))
	svc.app.Use(services.MonitoringMiddleware(svc.monitoringSvc))

	svc.registerRoutes()

	log.Printf("HTTP service listening on :%d", svc.port)
	return svc.app.Listen(fmt.Sprintf(":%d", svc.port))
}

func (svc *HttpService) registerRoutes() {
	governanceHandler := handlers.NewGovernanceHandler(svc.governanceSvc, svc.copyPasteSvc, svc.behaviorSvc, svc.rateLimitSvc)
	adminHandler := handlers.NewAdminHandler(svc.rateLimitSvc, svc.contextSvc, svc.governanceSvc, svc.jwtSvc)

	svc.app.Get("/ping", svc.ping)
	svc.app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	v1 := svc.app.Group("/api/v1", svc.authMiddleware.RequiredAuth())

	governance := v1.Group("/governance")
	governance.Post("/check", svc.limitMiddleware.RateLimit("api_general"), governanceHandler.Check)
	governance.Post("/copypaste", svc.limitMiddleware.RateLimit("copypaste_track"), governanceHandler.TrackCopyPaste)
	governance.Get("/behavior/:attemptId", svc.limitMiddleware.RateLimit("behavior_analysis"), governanceHandler.AnalyzeBehavior)
	governance.Get("/quota", svc.limitMiddleware.RateLimit("api_general"), governanceHandler.GetQuota)

	admin := v1.Group("/admin", svc.authMiddleware.RequireRole(shared.RoleAdmin))
	admin.Delete("/limits/:userId", adminHandler.ResetUserLimits)
	admin.Post("/cache/prewarm", svc.limitMiddleware.RateLimit("admin_batch"), adminHandler.PrewarmCache)
	admin.Post("/cache/:challengeId/refresh", adminHandler.RefreshContext)
	admin.Get("/cache/stats", adminHandler.CacheStats)
	admin.Post("/audit/export", svc.limitMiddleware.RateLimit("admin_batch"), adminHandler.ExportAudit)
	admin.Post("/tokens", adminHandler.IssueToken)
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		if appErr.StatusCode >= fiber.StatusInternalServerError {
			log.Errorf("%s %s: %v", c.Method(), c.Path(), appErr)
		}
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	return shared.ResponseInternalError(c, err)
}

func getAllowedOrigins() string {
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	return "*"
}
