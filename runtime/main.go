package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/codeforge-academy/sentinel_api/api"
	"github.com/codeforge-academy/sentinel_api/middleware"
	"github.com/codeforge-academy/sentinel_api/services"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.PostgresService{},
		&services.RedisService{},
		&services.JWTService{},
		&services.MinIOService{},
		&services.MonitoringService{},

		&services.RateLimitService{},
		&services.ChallengeContextService{},
		&services.CopyPasteService{},
		&services.BehaviorAnalysisService{},
		&services.GovernanceService{},

		&middleware.AuthMiddleware{},
		&middleware.RateLimitMiddleware{},

		&api.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure services")
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Service runtime exited")
		return
	}
}
