package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nurdamiron/prometric-backend-v2-sub001/config"
	"github.com/nurdamiron/prometric-backend-v2-sub001/db"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/handler"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/rate"
	repo "github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/repository/postgres"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/auth/service"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/logging"
	"github.com/nurdamiron/prometric-backend-v2-sub001/internal/notify"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.LogLevel, cfg.Env)

	ctx := context.Background()
	dbPool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer dbPool.Close()

	window := time.Duration(cfg.LoginRateWindowSec) * time.Second
	var limiter rate.Limiter = rate.NewMemory(cfg.LoginRateLimit, window)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		limiter = rate.NewRedisLimiter(redis.NewClient(opts), cfg.LoginRateLimit, window, "")
	}

	hasher, err := service.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		log.Fatalf("password hasher: %v", err)
	}

	repository := repo.NewRepository(dbPool)
	tokenService := service.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessExpiryMin, cfg.RefreshExpiryMin)
	userService := service.NewUserService(repository, repository, tokenService, hasher, notify.NewLogSender(logger), limiter, logger, cfg)
	authHandler := handler.NewAuthHandler(userService, logger, cfg)

	app := fiber.New()
	handler.RegisterRoutes(app, authHandler)

	logger.Info("starting auth service", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
