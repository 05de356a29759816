package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	echoapi "go.pilab.hu/fedbridge/api/echo"
	"go.pilab.hu/fedbridge/cache"
	redisCache "go.pilab.hu/fedbridge/cache/redis"
	"go.pilab.hu/fedbridge/config"
	"go.pilab.hu/fedbridge/internal/bridge"
	"go.pilab.hu/fedbridge/log"
	"go.pilab.hu/fedbridge/mongodb"
	"go.pilab.hu/fedbridge/services"
	"go.pilab.hu/fedbridge/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fallback := log.Setup("info", false)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := log.Setup(cfg.LogLevel, cfg.LogPretty)
	logger.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db", cfg.MongoDBName).
		Int("federations", len(cfg.Federations)).
		Msg("starting fedbridge server")

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	ctx := context.Background()
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}

	userStore, err := mongodb.NewUserStore(ctx, mongoClient.Database(cfg.MongoDBName))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize federated user store")
	}

	// Credential-type cache backend: shared Redis when configured, otherwise
	// per-instance in-memory.
	var typesCache services.CredentialTypeCacheFactory
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		typesCache = func(instanceID string) cache.CredentialTypes {
			return redisCache.NewCredentialTypes(redisClient, cfg.RedisPrefix+":"+instanceID, cache.DefaultCredentialTypeTTL)
		}
	}

	registry := services.NewRegistry(userStore, typesCache, logger)
	for _, instance := range cfg.Federations {
		if _, err := registry.Register(instance.ID, bridge.Properties(instance.Properties)); err != nil {
			logger.Fatal().Err(err).Str("federation", instance.ID).
				Msg("invalid federation instance configuration")
		}
	}

	e := echo.New()
	e.HideBanner = true
	echoapi.NewFederationAPI(registry).RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := registry.Close(); err != nil {
		logger.Error().Err(err).Msg("closing federation instances failed")
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("mongodb disconnect failed")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer provider shutdown failed")
	}
}
