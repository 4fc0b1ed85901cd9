package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Skufu/proactivecare/internal/alert"
	"github.com/Skufu/proactivecare/internal/config"
	"github.com/Skufu/proactivecare/internal/history"
	"github.com/Skufu/proactivecare/internal/logging"
	"github.com/Skufu/proactivecare/internal/model"
	"github.com/Skufu/proactivecare/internal/pipeline"
	"github.com/Skufu/proactivecare/internal/ratelimit"
	"github.com/Skufu/proactivecare/internal/recommend"
	"github.com/Skufu/proactivecare/internal/symptoms"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "proactivecare")
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
		}); err != nil {
			logger.Warn("sentry disabled", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	engine, err := model.Bootstrap(ctx, cfg.ModelDir, model.Trainer(model.DefaultTrainOptions()), logger)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	for _, condition := range engine.Classes() {
		if !recommend.Known(condition) {
			logger.Warn("no specific advice for condition, generic steps will be used", zap.String("condition", condition))
		}
	}

	encoder := symptoms.OpenEncoder(cfg.Encoder, logger)
	defer encoder.Close()
	extractor, err := symptoms.NewExtractor(ctx,
		symptoms.WithEncoder(encoder),
		symptoms.WithThresholds(cfg.TFIDFThreshold, cfg.SemanticThreshold),
		symptoms.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("build symptom extractor: %w", err)
	}

	checks := map[string]HealthChecker{"db": nil}
	var opts []pipeline.Option

	var admitter pipeline.Admitter = ratelimit.NewGuard(cfg.RateLimitPerMinute)
	if cfg.RateLimitBackend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		guard := ratelimit.NewRedisGuard(client, "proactivecare:ratelimit:", cfg.RateLimitPerMinute)
		if err := guard.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		admitter = guard
		checks["redis"] = guard
	}

	if cfg.EnableDB {
		pool, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		store := history.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		checks["db"] = pool
		opts = append(opts, pipeline.WithRecorder(store))
	}

	if cfg.MQTTBroker != "" {
		client, err := alert.Connect(alert.Config{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			logger.Warn("emergency alerts disabled", zap.Error(err))
		} else {
			defer client.Disconnect(250)
			opts = append(opts, pipeline.WithNotifier(alert.NewNotifier(client, cfg.MQTTTopic)))
		}
	}

	opts = append(opts, pipeline.WithLogger(logger))
	p := pipeline.New(admitter, extractor, engine, opts...)

	router := setupRouter(routerDeps{
		Pipeline:       p,
		Extractor:      extractor,
		Checks:         checks,
		RateLimit:      cfg.RateLimitPerMinute,
		CORSOrigins:    cfg.CORSList(),
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("server listening",
		zap.String("port", cfg.Port),
		zap.String("rate_limit_backend", cfg.RateLimitBackend),
		zap.Bool("semantic_encoder", extractor.SemanticEnabled()),
	)
	return waitForShutdown(server, errCh, logger)
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func waitForShutdown(server *http.Server, errCh <-chan error, logger *zap.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
