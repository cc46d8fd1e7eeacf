package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Caqil/oncart-backend/internal/config"
	"github.com/Caqil/oncart-backend/internal/obs"
	"github.com/Caqil/oncart-backend/internal/payment"
	"github.com/Caqil/oncart-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", "worker").
		Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	providers, err := payment.BuildProviders(*cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure payment providers")
	}

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(redisConn)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	poller := payment.AsynqPoller{
		Client:      taskClient,
		Delay:       cfg.PollDelay,
		MaxAttempts: cfg.PollMaxAttempts,
	}
	paymentSvc := &payment.Service{
		Store:           store.New(pool),
		Providers:       providers,
		DefaultProvider: cfg.PaymentProvider,
		IntentTTL:       cfg.PaymentIntentTTL,
		CallbackBaseURL: cfg.PaymentCallbackBaseURL,
		Poll:            poller,
		Log:             logger,
	}

	srv := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 5),
	})

	mux := asynq.NewServeMux()
	mux.Handle(payment.TaskTypeStatusPoll, payment.PollHandler{
		Service:     paymentSvc,
		Poller:      poller,
		MaxAttempts: cfg.PollMaxAttempts,
		Log:         logger,
	})

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
