package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lvdund/agent-english-teacher/internal/app"
	"github.com/lvdund/agent-english-teacher/internal/cache"
	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/db"
	"github.com/lvdund/agent-english-teacher/internal/log"
	"github.com/lvdund/agent-english-teacher/internal/rabbitmq"
	"github.com/lvdund/agent-english-teacher/internal/repositories"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := log.New(cfg.Environment)

	opts := app.Options{
		Publisher: rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger),
	}

	if cfg.Postgres.DSN != "" {
		database, err := db.Connect(cfg.Postgres, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to db")
		}
		defer database.Close()
		opts.Repo = repositories.NewRoomRepo(database)
	} else {
		logger.Warn().Msg("postgres dsn empty, running without durable store")
	}

	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, warm cache disabled")
		} else {
			defer client.Close()
			opts.Warm = cache.NewWarm(client, cfg.Session.CacheTTL, cfg.Rooms.CacheTTL, logger)
		}
	}

	application := app.New(cfg, logger, opts)
	if err := application.Init(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to start coordination core")
	}

	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn().Err(err).Msg("metrics listener stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.Destroy(ctx)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
