package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"gamemarket/internal/config"
	"gamemarket/internal/dashboard"
	"gamemarket/internal/storage/mongo"
)

// The dashboard serves with whatever stores it can reach; an unreachable
// store only degrades the affected endpoints to mock responses.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlx.Open("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Warn("database unreachable, endpoints will serve mock data", "error", err)
	} else {
		logger.Info("connected to database")
	}

	var genres dashboard.GenreSource
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, err := mongo.Connect(connectCtx, cfg.MongoDB.URI)
	connectCancel()
	if err != nil {
		logger.Warn("mongodb unreachable, genre chart will serve mock data", "error", err)
		genres = unavailableGenreSource{}
	} else {
		defer mongoClient.Disconnect(context.Background())
		logger.Info("connected to mongodb")
		genres = mongo.NewDocumentStore(mongoClient, cfg.MongoDB.Database, logger)
	}

	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		logger.Warn("invalid redis url, caching disabled", "error", err)
	} else {
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, caching disabled", "error", err)
		} else {
			logger.Info("connected to redis")
		}
		pingCancel()
		defer redisClient.Close()
	}

	sqlStore := dashboard.NewSQLStore(db, logger)
	cache := dashboard.NewCache(redisClient, logger)

	api := dashboard.NewAPI(sqlStore, genres, cache, cfg.Dashboard, logger)
	srv := dashboard.NewServer(cfg.Dashboard, api, logger)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("dashboard server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown dashboard server", "error", err)
	}
}

type unavailableGenreSource struct{}

func (unavailableGenreSource) LatestCollection(context.Context, string) (string, error) {
	return "", errMongoUnavailable
}

func (unavailableGenreSource) GenreDistribution(context.Context, string, int) (map[string]int, error) {
	return nil, errMongoUnavailable
}

var errMongoUnavailable = errors.New("mongodb unavailable")

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
