package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gamemarket/internal/config"
	"gamemarket/internal/fetch"
	"gamemarket/internal/pipeline"
	"gamemarket/internal/publisher"
	"gamemarket/internal/scheduler"
	"gamemarket/internal/service"
	"gamemarket/internal/source/steam"
	"gamemarket/internal/storage/mongo"
	"gamemarket/internal/storage/postgres"
)

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

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, err := mongo.Connect(connectCtx, cfg.MongoDB.URI)
	connectCancel()
	if err != nil {
		logger.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(context.Background())
	logger.Info("connected to mongodb")

	// Publisher is optional; the pipeline runs without it.
	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	gameStore := postgres.NewGameStore(db)
	documentStore := mongo.NewDocumentStore(mongoClient, cfg.MongoDB.Database, logger)
	crawlStateStore := postgres.NewCrawlStateStore(db)
	txManager := postgres.NewTransactionManager(db)

	if err := crawlStateStore.EnsureTable(ctx); err != nil {
		logger.Error("failed to ensure crawl_state table", "error", err)
		os.Exit(1)
	}

	validator := pipeline.NewValidator(logger)
	cleaner := pipeline.NewCleaner(logger)

	var browser *fetch.Browser
	if cfg.Crawler.UseBrowser {
		browser = fetch.NewBrowser(fetch.BrowserConfig{
			ExecPath: cfg.Crawler.ChromeBin,
			Delay:    cfg.Crawler.Delay,
		}, logger)
	}

	sourceCfg := steam.Config{
		MaxPages:    cfg.Crawler.MaxPages,
		Delay:       cfg.Crawler.Delay,
		Parallelism: cfg.Crawler.Parallelism,
		UserAgents:  cfg.Crawler.UserAgents,
		Browser:     browser,
	}

	var crawlers []scheduler.Crawler
	for _, id := range cfg.Crawler.Sources {
		var src service.Source
		switch id {
		case steam.TopSellersID:
			src = steam.NewTopSellers(sourceCfg, logger)
		case steam.PopularID:
			src = steam.NewPopular(sourceCfg, logger)
		default:
			logger.Warn("unknown source in config, skipping", "source", id)
			continue
		}

		crawlers = append(crawlers, service.NewCrawlService(
			src,
			validator,
			cleaner,
			gameStore,
			documentStore,
			crawlStateStore,
			txManager,
			pub,
			logger,
		))
	}

	if len(crawlers) == 0 {
		logger.Error("no sources configured")
		os.Exit(1)
	}

	sched := scheduler.NewScheduler(crawlers, cfg.Crawler.Interval, cfg.Crawler.RunTimeout, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting game crawler",
		"sources", cfg.Crawler.Sources,
		"interval", cfg.Crawler.Interval,
		"max_pages", cfg.Crawler.MaxPages,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

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
