package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/review-scraper/internal/api"
	"github.com/maltedev/review-scraper/internal/browser"
	"github.com/maltedev/review-scraper/internal/config"
	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/jobs"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/scraper"
	"github.com/maltedev/review-scraper/pkg/logger"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(dbCfg.DSN(), log); err != nil {
			log.Error("failed to run migrations", "error", err)
			return 1
		}
	}

	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Scraper.PageTimeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	}, log)
	if err != nil {
		log.Error("failed to initialize browser", "error", err)
		return 1
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	m := metrics.New()
	products := database.NewProductRepository(db, log)

	service := scraper.NewService(b, products, scraper.OptionsFromConfig(cfg.Scraper), log, m)
	runner := jobs.NewRunner(service,
		jobs.NewAdaptiveLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		cfg.Scraper.Workers, log)

	routerCfg := api.RouterConfig{
		RequestTimeout: cfg.Server.WriteTimeout,
		Registry:       m.Registry,
		DB:             db,
		Products:       products,
	}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to Redis", "error", err)
			return 1
		}

		relay := database.NewRelay(db, redisClient, log, database.RelayConfig{
			PollInterval: cfg.Relay.PollInterval,
			BatchSize:    cfg.Relay.BatchSize,
		})
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "error", err)
			}
		}()
		routerCfg.Outbox = relay
	} else {
		log.Warn("redis disabled, outbox events will not be relayed")
	}

	handlers := api.NewHandlers(service, runner, products, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handlers, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * 4,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		return 1
	}

	log.Info("server stopped")
	return 0
}
