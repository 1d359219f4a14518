package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

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
	var (
		productURL = flag.String("url", "", "Product page URL to scrape")
		urls       = flag.String("urls", "", "Comma-separated list of product URLs to scrape")
		inputFile  = flag.String("file", "", "File containing product URLs (one per line)")
		noStore    = flag.Bool("no-store", false, "Print the snapshot without writing it to the database")
		headless   = flag.Bool("headless", true, "Run browser in headless mode (overrides BROWSER_HEADLESS when set)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if flagSet(flag.CommandLine, "headless") {
		cfg.Browser.Headless = *headless
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	targets, err := loadURLs(*productURL, *urls, *inputFile)
	if err != nil {
		logger.Error("Failed to load urls", "error", err)
		return 1
	}
	if len(targets) == 0 {
		u, err := promptURL(os.Stdin, os.Stderr)
		if err != nil {
			logger.Error("No url given", "error", err)
			flag.Usage()
			return 2
		}
		targets = []string{u}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	var store scraper.Store
	if !*noStore {
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
			if err := database.Migrate(dbCfg.DSN(), logger); err != nil {
				logger.Error("Failed to run migrations", "error", err)
				return 1
			}
		}

		db, err := database.New(ctx, dbCfg)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()

		store = database.NewProductRepository(db, logger)
	}

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Scraper.PageTimeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize browser", "error", err)
		return 1
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("Failed to close browser", "error", err)
		}
	}()

	service := scraper.NewService(b, store, scraper.OptionsFromConfig(cfg.Scraper), logger, metrics.New())
	runner := jobs.NewRunner(service,
		jobs.NewAdaptiveLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		cfg.Scraper.Workers, logger)

	logger.Info("Starting scraping", "urls", len(targets))

	items := runner.Run(ctx, targets)
	failed := writeResults(os.Stdout, items, logger)

	logger.Info("Scraping completed", "succeeded", len(items)-failed, "failed", failed)
	if failed > 0 {
		return 1
	}
	return 0
}

// flagSet reports whether name was given on the command line of fs.
func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// loadURLs merges the -url, -urls and -file inputs, skipping blanks and
// # comments.
func loadURLs(single, list, inputFile string) ([]string, error) {
	var raw []string

	if single != "" {
		raw = append(raw, single)
	}
	if list != "" {
		raw = append(raw, strings.Split(list, ",")...)
	}
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		raw = append(raw, strings.Split(string(data), "\n")...)
	}

	var out []string
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" || strings.HasPrefix(item, "#") {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func promptURL(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Product URL: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read url: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty url")
	}
	return line, nil
}

// writeResults prints one JSON document per item and returns the number
// of failed items.
func writeResults(w io.Writer, items []jobs.Item, logger *slog.Logger) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
			logger.Error("Failed to scrape product", "url", it.URL, "error", it.Err)
		}
		if err := enc.Encode(it); err != nil {
			logger.Error("Failed to output result", "url", it.URL, "error", err)
		}
	}
	return failed
}
