package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kalambet/deflator/internal/config"
	"github.com/kalambet/deflator/internal/history"
	"github.com/kalambet/deflator/internal/logging"
	"github.com/kalambet/deflator/internal/scrape"
	"github.com/kalambet/deflator/internal/storage"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "deflator",
	Short:         "Mirror new images from gallery sites and keep a history of every scrape",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// app is everything a command needs to scrape or read history locally.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	store   *storage.Store
	reader  *history.Reader
	scraper *scrape.Scraper
	runner  *scrape.Runner
}

func openApp(cfg config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DatafilePath())
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	scraper := scrape.New(store, newFetcher(cfg), scrapeSettings(cfg), logger,
		scrape.WithDedupWindow(cfg.Scrape.DedupWindowMonths))

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		reader:  history.NewReader(store, history.WithDedupWindow(cfg.Scrape.DedupWindowMonths)),
		scraper: scraper,
		runner:  scrape.NewRunner(scraper, scrape.Sources()),
	}, nil
}

// newFetcher builds the site client; scrape.http_timeout bounds every request.
func newFetcher(cfg config.Config) *scrape.Fetcher {
	return scrape.NewFetcher(nil, cfg.Scrape.UserAgent, cfg.Scrape.HTTPTimeout)
}

func scrapeSettings(cfg config.Config) scrape.Settings {
	return scrape.Settings{
		BaseDir:   cfg.Storage.BaseDir,
		ImagesDir: cfg.Storage.ImagesDir,
		Datafile:  cfg.Storage.DatafilePath(),
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return openApp(cfg)
}
