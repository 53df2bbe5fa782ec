package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Scrape  ScrapeConfig
	Limits  LimitsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	// BaseDir holds the images directory and, unless Datafile is absolute,
	// the SQLite datafile.
	BaseDir   string
	ImagesDir string
	Datafile  string
}

type ScrapeConfig struct {
	UserAgent         string
	HTTPTimeout       time.Duration
	DedupWindowMonths int
	// Interval between scheduled scrapes in serve mode. Zero disables them.
	Interval time.Duration
	AuthKey  string
}

type LimitsConfig struct {
	ImagesShown int
	ScrapsShown int
}

type LogConfig struct {
	Level  string
	Format string
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScrapPath is the directory downloaded images are stored under.
func (c StorageConfig) ScrapPath() string {
	return filepath.Join(c.BaseDir, c.ImagesDir)
}

// DatafilePath resolves Datafile against BaseDir.
func (c StorageConfig) DatafilePath() string {
	if filepath.IsAbs(c.Datafile) {
		return c.Datafile
	}
	return filepath.Join(c.BaseDir, c.Datafile)
}

// Service and account under which the shared auth key lives in the OS keyring.
const (
	KeyringService = "deflator"
	KeyringAccount = "auth_key"
)

// ErrMissingAuthKey is returned by RequireAuthKey when no key is configured.
var ErrMissingAuthKey = errors.New("missing auth key: set DEFLATOR_AUTH_KEY or run `deflator token set`")

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 5000,
		},
		Storage: StorageConfig{
			BaseDir:   defaultDataDir(),
			ImagesDir: "images",
			Datafile:  "image_box.sqlite3",
		},
		Scrape: ScrapeConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:81.0) Gecko/20100101 Firefox/81.0",
			HTTPTimeout:       30 * time.Second,
			DedupWindowMonths: 6,
		},
		Limits: LimitsConfig{
			ImagesShown: 100,
			ScrapsShown: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at
// $XDG_CONFIG_HOME/deflator/config.yaml, a .env file in the working
// directory and DEFLATOR_* environment variables, in that order. The auth
// key falls back to the OS keyring when no environment variable sets it.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keyringStore{}, ".env")
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Scrape.AuthKey == "" {
		if key, err := kc.Get(KeyringService, KeyringAccount); err == nil && key != "" {
			cfg.Scrape.AuthKey = key
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.Server.Port <= 0 || cfg.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	case cfg.Storage.BaseDir == "":
		return errors.New("storage.base_dir must not be empty")
	case cfg.Storage.Datafile == "":
		return errors.New("storage.datafile must not be empty")
	case cfg.Scrape.DedupWindowMonths < 0:
		return fmt.Errorf("scrape.dedup_window_months must not be negative, got %d", cfg.Scrape.DedupWindowMonths)
	case cfg.Scrape.Interval < 0:
		return fmt.Errorf("scrape.interval must not be negative, got %s", cfg.Scrape.Interval)
	}
	return nil
}

// RequireAuthKey returns the shared auth key or ErrMissingAuthKey.
func (c Config) RequireAuthKey() (string, error) {
	if c.Scrape.AuthKey == "" {
		return "", ErrMissingAuthKey
	}
	return c.Scrape.AuthKey, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "deflator-data"
		}
	}
	return filepath.Join(dir, "deflator")
}
