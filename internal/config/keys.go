package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "DEFLATOR_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "DEFLATOR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.base_dir", typ: kString, env: "DEFLATOR_STORAGE_BASE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.BaseDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.BaseDir },
	},
	{
		key: "storage.images_dir", typ: kString, env: "DEFLATOR_STORAGE_IMAGES_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.ImagesDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ImagesDir },
	},
	{
		key: "storage.datafile", typ: kString, env: "DEFLATOR_STORAGE_DATAFILE",
		apply:   func(cfg *Config, v any) { cfg.Storage.Datafile = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Datafile },
	},
	{
		key: "scrape.user_agent", typ: kString, env: "DEFLATOR_SCRAPE_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Scrape.UserAgent },
	},
	{
		key: "scrape.http_timeout", typ: kDuration, env: "DEFLATOR_SCRAPE_HTTP_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.HTTPTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Scrape.HTTPTimeout },
	},
	{
		key: "scrape.dedup_window_months", typ: kInt, env: "DEFLATOR_SCRAPE_DEDUP_WINDOW_MONTHS",
		apply:   func(cfg *Config, v any) { cfg.Scrape.DedupWindowMonths = v.(int) },
		extract: func(cfg Config) any { return cfg.Scrape.DedupWindowMonths },
	},
	{
		key: "scrape.interval", typ: kDuration, env: "DEFLATOR_SCRAPE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scrape.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Scrape.Interval },
	},
	{
		key: "scrape.auth_key", typ: kString, env: "DEFLATOR_AUTH_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Scrape.AuthKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Scrape.AuthKey },
	},
	{
		key: "limits.images_shown", typ: kInt, env: "DEFLATOR_LIMITS_IMAGES_SHOWN",
		apply:   func(cfg *Config, v any) { cfg.Limits.ImagesShown = v.(int) },
		extract: func(cfg Config) any { return cfg.Limits.ImagesShown },
	},
	{
		key: "limits.scraps_shown", typ: kInt, env: "DEFLATOR_LIMITS_SCRAPS_SHOWN",
		apply:   func(cfg *Config, v any) { cfg.Limits.ScrapsShown = v.(int) },
		extract: func(cfg Config) any { return cfg.Limits.ScrapsShown },
	},
	{
		key: "log.level", typ: kString, env: "DEFLATOR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "DEFLATOR_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
