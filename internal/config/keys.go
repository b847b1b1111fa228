package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "RAAYON_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RAAYON_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "advisor.api_key", typ: kString, env: "RAAYON_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Advisor.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Advisor.APIKey },
	},
	{
		key: "advisor.model", typ: kString, env: "RAAYON_ADVISOR_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Advisor.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Advisor.Model },
	},
	{
		key: "mailer.api_key", typ: kString, env: "RAAYON_RESEND_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mailer.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Mailer.APIKey },
	},
	{
		key: "mailer.from", typ: kString, env: "RAAYON_MAILER_FROM",
		apply:   func(cfg *Config, v any) { cfg.Mailer.From = v.(string) },
		extract: func(cfg Config) any { return cfg.Mailer.From },
	},
	{
		key: "admin.token", typ: kString, env: "RAAYON_ADMIN_TOKEN",
		apply:   func(cfg *Config, v any) { cfg.Admin.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Admin.Token },
	},
	{
		key: "log.level", typ: kString, env: "RAAYON_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
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
		}
	}
}
