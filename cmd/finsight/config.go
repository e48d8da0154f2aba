package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/finsight-ai/finsight/internal/ingest"
)

// Config holds all finsight CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string          `json:"db_path"`
	IndexPath     string          `json:"index_path"`
	LogLevel      string          `json:"log_level"`
	LogFormat     string          `json:"log_format"` // "text" or "json"
	Provider      string          `json:"provider"`   // "openai" or "anthropic"
	Model         string          `json:"model"`
	RedisAddr     string          `json:"redis_addr"` // empty keeps memory in the SQL store
	MaxIterations int             `json:"max_iterations"`
	Sources       []ingest.Source `json:"sources"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(finsightDir(), "finsight.db"),
		IndexPath:     filepath.Join(finsightDir(), "index"),
		LogLevel:      "info",
		LogFormat:     "text",
		Provider:      "openai",
		MaxIterations: 3,
	}
}

func finsightDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finsight"
	}
	return filepath.Join(home, ".finsight")
}

func settingsPath() string {
	return filepath.Join(finsightDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FINSIGHT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FINSIGHT_INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv("FINSIGHT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FINSIGHT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FINSIGHT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("FINSIGHT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("FINSIGHT_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("FINSIGHT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}

	return cfg
}
