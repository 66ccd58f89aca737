package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all schemaflow configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath          string  `json:"db_path"`
	StageDir        string  `json:"stage_dir"`
	LogLevel        string  `json:"log_level"`
	SampleSize      int     `json:"sample_size"`
	ConfidenceFloor float64 `json:"confidence_floor"`
	SourceSystem    string  `json:"source_system"`
	CompletionModel string  `json:"completion_model"`
	MaxAttempts     int     `json:"max_attempts"`
	RetryBaseDelay  string  `json:"retry_base_delay"`
	RetryMaxDelay   string  `json:"retry_max_delay"`
	StageTimeout    string  `json:"stage_timeout"`
	OpenAIAPIKey    string  `json:"openai_api_key"`
	OpenAIBaseURL   string  `json:"openai_base_url"`
	OpenAIModel     string  `json:"openai_model"`
	RunScheduler    bool    `json:"run_scheduler"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(schemaflowDir(), "schemaflow.db"),
		StageDir:        filepath.Join(schemaflowDir(), "stage"),
		LogLevel:        "info",
		SampleSize:      10000,
		ConfidenceFloor: 0.8,
		SourceSystem:    "PROFILED_SOURCE",
		MaxAttempts:     3,
		RetryBaseDelay:  "500ms",
		RetryMaxDelay:   "10s",
		StageTimeout:    "2m",
		OpenAIModel:     "gpt-4o-mini",
	}
}

func schemaflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".schemaflow"
	}
	return filepath.Join(home, ".schemaflow")
}

func settingsPath() string {
	return filepath.Join(schemaflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SCHEMAFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SCHEMAFLOW_STAGE_DIR"); v != "" {
		cfg.StageDir = v
	}
	if v := os.Getenv("SCHEMAFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SCHEMAFLOW_SAMPLE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SampleSize = n
		}
	}
	if v := os.Getenv("SCHEMAFLOW_CONFIDENCE_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ConfidenceFloor = f
		}
	}
	if v := os.Getenv("SCHEMAFLOW_SOURCE_SYSTEM"); v != "" {
		cfg.SourceSystem = v
	}
	if v := os.Getenv("SCHEMAFLOW_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("SCHEMAFLOW_STAGE_TIMEOUT"); v != "" {
		cfg.StageTimeout = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("SCHEMAFLOW_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("SCHEMAFLOW_OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("SCHEMAFLOW_RUN_SCHEDULER"); v != "" {
		cfg.RunScheduler = v == "true" || v == "1"
	}

	return cfg
}

func (c Config) duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
