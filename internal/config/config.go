package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config keeps runtime settings for the calendar service and its bot.
type Config struct {
	// TelegramToken is optional; the bot is disabled without it.
	TelegramToken string
	DatabaseURL   string
	Location      *time.Location
	// Lookahead is the window materialized at startup and on every periodic run.
	Lookahead time.Duration
	// RegenerateHorizon is the window rebuilt by a per-template regeneration.
	RegenerateHorizon time.Duration
	// RegenerateSpec is the cron spec of the periodic run.
	RegenerateSpec string
	// DigestTime is the HH:MM local time of the daily agenda message.
	DigestTime    string
	StoreTimeout  time.Duration
	LogLevel      string
	LogFormat     string
	BotRatePerSec float64
}

// fileConfig mirrors the optional YAML file named by CONFIG_FILE.
type fileConfig struct {
	TelegramToken  string  `yaml:"telegram_token"`
	DatabaseURL    string  `yaml:"database_url"`
	Timezone       string  `yaml:"timezone"`
	LookaheadDays  int     `yaml:"lookahead_days"`
	RegenerateDays int     `yaml:"regenerate_days"`
	RegenerateAt   string  `yaml:"regenerate_at"`
	DigestTime     string  `yaml:"digest_time"`
	StoreTimeout   string  `yaml:"store_timeout"`
	LogLevel       string  `yaml:"log_level"`
	LogFormat      string  `yaml:"log_format"`
	BotRatePerSec  float64 `yaml:"bot_rate_per_sec"`
}

const (
	defaultDatabaseURL    = "task_calendar.db"
	defaultLookaheadDays  = 7
	defaultRegenerateDays = 30
	defaultRegenerateAt   = "0 0 * * *"
	defaultDigestTime     = "08:00"
	defaultStoreTimeout   = 30 * time.Second
	defaultBotRate        = 20
)

// Load reads configuration from an optional YAML file and environment
// variables with sane defaults. Environment variables win over the file.
func Load() (Config, error) {
	var file fileConfig
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if file, err = parseFile(data); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	overlayEnv(&file)
	return build(file)
}

func parseFile(data []byte) (fileConfig, error) {
	var file fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, err
	}
	return file, nil
}

func overlayEnv(file *fileConfig) {
	setString(&file.TelegramToken, "TELEGRAM_TOKEN")
	setString(&file.DatabaseURL, "DATABASE_URL")
	setString(&file.Timezone, "TIMEZONE")
	setString(&file.RegenerateAt, "REGENERATE_AT")
	setString(&file.DigestTime, "DIGEST_TIME")
	setString(&file.StoreTimeout, "STORE_TIMEOUT")
	setString(&file.LogLevel, "LOG_LEVEL")
	setString(&file.LogFormat, "LOG_FORMAT")
	setInt(&file.LookaheadDays, "LOOKAHEAD_DAYS")
	setInt(&file.RegenerateDays, "REGENERATE_DAYS")
	if raw := env("BOT_RATE_PER_SEC"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate == 0 {
			rate = -1
		}
		file.BotRatePerSec = rate
	}
}

func build(file fileConfig) (Config, error) {
	cfg := Config{
		TelegramToken:  file.TelegramToken,
		DatabaseURL:    file.DatabaseURL,
		RegenerateSpec: file.RegenerateAt,
		DigestTime:     file.DigestTime,
		LogLevel:       strings.ToLower(file.LogLevel),
		LogFormat:      strings.ToLower(file.LogFormat),
		BotRatePerSec:  file.BotRatePerSec,
		StoreTimeout:   defaultStoreTimeout,
		Location:       time.Local,
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.RegenerateSpec == "" {
		cfg.RegenerateSpec = defaultRegenerateAt
	}
	if cfg.DigestTime == "" {
		cfg.DigestTime = defaultDigestTime
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return cfg, fmt.Errorf("LOG_FORMAT must be console or json, got %q", file.LogFormat)
	}
	if cfg.BotRatePerSec == 0 {
		cfg.BotRatePerSec = defaultBotRate
	}
	if cfg.BotRatePerSec < 0 || math.IsNaN(cfg.BotRatePerSec) || math.IsInf(cfg.BotRatePerSec, 0) {
		return cfg, fmt.Errorf("BOT_RATE_PER_SEC must be a positive number")
	}

	if file.Timezone != "" {
		loc, err := time.LoadLocation(file.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	lookahead, err := days("LOOKAHEAD_DAYS", file.LookaheadDays, defaultLookaheadDays)
	if err != nil {
		return cfg, err
	}
	cfg.Lookahead = lookahead

	horizon, err := days("REGENERATE_DAYS", file.RegenerateDays, defaultRegenerateDays)
	if err != nil {
		return cfg, err
	}
	cfg.RegenerateHorizon = horizon

	if file.StoreTimeout != "" {
		timeout, err := time.ParseDuration(file.StoreTimeout)
		if err != nil || timeout <= 0 {
			return cfg, fmt.Errorf("STORE_TIMEOUT must be a positive duration, got %q", file.StoreTimeout)
		}
		cfg.StoreTimeout = timeout
	}

	return cfg, nil
}

func days(name string, n, def int) (time.Duration, error) {
	switch {
	case n == 0:
		n = def
	case n < 0:
		return 0, fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func setString(dst *string, name string) {
	if raw := env(name); raw != "" {
		*dst = raw
	}
}

// setInt stores -1 for unparsable input so validation rejects it.
func setInt(dst *int, name string) {
	raw := env(name)
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		n = -1
	}
	*dst = n
}
