package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EntityOverride adjusts one measurement channel's publish behavior. Nil
// fields keep the built-in default.
type EntityOverride struct {
	Unit       *string `yaml:"unit"`
	Icon       *string `yaml:"icon"`
	Precision  *int    `yaml:"precision"`
	Idempotent *bool   `yaml:"idempotent"`
}

// Channels that accept overrides; must match the names the driver fans out.
var knownChannels = map[string]bool{
	"temperature":    true,
	"humidity":       true,
	"wind_speed_avg": true,
	"wind_speed_max": true,
	"wind_direction": true,
	"rain":           true,
	"battery_ok":     true,
}

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	StationID    int
	StationModel string
	DevicePath   string
	Decoder      string
	Frequency    string

	HassURL      string
	HassToken    string
	EntityPrefix string

	HTTPAddr       string
	RequestTimeout time.Duration

	Entities map[string]EntityOverride
}

// file is the YAML schema of the config file.
type file struct {
	StationID      int                       `yaml:"station_id"`
	StationModel   string                    `yaml:"station_model"`
	DevicePath     string                    `yaml:"device_path"`
	Decoder        string                    `yaml:"decoder"`
	Frequency      string                    `yaml:"frequency"`
	HassURL        string                    `yaml:"hass_url"`
	EntityPrefix   string                    `yaml:"entity_prefix"`
	HTTPAddr       *string                   `yaml:"http_addr"`
	RequestTimeout string                    `yaml:"request_timeout"`
	SecretsPath    string                    `yaml:"secrets_path"`
	Entities       map[string]EntityOverride `yaml:"entities"`
}

type secretsFile struct {
	HassToken string `yaml:"hass_token"`
}

// LoadFromEnv reads the process environment (APP_ENV, LOG_LEVEL,
// CONFIG_PATH, HASS_TOKEN), then the YAML config file and the secrets file
// it points at. The HASS_TOKEN environment variable, when set, wins over the
// secrets file.
func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	configPath := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg.AppEnv = appEnv
	cfg.LogLevel = level

	if token := strings.TrimSpace(os.Getenv("HASS_TOKEN")); token != "" {
		cfg.HassToken = token
	}
	if cfg.HassToken == "" {
		return Config{}, fmt.Errorf("hass token missing: set HASS_TOKEN or hass_token in the secrets file")
	}

	return cfg, nil
}

// Load parses the YAML config file at path, loads the secrets file it
// references, applies defaults, and validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&f)

	timeout, err := time.ParseDuration(f.RequestTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("invalid request_timeout %q: %w", f.RequestTimeout, err)
	}

	cfg := Config{
		StationID:      f.StationID,
		StationModel:   f.StationModel,
		DevicePath:     f.DevicePath,
		Decoder:        f.Decoder,
		Frequency:      f.Frequency,
		HassURL:        strings.TrimRight(f.HassURL, "/"),
		EntityPrefix:   f.EntityPrefix,
		HTTPAddr:       *f.HTTPAddr,
		RequestTimeout: timeout,
		Entities:       f.Entities,
	}

	// Token may still be overridden from the environment by LoadFromEnv.
	if f.SecretsPath != "" {
		token, err := loadToken(f.SecretsPath)
		if err != nil {
			return Config{}, err
		}
		cfg.HassToken = token
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(f *file) {
	if f.Decoder == "" {
		f.Decoder = "rtl_433"
	}
	if f.Frequency == "" {
		f.Frequency = "868.3M"
	}
	if f.HTTPAddr == nil {
		addr := ":8080"
		f.HTTPAddr = &addr // empty string in the file disables the endpoint
	}
	if f.RequestTimeout == "" {
		f.RequestTimeout = "5s"
	}
	if f.SecretsPath == "" {
		if _, err := os.Stat("secrets.yaml"); err == nil {
			f.SecretsPath = "secrets.yaml"
		}
	}
}

func validate(cfg Config) error {
	if cfg.StationID == 0 {
		return fmt.Errorf("station_id is required")
	}
	if cfg.StationModel == "" {
		return fmt.Errorf("station_model is required")
	}
	if cfg.DevicePath == "" {
		return fmt.Errorf("device_path is required")
	}
	if cfg.HassURL == "" {
		return fmt.Errorf("hass_url is required")
	}
	if cfg.EntityPrefix == "" {
		return fmt.Errorf("entity_prefix is required")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	for name := range cfg.Entities {
		if !knownChannels[name] {
			return fmt.Errorf("unknown entity %q in entities overrides", name)
		}
	}
	return nil
}

func loadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secrets: %w", err)
	}
	var s secretsFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("parse secrets: %w", err)
	}
	return strings.TrimSpace(s.HassToken), nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
