package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
station_id: 176
station_model: Bresser-5in1
device_path: "1"
hass_url: http://localhost:8123
entity_prefix: weatherstation
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("minimal config gets defaults", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", minimalConfig)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() err = %v; want nil", err)
		}

		if cfg.StationID != 176 {
			t.Errorf("StationID = %d; want 176", cfg.StationID)
		}
		if cfg.Decoder != "rtl_433" {
			t.Errorf("Decoder = %q; want rtl_433", cfg.Decoder)
		}
		if cfg.Frequency != "868.3M" {
			t.Errorf("Frequency = %q; want 868.3M", cfg.Frequency)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q; want :8080", cfg.HTTPAddr)
		}
		if cfg.RequestTimeout != 5*time.Second {
			t.Errorf("RequestTimeout = %v; want 5s", cfg.RequestTimeout)
		}
	})

	t.Run("empty http_addr disables the ops endpoint", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", minimalConfig+`http_addr: ""`+"\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() err = %v; want nil", err)
		}
		if cfg.HTTPAddr != "" {
			t.Errorf("HTTPAddr = %q; want empty", cfg.HTTPAddr)
		}
	})

	t.Run("secrets file provides the token", func(t *testing.T) {
		dir := t.TempDir()
		secrets := writeFile(t, dir, "secrets.yaml", "hass_token: abc123\n")
		path := writeFile(t, dir, "config.yaml", minimalConfig+"secrets_path: "+secrets+"\n")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() err = %v; want nil", err)
		}
		if cfg.HassToken != "abc123" {
			t.Errorf("HassToken = %q; want abc123", cfg.HassToken)
		}
	})

	t.Run("entity overrides are parsed", func(t *testing.T) {
		content := minimalConfig + `
entities:
  temperature:
    precision: 2
    idempotent: false
  battery_ok:
    icon: mdi:battery-alert
`
		path := writeFile(t, t.TempDir(), "config.yaml", content)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() err = %v; want nil", err)
		}

		temp, ok := cfg.Entities["temperature"]
		if !ok {
			t.Fatal("missing temperature override")
		}
		if temp.Precision == nil || *temp.Precision != 2 {
			t.Errorf("temperature precision = %v; want 2", temp.Precision)
		}
		if temp.Idempotent == nil || *temp.Idempotent {
			t.Errorf("temperature idempotent = %v; want false", temp.Idempotent)
		}
		if bat := cfg.Entities["battery_ok"]; bat.Icon == nil || *bat.Icon != "mdi:battery-alert" {
			t.Errorf("battery_ok icon = %v; want mdi:battery-alert", bat.Icon)
		}
	})

	t.Run("unknown entity override is rejected", func(t *testing.T) {
		content := minimalConfig + `
entities:
  pressure:
    precision: 0
`
		path := writeFile(t, t.TempDir(), "config.yaml", content)
		if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "pressure") {
			t.Errorf("Load() err = %v; want unknown entity error", err)
		}
	})

	t.Run("missing required fields are rejected", func(t *testing.T) {
		cases := map[string]string{
			"station_id":    "station_model: X\ndevice_path: \"1\"\nhass_url: http://h\nentity_prefix: p\n",
			"station_model": "station_id: 1\ndevice_path: \"1\"\nhass_url: http://h\nentity_prefix: p\n",
			"device_path":   "station_id: 1\nstation_model: X\nhass_url: http://h\nentity_prefix: p\n",
			"hass_url":      "station_id: 1\nstation_model: X\ndevice_path: \"1\"\nentity_prefix: p\n",
			"entity_prefix": "station_id: 1\nstation_model: X\ndevice_path: \"1\"\nhass_url: http://h\n",
		}
		for missing, content := range cases {
			path := writeFile(t, t.TempDir(), "config.yaml", content)
			if _, err := Load(path); err == nil {
				t.Errorf("Load() without %s: err = nil; want error", missing)
			}
		}
	})

	t.Run("invalid request_timeout is rejected", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", minimalConfig+"request_timeout: soon\n")
		if _, err := Load(path); err == nil {
			t.Error("Load() err = nil; want error")
		}
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("env token wins over the secrets file", func(t *testing.T) {
		dir := t.TempDir()
		secrets := writeFile(t, dir, "secrets.yaml", "hass_token: from-file\n")
		path := writeFile(t, dir, "config.yaml", minimalConfig+"secrets_path: "+secrets+"\n")

		t.Setenv("CONFIG_PATH", path)
		t.Setenv("HASS_TOKEN", "from-env")

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("LoadFromEnv() err = %v; want nil", err)
		}
		if cfg.HassToken != "from-env" {
			t.Errorf("HassToken = %q; want from-env", cfg.HassToken)
		}
	})

	t.Run("missing token anywhere is an error", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", minimalConfig)
		t.Setenv("CONFIG_PATH", path)
		t.Setenv("HASS_TOKEN", "")

		if _, err := LoadFromEnv(); err == nil {
			t.Error("LoadFromEnv() err = nil; want error")
		}
	})

	t.Run("log level and env are applied", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", minimalConfig)
		t.Setenv("CONFIG_PATH", path)
		t.Setenv("HASS_TOKEN", "tok")
		t.Setenv("APP_ENV", "prod")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("LoadFromEnv() err = %v; want nil", err)
		}
		if cfg.AppEnv != "prod" {
			t.Errorf("AppEnv = %q; want prod", cfg.AppEnv)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Errorf("LogLevel = %v; want debug", cfg.LogLevel)
		}
	})

	t.Run("invalid APP_ENV is rejected", func(t *testing.T) {
		t.Setenv("APP_ENV", "staging")
		if _, err := LoadFromEnv(); err == nil {
			t.Error("LoadFromEnv() err = nil; want error")
		}
	})

	t.Run("invalid LOG_LEVEL is rejected", func(t *testing.T) {
		t.Setenv("APP_ENV", "dev")
		t.Setenv("LOG_LEVEL", "loud")
		if _, err := LoadFromEnv(); err == nil {
			t.Error("LoadFromEnv() err = nil; want error")
		}
	})
}
