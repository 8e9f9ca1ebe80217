package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabasePath != "castlog.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
	if cfg.SpotLatitude != 33.5731 || cfg.SpotLongitude != -7.5898 {
		t.Fatalf("unexpected default spot: %v, %v", cfg.SpotLatitude, cfg.SpotLongitude)
	}
	if cfg.SyncBaseDelay != 500*time.Millisecond {
		t.Fatalf("unexpected base delay: %v", cfg.SyncBaseDelay)
	}
	if cfg.SyncMaxRetries != 5 {
		t.Fatalf("unexpected retry budget: %d", cfg.SyncMaxRetries)
	}
	if !strings.Contains(cfg.WeatherURL, "open-meteo.com") {
		t.Fatalf("unexpected weather url: %s", cfg.WeatherURL)
	}
}

func TestLoadOverridesFromSettings(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.path", "/tmp/override.db")
	configViper.Set("backend.url", "https://backend.example.com/rest/v1")
	configViper.Set("sync.max_retries", 3)
	configViper.Set("sync.base_delay", "250ms")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabasePath != "/tmp/override.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.BackendURL != "https://backend.example.com/rest/v1" {
		t.Fatalf("unexpected backend url: %s", cfg.BackendURL)
	}
	if cfg.SyncMaxRetries != 3 {
		t.Fatalf("unexpected retry budget: %d", cfg.SyncMaxRetries)
	}
	if cfg.SyncBaseDelay != 250*time.Millisecond {
		t.Fatalf("unexpected base delay: %v", cfg.SyncBaseDelay)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value interface{}
	}{
		{name: "empty database path", key: "database.path", value: "  "},
		{name: "latitude out of range", key: "spot.latitude", value: 91.0},
		{name: "longitude out of range", key: "spot.longitude", value: -181.0},
		{name: "zero retry budget", key: "sync.max_retries", value: 0},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.value)
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error for %s", testCase.name)
			}
		})
	}
}
