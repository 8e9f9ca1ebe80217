package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "CASTLOG"
	defaultDatabasePath = "castlog.db"
	defaultLogLevel     = "info"
	defaultWeatherURL   = "https://api.open-meteo.com/v1/forecast"

	// Ain Diab, Casablanca. The app tracks a single home spot; a
	// per-session override still comes in through the CLI flags.
	defaultSpotLatitude  = 33.5731
	defaultSpotLongitude = -7.5898

	defaultSyncBaseDelay  = 500 * time.Millisecond
	defaultSyncMaxRetries = 5
)

// AppConfig captures runtime configuration for the castlog CLI.
type AppConfig struct {
	DatabasePath string
	LogLevel     string

	BackendURL    string
	BackendAPIKey string

	AuthToken         string
	AuthSigningSecret string

	WeatherURL string

	SpotLatitude  float64
	SpotLongitude float64

	SyncBaseDelay  time.Duration
	SyncMaxRetries int
	SyncInterval   time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("weather.url", defaultWeatherURL)
	configViper.SetDefault("spot.latitude", defaultSpotLatitude)
	configViper.SetDefault("spot.longitude", defaultSpotLongitude)
	configViper.SetDefault("sync.base_delay", defaultSyncBaseDelay)
	configViper.SetDefault("sync.max_retries", defaultSyncMaxRetries)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),

		BackendURL:    configViper.GetString("backend.url"),
		BackendAPIKey: configViper.GetString("backend.api_key"),

		AuthToken:         configViper.GetString("auth.token"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),

		WeatherURL: configViper.GetString("weather.url"),

		SpotLatitude:  configViper.GetFloat64("spot.latitude"),
		SpotLongitude: configViper.GetFloat64("spot.longitude"),

		SyncBaseDelay:  configViper.GetDuration("sync.base_delay"),
		SyncMaxRetries: configViper.GetInt("sync.max_retries"),
		SyncInterval:   configViper.GetDuration("sync.interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SpotLatitude < -90 || c.SpotLatitude > 90 {
		return fmt.Errorf("spot.latitude must be within [-90, 90], got %v", c.SpotLatitude)
	}
	if c.SpotLongitude < -180 || c.SpotLongitude > 180 {
		return fmt.Errorf("spot.longitude must be within [-180, 180], got %v", c.SpotLongitude)
	}
	if c.SyncMaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be positive, got %d", c.SyncMaxRetries)
	}
	return nil
}
