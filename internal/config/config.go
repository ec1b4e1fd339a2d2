package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Currency CurrencyConfig
	UI       UIConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// CurrencyConfig holds the base-currency default and rate-source settings.
// Each URL is a template with a single %s filled with a lowercase currency code.
type CurrencyConfig struct {
	Base           string
	PrimaryURL     string
	FallbackURL    string
	TimeoutSeconds int
}

// UIConfig holds presentation settings.
type UIConfig struct {
	DateFormat string
	Timezone   string
}

// Load reads configuration from file and env. Env var overrides use prefix CENTSIBLE_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "centsible", "centsible.db"))
	v.SetDefault("currency.base", "USD")
	v.SetDefault("currency.primary_url", "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/%s.min.json")
	v.SetDefault("currency.fallback_url", "https://latest.currency-api.pages.dev/v1/currencies/%s.min.json")
	v.SetDefault("currency.timeout_seconds", 8)
	v.SetDefault("ui.date_format", "02/01")
	v.SetDefault("ui.timezone", "Local")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("CENTSIBLE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "centsible"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CENTSIBLE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
// The base currency written here is only the first-run default; once a database
// exists the authoritative value lives in the settings table.
func Save(cfg Config) error {
	path := os.Getenv("CENTSIBLE_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "centsible", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("currency.base", cfg.Currency.Base)
	v.Set("currency.primary_url", cfg.Currency.PrimaryURL)
	v.Set("currency.fallback_url", cfg.Currency.FallbackURL)
	v.Set("currency.timeout_seconds", cfg.Currency.TimeoutSeconds)
	v.Set("ui.date_format", cfg.UI.DateFormat)
	v.Set("ui.timezone", cfg.UI.Timezone)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
