package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	HydrationEnabled  bool     `mapstructure:"HYDRATION_ENABLED"`
	RemoteAPIURL      string   `mapstructure:"REMOTE_API_URL"`
	RemoteAPITimeout  int      `mapstructure:"REMOTE_API_TIMEOUT_SECONDS"`
	GeocoderAPIKey    string   `mapstructure:"GEOCODER_API_KEY"`
	RecaptchaSecret   string   `mapstructure:"RECAPTCHA_SECRET"`
	AdminJWTSecret    string   `mapstructure:"ADMIN_JWT_SECRET"`
	SparsityThreshold int      `mapstructure:"SPARSITY_THRESHOLD"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("HYDRATION_ENABLED", false)
	v.SetDefault("REMOTE_API_URL", "https://www.refugerestrooms.org/api/v1")
	v.SetDefault("REMOTE_API_TIMEOUT_SECONDS", 15)
	v.SetDefault("SPARSITY_THRESHOLD", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("HYDRATION_ENABLED")
	v.BindEnv("REMOTE_API_URL")
	v.BindEnv("REMOTE_API_TIMEOUT_SECONDS")
	v.BindEnv("GEOCODER_API_KEY")
	v.BindEnv("RECAPTCHA_SECRET")
	v.BindEnv("ADMIN_JWT_SECRET")
	v.BindEnv("SPARSITY_THRESHOLD")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RemoteTimeout returns the remote source client budget as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	secs := c.RemoteAPITimeout
	if secs <= 0 {
		secs = 15
	}
	return time.Duration(secs) * time.Second
}

// Validate checks that the configuration is safe to run. The admin surface
// (hydration toggle, seeding) must be protected in production, so
// ADMIN_JWT_SECRET is required there.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required in production")
	}
	if c.RemoteAPIURL == "" {
		return fmt.Errorf("REMOTE_API_URL must not be empty")
	}
	if c.SparsityThreshold < 0 {
		return fmt.Errorf("SPARSITY_THRESHOLD must be >= 0, got %d", c.SparsityThreshold)
	}
	return nil
}
