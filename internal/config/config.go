package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration, parsed from the
// environment. Components receive the pieces they need at construction;
// nothing reads the environment after startup.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// CoinsPerNaira is the global conversion constant: how many gift
	// coins make one naira. 100 in the production configuration.
	CoinsPerNaira int64 `env:"COINS_PER_NAIRA" envDefault:"100"`

	JWTSecret string `env:"JWT_SECRET,required"`

	GatewayBaseURL string        `env:"GATEWAY_BASE_URL" envDefault:"https://api.paystack.co"`
	GatewaySecret  string        `env:"GATEWAY_SECRET_KEY,required"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"30s"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.CoinsPerNaira <= 0 {
		return Config{}, fmt.Errorf("COINS_PER_NAIRA must be positive, got %d", cfg.CoinsPerNaira)
	}
	if cfg.GatewayTimeout <= 0 {
		return Config{}, fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", cfg.GatewayTimeout)
	}
	return cfg, nil
}
