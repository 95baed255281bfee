package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Risk     RiskConfig
	History  HistoryConfig
}

type DatabaseConfig struct {
	Host              string        `env:"DB_HOST" envDefault:"localhost"`
	Port              int           `env:"DB_PORT" envDefault:"5432"`
	User              string        `env:"DB_USER" envDefault:"postgres"`
	Password          string        `env:"DB_PASSWORD,required,notEmpty"`
	Name              string        `env:"DB_NAME" envDefault:"riskgate"`
	SSLMode           string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns          int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"1m"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
	// LockTimeout bounds how long a login waits for another transition on the same account
	LockTimeout       time.Duration `env:"DB_LOCK_TIMEOUT" envDefault:"5s"`
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
}

type AuthConfig struct {
	JWTSecret           string        `env:"JWT_SECRET,required,notEmpty"`
	SessionTokenExpiry  time.Duration `env:"SESSION_TOKEN_EXPIRY" envDefault:"15m"`
	BcryptCost          int           `env:"BCRYPT_COST" envDefault:"12"`
	LoginRatePerMinute  int           `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	FailureDelay        time.Duration `env:"LOGIN_FAILURE_DELAY" envDefault:"250ms"`
	FailureJitter       time.Duration `env:"LOGIN_FAILURE_JITTER" envDefault:"100ms"`
	TenantCreationToken string        `env:"TENANT_CREATION_TOKEN"`
}

type RiskConfig struct {
	// ModelPath names the exported ensemble artifact. It is not shipped; a
	// missing file leaves the service degraded and failing closed.
	ModelPath      string `env:"RISK_MODEL_PATH" envDefault:"models/ensemble.json"`
	GeoIPPath      string `env:"GEOIP_CITY_DB"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

type HistoryConfig struct {
	// Retention of zero keeps observations forever
	Retention       time.Duration `env:"HISTORY_RETENTION" envDefault:"0s"`
	CleanupInterval time.Duration `env:"HISTORY_CLEANUP_INTERVAL" envDefault:"1h"`
}

// Load reads an optional .env file and parses the environment into Config
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validateJWTSecret(cfg.Auth.JWTSecret, cfg.Server.Env); err != nil {
		return nil, err
	}
	if cfg.Auth.LoginRatePerMinute <= 0 {
		return nil, fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive")
	}
	if cfg.History.Retention < 0 {
		return nil, fmt.Errorf("HISTORY_RETENTION must not be negative")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Trim(secretLower, "0123456789-_!") == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
