package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Auth.SessionTokenExpiry)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 10, cfg.Auth.LoginRatePerMinute)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, time.Duration(0), cfg.History.Retention)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1/32")
	t.Setenv("HISTORY_RETENTION", "2160h")
	t.Setenv("RISK_MODEL_PATH", "/etc/riskgate/model.json")
	t.Setenv("DB_MAX_CONNS", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1/32"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 90*24*time.Hour, cfg.History.Retention)
	assert.Equal(t, "/etc/riskgate/model.json", cfg.Risk.ModelPath)
	assert.Equal(t, int32(50), cfg.Database.MaxConns)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": "", "DB_PASSWORD": "test"}},
		{"missing db password", map[string]string{"JWT_SECRET": "test-secret-32-characters-long!", "DB_PASSWORD": ""}},
		{"short secret in production", map[string]string{"JWT_SECRET": "only-twenty-chars!!", "DB_PASSWORD": "test", "ENV": "production"}},
		{"bad duration", map[string]string{"JWT_SECRET": "test-secret-32-characters-long!", "DB_PASSWORD": "test", "SESSION_TOKEN_EXPIRY": "soon"}},
		{"zero login rate", map[string]string{"JWT_SECRET": "test-secret-32-characters-long!", "DB_PASSWORD": "test", "LOGIN_RATE_PER_MINUTE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateJWTSecret(t *testing.T) {
	assert.NoError(t, validateJWTSecret("a-perfectly-fine-secret", "development"))
	assert.Error(t, validateJWTSecret("short", "development"))
	assert.Error(t, validateJWTSecret("changeme", "development"))
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "riskgate", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=riskgate sslmode=disable", c.DSN())
}
