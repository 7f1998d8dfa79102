package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "securityapi", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 720*time.Hour, cfg.RetentionGrace)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.HTTPPort)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:       "development",
			HTTPPort:          8080,
			JWTSecret:         "dev-secret",
			AccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:   168 * time.Hour,
			ResetTokenTTL:     time.Hour,
			BcryptCost:        12,
			RetentionInterval: time.Hour,
			RetentionGrace:    720 * time.Hour,
			KafkaBrokers:      []string{"localhost:9092"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.HTTPPort = 0 },
			wantErr: "HTTP_PORT",
		},
		{
			name: "weak secret in production",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.JWTSecret = "short"
			},
			wantErr: "JWT_SECRET",
		},
		{
			name: "weak secret allowed in development",
			mutate: func(c *Config) {
				c.JWTSecret = "short"
			},
		},
		{
			name:    "refresh not longer than access",
			mutate:  func(c *Config) { c.RefreshTokenTTL = c.AccessTokenTTL },
			wantErr: "REFRESH_TOKEN_TTL",
		},
		{
			name:    "bcrypt cost too low",
			mutate:  func(c *Config) { c.BcryptCost = 4 },
			wantErr: "BCRYPT_COST",
		},
		{
			name:    "negative grace",
			mutate:  func(c *Config) { c.RetentionGrace = -time.Hour },
			wantErr: "RETENTION_GRACE",
		},
		{
			name:    "no brokers",
			mutate:  func(c *Config) { c.KafkaBrokers = nil },
			wantErr: "KAFKA_BROKERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
