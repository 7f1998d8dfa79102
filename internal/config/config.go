package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/AhmadZeb/SecurityApi/pkg/config"
	"github.com/AhmadZeb/SecurityApi/pkg/database"
)

// Config holds all runtime configuration, populated from environment
// variables with sane development defaults.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"securityapi"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"securityapi"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"securityapi"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"securityapi"`
	PostgresSSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	PostgresMinConns int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dev-secret-do-not-use-in-production"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"securityapi"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	ResetTokenTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`

	RetentionInterval time.Duration `env:"RETENTION_INTERVAL" envDefault:"1h"`
	RetentionGrace    time.Duration `env:"RETENTION_GRACE" envDefault:"720h"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate enforces configuration invariants that env parsing cannot.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.Environment != "development" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters outside development")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}
	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("RESET_TOKEN_TTL must be positive")
	}
	if c.BcryptCost < 10 || c.BcryptCost > 16 {
		return fmt.Errorf("BCRYPT_COST must be between 10 and 16, got %d", c.BcryptCost)
	}
	if c.RetentionInterval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.RetentionGrace < 0 {
		return fmt.Errorf("RETENTION_GRACE must not be negative")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
// Development mode relaxes secret strength checks and echoes password
// reset tokens in API responses.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// PostgresConfig adapts the flat env fields to the database package config.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPassword,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSLMode,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        c.PostgresMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}
