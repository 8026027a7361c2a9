// Package config defines the global configuration structure for the slotbook
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup.
package config

import (
	"time"

	"slotbook/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the slotbook platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"slotbook"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"20s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// EngineConfig holds scheduling engine tuning parameters: maintenance
// cadence and the retention/batch knobs for the reap and sweep jobs.
type EngineConfig struct {
	// SweepInterval is how often the maintenance worker runs the
	// subscription expiry sweep and the slot reap.
	SweepInterval time.Duration `envconfig:"ENGINE_SWEEP_INTERVAL" default:"5m"`

	// ReapGrace is how long an ended slot is retained before the reap may
	// delete it (and cascade its bookings).
	ReapGrace time.Duration `envconfig:"ENGINE_REAP_GRACE" default:"24h"`

	// ReapBatch bounds the rows deleted per reap statement.
	ReapBatch int `envconfig:"ENGINE_REAP_BATCH" default:"500" validate:"gte=1,lte=10000"`

	// JobLockTTL is the distributed lock lifetime for maintenance tasks.
	JobLockTTL time.Duration `envconfig:"ENGINE_JOB_LOCK_TTL" default:"15m"`
}
