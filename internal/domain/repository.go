package domain

import (
	"context"
	"time"
)

// Repository defines the interface for snapshot and alert persistence.
type Repository interface {
	// Snapshot history
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, cacheKey string, limit int) ([]*Snapshot, error)

	// Alert rule configuration
	SaveAlertRule(ctx context.Context, rule *AlertRule) error
	GetAlertRule(ctx context.Context, ruleID string) (*AlertRule, error)
	ListAlertRules(ctx context.Context) ([]*AlertRule, error)
	DeleteAlertRule(ctx context.Context, ruleID string) error

	// Alert events
	SaveAlertEvent(ctx context.Context, event *AlertEvent) error
	ListAlertEvents(ctx context.Context, branch string, limit int) ([]*AlertEvent, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Snapshot is a persisted dashboard KPI snapshot, kept for audit and
// history views. The live read path never serves from here; the cache
// does that.
type Snapshot struct {
	ID         string          `json:"id"`
	CacheKey   string          `json:"cacheKey"`
	Params     DashboardParams `json:"params"`
	KPIs       DashboardKPIs   `json:"kpis"`
	ComputedAt time.Time       `json:"computedAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string `envconfig:"SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `envconfig:"POSTGRES_HOST"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT"`
	PostgresUser     string `envconfig:"POSTGRES_USER"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDB       string `envconfig:"POSTGRES_DB"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME"`
}
