// Package storage defines the persistence interface for healing data and
// provides the SQLite backend.
package storage

import (
	"context"
	"time"

	"github.com/havenops/remedy/internal/storage/sqlite"
	"github.com/havenops/remedy/internal/types"
)

// Storage is the persistence interface for healing entities. All
// JSON-bearing columns store opaque payloads; no column is queried by
// nested field.
type Storage interface {
	// Error events
	StoreErrorEvent(ctx context.Context, event *types.ErrorEvent) error
	GetRecentErrorEvents(ctx context.Context, limit int) ([]*types.ErrorEvent, error)
	GetErrorEventsSince(ctx context.Context, since time.Time) ([]*types.ErrorEvent, error)
	CleanupErrorEvents(ctx context.Context, olderThan time.Time, batchSize int) (int, error)

	// Anomalies
	StoreAnomaly(ctx context.Context, anomaly *types.Anomaly) error
	GetRecentAnomalies(ctx context.Context, limit int) ([]*types.Anomaly, error)

	// Recovery patterns
	UpsertRecoveryPattern(ctx context.Context, pattern *types.RecoveryPattern) error
	GetRecoveryPatterns(ctx context.Context) ([]*types.RecoveryPattern, error)

	// Healing sessions
	CreateHealingSession(ctx context.Context, session *types.HealingSession) error
	CloseHealingSession(ctx context.Context, session *types.HealingSession) error
	GetRecentHealingSessions(ctx context.Context, limit int) ([]*types.HealingSession, error)

	// Code fixes
	UpsertCodeFix(ctx context.Context, fix *types.CodeFix) error
	GetCodeFix(ctx context.Context, fixID string) (*types.CodeFix, error)

	// Experiences (learning layer)
	StoreExperience(ctx context.Context, exp *types.Experience) error

	// Lifecycle
	Close() error
}

// Config holds database configuration.
type Config struct {
	// Path is the SQLite database file path.
	// Default: ".remedy/remedy.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{Path: ".remedy/remedy.db"}
}

// New creates a new SQLite storage backend.
func New(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = ".remedy/remedy.db"
	}
	return sqlite.New(cfg.Path)
}
