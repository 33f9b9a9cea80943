package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tdimeji/mmsgate/internal/httpapi"
)

// Config holds maintenance intervals and retention windows.
type Config struct {
	SweepInterval   time.Duration
	StatusRetention time.Duration
	RecordRetention time.Duration
}

// Manager orchestrates the background maintenance loops: pruning finished
// request statuses from memory and expiring old outcome rows from the
// database.
type Manager struct {
	dbpool   *pgxpool.Pool
	statuses *httpapi.StatusStore
	cfg      Config
}

// NewManager creates a maintenance manager. dbpool may be nil when the
// gateway runs without a database.
func NewManager(pool *pgxpool.Pool, statuses *httpapi.StatusStore, cfg Config) *Manager {
	return &Manager{dbpool: pool, statuses: statuses, cfg: cfg}
}

// Start launches the maintenance loops.
func (m *Manager) Start(ctx context.Context) {
	slog.InfoContext(ctx, "Starting maintenance workers")
	go runMaintenanceLoop(ctx, "status-prune", m.cfg.SweepInterval, m.pruneStatuses)
	if m.dbpool != nil {
		go runMaintenanceLoop(ctx, "record-expiry", m.cfg.SweepInterval, m.expireRecords)
	}
}

// pruneStatuses drops finished request entries older than the retention
// window so the in-memory store does not grow unbounded.
func (m *Manager) pruneStatuses(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.cfg.StatusRetention)
	return m.statuses.Prune(cutoff), nil
}

// expireRecords deletes persisted outcomes past the database retention
// window.
func (m *Manager) expireRecords(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.cfg.RecordRetention)
	tag, err := m.dbpool.Exec(ctx,
		`DELETE FROM mms_requests WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
