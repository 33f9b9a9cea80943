package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPersister stores transfer outcomes in the mms_requests table.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

var _ Persister = (*PostgresPersister)(nil)

// NewPostgresPersister wraps an established pool.
func NewPostgresPersister(pool *pgxpool.Pool) *PostgresPersister {
	return &PostgresPersister{pool: pool}
}

const upsertOutcomeSQL = `
INSERT INTO mms_requests (id, sub_id, kind, status, error_code, http_status, attempts, body_size, finished_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, 0), $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    status      = EXCLUDED.status,
    error_code  = EXCLUDED.error_code,
    http_status = EXCLUDED.http_status,
    attempts    = EXCLUDED.attempts,
    body_size   = EXCLUDED.body_size,
    finished_at = EXCLUDED.finished_at`

func (p *PostgresPersister) PersistOutcome(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, upsertOutcomeSQL,
		rec.RequestID, rec.SubID, rec.Kind, rec.Status, rec.ErrorCode,
		rec.HTTPStatus, rec.Attempts, rec.BodySize, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist outcome for request %s: %w", rec.RequestID, err)
	}
	return nil
}
