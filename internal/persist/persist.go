package persist

import (
	"context"
	"log/slog"
	"time"
)

// Record is the terminal outcome of one transfer as handed to the
// persistence collaborator. Persistence is best-effort: a failure here is
// logged by the caller and never changes the already-decided outcome.
type Record struct {
	RequestID  string
	SubID      int
	Kind       string
	Status     string
	ErrorCode  string
	HTTPStatus int
	Attempts   int
	BodySize   int
	FinishedAt time.Time
}

// Persister stores transfer outcomes.
type Persister interface {
	PersistOutcome(ctx context.Context, rec Record) error
}

// LogPersister writes outcomes to the log only. Used when no database is
// configured.
type LogPersister struct{}

var _ Persister = (*LogPersister)(nil)

func NewLogPersister() *LogPersister { return &LogPersister{} }

func (LogPersister) PersistOutcome(ctx context.Context, rec Record) error {
	slog.InfoContext(ctx, "Transfer outcome",
		slog.String("req_id", rec.RequestID),
		slog.Int("sub_id", rec.SubID),
		slog.String("kind", rec.Kind),
		slog.String("status", rec.Status),
		slog.String("error_code", rec.ErrorCode),
		slog.Int("http_status", rec.HTTPStatus),
		slog.Int("attempts", rec.Attempts),
	)
	return nil
}
