package httpapi

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/tdimeji/mmsgate/internal/request"
	"github.com/tdimeji/mmsgate/pkg/codes"
)

// StatusEntry is the API-visible view of a request's progress.
type StatusEntry struct {
	RequestID   string    `json:"request_id"`
	SubID       int       `json:"sub_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"error_code,omitempty"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// StatusStore tracks submitted requests until their outcome lands, plus a
// retention window after that for API polling.
type StatusStore struct {
	entries cmap.ConcurrentMap[string, StatusEntry]
}

func NewStatusStore() *StatusStore {
	return &StatusStore{entries: cmap.New[StatusEntry]()}
}

// Track registers a freshly submitted request. If the outcome already
// landed, as it can when a carrier app answers synchronously, the terminal
// entry wins.
func (s *StatusStore) Track(id string, subID int, kind string) {
	s.entries.Upsert(id, StatusEntry{}, func(exists bool, cur, _ StatusEntry) StatusEntry {
		if exists {
			cur.SubmittedAt = time.Now()
			return cur
		}
		return StatusEntry{
			RequestID:   id,
			SubID:       subID,
			Kind:        kind,
			Status:      codes.ReqStatusPending,
			SubmittedAt: time.Now(),
		}
	})
}

// Sink returns a ResultSink that records the terminal outcome for id and
// then chains to next if non-nil.
func (s *StatusStore) Sink(next request.ResultSink) request.ResultSink {
	return func(o request.Outcome) {
		s.entries.Upsert(o.RequestID, StatusEntry{}, func(exists bool, cur, _ StatusEntry) StatusEntry {
			if !exists {
				cur = StatusEntry{RequestID: o.RequestID, SubID: o.SubID, Kind: o.Kind.String()}
			}
			if o.Succeeded {
				cur.Status = codes.ReqStatusSucceeded
			} else {
				cur.Status = codes.ReqStatusFailed
			}
			cur.ErrorCode = o.ErrorCode
			cur.HTTPStatus = o.HTTPStatus
			cur.Attempts = o.Attempts
			cur.FinishedAt = time.Now()
			return cur
		})
		if next != nil {
			next(o)
		}
	}
}

// Get returns the entry for a request id.
func (s *StatusStore) Get(id string) (StatusEntry, bool) {
	return s.entries.Get(id)
}

// Count reports the number of tracked entries.
func (s *StatusStore) Count() int {
	return s.entries.Count()
}

// Prune drops terminal entries that finished before cutoff and returns how
// many were removed. In-flight entries are never pruned.
func (s *StatusStore) Prune(cutoff time.Time) int {
	var stale []string
	s.entries.IterCb(func(id string, e StatusEntry) {
		if e.FinishedAt.IsZero() || !e.FinishedAt.Before(cutoff) {
			return
		}
		stale = append(stale, id)
	})
	for _, id := range stale {
		s.entries.Remove(id)
	}
	return len(stale)
}
