package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tdimeji/mmsgate/internal/carrier"
	"github.com/tdimeji/mmsgate/internal/request"
)

// NoSubscription marks the scheduler as idle with no owning subscription.
const NoSubscription = -1

// ErrStopped is returned for submissions after Stop.
var ErrStopped = errors.New("scheduler: stopped")

// Config sizes the per-class worker pools.
type Config struct {
	SendWorkers     int
	DownloadWorkers int
}

// Scheduler admits requests one subscription at a time. While transfers for
// one SIM are in flight, work for other SIMs queues FIFO behind them; when
// the last transfer drains, the queue head's subscription takes over and
// every queued request for it dispatches together.
type Scheduler struct {
	env      *request.Env
	delegate *carrier.Delegate

	sendPool     *pool
	downloadPool *pool

	mu           sync.Mutex
	pending      []*request.Request
	currentSubID int
	running      int
	stopped      bool
}

// New builds a scheduler. delegate may be nil, disabling the carrier-app
// offer entirely.
func New(env *request.Env, delegate *carrier.Delegate, cfg Config) *Scheduler {
	s := &Scheduler{
		env:          env,
		delegate:     delegate,
		currentSubID: NoSubscription,
	}
	s.sendPool = newPool("send", cfg.SendWorkers, s.execute)
	s.downloadPool = newPool("download", cfg.DownloadWorkers, s.execute)
	return s
}

// Start launches the worker pools. ctx is the lifetime context handed to
// every transfer.
func (s *Scheduler) Start(ctx context.Context) {
	s.sendPool.start(ctx)
	s.downloadPool.start(ctx)
}

// Stop closes admission and waits for in-flight transfers to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.sendPool.stop()
	s.downloadPool.stop()
}

// Submit accepts a request for execution and returns immediately. The
// request is first offered to the carrier-supplied handler; only if that
// declines or asks for a builtin retry does it enter the queue.
func (s *Scheduler) Submit(ctx context.Context, req *request.Request) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()

	go s.offerThenAdmit(req.LogContext(ctx), req)
	return nil
}

// offerThenAdmit runs the delegate offer off the caller's goroutine so
// Submit never blocks on a slow carrier app.
func (s *Scheduler) offerThenAdmit(ctx context.Context, req *request.Request) {
	if decision, result, offered := s.offer(ctx, req); offered && decision == carrier.DecisionTerminal {
		slog.InfoContext(ctx, "Carrier app completed request",
			slog.Bool("succeeded", result.Succeeded),
			slog.Int("http_status", result.HTTPStatus),
		)
		req.CompleteDelegated(ctx, s.env, result.Succeeded, result.HTTPStatus, result.Body)
		return
	}
	s.admit(ctx, req)
}

func (s *Scheduler) offer(ctx context.Context, req *request.Request) (carrier.Decision, carrier.Result, bool) {
	if !s.delegate.HasBinder() {
		return carrier.DecisionNotAvailable, carrier.Result{}, false
	}
	req.MarkDelegating()

	switch req.Kind {
	case request.KindSend:
		payload, err := s.sendPayload(ctx, req)
		if err != nil {
			// Let the builtin path surface the preparation failure.
			return carrier.DecisionNotAvailable, carrier.Result{}, false
		}
		d, r := s.delegate.TrySend(ctx, req.SubID, payload, req.LocationURL)
		return d, r, true
	default:
		d, r := s.delegate.TryDownload(ctx, req.SubID, req.LocationURL)
		return d, r, true
	}
}

func (s *Scheduler) sendPayload(ctx context.Context, req *request.Request) ([]byte, error) {
	cfg, err := s.env.Configs.Get(req.SubID)
	if err != nil {
		return nil, err
	}
	return s.env.Store.Read(ctx, req.PayloadHandle, cfg.Apply(req.Overrides).MaxMessageSize)
}

// admit applies the single-subscription gate: dispatch when the scheduler
// is idle or already running req's subscription with nothing queued ahead,
// otherwise append to the FIFO.
func (s *Scheduler) admit(ctx context.Context, req *request.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if len(s.pending) > 0 || (s.running > 0 && req.SubID != s.currentSubID) {
		req.MarkPending()
		s.pending = append(s.pending, req)
		slog.InfoContext(ctx, "Request queued",
			slog.Int("queue_depth", len(s.pending)),
			slog.Int("current_sub_id", s.currentSubID),
		)
		if s.running <= 0 {
			s.promoteLocked()
		}
		return
	}
	s.dispatchLocked(req)
}

// execute is the pool worker body: run the request, then drive promotion.
func (s *Scheduler) execute(ctx context.Context, req *request.Request) {
	req.Execute(ctx, s.env)
	s.onDone()
}

func (s *Scheduler) onDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running--
	if s.running <= 0 {
		s.running = 0
		s.currentSubID = NoSubscription
		s.promoteLocked()
	}
}

// promoteLocked hands the scheduler to the queue head's subscription and
// dispatches the contiguous run of requests for it. Callers hold s.mu.
func (s *Scheduler) promoteLocked() {
	if len(s.pending) == 0 {
		return
	}
	s.currentSubID = s.pending[0].SubID
	slog.Info("Promoting queued subscription",
		slog.Int("sub_id", s.currentSubID),
		slog.Int("queue_depth", len(s.pending)),
	)
	for len(s.pending) > 0 && s.pending[0].SubID == s.currentSubID {
		req := s.pending[0]
		s.pending = s.pending[1:]
		s.dispatchLocked(req)
	}
}

func (s *Scheduler) dispatchLocked(req *request.Request) {
	s.currentSubID = req.SubID
	s.running++
	if req.Kind == request.KindSend {
		s.sendPool.submit(req)
	} else {
		s.downloadPool.submit(req)
	}
}

// QueueDepth reports the number of requests waiting for admission.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
