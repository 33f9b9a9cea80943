package request

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tdimeji/mmsgate/internal/logging"
	"github.com/tdimeji/mmsgate/internal/mmsconfig"
	"github.com/tdimeji/mmsgate/internal/mmserror"
	"github.com/tdimeji/mmsgate/internal/network"
	"github.com/tdimeji/mmsgate/internal/persist"
	"github.com/tdimeji/mmsgate/internal/store"
	"github.com/tdimeji/mmsgate/internal/transport"
	"github.com/tdimeji/mmsgate/pkg/codes"
	"github.com/tdimeji/mmsgate/pkg/errormapper"
	"github.com/tdimeji/mmsgate/pkg/redact"
)

// Kind tags a request as a send or a download.
type Kind int

const (
	KindSend Kind = iota
	KindDownload
)

func (k Kind) String() string {
	if k == KindDownload {
		return codes.KindDownload
	}
	return codes.KindSend
}

// State is the request lifecycle state.
type State int32

const (
	StateCreated State = iota
	StatePending
	StateDelegating
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return codes.ReqStatusPending
	case StateDelegating:
		return codes.ReqStatusDelegating
	case StateRunning:
		return codes.ReqStatusRunning
	case StateSucceeded:
		return codes.ReqStatusSucceeded
	case StateFailed:
		return codes.ReqStatusFailed
	default:
		return "created"
	}
}

// Outcome is the single result delivered to the submitter.
type Outcome struct {
	RequestID  string
	SubID      int
	Kind       Kind
	Succeeded  bool
	Err        error
	ErrorCode  string
	HTTPStatus int
	// Body carries the MMSC send confirmation for sends. Downloaded
	// content is delivered through the ContentStore, not here.
	Body     []byte
	Attempts int
}

// ResultSink receives the outcome exactly once.
type ResultSink func(Outcome)

// PduDecoder is the external codec consulted on MMSC response bodies. A nil
// decoder skips decoding entirely.
type PduDecoder interface {
	// CheckSendConfirmation inspects a send-conf body; an error fails the
	// request.
	CheckSendConfirmation(body []byte) error
	// CheckRetrieveConfirmation inspects a retrieve-conf body; an error
	// fails the request.
	CheckRetrieveConfirmation(body []byte) error
}

// Env bundles the collaborators a request executes against. One Env is
// shared by all requests.
type Env struct {
	Configs   *mmsconfig.Cache
	Leases    *network.LeaseManager
	Transport *transport.Client
	Store     store.ContentStore
	Persister persist.Persister
	Decoder   PduDecoder
	Throttle  *transport.Throttle

	Retry        mmserror.RetryPolicy
	MaxAttempts  int
	RetryBackoff time.Duration

	// Sleep is swapped out by tests; nil means a real timed sleep.
	Sleep func(ctx context.Context, d time.Duration)
}

func (e *Env) maxAttempts() int {
	if e.MaxAttempts <= 0 {
		return 3
	}
	return e.MaxAttempts
}

func (e *Env) backoffBase() time.Duration {
	if e.RetryBackoff <= 0 {
		return 2 * time.Second
	}
	return e.RetryBackoff
}

func (e *Env) sleep(ctx context.Context, d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Request is one tagged unit of transfer work. It is created on API call,
// scheduled, executed with in-place retries, and discarded after its sink
// fires.
type Request struct {
	ID            string
	SubID         int
	Kind          Kind
	PayloadHandle string
	LocationURL   string
	Overrides     map[string]any

	sink     ResultSink
	sinkOnce sync.Once

	state      atomic.Int32
	retryCount atomic.Int32
}

// New mints a request with a fresh id.
func New(subID int, kind Kind, payloadHandle, locationURL string, overrides map[string]any, sink ResultSink) *Request {
	r := &Request{
		ID:            uuid.NewString(),
		SubID:         subID,
		Kind:          kind,
		PayloadHandle: payloadHandle,
		LocationURL:   locationURL,
		Overrides:     overrides,
		sink:          sink,
	}
	r.state.Store(int32(StateCreated))
	return r
}

// State returns the current lifecycle state.
func (r *Request) State() State { return State(r.state.Load()) }

// RetryCount returns the transient failures consumed so far.
func (r *Request) RetryCount() int { return int(r.retryCount.Load()) }

// MarkPending records admission to the scheduler queue.
func (r *Request) MarkPending() { r.state.Store(int32(StatePending)) }

// MarkDelegating records the offer to a carrier-supplied handler.
func (r *Request) MarkDelegating() { r.state.Store(int32(StateDelegating)) }

// LogContext enriches ctx with the request's identity for the context log
// handler.
func (r *Request) LogContext(ctx context.Context) context.Context {
	ctx = logging.ContextWithRequestID(ctx, r.ID)
	ctx = logging.ContextWithSubID(ctx, r.SubID)
	return logging.ContextWithKind(ctx, r.Kind.String())
}

// Execute runs the transfer to a terminal state: config lookup, then up to
// MaxAttempts rounds of lease acquisition and MMSC exchange with doubling
// backoff between rounds. It must be called from a scheduler worker.
func (r *Request) Execute(ctx context.Context, env *Env) {
	ctx = r.LogContext(ctx)
	r.state.Store(int32(StateRunning))

	cfg, err := env.Configs.Get(r.SubID)
	if err != nil {
		// No config is terminal and consumes no retry.
		r.finish(ctx, env, Outcome{Err: err})
		return
	}
	cfg = cfg.Apply(r.Overrides)

	var payload []byte
	if r.Kind == KindSend {
		payload, err = r.preparePayload(ctx, env, cfg)
		if err != nil {
			r.finish(ctx, env, Outcome{Err: err})
			return
		}
	}

	url := r.targetURL(cfg)
	if url == "" {
		r.finish(ctx, env, Outcome{Err: &mmserror.MalformedRequestError{Reason: "no target URL"}})
		return
	}

	var lastErr error
	for attempt := 1; attempt <= env.maxAttempts(); attempt++ {
		attemptCtx := logging.ContextWithAttempt(ctx, attempt)
		resp, err := r.attempt(attemptCtx, env, cfg, url, payload)
		if err == nil {
			out := Outcome{Succeeded: true, HTTPStatus: resp.StatusCode}
			if r.Kind == KindSend {
				out.Body = resp.Body
			}
			r.finish(ctx, env, out)
			return
		}
		lastErr = err
		if !env.Retry.Retryable(lastErr) {
			break
		}
		if attempt == env.maxAttempts() {
			break
		}
		r.retryCount.Add(1)
		r.state.Store(int32(StatePending))
		delay := env.backoffBase() << (attempt - 1)
		slog.InfoContext(attemptCtx, "Transfer attempt failed, backing off",
			slog.Any("error", lastErr),
			slog.Duration("delay", delay),
		)
		env.sleep(ctx, delay)
		r.state.Store(int32(StateRunning))
	}

	r.finish(ctx, env, Outcome{Err: lastErr, HTTPStatus: mmserror.StatusCode(lastErr)})
}

func (r *Request) preparePayload(ctx context.Context, env *Env, cfg *mmsconfig.ProtocolConfig) ([]byte, error) {
	payload, err := env.Store.Read(ctx, r.PayloadHandle, cfg.MaxMessageSize)
	if err != nil {
		return nil, &mmserror.MalformedRequestError{Reason: "cannot read payload: " + err.Error()}
	}
	if len(payload) == 0 {
		return nil, &mmserror.MalformedRequestError{Reason: "empty payload"}
	}
	return payload, nil
}

func (r *Request) targetURL(cfg *mmsconfig.ProtocolConfig) string {
	if r.Kind == KindDownload {
		return r.LocationURL
	}
	// A send goes to the MMSC unless the caller pinned a location.
	if r.LocationURL != "" {
		return r.LocationURL
	}
	return cfg.MMSCUrl
}

// attempt performs one lease-acquire-and-exchange round.
func (r *Request) attempt(ctx context.Context, env *Env, cfg *mmsconfig.ProtocolConfig, url string, payload []byte) (*transport.Response, error) {
	if env.Throttle != nil && !env.Throttle.Allow(r.SubID) {
		return nil, mmserror.ErrThrottled
	}

	lease, err := env.Leases.Acquire(ctx, r.SubID)
	if err != nil {
		return nil, err
	}
	defer env.Leases.Release(lease)

	switch r.Kind {
	case KindSend:
		resp, err := env.Transport.Exchange(ctx, cfg, lease, http.MethodPost, url, payload)
		if err != nil {
			return nil, err
		}
		if env.Decoder != nil {
			if err := env.Decoder.CheckSendConfirmation(resp.Body); err != nil {
				return nil, err
			}
		}
		return resp, nil

	default:
		resp, err := env.Transport.Exchange(ctx, cfg, lease, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if env.Decoder != nil {
			if err := env.Decoder.CheckRetrieveConfirmation(resp.Body); err != nil {
				return nil, err
			}
		}
		// Content is delivered before the success notification; a failed
		// delivery downgrades the transfer to an I/O failure.
		if err := env.Store.Write(ctx, r.PayloadHandle, resp.Body); err != nil {
			return nil, &mmserror.IOError{Op: "content delivery", Err: err}
		}
		return resp, nil
	}
}

// CompleteDelegated finishes a request whose outcome was produced by the
// carrier app instead of the builtin path.
func (r *Request) CompleteDelegated(ctx context.Context, env *Env, succeeded bool, httpStatus int, body []byte) {
	ctx = r.LogContext(ctx)
	outcome := Outcome{Succeeded: succeeded, HTTPStatus: httpStatus}
	if succeeded && r.Kind == KindDownload && len(body) > 0 {
		if err := env.Store.Write(ctx, r.PayloadHandle, body); err != nil {
			outcome = Outcome{Err: &mmserror.IOError{Op: "content delivery", Err: err}}
		}
	} else if succeeded && r.Kind == KindSend {
		outcome.Body = body
	}
	if !succeeded && outcome.Err == nil {
		outcome.Err = &mmserror.ProtocolError{StatusCode: httpStatus}
	}
	r.finish(ctx, env, outcome)
}

// finish moves the request to its terminal state, persists the outcome
// best-effort, and fires the sink exactly once.
func (r *Request) finish(ctx context.Context, env *Env, outcome Outcome) {
	outcome.RequestID = r.ID
	outcome.SubID = r.SubID
	outcome.Kind = r.Kind
	outcome.Attempts = int(r.retryCount.Load()) + 1
	outcome.Succeeded = outcome.Succeeded && outcome.Err == nil
	if outcome.Err != nil {
		outcome.ErrorCode = errormapper.MapError(outcome.Err)
	}

	if outcome.Succeeded {
		r.state.Store(int32(StateSucceeded))
		slog.InfoContext(ctx, "Request succeeded",
			slog.Int("attempts", outcome.Attempts),
			slog.Int("response_bytes", len(outcome.Body)),
		)
	} else {
		r.state.Store(int32(StateFailed))
		slog.WarnContext(ctx, "Request failed",
			slog.Any("error", outcome.Err),
			slog.String("error_code", outcome.ErrorCode),
			slog.Int("http_status", outcome.HTTPStatus),
			slog.Int("attempts", outcome.Attempts),
			slog.String("location", redact.URL(r.LocationURL)),
		)
	}

	if env.Persister != nil {
		rec := persist.Record{
			RequestID:  r.ID,
			SubID:      r.SubID,
			Kind:       r.Kind.String(),
			Status:     r.State().String(),
			ErrorCode:  outcome.ErrorCode,
			HTTPStatus: outcome.HTTPStatus,
			Attempts:   outcome.Attempts,
			BodySize:   len(outcome.Body),
			FinishedAt: time.Now(),
		}
		if err := env.Persister.PersistOutcome(ctx, rec); err != nil {
			// Best-effort only; the decided outcome stands.
			slog.WarnContext(ctx, "Failed to persist outcome", slog.Any("error", err))
		}
	}

	if r.sink != nil {
		r.sinkOnce.Do(func() { r.sink(outcome) })
	}
}
