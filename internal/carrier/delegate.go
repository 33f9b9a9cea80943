package carrier

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OutcomeCode is the carrier app's verdict on a delegated request.
type OutcomeCode int

const (
	// OutcomeSuccess and OutcomeFailure are definitive; the request ends.
	OutcomeSuccess OutcomeCode = iota
	OutcomeFailure
	// OutcomeRetryBuiltin asks the gateway to run its own HTTP path.
	OutcomeRetryBuiltin
)

// Outcome is what a bound carrier app reports back.
type Outcome struct {
	Code       OutcomeCode
	HTTPStatus int
	Body       []byte
}

// Conn is one bound session with a carrier-supplied messaging app.
type Conn interface {
	SendMMS(ctx context.Context, payload []byte, locationURL string, report func(Outcome))
	DownloadMMS(ctx context.Context, locationURL string, report func(Outcome))
	Close() error
}

// AppBinder binds to the carrier app serving a subscription, if any.
// Binding is platform specific; the delegate only consumes the session.
type AppBinder interface {
	// Bind returns ErrNoCarrierApp when no handler is registered for the
	// subscription.
	Bind(ctx context.Context, subID int) (Conn, error)
}

// ErrNoCarrierApp is returned by Bind when the subscription has no
// carrier-supplied handler.
var ErrNoCarrierApp = fmt.Errorf("no carrier app for subscription")

// Decision is the delegate's translation of the carrier app outcome.
type Decision int

const (
	// DecisionNotAvailable routes the request to the builtin path with no
	// penalty.
	DecisionNotAvailable Decision = iota
	// DecisionTerminal ends the request with Result.
	DecisionTerminal
	// DecisionRetryBuiltin re-queues the request on the builtin path
	// without consuming a retry.
	DecisionRetryBuiltin
)

// Result carries the terminal outcome of a delegated request.
type Result struct {
	Succeeded  bool
	HTTPStatus int
	Body       []byte
}

// Delegate offers requests to an out-of-process carrier handler before the
// builtin transport path runs.
type Delegate struct {
	binder  AppBinder
	timeout time.Duration
}

// NewDelegate creates a delegate over the binder. A nil binder yields a
// delegate that always reports DecisionNotAvailable.
func NewDelegate(binder AppBinder, timeout time.Duration) *Delegate {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Delegate{binder: binder, timeout: timeout}
}

// HasBinder reports whether a carrier app binder is installed at all.
// Callers can skip payload preparation when there is nothing to offer to.
func (d *Delegate) HasBinder() bool {
	return d != nil && d.binder != nil
}

// TrySend offers a send to the carrier app.
func (d *Delegate) TrySend(ctx context.Context, subID int, payload []byte, locationURL string) (Decision, Result) {
	return d.try(ctx, subID, func(ctx context.Context, conn Conn, report func(Outcome)) {
		conn.SendMMS(ctx, payload, locationURL, report)
	})
}

// TryDownload offers a download to the carrier app.
func (d *Delegate) TryDownload(ctx context.Context, subID int, locationURL string) (Decision, Result) {
	return d.try(ctx, subID, func(ctx context.Context, conn Conn, report func(Outcome)) {
		conn.DownloadMMS(ctx, locationURL, report)
	})
}

func (d *Delegate) try(ctx context.Context, subID int, invoke func(context.Context, Conn, func(Outcome))) (Decision, Result) {
	if d == nil || d.binder == nil {
		return DecisionNotAvailable, Result{}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, err := d.binder.Bind(ctx, subID)
	if err != nil {
		if err != ErrNoCarrierApp {
			slog.WarnContext(ctx, "Carrier app bind failed, using builtin path", slog.Any("error", err))
		}
		return DecisionNotAvailable, Result{}
	}
	// The session lives for exactly one request.
	defer func() {
		if err := conn.Close(); err != nil {
			slog.WarnContext(ctx, "Carrier app teardown failed", slog.Any("error", err))
		}
	}()

	// The app reports through a callback; a single-shot channel bridges it
	// back to this blocking call.
	outcomeCh := make(chan Outcome, 1)
	invoke(ctx, conn, func(o Outcome) {
		select {
		case outcomeCh <- o:
		default:
		}
	})

	select {
	case <-ctx.Done():
		slog.WarnContext(ctx, "Carrier app timed out, using builtin path")
		return DecisionNotAvailable, Result{}
	case outcome := <-outcomeCh:
		switch outcome.Code {
		case OutcomeSuccess:
			return DecisionTerminal, Result{Succeeded: true, HTTPStatus: outcome.HTTPStatus, Body: outcome.Body}
		case OutcomeFailure:
			return DecisionTerminal, Result{Succeeded: false, HTTPStatus: outcome.HTTPStatus, Body: outcome.Body}
		case OutcomeRetryBuiltin:
			return DecisionRetryBuiltin, Result{}
		default:
			return DecisionNotAvailable, Result{}
		}
	}
}
