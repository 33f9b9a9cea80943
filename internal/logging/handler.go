package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	SubIDKey     contextKey = "sub_id"
	RequestIDKey contextKey = "req_id"
	KindKey      contextKey = "kind"
	AttemptKey   contextKey = "attempt"
	MMSCHostKey  contextKey = "mmsc_host"
	WorkerKey    contextKey = "worker"
	HandlerKey   contextKey = "handler"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if subID, ok := ctx.Value(SubIDKey).(int); ok {
		r.AddAttrs(slog.Int("sub_id", subID))
	}
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		r.AddAttrs(slog.String("req_id", reqID))
	}
	if kind, ok := ctx.Value(KindKey).(string); ok {
		r.AddAttrs(slog.String("kind", kind))
	}
	if attempt, ok := ctx.Value(AttemptKey).(int); ok {
		r.AddAttrs(slog.Int("attempt", attempt))
	}
	if host, ok := ctx.Value(MMSCHostKey).(string); ok {
		r.AddAttrs(slog.String("mmsc_host", host))
	}
	if worker, ok := ctx.Value(WorkerKey).(string); ok {
		r.AddAttrs(slog.String("worker", worker))
	}
	if handler, ok := ctx.Value(HandlerKey).(string); ok {
		r.AddAttrs(slog.String("handler", handler))
	}
	return h.Handler.Handle(ctx, r)
}

// Helper functions to add values to context

func ContextWithSubID(ctx context.Context, subID int) context.Context {
	return context.WithValue(ctx, SubIDKey, subID)
}

func ContextWithRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, reqID)
}

func ContextWithKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, KindKey, kind)
}

func ContextWithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, AttemptKey, attempt)
}

func ContextWithMMSCHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, MMSCHostKey, host)
}

func ContextWithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, WorkerKey, worker)
}

func ContextWithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, HandlerKey, handler)
}
