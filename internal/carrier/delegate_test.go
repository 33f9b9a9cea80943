package carrier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	outcome Outcome
	silent  bool
	closed  atomic.Bool
}

func (c *fakeConn) SendMMS(ctx context.Context, payload []byte, locationURL string, report func(Outcome)) {
	if !c.silent {
		report(c.outcome)
	}
}

func (c *fakeConn) DownloadMMS(ctx context.Context, locationURL string, report func(Outcome)) {
	if !c.silent {
		report(c.outcome)
	}
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeBinder struct {
	conn *fakeConn
	err  error
}

func (b *fakeBinder) Bind(ctx context.Context, subID int) (Conn, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.conn, nil
}

func TestDelegateNoBinder(t *testing.T) {
	d := NewDelegate(nil, time.Second)
	decision, _ := d.TrySend(context.Background(), 1, []byte("pdu"), "")
	assert.Equal(t, DecisionNotAvailable, decision)
}

func TestDelegateNoCarrierApp(t *testing.T) {
	d := NewDelegate(&fakeBinder{err: ErrNoCarrierApp}, time.Second)
	decision, _ := d.TryDownload(context.Background(), 1, "http://mmsc.example/loc")
	assert.Equal(t, DecisionNotAvailable, decision)
}

func TestDelegateBindFailure(t *testing.T) {
	d := NewDelegate(&fakeBinder{err: errors.New("binder exploded")}, time.Second)
	decision, _ := d.TrySend(context.Background(), 1, []byte("pdu"), "")
	assert.Equal(t, DecisionNotAvailable, decision, "bind failure routes to builtin with no penalty")
}

func TestDelegateTerminalOutcomes(t *testing.T) {
	conn := &fakeConn{outcome: Outcome{Code: OutcomeSuccess, HTTPStatus: 200, Body: []byte("conf")}}
	d := NewDelegate(&fakeBinder{conn: conn}, time.Second)

	decision, result := d.TrySend(context.Background(), 1, []byte("pdu"), "")
	assert.Equal(t, DecisionTerminal, decision)
	assert.True(t, result.Succeeded)
	assert.Equal(t, 200, result.HTTPStatus)
	assert.Equal(t, []byte("conf"), result.Body)
	assert.True(t, conn.closed.Load(), "session must be torn down after the callback")

	conn = &fakeConn{outcome: Outcome{Code: OutcomeFailure, HTTPStatus: 500}}
	d = NewDelegate(&fakeBinder{conn: conn}, time.Second)
	decision, result = d.TrySend(context.Background(), 1, []byte("pdu"), "")
	assert.Equal(t, DecisionTerminal, decision)
	assert.False(t, result.Succeeded)
	assert.True(t, conn.closed.Load())
}

func TestDelegateRetryBuiltin(t *testing.T) {
	conn := &fakeConn{outcome: Outcome{Code: OutcomeRetryBuiltin}}
	d := NewDelegate(&fakeBinder{conn: conn}, time.Second)

	decision, _ := d.TryDownload(context.Background(), 2, "http://mmsc.example/loc")
	assert.Equal(t, DecisionRetryBuiltin, decision)
	assert.True(t, conn.closed.Load(), "session is torn down regardless of outcome")
}

func TestDelegateTimeout(t *testing.T) {
	conn := &fakeConn{silent: true}
	d := NewDelegate(&fakeBinder{conn: conn}, 20*time.Millisecond)

	start := time.Now()
	decision, _ := d.TrySend(context.Background(), 1, []byte("pdu"), "")
	assert.Equal(t, DecisionNotAvailable, decision)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.True(t, conn.closed.Load())
}
