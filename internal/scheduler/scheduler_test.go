package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdimeji/mmsgate/internal/carrier"
	"github.com/tdimeji/mmsgate/internal/mmsconfig"
	"github.com/tdimeji/mmsgate/internal/network"
	"github.com/tdimeji/mmsgate/internal/request"
	"github.com/tdimeji/mmsgate/internal/store"
	"github.com/tdimeji/mmsgate/internal/transport"
)

// gatedServer serves downloads that report their path on started and hold
// until the test writes to proceed.
type gatedServer struct {
	*httptest.Server
	started chan string
	proceed chan struct{}
}

func newGatedServer(t *testing.T) *gatedServer {
	t.Helper()
	g := &gatedServer{
		started: make(chan string, 16),
		proceed: make(chan struct{}, 16),
	}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.started <- r.URL.Path
		<-g.proceed
		w.Write([]byte("content"))
	}))
	t.Cleanup(g.Server.Close)
	return g
}

func (g *gatedServer) awaitStart(t *testing.T) string {
	t.Helper()
	select {
	case p := <-g.started:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a transfer to start")
		return ""
	}
}

func (g *gatedServer) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case p := <-g.started:
		t.Fatalf("unexpected transfer started: %s", p)
	case <-time.After(100 * time.Millisecond):
	}
}

type doneRecorder struct {
	mu    sync.Mutex
	order []string
	done  chan string
}

func newDoneRecorder() *doneRecorder {
	return &doneRecorder{done: make(chan string, 16)}
}

func (d *doneRecorder) sinkFor(name string) request.ResultSink {
	return func(request.Outcome) {
		d.mu.Lock()
		d.order = append(d.order, name)
		d.mu.Unlock()
		d.done <- name
	}
}

func (d *doneRecorder) awaitDone(t *testing.T) string {
	t.Helper()
	select {
	case n := <-d.done:
		return n
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a request to finish")
		return ""
	}
}

func newTestEnv(t *testing.T, mmscURL string, subIDs ...int) *request.Env {
	t.Helper()
	raw := make(map[int]map[string]any, len(subIDs))
	for _, id := range subIDs {
		raw[id] = map[string]any{"mmsc_url": mmscURL}
	}
	cache := mmsconfig.NewCache()
	cache.RefreshAll(context.Background(), raw)
	return &request.Env{
		Configs:      cache,
		Leases:       network.NewLeaseManager(&network.HostPlatform{}, 2*time.Second, time.Second),
		Transport:    transport.NewClient(transport.Options{}),
		Store:        store.NewMemStore(),
		MaxAttempts:  1,
		RetryBackoff: time.Millisecond,
		Sleep:        func(context.Context, time.Duration) {},
	}
}

func startScheduler(t *testing.T, env *request.Env, delegate *carrier.Delegate) *Scheduler {
	t.Helper()
	s := New(env, delegate, Config{SendWorkers: 4, DownloadWorkers: 4})
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func download(sub int, name, base string, sink request.ResultSink) *request.Request {
	return request.New(sub, request.KindDownload, "dl-"+name, base+"/"+name, nil, sink)
}

func TestQueuedSubscriptionsRunInArrivalOrder(t *testing.T) {
	srv := newGatedServer(t)
	env := newTestEnv(t, srv.URL, 1, 2)
	rec := newDoneRecorder()
	s := startScheduler(t, env, nil)

	require.NoError(t, s.Submit(context.Background(), download(1, "a1", srv.URL, rec.sinkFor("a1"))))
	require.Equal(t, "/a1", srv.awaitStart(t))

	// sub 2 queues behind the running sub 1; a later sub 1 request must
	// not jump the queue even though its subscription is current.
	require.NoError(t, s.Submit(context.Background(), download(2, "b1", srv.URL, rec.sinkFor("b1"))))
	srv.assertIdle(t)
	require.NoError(t, s.Submit(context.Background(), download(1, "a2", srv.URL, rec.sinkFor("a2"))))
	srv.assertIdle(t)
	assert.Equal(t, 2, s.QueueDepth())

	srv.proceed <- struct{}{}
	require.Equal(t, "a1", rec.awaitDone(t))
	require.Equal(t, "/b1", srv.awaitStart(t))

	srv.proceed <- struct{}{}
	require.Equal(t, "b1", rec.awaitDone(t))
	require.Equal(t, "/a2", srv.awaitStart(t))

	srv.proceed <- struct{}{}
	require.Equal(t, "a2", rec.awaitDone(t))
}

func TestSameSubscriptionRunsConcurrently(t *testing.T) {
	srv := newGatedServer(t)
	env := newTestEnv(t, srv.URL, 1)
	rec := newDoneRecorder()
	s := startScheduler(t, env, nil)

	require.NoError(t, s.Submit(context.Background(), download(1, "a1", srv.URL, rec.sinkFor("a1"))))
	require.Equal(t, "/a1", srv.awaitStart(t))

	// Empty queue and matching subscription: dispatch immediately.
	require.NoError(t, s.Submit(context.Background(), download(1, "a2", srv.URL, rec.sinkFor("a2"))))
	require.Equal(t, "/a2", srv.awaitStart(t))
	assert.Equal(t, 0, s.QueueDepth())

	srv.proceed <- struct{}{}
	srv.proceed <- struct{}{}
	rec.awaitDone(t)
	rec.awaitDone(t)
}

func TestPromotionDrainsMatchingHeadRun(t *testing.T) {
	srv := newGatedServer(t)
	env := newTestEnv(t, srv.URL, 1, 2)
	rec := newDoneRecorder()
	s := startScheduler(t, env, nil)

	require.NoError(t, s.Submit(context.Background(), download(1, "a1", srv.URL, rec.sinkFor("a1"))))
	require.Equal(t, "/a1", srv.awaitStart(t))

	require.NoError(t, s.Submit(context.Background(), download(2, "b1", srv.URL, rec.sinkFor("b1"))))
	srv.assertIdle(t)
	require.NoError(t, s.Submit(context.Background(), download(2, "b2", srv.URL, rec.sinkFor("b2"))))
	srv.assertIdle(t)

	srv.proceed <- struct{}{}
	require.Equal(t, "a1", rec.awaitDone(t))

	// Both sub 2 requests dispatch in one promotion.
	started := map[string]bool{srv.awaitStart(t): true, srv.awaitStart(t): true}
	assert.True(t, started["/b1"] && started["/b2"])

	srv.proceed <- struct{}{}
	srv.proceed <- struct{}{}
	rec.awaitDone(t)
	rec.awaitDone(t)
}

type scriptedConn struct {
	outcome carrier.Outcome
	closed  bool
}

var _ carrier.Conn = (*scriptedConn)(nil)
var _ carrier.AppBinder = (*scriptedBinder)(nil)

func (c *scriptedConn) SendMMS(ctx context.Context, payload []byte, locationURL string, report func(carrier.Outcome)) {
	report(c.outcome)
}

func (c *scriptedConn) DownloadMMS(ctx context.Context, locationURL string, report func(carrier.Outcome)) {
	report(c.outcome)
}

func (c *scriptedConn) Close() error {
	c.closed = true
	return nil
}

type scriptedBinder struct {
	conn *scriptedConn
}

func (b *scriptedBinder) Bind(ctx context.Context, subID int) (carrier.Conn, error) {
	return b.conn, nil
}

func TestDelegateTerminalBypassesBuiltinPath(t *testing.T) {
	srv := newGatedServer(t)
	env := newTestEnv(t, srv.URL, 1)
	rec := newDoneRecorder()

	binder := &scriptedBinder{conn: &scriptedConn{
		outcome: carrier.Outcome{Code: carrier.OutcomeSuccess, HTTPStatus: http.StatusOK, Body: []byte("from-app")},
	}}
	s := startScheduler(t, env, carrier.NewDelegate(binder, time.Second))

	req := download(1, "a1", srv.URL, rec.sinkFor("a1"))
	require.NoError(t, s.Submit(context.Background(), req))
	require.Equal(t, "a1", rec.awaitDone(t))

	assert.Equal(t, request.StateSucceeded, req.State())
	srv.assertIdle(t)
	assert.Equal(t, 0, s.QueueDepth())
}

func TestDelegateRetryBuiltinFallsThrough(t *testing.T) {
	srv := newGatedServer(t)
	env := newTestEnv(t, srv.URL, 1)
	rec := newDoneRecorder()

	binder := &scriptedBinder{conn: &scriptedConn{
		outcome: carrier.Outcome{Code: carrier.OutcomeRetryBuiltin},
	}}
	s := startScheduler(t, env, carrier.NewDelegate(binder, time.Second))

	req := download(1, "a1", srv.URL, rec.sinkFor("a1"))
	require.NoError(t, s.Submit(context.Background(), req))
	require.Equal(t, "/a1", srv.awaitStart(t))
	srv.proceed <- struct{}{}
	require.Equal(t, "a1", rec.awaitDone(t))

	assert.Equal(t, request.StateSucceeded, req.State())
	assert.Equal(t, 0, req.RetryCount(), "carrier fallback carries no retry penalty")
}

func TestSubmitAfterStop(t *testing.T) {
	srv := newGatedServer(t)
	env := newTestEnv(t, srv.URL, 1)
	s := New(env, nil, Config{SendWorkers: 1, DownloadWorkers: 1})
	s.Start(context.Background())
	s.Stop()

	err := s.Submit(context.Background(), download(1, "a1", srv.URL, nil))
	assert.ErrorIs(t, err, ErrStopped)
}
