package network

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/tdimeji/mmsgate/internal/mmserror"
	"github.com/tdimeji/mmsgate/pkg/codes"
)

// LeaseManager refcounts one platform network request per subscription and
// bridges the platform's callbacks into a blocking Acquire.
type LeaseManager struct {
	platform PlatformNetwork

	// platformTimeout is how long the platform is given to grant a
	// network; extraTimeout is the margin added on top so a platform-side
	// timeout surfaces as OnUnavailable before the acquire gives up on
	// its own.
	platformTimeout time.Duration
	extraTimeout    time.Duration

	states cmap.ConcurrentMap[string, *subState]
}

// NewLeaseManager creates a manager over the given platform.
func NewLeaseManager(platform PlatformNetwork, platformTimeout, extraTimeout time.Duration) *LeaseManager {
	if platformTimeout <= 0 {
		platformTimeout = 60 * time.Second
	}
	if extraTimeout <= 0 {
		extraTimeout = 5 * time.Second
	}
	return &LeaseManager{
		platform:        platform,
		platformTimeout: platformTimeout,
		extraTimeout:    extraTimeout,
		states:          cmap.New[*subState](),
	}
}

// Lease is live ownership of a subscription-scoped network. Callers must
// hand it back through Release exactly once.
type Lease struct {
	subID  int
	handle Handle
	lost   <-chan struct{}

	state    *subState
	released bool // guarded by state.mu
}

// Handle returns the underlying platform network.
func (l *Lease) Handle() Handle { return l.handle }

// SubID returns the owning subscription.
func (l *Lease) SubID() int { return l.subID }

// Done is closed when the platform reports the leased network lost. An
// in-flight transfer must treat the lease as failed at that point.
func (l *Lease) Done() <-chan struct{} { return l.lost }

// subState is the explicit wait-state object for one subscription: one lock,
// one condition variable, and per-round wake bookkeeping with distinct
// reasons so a late callback cannot race a timing-out waiter.
type subState struct {
	mu   sync.Mutex
	cond *sync.Cond

	subID      int
	handle     Handle
	refCount   int
	lossCh     chan struct{}
	unregister func()
	phase      string // one of the codes.LeaseState values

	current *acquireRound
}

// acquireRound tracks one in-flight platform request and the waiters
// blocked on it.
type acquireRound struct {
	done    bool
	err     error // set when done and the round failed
	waiters int
}

// Events implementation; callbacks arrive on platform goroutines.
var _ Events = (*subState)(nil)

func (st *subState) OnAvailable(h Handle) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.handle = h
	st.lossCh = make(chan struct{})
	st.phase = codes.LeaseStateAvailable
	if st.current != nil {
		st.current.done = true
	}
	st.cond.Broadcast()
}

func (st *subState) OnLost() {
	st.mu.Lock()
	defer st.mu.Unlock()
	slog.Info("Leased network lost",
		slog.Int("sub_id", st.subID),
		slog.Int("ref_count", st.refCount),
		slog.String("state", codes.LeaseStateLost),
	)
	st.phase = codes.LeaseStateLost
	if st.lossCh != nil {
		close(st.lossCh)
		st.lossCh = nil
	}
	st.handle = nil
	st.refCount = 0
	st.dropRequestLocked()
	if st.current != nil && !st.current.done {
		st.current.done = true
		st.current.err = mmserror.ErrNetworkLost
	}
	st.current = nil
	st.cond.Broadcast()
}

func (st *subState) OnUnavailable() {
	st.mu.Lock()
	defer st.mu.Unlock()
	slog.Info("Platform reported network unavailable", slog.Int("sub_id", st.subID))
	st.phase = codes.LeaseStateIdle
	st.dropRequestLocked()
	if st.current != nil && !st.current.done {
		st.current.done = true
		st.current.err = mmserror.ErrAcquireTimeout
	}
	st.current = nil
	st.cond.Broadcast()
}

func (st *subState) dropRequestLocked() {
	if st.unregister != nil {
		st.unregister()
		st.unregister = nil
	}
}

func (m *LeaseManager) state(subID int) *subState {
	key := strconv.Itoa(subID)
	if st, ok := m.states.Get(key); ok {
		return st
	}
	st := &subState{subID: subID, phase: codes.LeaseStateIdle}
	st.cond = sync.NewCond(&st.mu)
	if !m.states.SetIfAbsent(key, st) {
		st, _ = m.states.Get(key)
	}
	return st
}

// Acquire blocks until the subscription's network is available, the platform
// reports loss or gives up, or the total timeout (platform timeout plus
// margin) elapses. While a handle is cached it only bumps the refcount; at
// most one platform request is ever in flight per subscription.
func (m *LeaseManager) Acquire(ctx context.Context, subID int) (*Lease, error) {
	st := m.state(subID)
	deadline := time.Now().Add(m.platformTimeout + m.extraTimeout)

	// The condition variable cannot wait with a deadline; a timer and a
	// context watcher broadcast so waiters re-check the clock.
	timer := time.AfterFunc(m.platformTimeout+m.extraTimeout, st.cond.Broadcast)
	defer timer.Stop()
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			st.cond.Broadcast()
		case <-watchDone:
		}
	}()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.handle != nil {
		st.refCount++
		return &Lease{subID: subID, handle: st.handle, lost: st.lossCh, state: st}, nil
	}

	round := st.current
	if round == nil || round.done {
		round = &acquireRound{}
		st.current = round
		st.phase = codes.LeaseStateRequesting
		// The platform may invoke callbacks synchronously; they re-enter
		// through st.mu, so the request goes out without the lock.
		st.mu.Unlock()
		unregister, err := m.platform.RequestNetwork(subID, st)
		st.mu.Lock()
		if err != nil {
			round.done = true
			round.err = err
			st.phase = codes.LeaseStateIdle
			if st.current == round {
				st.current = nil
			}
			st.cond.Broadcast()
			return nil, &mmserror.IOError{Op: "network request", Err: err}
		}
		if st.unregister == nil {
			st.unregister = unregister
		}
	}
	round.waiters++
	defer func() { round.waiters-- }()

	for {
		if st.handle != nil {
			st.refCount++
			return &Lease{subID: subID, handle: st.handle, lost: st.lossCh, state: st}, nil
		}
		if round.done {
			if round.err != nil {
				return nil, round.err
			}
			// Granted and lost again before this waiter woke.
			return nil, mmserror.ErrNetworkLost
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			if round.waiters == 1 && !round.done {
				// Last waiter gone: withdraw the platform request.
				st.dropRequestLocked()
				st.phase = codes.LeaseStateIdle
				if st.current == round {
					st.current = nil
				}
			}
			return nil, mmserror.ErrAcquireTimeout
		}
		st.cond.Wait()
	}
}

// State reports the lease lifecycle phase for a subscription as one of the
// codes.LeaseState values.
func (m *LeaseManager) State(subID int) string {
	st, ok := m.states.Get(strconv.Itoa(subID))
	if !ok {
		return codes.LeaseStateIdle
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase
}

// Release drops the lease's refcount; at zero the platform request is
// unregistered and the cached handle dropped. Releasing twice or releasing
// a lease invalidated by loss is a no-op.
func (m *LeaseManager) Release(l *Lease) {
	if l == nil {
		return
	}
	st := l.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	if st.handle != l.handle || st.refCount <= 0 {
		return
	}
	st.refCount--
	if st.refCount == 0 {
		slog.Info("Releasing subscription network",
			slog.Int("sub_id", st.subID),
			slog.String("state", codes.LeaseStateIdle),
		)
		st.phase = codes.LeaseStateIdle
		st.dropRequestLocked()
		st.handle = nil
		// Leave the loss channel open: transfers already finished must not
		// observe a spurious loss.
		st.lossCh = nil
		st.current = nil
	}
}

// HostPlatform grants the host's default-route network for every request.
// It stands in for a radio-aware platform on development machines and in
// integration setups.
type HostPlatform struct {
	Dialer net.Dialer
}

var _ PlatformNetwork = (*HostPlatform)(nil)

func (p *HostPlatform) RequestNetwork(subID int, ev Events) (func(), error) {
	h := &hostHandle{dialer: p.Dialer}
	go ev.OnAvailable(h)
	return func() {}, nil
}

type hostHandle struct {
	dialer net.Dialer
}

func (h *hostHandle) DialContext(ctx context.Context, networkType, addr string) (net.Conn, error) {
	return h.dialer.DialContext(ctx, networkType, addr)
}

func (h *hostHandle) IsReachable(ctx context.Context, ip net.IP) bool {
	return true
}
