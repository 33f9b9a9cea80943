package network

import (
	"context"
	"net"
)

// Handle is a live, subscription-scoped data network granted by the
// platform. Connections for a transfer must be dialed through it so traffic
// rides the leased network instead of the default route.
type Handle interface {
	DialContext(ctx context.Context, networkType, addr string) (net.Conn, error)

	// IsReachable reports whether the network can currently route to the
	// literal address. Used to wait out IPv6-only transitional states.
	IsReachable(ctx context.Context, ip net.IP) bool
}

// Events receives the platform's asynchronous callbacks for one network
// request. Callbacks may fire from any goroutine, at any time until the
// request is unregistered.
type Events interface {
	// OnAvailable delivers the granted network.
	OnAvailable(h Handle)
	// OnLost reports that a previously granted network is gone.
	OnLost()
	// OnUnavailable reports that the platform gave up on the request.
	OnUnavailable()
}

// PlatformNetwork is the asynchronous network-request API the lease manager
// bridges into a blocking acquire.
type PlatformNetwork interface {
	// RequestNetwork asks for a data network scoped to subID. Events keep
	// arriving until the returned unregister function is called.
	RequestNetwork(subID int, ev Events) (unregister func(), err error)
}
