package mmsconfig

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/tdimeji/mmsgate/internal/mmserror"
)

// Cache holds the per-subscription ProtocolConfig snapshots. The whole map
// is swapped on refresh, so a reader either sees the previous generation or
// the new one, never a mix. The cache performs no I/O itself; a config
// source pushes refreshes in.
type Cache struct {
	configs atomic.Pointer[map[int]*ProtocolConfig]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	empty := make(map[int]*ProtocolConfig)
	c.configs.Store(&empty)
	return c
}

// Get returns the snapshot for subID, or mmserror.ErrNoConfig.
func (c *Cache) Get(subID int) (*ProtocolConfig, error) {
	configs := *c.configs.Load()
	cfg, ok := configs[subID]
	if !ok {
		return nil, mmserror.ErrNoConfig
	}
	return cfg, nil
}

// RefreshAll replaces the entire cache with snapshots built from the raw
// per-subscription configs.
func (c *Cache) RefreshAll(ctx context.Context, rawConfigs map[int]map[string]any) {
	next := make(map[int]*ProtocolConfig, len(rawConfigs))
	for subID, raw := range rawConfigs {
		next[subID] = FromRaw(subID, raw)
	}
	c.configs.Store(&next)
	slog.InfoContext(ctx, "Protocol config cache refreshed", slog.Int("subscriptions", len(next)))
}

// SubIDs lists the subscriptions currently carrying a config.
func (c *Cache) SubIDs() []int {
	configs := *c.configs.Load()
	ids := make([]int, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	return ids
}
