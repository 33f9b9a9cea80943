package mmsconfig

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdimeji/mmsgate/internal/mmserror"
)

func TestCacheGetMissing(t *testing.T) {
	cache := NewCache()
	_, err := cache.Get(7)
	assert.ErrorIs(t, err, mmserror.ErrNoConfig)
}

func TestCacheRefreshAll(t *testing.T) {
	cache := NewCache()
	cache.RefreshAll(context.Background(), map[int]map[string]any{
		1: {"mmsc_url": "http://mmsc.one.example/mms"},
		2: {"mmsc_url": "http://mmsc.two.example/mms", "proxy_host": "10.0.0.1", "proxy_port": float64(8080)},
	})

	cfg, err := cache.Get(2)
	require.NoError(t, err)
	assert.Equal(t, "http://mmsc.two.example/mms", cfg.MMSCUrl)
	assert.True(t, cfg.HasProxy())
	assert.Equal(t, 8080, cfg.ProxyPort)

	// A subscription dropped by the next refresh disappears entirely.
	cache.RefreshAll(context.Background(), map[int]map[string]any{
		1: {"mmsc_url": "http://mmsc.one.example/mms"},
	})
	_, err = cache.Get(2)
	assert.ErrorIs(t, err, mmserror.ErrNoConfig)
}

// TestCacheRefreshAtomic checks a concurrent reader never observes fields
// from two different refresh generations.
func TestCacheRefreshAtomic(t *testing.T) {
	cache := NewCache()
	cache.RefreshAll(context.Background(), generationConfigs(0))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for gen := 1; ; gen++ {
			select {
			case <-done:
				return
			default:
				cache.RefreshAll(context.Background(), generationConfigs(gen))
			}
		}
	}()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		cfg, err := cache.Get(1)
		require.NoError(t, err)
		assert.Equal(t, cfg.UserAgent, cfg.UAProfURL, "snapshot mixes refresh generations")
	}
	close(done)
	wg.Wait()
}

func generationConfigs(gen int) map[int]map[string]any {
	marker := fmt.Sprintf("gen-%d", gen)
	return map[int]map[string]any{
		1: {
			"mmsc_url":    "http://mmsc.example/mms",
			"user_agent":  marker,
			"ua_prof_url": marker,
		},
	}
}

func TestProtocolConfigApply(t *testing.T) {
	base := FromRaw(3, map[string]any{
		"mmsc_url":         "http://mmsc.example/mms",
		"max_message_size": float64(1024),
	})

	derived := base.Apply(map[string]any{"max_message_size": 2048})
	assert.Equal(t, int64(2048), derived.MaxMessageSize)
	assert.Equal(t, base.MMSCUrl, derived.MMSCUrl)
	assert.Equal(t, int64(1024), base.MaxMessageSize, "base snapshot must not change")

	assert.Same(t, base, base.Apply(nil))
}

func TestFromRawDefaults(t *testing.T) {
	cfg := FromRaw(1, map[string]any{})
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, DefaultUAProfTagName, cfg.UAProfTagName)
	assert.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize)
	assert.False(t, cfg.HasProxy())
}
