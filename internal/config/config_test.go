package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdimeji/mmsgate/internal/telephony"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, 4, cfg.Scheduler.SendWorkers)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.RetryBackoff)
	assert.Equal(t, 60*time.Second, cfg.Network.PlatformRequestTimeout)
	assert.False(t, cfg.Transport.RetryPermanent4xx)
	assert.Empty(t, cfg.Telephony.Line1Numbers)
}

func TestLoadTelephonyMappings(t *testing.T) {
	t.Setenv("TEL_LINE1_NUMBERS", "1:+15551230001,2:+15551230002")
	t.Setenv("TEL_NAIS", "1:user1@carrier.example")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Telephony.Line1Numbers, 2)
	assert.Equal(t, "+15551230001", cfg.Telephony.Line1Numbers[1])
	assert.Equal(t, "+15551230002", cfg.Telephony.Line1Numbers[2])
	assert.Equal(t, "user1@carrier.example", cfg.Telephony.NAIs[1])

	// The loaded mappings drive the macro source used for carrier headers.
	info := &telephony.StaticInfo{
		Lines: cfg.Telephony.Line1Numbers,
		NAIs:  cfg.Telephony.NAIs,
	}
	assert.Equal(t, "+15551230001", info.Line1Number(1))
	assert.Equal(t, "15551230002", info.Line1NumberNoCountryCode(2))
	assert.Equal(t, "user1@carrier.example", info.NAI(1))
	assert.Equal(t, "", info.Line1Number(9))
}
