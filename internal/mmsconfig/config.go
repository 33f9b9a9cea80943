package mmsconfig

import (
	"time"
)

// Default protocol parameter values applied when a carrier config omits a
// key.
const (
	DefaultUserAgent      = "mmsgate/1.0"
	DefaultConnectTimeout = 60 * time.Second
	DefaultMaxMessageSize = 300 * 1024
	DefaultUAProfTagName  = "x-wap-profile"
)

// ProtocolConfig is an immutable per-subscription snapshot of the WAP-MMS
// protocol parameters. It is replaced wholesale on refresh and never mutated
// in place, so concurrent readers can share it freely by reference.
type ProtocolConfig struct {
	SubID int

	MMSCUrl   string
	ProxyHost string
	ProxyPort int

	UserAgent        string
	UAProfTagName    string
	UAProfURL        string
	ConnectTimeout   time.Duration
	MaxMessageSize   int64
	ExtraHTTPHeaders string

	// SupportHTTPCharsetHeader appends the charset parameter to the POST
	// Content-Type when set.
	SupportHTTPCharsetHeader bool
}

// HasProxy reports whether MMSC traffic should go through the carrier proxy.
func (c *ProtocolConfig) HasProxy() bool {
	return c.ProxyHost != ""
}

// FromRaw builds a snapshot from the raw key/value config pushed by the
// config source, applying defaults for missing keys. Unknown keys are
// ignored.
func FromRaw(subID int, raw map[string]any) *ProtocolConfig {
	c := &ProtocolConfig{
		SubID:          subID,
		UserAgent:      DefaultUserAgent,
		UAProfTagName:  DefaultUAProfTagName,
		ConnectTimeout: DefaultConnectTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
	}
	c.apply(raw)
	return c
}

// Apply returns a derived snapshot with the caller-supplied overrides laid
// over this one. The receiver is left untouched.
func (c *ProtocolConfig) Apply(overrides map[string]any) *ProtocolConfig {
	if len(overrides) == 0 {
		return c
	}
	derived := *c
	derived.apply(overrides)
	return &derived
}

func (c *ProtocolConfig) apply(raw map[string]any) {
	for key, value := range raw {
		switch key {
		case "mmsc_url":
			if s, ok := value.(string); ok {
				c.MMSCUrl = s
			}
		case "proxy_host":
			if s, ok := value.(string); ok {
				c.ProxyHost = s
			}
		case "proxy_port":
			if n, ok := asInt(value); ok {
				c.ProxyPort = n
			}
		case "user_agent":
			if s, ok := value.(string); ok {
				c.UserAgent = s
			}
		case "ua_prof_tag_name":
			if s, ok := value.(string); ok {
				c.UAProfTagName = s
			}
		case "ua_prof_url":
			if s, ok := value.(string); ok {
				c.UAProfURL = s
			}
		case "http_connect_timeout_ms":
			if n, ok := asInt(value); ok {
				c.ConnectTimeout = time.Duration(n) * time.Millisecond
			}
		case "max_message_size":
			if n, ok := asInt(value); ok {
				c.MaxMessageSize = int64(n)
			}
		case "http_params":
			if s, ok := value.(string); ok {
				c.ExtraHTTPHeaders = s
			}
		case "support_http_charset_header":
			if b, ok := value.(bool); ok {
				c.SupportHTTPCharsetHeader = b
			}
		}
	}
}

// asInt tolerates the float64 numbers produced by JSON decoding.
func asInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
