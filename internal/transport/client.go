package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tdimeji/mmsgate/internal/mmsconfig"
	"github.com/tdimeji/mmsgate/internal/mmserror"
	"github.com/tdimeji/mmsgate/internal/network"
	"github.com/tdimeji/mmsgate/internal/telephony"
	"github.com/tdimeji/mmsgate/pkg/redact"
)

const (
	headerAccept     = "*/*, application/vnd.wap.mms-message, application/vnd.wap.sic"
	contentTypeMMS   = "application/vnd.wap.mms-message"
	charsetParam     = "; charset=utf-8"
	macroLine1       = "LINE1"
	macroLine1NoCC   = "LINE1NOCOUNTRYCODE"
	macroNAI         = "NAI"
	macroDelimiter   = "##"
	extraHeaderSep   = "|"
	extraHeaderKVSep = ":"
)

// Options configures a Client.
type Options struct {
	// IPv4WaitAttempts/IPv4WaitDelay bound the readiness polling performed
	// before connecting to a literal IPv4 MMSC address.
	IPv4WaitAttempts int
	IPv4WaitDelay    time.Duration

	Telephony telephony.Info

	// Breaker, when non-nil, gates exchanges per MMSC host.
	Breaker *BreakerSet
}

// Lease is the slice of a network lease the transport needs: a dialable
// handle and loss notification.
type Lease interface {
	Handle() network.Handle
	Done() <-chan struct{}
}

var _ Lease = (*network.Lease)(nil)

// Client executes a single WAP-MMS HTTP exchange over a leased network.
type Client struct {
	opts Options
}

// NewClient creates a transport client.
func NewClient(opts Options) *Client {
	if opts.IPv4WaitAttempts <= 0 {
		opts.IPv4WaitAttempts = 15
	}
	if opts.IPv4WaitDelay <= 0 {
		opts.IPv4WaitDelay = time.Second
	}
	return &Client{opts: opts}
}

// Response is the result of a successful MMSC exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Exchange performs one GET or POST against the MMSC through the leased
// network and returns the response on a 2xx status.
func (c *Client) Exchange(ctx context.Context, cfg *mmsconfig.ProtocolConfig, lease Lease, method, rawURL string, body []byte) (*Response, error) {
	if method != http.MethodGet && method != http.MethodPost {
		return nil, &mmserror.MalformedRequestError{Reason: "unsupported method " + method}
	}
	if method == http.MethodPost && len(body) == 0 {
		return nil, &mmserror.MalformedRequestError{Reason: "empty POST body"}
	}

	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return nil, &mmserror.MalformedRequestError{Reason: "invalid URL"}
	}

	if c.opts.Breaker != nil && !c.opts.Breaker.Allow(target.Hostname()) {
		return nil, &mmserror.IOError{Op: "admission", Err: fmt.Errorf("circuit open for %s", target.Hostname())}
	}

	slog.InfoContext(ctx, "MMSC exchange starting",
		slog.String("method", method),
		slog.String("url", redact.URL(rawURL)),
		slog.Bool("proxy", cfg.HasProxy()),
	)

	// A lost network aborts the exchange mid-transfer.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	abortDone := make(chan struct{})
	defer close(abortDone)
	go func() {
		select {
		case <-lease.Done():
			cancel(mmserror.ErrNetworkLost)
		case <-abortDone:
		}
	}()

	c.waitForIPv4(ctx, lease, target)

	result, err := c.do(ctx, cfg, lease, method, rawURL, body)
	if c.opts.Breaker != nil {
		if err != nil {
			c.opts.Breaker.RecordFailure(target.Hostname())
		} else {
			c.opts.Breaker.RecordSuccess(target.Hostname())
		}
	}
	return result, err
}

func (c *Client) do(ctx context.Context, cfg *mmsconfig.ProtocolConfig, lease Lease, method, rawURL string, body []byte) (*Response, error) {
	var reader io.Reader
	if method == http.MethodPost {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &mmserror.MalformedRequestError{Reason: err.Error()}
	}

	req.Header.Set("Accept", headerAccept)
	req.Header.Set("Accept-Language", acceptLanguage())
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.UAProfURL != "" {
		tag := cfg.UAProfTagName
		if tag == "" {
			tag = mmsconfig.DefaultUAProfTagName
		}
		req.Header.Set(tag, cfg.UAProfURL)
	}
	if method == http.MethodPost {
		contentType := contentTypeMMS
		if cfg.SupportHTTPCharsetHeader {
			contentType += charsetParam
		}
		req.Header.Set("Content-Type", contentType)
	}
	c.addExtraHeaders(ctx, req, cfg)

	transport := &http.Transport{
		DialContext: func(ctx context.Context, netw, addr string) (net.Conn, error) {
			return lease.Handle().DialContext(ctx, netw, addr)
		},
	}
	if cfg.HasProxy() {
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(cfg.ProxyHost, fmt.Sprintf("%d", cfg.ProxyPort)),
		}
		// The proxy address is dialed through the leased network too.
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.ConnectTimeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			return nil, &mmserror.IOError{Op: "exchange", Err: cause}
		}
		return nil, &mmserror.IOError{Op: "connect", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			return nil, &mmserror.IOError{Op: "read", Err: cause}
		}
		return nil, &mmserror.IOError{Op: "read", Err: err}
	}

	if resp.StatusCode/100 != 2 {
		slog.WarnContext(ctx, "MMSC returned non-success status",
			slog.Int("status", resp.StatusCode),
			slog.String("url", redact.URL(rawURL)),
		)
		return nil, &mmserror.ProtocolError{StatusCode: resp.StatusCode}
	}

	slog.InfoContext(ctx, "MMSC exchange succeeded",
		slog.Int("status", resp.StatusCode),
		slog.Int("response_bytes", len(data)),
	)
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// waitForIPv4 polls reachability for literal IPv4 MMSC addresses. Freshly
// attached cellular networks can be IPv6-only for a moment; the poll gives
// provisioning time to finish. It proceeds anyway once attempts run out or
// the network drops mid-wait.
func (c *Client) waitForIPv4(ctx context.Context, lease Lease, target *url.URL) {
	ip := net.ParseIP(target.Hostname())
	if ip == nil || ip.To4() == nil {
		return
	}
	for attempt := 0; attempt < c.opts.IPv4WaitAttempts; attempt++ {
		if lease.Handle().IsReachable(ctx, ip) {
			return
		}
		slog.DebugContext(ctx, "IPv4 address not yet reachable, waiting",
			slog.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return
		case <-lease.Done():
			return
		case <-time.After(c.opts.IPv4WaitDelay):
		}
	}
	slog.WarnContext(ctx, "IPv4 readiness wait exhausted, proceeding anyway")
}

// addExtraHeaders applies the carrier's pipe-and-colon-delimited header
// template, resolving ##NAME## macros against the telephony collaborator.
// A header whose value resolves to empty is omitted.
func (c *Client) addExtraHeaders(ctx context.Context, req *http.Request, cfg *mmsconfig.ProtocolConfig) {
	if cfg.ExtraHTTPHeaders == "" {
		return
	}
	for _, entry := range strings.Split(cfg.ExtraHTTPHeaders, extraHeaderSep) {
		parts := strings.SplitN(entry, extraHeaderKVSep, 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := c.resolveMacros(strings.TrimSpace(parts[1]), cfg.SubID)
		if name == "" || value == "" {
			continue
		}
		req.Header.Set(name, value)
	}
}

func (c *Client) resolveMacros(value string, subID int) string {
	for {
		start := strings.Index(value, macroDelimiter)
		if start < 0 {
			return value
		}
		rest := value[start+len(macroDelimiter):]
		end := strings.Index(rest, macroDelimiter)
		if end < 0 {
			return value
		}
		name := rest[:end]
		replacement := ""
		if c.opts.Telephony != nil {
			switch name {
			case macroLine1:
				replacement = c.opts.Telephony.Line1Number(subID)
			case macroLine1NoCC:
				replacement = c.opts.Telephony.Line1NumberNoCountryCode(subID)
			case macroNAI:
				replacement = c.opts.Telephony.NAI(subID)
			}
		}
		// Unresolved macros are dropped silently.
		value = value[:start] + replacement + rest[end+len(macroDelimiter):]
	}
}

// acceptLanguage derives the Accept-Language header from the process locale,
// appending US English as a fallback when the locale is not already US.
func acceptLanguage() string {
	lang := os.Getenv("LANG")
	if idx := strings.IndexAny(lang, ".@"); idx >= 0 {
		lang = lang[:idx]
	}
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" || lang == "C" || lang == "POSIX" {
		return "en-US"
	}
	if strings.EqualFold(lang, "en-US") {
		return lang
	}
	return lang + ", en-US"
}
