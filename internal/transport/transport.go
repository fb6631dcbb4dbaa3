// Package transport provides the HTTP round trippers used for upstream API calls.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options configures the upstream transport stack.
type Options struct {
	Timeout    time.Duration // dial and TLS handshake timeout
	ChromeTLS  bool          // present a Chrome TLS fingerprint
	UserAgent  string        // set on every request when non-empty
	MaxRetries int           // retries on 429/503, 0 disables
	MaxBackoff time.Duration // cap for Retry-After waits
}

// New builds a round tripper from opts: base transport, then retries, then
// the User-Agent header.
func New(opts Options) http.RoundTripper {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	var rt http.RoundTripper
	if opts.ChromeTLS {
		rt = NewChromeTransport(opts.Timeout)
	} else {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSHandshakeTimeout = opts.Timeout
		rt = base
	}

	if opts.MaxRetries > 0 {
		rt = &retryTransport{next: rt, maxRetries: opts.MaxRetries, maxBackoff: opts.MaxBackoff}
	}
	if opts.UserAgent != "" {
		rt = &userAgentTransport{next: rt, userAgent: opts.UserAgent}
	}
	return rt
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Go's standard TLS client has a distinctive fingerprint that some storefront
// CDNs rate limit aggressively. This transport uses uTLS to present a
// Chrome-like fingerprint with full HTTP/2 support:
//
//   1. uTLS with HelloChrome_Auto for the handshake
//   2. ALPN negotiates h2 or http/1.1
//   3. http2.Transport frames HTTP/2 when negotiated
//
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. Plain http:// requests go straight to the HTTP/1.1 transport.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// The h2 attempt may have consumed the body.
	if req.Body != nil && req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}

// =============================================================================
// RETRIES
// =============================================================================

const defaultMaxBackoff = 10 * time.Second

// retryTransport retries throttled responses, honoring Retry-After. Requests
// with a body are only retried when the body can be rewound.
type retryTransport struct {
	next       http.RoundTripper
	maxRetries int
	maxBackoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.next.RoundTrip(req)
		if err != nil || !retryable(resp.StatusCode) || attempt >= t.maxRetries {
			return resp, err
		}
		if req.Body != nil && req.GetBody == nil {
			return resp, nil
		}

		wait := t.backoff(resp, attempt)
		resp.Body.Close()

		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind body: %w", err)
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// backoff reads Retry-After in seconds, falling back to exponential steps from 500ms.
func (t *retryTransport) backoff(resp *http.Response, attempt int) time.Duration {
	limit := t.maxBackoff
	if limit <= 0 {
		limit = defaultMaxBackoff
	}

	wait := (500 * time.Millisecond) << attempt
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.ParseFloat(s, 64); err == nil && secs >= 0 {
			wait = time.Duration(secs * float64(time.Second))
		}
	}
	if wait > limit {
		wait = limit
	}
	return wait
}

// =============================================================================
// USER AGENT
// =============================================================================

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}
