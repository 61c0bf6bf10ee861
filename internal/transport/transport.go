// Package transport builds the outbound HTTP transports used to reach the
// storefront API and the payment provider.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
)

// Options selects the outbound transport.
type Options struct {
	// Timeout bounds connection setup. Request deadlines are set by callers.
	Timeout time.Duration
	// Fingerprint presents a Chrome TLS fingerprint. The storefront API sits
	// behind a CDN that throttles Go's default ClientHello.
	Fingerprint bool
	// Operation names client spans.
	Operation string
}

// New returns an instrumented RoundTripper for opts.
func New(opts Options) http.RoundTripper {
	var base http.RoundTripper
	if opts.Fingerprint {
		base = NewChromeTransport(opts.Timeout)
	} else {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSHandshakeTimeout = opts.Timeout
		base = t
	}
	return Instrument(base, opts.Operation)
}

// Instrument wraps rt so every outbound call produces a client span.
func Instrument(rt http.RoundTripper, operation string) http.RoundTripper {
	if operation == "" {
		operation = "storefront"
	}
	return otelhttp.NewTransport(rt,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return operation + " " + r.Method + " " + r.URL.Path
		}),
	)
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// The storefront API is fronted by an edge network that rate limits clients
// whose TLS ClientHello does not look like a browser's, so we present
// Chrome's:
//
//   1. uTLS with HelloChrome_Auto
//   2. ALPN negotiates h2 or http/1.1
//   3. http2.Transport frames h2 connections; plain HTTP and h1-only
//      servers fall through to the http.Transport
//
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint to upstream servers.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	// HTTP/2 transport with custom TLS dial
	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	// HTTP/1.1 fallback transport with custom TLS dial
	h1Transport := &http.Transport{
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

// RoundTrip implements http.RoundTripper.
// Tries HTTP/2 first, falls back to HTTP/1.1 if server doesn't support h2.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// A body that was already consumed by the failed h2 attempt cannot be
	// replayed on h1.
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	// Extract hostname for SNI
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	// Use Chrome fingerprint with default ALPN (h2, http/1.1)
	tlsConfig := &utls.Config{
		ServerName: host,
	}
	tlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)

	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
