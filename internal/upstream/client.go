package upstream

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout applies when NewHTTPClient is given a non-positive timeout.
const DefaultTimeout = 15 * time.Second

// Size caps applied when reading upstream bodies.
const (
	maxIdentityBytes = 64 << 10
	maxMessageBytes  = 4 << 20
)

// NewHTTPClient returns the client shared by both upstream calls. The timeout bounds
// each call end to end; otelhttp adds a client span per request.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
	return u, nil
}

// withQuery returns a copy of base with the given parameters set.
func withQuery(base *url.URL, kv ...string) string {
	u := *base
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }
