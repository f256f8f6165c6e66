package relay

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"webhookrelay/internal/upstream"
	"webhookrelay/pkg/metrics"
	"webhookrelay/pkg/tenants"
)

// DefaultSkew is subtracted from a token's expiry before it is handed out.
const DefaultSkew = 20 * time.Second

var tracer = otel.Tracer("webhookrelay/internal/relay")

// TokenFetcher exchanges a credential pair for a bearer token.
type TokenFetcher interface {
	FetchToken(ctx context.Context, clientID, clientSecret string) (upstream.Token, error)
}

// CachedToken is the bearer token held for one tenant key.
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Usable reports whether the token may still be handed out at now.
func (t CachedToken) Usable(now time.Time, skew time.Duration) bool {
	return now.Before(t.ExpiresAt.Add(-skew))
}

// TokenCache memoizes bearer tokens per tenant key. Refreshes for the same key are
// coalesced: concurrent callers that miss share a single upstream fetch and its result.
// A failed fetch leaves no entry behind.
type TokenCache struct {
	fetcher TokenFetcher
	skew    time.Duration
	now     func() time.Time
	log     *zap.SugaredLogger

	mu      sync.RWMutex
	entries map[string]CachedToken
	group   singleflight.Group
}

type CacheOption func(*TokenCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption { return func(c *TokenCache) { c.now = now } }

func WithSkew(d time.Duration) CacheOption { return func(c *TokenCache) { c.skew = d } }

func WithLogger(log *zap.SugaredLogger) CacheOption { return func(c *TokenCache) { c.log = log } }

func NewTokenCache(fetcher TokenFetcher, opts ...CacheOption) *TokenCache {
	c := &TokenCache{
		fetcher: fetcher,
		skew:    DefaultSkew,
		now:     time.Now,
		log:     zap.NewNop().Sugar(),
		entries: map[string]CachedToken{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetToken returns a usable token for cred.Key, fetching and storing a new one when
// the cached entry is absent or inside the skew window.
func (c *TokenCache) GetToken(ctx context.Context, cred tenants.Credential) (string, error) {
	if tok, ok := c.lookup(cred.Key); ok {
		metrics.TokenCacheTotal.WithLabelValues(metrics.CacheHit).Inc()
		return tok.Value, nil
	}

	ctx, span := tracer.Start(ctx, "relay.token_refresh")
	span.SetAttributes(attribute.String("relay.tenant_key", cred.Key))
	defer span.End()

	// the shared fetch outlives any single caller; the HTTP client timeout bounds it
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(cred.Key, func() (any, error) {
		// a refresh that finished while this caller was queued is reused
		if tok, ok := c.lookup(cred.Key); ok {
			metrics.TokenCacheTotal.WithLabelValues(metrics.CacheCoalesced).Inc()
			return tok.Value, nil
		}
		c.Invalidate(cred.Key)
		metrics.TokenCacheTotal.WithLabelValues(metrics.CacheMiss).Inc()

		start := time.Now()
		tok, err := c.fetcher.FetchToken(fetchCtx, cred.ClientID, cred.ClientSecret)
		if err != nil {
			metrics.IdentityFetchSeconds.WithLabelValues(metrics.ResultFailure).Observe(time.Since(start).Seconds())
			metrics.TokenCacheTotal.WithLabelValues(metrics.CacheError).Inc()
			return "", err
		}
		metrics.IdentityFetchSeconds.WithLabelValues(metrics.ResultSuccess).Observe(time.Since(start).Seconds())

		entry := CachedToken{Value: tok.Value, ExpiresAt: c.now().Add(tok.TTL)}
		c.mu.Lock()
		c.entries[cred.Key] = entry
		c.mu.Unlock()
		c.log.Infow("token refreshed", "key", cred.Key, "expires_at", entry.ExpiresAt)
		return entry.Value, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "identity exchange failed")
		c.log.Warnw("token refresh failed", "key", cred.Key, "err", res.Err)
		return "", res.Err
	}
	return res.Val.(string), nil
}

// Peek returns the stored entry for key whether or not it is still usable.
func (c *TokenCache) Peek(key string) (CachedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[key]
	return t, ok
}

// Invalidate drops the entry for key.
func (c *TokenCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TokenCache) lookup(key string) (CachedToken, bool) {
	t, ok := c.Peek(key)
	if !ok || !t.Usable(c.now(), c.skew) {
		return CachedToken{}, false
	}
	return t, true
}
