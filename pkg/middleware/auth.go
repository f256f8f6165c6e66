// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"webhookrelay/pkg/config"
	"webhookrelay/pkg/problems"
)

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

type subjectCtxKey struct{}

// JWTAuth requires a bearer JWT signed by a key from cfg.JWKSURL and issued by
// cfg.Issuer. It is a pass-through when either is unset. /healthz, /metrics and
// /.well-known/ are always public.
func JWTAuth(cfg config.Config, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if !cfg.AuthEnabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	issuer := strings.TrimRight(cfg.Issuer, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/.well-known/") {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				problems.Write(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "missing bearer token")
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			set, err := cache.get(r.Context(), cfg.JWKSURL, jwksTTL)
			if err != nil {
				log.Errorw("jwks fetch", "url", cfg.JWKSURL, "err", err)
				problems.Write(w, http.StatusInternalServerError, "jwks-unavailable", "Key set unavailable", "")
				return
			}
			parseOpts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithIssuer(issuer), jwt.WithValidate(true), jwt.WithVerify(true), jwt.WithAcceptableSkew(time.Minute)}
			if cfg.Audience != "" {
				parseOpts = append(parseOpts, jwt.WithAudience(cfg.Audience))
			}
			jt, err := jwt.Parse([]byte(raw), parseOpts...)
			if err != nil {
				problems.Write(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectCtxKey{}, jt.Subject())))
		})
	}
}

// CallerSubject returns the sub claim of the authenticated caller, or "".
func CallerSubject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectCtxKey{}).(string); ok {
		return s
	}
	return ""
}
