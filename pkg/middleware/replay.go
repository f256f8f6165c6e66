package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyHeader names the caller-chosen delivery id checked by ReplayGuard.
const IdempotencyHeader = "X-Idempotency-Key"

// replayStore is the subset of *redis.Client used by ReplayGuard.
type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ReplayGuard drops repeated deliveries that carry the same X-Idempotency-Key for
// the same tenant key within window. Only deliveries answered with code 0 keep their
// claim, so a failed delivery can be retried. Calls without the header, or with rdb
// nil, pass through. Redis errors fail open.
func ReplayGuard(rdb *redis.Client, window time.Duration, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if rdb == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return replayGuard(rdb, window, log)
}

func replayGuard(rdb replayStore, window time.Duration, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := replayKey(r, id)
			ok, err := rdb.SetNX(r.Context(), key, 1, window).Result()
			if err != nil {
				log.Warnw("replay guard unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{"code": -1, "message": "duplicate delivery"})
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			delivered := false
			defer func() {
				if delivered {
					return
				}
				if err := rdb.Del(context.WithoutCancel(r.Context()), key).Err(); err != nil {
					log.Warnw("replay guard release", "key", key, "err", err)
				}
			}()
			next.ServeHTTP(cw, r)
			delivered = cw.succeeded()
		})
	}
}

func replayKey(r *http.Request, id string) string {
	return "relay:delivery:" + strings.ToLower(r.URL.Path) + ":" + r.URL.Query().Get("key") + ":" + id
}

// captureWriter keeps a copy of the response so the relay outcome can be read.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) succeeded() bool {
	if c.status != http.StatusOK {
		return false
	}
	var out struct {
		Code *int `json:"code"`
	}
	if err := json.Unmarshal(c.body.Bytes(), &out); err != nil || out.Code == nil {
		return false
	}
	return *out.Code == 0
}
