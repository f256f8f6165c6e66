package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webhookrelay/pkg/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/workwechat", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodPost, "/webhook/workwechat", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "", RequestIDFrom(context.Background()))
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop().Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAccessLogKeepsStatus(t *testing.T) {
	h := AccessLog(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

type fakeReplayStore struct {
	seen map[string]bool
	err  error
}

func (f *fakeReplayStore) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.seen[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.seen[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeReplayStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if f.seen[k] {
			delete(f.seen, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// relayStub answers like the relay handler: code 0 for tenant keys in ok, -1 otherwise.
type relayStub struct {
	ok    map[string]bool
	calls int
}

func (s *relayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls++
	w.Header().Set("Content-Type", "application/json")
	if s.ok[r.URL.Query().Get("key")] {
		_, _ = w.Write([]byte(`{"code":0,"message":"relay succeeded","data":"{}"}`))
		return
	}
	_, _ = w.Write([]byte(`{"code":-1,"message":"token request failed: x"}`))
}

func sendDelivery(h http.Handler, tenant, id string) map[string]any {
	req := httptest.NewRequest(http.MethodPost, "/webhook/workwechat?key="+tenant, nil)
	if id != "" {
		req.Header.Set(IdempotencyHeader, id)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

func TestReplayGuard(t *testing.T) {
	store := &fakeReplayStore{seen: map[string]bool{}}
	stub := &relayStub{ok: map[string]bool{"k1": true}}
	h := replayGuard(store, time.Minute, zap.NewNop().Sugar())(stub)

	sendDelivery(h, "k1", "d-1")
	body := sendDelivery(h, "k1", "d-1")
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, float64(-1), body["code"])
	assert.Equal(t, "duplicate delivery", body["message"])

	sendDelivery(h, "k1", "")
	sendDelivery(h, "k1", "")
	assert.Equal(t, 3, stub.calls)

	store.err = errors.New("redis down")
	sendDelivery(h, "k1", "d-1")
	assert.Equal(t, 4, stub.calls)
}

func TestReplayGuardScopesIdsByTenant(t *testing.T) {
	store := &fakeReplayStore{seen: map[string]bool{}}
	stub := &relayStub{ok: map[string]bool{"tenantA": true, "tenantB": true}}
	h := replayGuard(store, time.Minute, zap.NewNop().Sugar())(stub)

	assert.Equal(t, float64(0), sendDelivery(h, "tenantA", "evt-1")["code"])
	assert.Equal(t, float64(0), sendDelivery(h, "tenantB", "evt-1")["code"])
	assert.Equal(t, 2, stub.calls)
}

func TestReplayGuardReleasesFailedDeliveries(t *testing.T) {
	store := &fakeReplayStore{seen: map[string]bool{}}
	stub := &relayStub{ok: map[string]bool{}}
	h := replayGuard(store, time.Minute, zap.NewNop().Sugar())(stub)

	body := sendDelivery(h, "tenantA", "evt-1")
	assert.Equal(t, "token request failed: x", body["message"])
	assert.Empty(t, store.seen)

	stub.ok["tenantA"] = true
	body = sendDelivery(h, "tenantA", "evt-1")
	assert.Equal(t, float64(0), body["code"])
	assert.Equal(t, 2, stub.calls)

	body = sendDelivery(h, "tenantA", "evt-1")
	assert.Equal(t, "duplicate delivery", body["message"])
	assert.Equal(t, 2, stub.calls)
}

func TestReplayGuardReleasesOnPanic(t *testing.T) {
	store := &fakeReplayStore{seen: map[string]bool{}}
	inner := replayGuard(store, time.Minute, zap.NewNop().Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	h := Recover(zap.NewNop().Sugar())(inner)

	sendDelivery(h, "tenantA", "evt-1")
	assert.Empty(t, store.seen)
}

func TestReplayGuardNilClientPassesThrough(t *testing.T) {
	h := ReplayGuard(nil, time.Minute, zap.NewNop().Sugar())(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/webhook/workwechat", nil)
	req.Header.Set(IdempotencyHeader, "x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestJWTAuthDisabledWithoutIssuer(t *testing.T) {
	h := JWTAuth(config.Config{}, zap.NewNop().Sugar())(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/workwechat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuth(t *testing.T) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer jwks.Close()

	cfg := config.Config{Issuer: "https://issuer.test/", Audience: "relay", JWKSURL: jwks.URL}
	var subject string
	h := JWTAuth(cfg, zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = CallerSubject(r.Context())
	}))

	sign := func(iss, aud string) string {
		tok, err := jwt.NewBuilder().
			Issuer(iss).
			Audience([]string{aud}).
			Subject("alerting").
			IssuedAt(time.Now()).
			Expiration(time.Now().Add(time.Hour)).
			Build()
		require.NoError(t, err)
		signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, priv))
		require.NoError(t, err)
		return string(signed)
	}
	do := func(path, bearer string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do("/webhook/workwechat", ""))
	assert.Equal(t, http.StatusOK, do("/healthz", ""))
	assert.Equal(t, http.StatusUnauthorized, do("/webhook/workwechat", "not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, do("/webhook/workwechat", sign("https://other.test", "relay")))
	assert.Equal(t, http.StatusUnauthorized, do("/webhook/workwechat", sign("https://issuer.test", "someone-else")))

	assert.Equal(t, http.StatusOK, do("/webhook/workwechat", sign("https://issuer.test", "relay")))
	assert.Equal(t, "alerting", subject)
}
