// cmd/relay-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webhookrelay/internal/relay"
	"webhookrelay/internal/upstream"
	"webhookrelay/pkg/config"
	"webhookrelay/pkg/db"
	"webhookrelay/pkg/logger"
	"webhookrelay/pkg/middleware"
	"webhookrelay/pkg/openapi"
	"webhookrelay/pkg/tenants"
	"webhookrelay/pkg/usage"
)

const serviceName = "relay-service"

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, serviceName)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	dir, err := loadDirectory(context.Background(), cfg, pool, log)
	if err != nil {
		log.Fatalw("tenants", "err", err)
	}
	log.Infow("tenants loaded", "count", dir.Len())

	rec := usage.Nop()
	if pool != nil {
		if err := usage.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("usage schema", "err", err)
		}
		rec = usage.NewPostgresRecorder(pool, log)
	}

	hc := upstream.NewHTTPClient(cfg.UpstreamTimeout)
	identity, err := upstream.NewIdentityClient(cfg.IdentityURL, hc)
	if err != nil {
		log.Fatalw("identity endpoint", "err", err)
	}
	messages, err := upstream.NewMessageClient(cfg.MessageURL, hc)
	if err != nil {
		log.Fatalw("message endpoint", "err", err)
	}
	tokens := relay.NewTokenCache(identity, relay.WithSkew(cfg.TokenSkew), relay.WithLogger(log))

	h, err := relay.NewHandler(cfg, dir, tokens, messages, rec, log)
	if err != nil {
		log.Fatalw("handler", "err", err)
	}

	docs := openapi.NewRegistry()
	docs.Bearer = cfg.AuthEnabled()
	docs.Register(openapi.WebhookOperation())

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.JWTAuth(cfg, log))
	r.Use(middleware.ReplayGuard(rdb, cfg.ReplayWindow, log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/.well-known/openapi.json", docs.ServeHandler(serviceName, "1.0.0"))
	h.Routes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("relay-service listening", "addr", cfg.HTTPAddr, "provider", cfg.Provider, "auth", cfg.AuthEnabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = middleware.ShutdownTracing(ctx)
	if rdb != nil {
		_ = rdb.Close()
	}
	if pool != nil {
		pool.Close()
	}
	_ = log.Sync()
	fmt.Println("relay-service stopped")
}

// loadDirectory picks the tenant source: Postgres when configured, then
// TENANTS_FILE, then TENANT_SEED_JSON.
func loadDirectory(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, log logger.Sugared) (tenants.Directory, error) {
	if pool != nil {
		if err := tenants.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		if err := tenants.SeedFromJSON(ctx, pool, cfg.TenantSeedJSON); err != nil {
			log.Warnw("seed", "err", err)
		}
		return tenants.LoadFromPostgres(ctx, pool, log)
	}
	if cfg.TenantsFile != "" {
		creds, err := tenants.LoadFile(cfg.TenantsFile)
		if err != nil {
			return nil, err
		}
		return tenants.NewDirectory(creds)
	}
	creds, err := tenants.ParseSeedJSON(cfg.TenantSeedJSON)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		log.Warnw("no tenants configured; every call will answer key not recognized")
	}
	return tenants.NewDirectory(creds)
}
