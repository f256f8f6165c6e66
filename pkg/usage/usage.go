// Package usage records one audit row per webhook delivery.
package usage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Delivery describes one relayed call. Credentials and tokens are never included.
type Delivery struct {
	TenantKey       string
	Provider        string
	RequestID       string
	Result          string // success | not_found | config | token | relay | bad_request
	Code            int
	Message         string
	UpstreamErrcode string
	PayloadBytes    int
	StartedAt       time.Time
	FinishedAt      time.Time
}

type Recorder interface {
	Record(ctx context.Context, d Delivery)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Delivery) {}

// Nop discards deliveries; used when no database is configured.
func Nop() Recorder { return nopRecorder{} }

type pgRecorder struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func NewPostgresRecorder(pool *pgxpool.Pool, log *zap.SugaredLogger) Recorder {
	return &pgRecorder{pool: pool, log: log}
}

// EnsureSchema creates relay_deliveries if missing. Idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS relay_deliveries (
	id BIGSERIAL PRIMARY KEY,
	tenant_key text NOT NULL,
	provider text NOT NULL,
	request_id text,
	result text NOT NULL,
	code int NOT NULL,
	message text,
	upstream_errcode text,
	payload_bytes int,
	duration_ms int,
	started_at timestamptz NOT NULL DEFAULT NOW(),
	finished_at timestamptz
);
CREATE INDEX IF NOT EXISTS relay_deliveries_tenant_started_idx ON relay_deliveries(tenant_key, started_at);
`)
	return err
}

// Record inserts the delivery. Failures are logged only.
func (p *pgRecorder) Record(ctx context.Context, d Delivery) {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO relay_deliveries(tenant_key, provider, request_id, result, code, message, upstream_errcode, payload_bytes, duration_ms, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, d.TenantKey, d.Provider, d.RequestID, d.Result, d.Code, d.Message, d.UpstreamErrcode, d.PayloadBytes,
		int(d.FinishedAt.Sub(d.StartedAt).Milliseconds()), d.StartedAt.UTC(), d.FinishedAt.UTC())
	if err != nil {
		p.log.Warnw("delivery audit insert failed", "key", d.TenantKey, "err", err)
	}
}
