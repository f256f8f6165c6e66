// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// EnsureSchema creates the tenant table if missing. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS relay_tenants (
  key text PRIMARY KEY,
  corp_id text NOT NULL DEFAULT '',
  corp_secret text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

// SeedFromJSON upserts TENANT_SEED_JSON entries into relay_tenants.
func SeedFromJSON(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	entries, err := ParseSeedJSON(jsonSeed)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if _, err := dbPool.Exec(ctx, `INSERT INTO relay_tenants(key, corp_id, corp_secret)
		  VALUES ($1,$2,$3)
		  ON CONFLICT (key) DO UPDATE SET corp_id=EXCLUDED.corp_id, corp_secret=EXCLUDED.corp_secret, updated_at=NOW()`,
			e.Key, e.ClientID, e.ClientSecret); err != nil {
			return fmt.Errorf("seed %q: %w", e.Key, err)
		}
	}
	return nil
}

// LoadFromPostgres snapshots relay_tenants into an in-memory Directory.
// The table is read once; later changes need a restart.
func LoadFromPostgres(ctx context.Context, dbPool *pgxpool.Pool, log *zap.SugaredLogger) (Directory, error) {
	rows, err := dbPool.Query(ctx, `SELECT key, COALESCE(corp_id,''), COALESCE(corp_secret,'') FROM relay_tenants ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.Key, &c.ClientID, &c.ClientSecret); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Infow("tenants loaded from postgres", "count", len(creds))
	return NewDirectory(creds)
}
