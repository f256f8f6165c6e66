package tenants

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("tenant not found")
	ErrEmptyKey     = errors.New("tenant key is empty")
	ErrDuplicateKey = errors.New("duplicate tenant key")
)

// Directory resolves tenant keys to credentials. Implementations are populated
// once at startup and are read-only afterwards.
type Directory interface {
	Lookup(ctx context.Context, key string) (Credential, error)
	Len() int
}
