// Package storage defines the cache contract shared by all backends.
// Backends persist canonical issues keyed by issue key together with a
// local last-write timestamp used for freshness reconciliation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// Backend identifies a cache implementation.
type Backend string

// Supported backends
const (
	BackendSQLite Backend = "sqlite"
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
)

// IsValid checks if the backend is one of the known constants.
func (b Backend) IsValid() bool {
	switch b {
	case BackendSQLite, BackendFile, BackendMemory:
		return true
	}
	return false
}

// ErrUnknownBackend is returned by the factory for unrecognized backends.
var ErrUnknownBackend = errors.New("storage: unknown backend")

// Store is the cache contract. Implementations must be safe for
// concurrent use; the crawler writes from multiple workers.
type Store interface {
	// Get returns the cached issue, its local last-write time and
	// whether the key exists. A corrupt record reads as absent so the
	// crawler refetches instead of failing.
	Get(ctx context.Context, key string) (*types.Issue, time.Time, bool, error)

	// BatchModified returns local last-write times for the given keys.
	// Keys without a cached record are absent from the result.
	BatchModified(ctx context.Context, keys []string) (map[string]time.Time, error)

	// Upsert inserts or replaces the record and returns the local
	// last-write time recorded for it.
	Upsert(ctx context.Context, issue *types.Issue) (time.Time, error)

	// Ready reports whether the backend can serve reads right now.
	Ready(ctx context.Context) bool

	Close() error
}
