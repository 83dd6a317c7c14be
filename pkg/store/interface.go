package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps failures to reach the persisted store at all
	// (connection refused, missing file, network partition).
	ErrUnavailable = errors.New("store unavailable")

	// ErrPermission wraps credential or authorization failures. The host
	// treats these as fatal for the run: retrying without operator
	// intervention cannot succeed.
	ErrPermission = errors.New("store permission denied")
)

// Store is the persisted key-value collaborator. Task states, the
// deployment version record, and anything else fleet-visible live here.
// Each individual Get/Put is atomic; no cross-key transactions are
// offered or needed by this core.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent; absence is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put writes the value for key, creating or overwriting it.
	Put(ctx context.Context, key, value string) error

	// List returns all key/value pairs whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string]string, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// Open creates a store for the given driver name and DSN.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
