package eventstore

import (
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	MemoryBackend = "memory"
	SQLiteBackend = "sqlite"
)

// Open builds a Store for the configured backend.
func Open(backend, sqlitePath string) (Store, error) {
	switch backend {
	case MemoryBackend:
		slog.Info("Initialized in-memory event store")
		return NewMemory(), nil
	case SQLiteBackend:
		store, err := NewSQLite(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite event store: %w", err)
		}
		slog.Info("Initialized sqlite event store", "db_path", sqlitePath)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported event store backend: %s", backend)
	}
}
