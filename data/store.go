// Package data provides the incident directory.
// Incidents live in memory unless a database path is configured.
package data

import (
	"context"
	"io"
	"log"
)

// Store is a directory that may hold resources
type Store interface {
	Directory
	io.Closer
}

type memoryStore struct {
	*MemoryDirectory
}

func (memoryStore) Close() error { return nil }

// Open returns the configured directory seeded with the standing incidents.
// An empty path keeps everything in memory.
func Open(ctx context.Context, path string) (Store, error) {
	if path == "" {
		log.Printf("[data] Using in-memory incident directory")
		return memoryStore{NewMemoryDirectory(Fixtures()...)}, nil
	}

	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := db.Seed(ctx, Fixtures()); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[data] Using sqlite incident directory at %s", path)
	return db, nil
}
