// Package storage persists carrier credentials and the saved tracking list.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// CredentialStore persists opaque credential blobs by carrier key. Load
// returns nil when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// TrackingList persists the ordered list of saved tracking numbers.
// Duplicates are kept. Update applies fn to the current list and saves the
// result with no other Update or Save in between; fn returning nil leaves
// the list untouched.
type TrackingList interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, numbers []string) error
	Update(ctx context.Context, fn func(numbers []string) []string) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Options selects and configures a backend
type Options struct {
	Backend     string
	DataDir     string
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
}

// Stores bundles the opened credential store and tracking list
type Stores struct {
	Credentials CredentialStore
	Packages    TrackingList

	pingers []pinger
	closers []io.Closer
}

// Open opens the configured backend. Redis only holds credentials; the
// tracking list stays in the data directory.
func Open(opts Options) (*Stores, error) {
	switch opts.Backend {
	case "", BackendFile:
		return &Stores{
			Credentials: NewFileCredentialStore(filepath.Join(opts.DataDir, "security.json")),
			Packages:    NewFileTrackingList(filepath.Join(opts.DataDir, "packages.json")),
		}, nil

	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.DataDir, "shiptrack.db")
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Credentials: db.Credentials,
			Packages:    db.Packages,
			pingers:     []pinger{db},
			closers:     []io.Closer{db},
		}, nil

	case BackendRedis:
		redisStore := NewRedisCredentialStore(opts.RedisAddr, opts.RedisPrefix)
		return &Stores{
			Credentials: redisStore,
			Packages:    NewFileTrackingList(filepath.Join(opts.DataDir, "packages.json")),
			pingers:     []pinger{redisStore},
			closers:     []io.Closer{redisStore},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", opts.Backend)
	}
}

// Ping checks that network or database backends are reachable
func (s *Stores) Ping(ctx context.Context) error {
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backend connections
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddTrackingNumber appends number to the saved list, even if it is already
// there
func AddTrackingNumber(ctx context.Context, list TrackingList, number string) error {
	return list.Update(ctx, func(numbers []string) []string {
		return append(numbers, number)
	})
}

// RemoveTrackingNumber drops every occurrence of number and reports how many
// were removed
func RemoveTrackingNumber(ctx context.Context, list TrackingList, number string) (int, error) {
	var removed int
	err := list.Update(ctx, func(numbers []string) []string {
		kept := make([]string, 0, len(numbers))
		for _, n := range numbers {
			if n != number {
				kept = append(kept, n)
			}
		}
		removed = len(numbers) - len(kept)
		if removed == 0 {
			return nil
		}
		return kept
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
