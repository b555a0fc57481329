package interfaces

import (
	"context"
	"fmt"
	"strings"

	"github.com/opd-ai/cryptosync/record"
)

// RepositorySession is one single-use pass over a repository's collection.
type RepositorySession interface {
	// ID identifies the session in logs.
	ID() string

	// Collection returns the collection the session operates on.
	Collection() string

	// Status returns the current lifecycle status.
	Status() SessionStatus

	// Begin moves the session from Unstarted to Active.
	Begin(ctx context.Context) *Future[struct{}]

	// SetStoreSink registers the receiver of store outcomes.
	SetStoreSink(sink StoreSink)

	// Store queues env for storage. Its outcome is reported to the store
	// sink; the returned error covers only state and sink checks.
	Store(ctx context.Context, env *record.Envelope) error

	// StoreDone resolves once every earlier Store has been reported, with
	// the number of envelopes stored successfully in this session.
	StoreDone(ctx context.Context) *Future[int64]

	// Fetch returns the envelopes for guids in request order, skipping
	// guids the repository does not hold.
	Fetch(ctx context.Context, guids []string) *Future[[]*record.Envelope]

	// FetchAll returns every envelope, tombstones included.
	FetchAll(ctx context.Context) *Future[[]*record.Envelope]

	// FetchSince returns envelopes modified at or after sinceMillis.
	FetchSince(ctx context.Context, sinceMillis int64) *Future[[]*record.Envelope]

	// GUIDsSince returns the guids modified at or after sinceMillis.
	GUIDsSince(ctx context.Context, sinceMillis int64) *Future[[]string]

	// Wipe removes every envelope in the collection.
	Wipe(ctx context.Context) *Future[struct{}]

	// Finish moves the session from Active to Done.
	Finish(ctx context.Context) *Future[struct{}]
}

// Repository hands out sessions for one collection.
type Repository interface {
	Collection() string
	CreateSession(ctx context.Context) (RepositorySession, error)
	Close() error
}

// Backend names a repository implementation.
type Backend string

const (
	// BackendMemory is the in-memory implementation from the testing package.
	BackendMemory Backend = "memory"
	// BackendSQLite is the durable implementation from the real package.
	BackendSQLite Backend = "sqlite"
)

// RepositoryConfig holds configuration for repository implementations.
type RepositoryConfig struct {
	// Backend selects the implementation.
	Backend Backend `yaml:"backend"`

	// DatabasePath is the SQLite file; required for BackendSQLite.
	DatabasePath string `yaml:"database_path"`

	// Collection names the collection the repository serves.
	Collection string `yaml:"collection"`

	// AsyncDispatch resolves session futures on a worker goroutine instead
	// of the caller's.
	AsyncDispatch bool `yaml:"async_dispatch"`
}

// Validate checks the configuration for consistency.
func (c *RepositoryConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.DatabasePath == "" {
			return ErrMissingDatabasePath
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Collection == "" || strings.ContainsAny(c.Collection, " /\\\t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, c.Collection)
	}
	return nil
}
