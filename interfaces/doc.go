// Package interfaces defines the repository abstractions the sync core is
// written against, together with the small amount of shared machinery every
// implementation needs.
//
// # Core Interfaces
//
// [Repository] hands out single-use [RepositorySession] values for one
// collection. A session moves through Unstarted, Active and Done exactly
// once:
//
//	session, err := repo.CreateSession(ctx)
//	if err != nil {
//	    return err
//	}
//	if _, err := session.Begin(ctx).Await(ctx); err != nil {
//	    return err
//	}
//	envs, err := session.FetchAll(ctx).Await(ctx)
//	...
//	_, err = session.Finish(ctx).Await(ctx)
//
// Every operation other than Begin fails with [ErrInactiveSession] outside
// the Active state. Calling Begin twice, or Finish on a session that is not
// Active, fails with [ErrInvalidTransition]. State errors are reported
// immediately and never block.
//
// # Asynchronous Results
//
// Session operations return a [Future]. An implementation may resolve it on
// the caller's goroutine or on a worker goroutine of its own. [Then] chains a
// synchronous transform onto a future without registering nested callbacks:
//
//	names := interfaces.Then(session.FetchAll(ctx), func(envs []*record.Envelope) ([]string, error) {
//	    ...
//	})
//
// Store outcomes are reported per record to a [StoreSink] registered with
// SetStoreSink. Storing without a sink fails with [ErrNoDelegateConfigured].
//
// # Configuration
//
// [RepositoryConfig] selects and parameterizes an implementation:
//
//	config := &interfaces.RepositoryConfig{
//	    Backend:      interfaces.BackendSQLite,
//	    DatabasePath: "/var/lib/sync/bookmarks.db",
//	    Collection:   "bookmarks",
//	}
//	if err := config.Validate(); err != nil {
//	    log.Fatalf("invalid config: %v", err)
//	}
//
// The factory package builds repositories from a config; the testing package
// provides the in-memory implementation and the real package the SQLite one.
//
// # Thread Safety
//
// Repositories are safe for concurrent use. A session is meant to be driven
// by one caller at a time, but its state checks are synchronized so that
// misuse fails with a [SessionError] instead of racing.
package interfaces
