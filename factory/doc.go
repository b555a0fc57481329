// Package factory creates repository implementations from configuration.
//
// The factory decouples consumers from the concrete repositories, so the same
// sync code runs against the in-memory simulation in tests and against SQLite
// in production.
//
// # Configuration
//
// Defaults are the in-memory backend serving the "bookmarks" collection.
// Environment variables override the defaults:
//   - SYNC_BACKEND: "memory" or "sqlite"
//   - SYNC_DB_PATH: path of the SQLite database file
//   - SYNC_COLLECTION: collection name
//   - SYNC_ASYNC_DISPATCH: "true" to resolve futures on a worker goroutine
//
// Invalid values are logged and ignored. A YAML file can supply the same
// settings:
//
//	backend: sqlite
//	database_path: /var/lib/sync/bookmarks.db
//	collection: bookmarks
//	async_dispatch: true
//
// loaded with [LoadConfigFile] or [NewRepositoryFactoryFromFile]; environment
// variables still win over the file.
//
// # Usage
//
//	f := factory.NewRepositoryFactory()
//	repo, err := f.CreateRepository()
//
//	// In tests:
//	sim := f.CreateMemoryForTesting(factory.WithAsyncDispatch(true))
package factory
