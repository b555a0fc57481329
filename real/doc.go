// Package real provides the durable SQLite-backed repository.
//
// [SQLiteRepository] implements interfaces.Repository over a single SQLite
// database file using the pure-Go modernc.org/sqlite driver, so no cgo
// toolchain is needed. Several collections may share one database; each
// repository value serves exactly one of them.
//
//	repo, err := real.OpenSQLiteRepository(&interfaces.RepositoryConfig{
//	    Backend:      interfaces.BackendSQLite,
//	    DatabasePath: "sync.db",
//	    Collection:   "bookmarks",
//	})
//	if err != nil {
//	    return err
//	}
//	defer repo.Close()
//
// # Storage
//
// Envelopes are stored as received: the payload column holds the envelope's
// payload string verbatim, which under the crypto middleware is the
// encrypted {"IV","ciphertext","hmac"} object. Modification times are kept
// as integer milliseconds. Storing an existing guid updates the row in place
// and keeps its original insertion sequence, so FetchAll order is stable.
//
// The database runs in WAL mode with a busy timeout, and carries a
// schema_version table so later layouts can migrate forward.
package real
