// Package cryptosync implements encrypted record synchronization for
// hierarchical collections such as bookmarks.
//
// Every record that crosses the sync boundary is wrapped in a tamper-evident
// envelope (AES-256-CBC with an HMAC-SHA256 over the Base64 ciphertext) using
// a KeyBundle derived from the account's sync key. A separate validator
// compares client and server replicas of a bookmark tree and reports
// structural divergence.
//
// # Getting Started
//
// Derive keys, open an encrypted repository and run a session:
//
//	bundle, err := crypto.DeriveKeyBundle("alice", syncKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer crypto.WipeKeyBundle(bundle)
//
//	repo, err := cryptosync.OpenEncrypted(nil, bundle)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
//	report, err := cryptosync.Upload(ctx, repo, records)
//
// # Packages
//
//   - crypto: key derivation, CryptoRecord envelopes and the key bundle store
//   - record: Record types, the outer Envelope and payload codecs
//   - interfaces: repository contracts, session states and Future
//   - testing: in-memory repository
//   - real: SQLite repository
//   - factory: configuration-driven repository construction
//   - middleware: the encrypting repository wrapper
//   - validator: replica consistency checks
//
// # Configuration
//
// Repositories are configured through [interfaces.RepositoryConfig]. The
// factory applies the SYNC_BACKEND, SYNC_DB_PATH, SYNC_COLLECTION and
// SYNC_ASYNC_DISPATCH environment variables on top of defaults or a YAML
// file.
package cryptosync
