// Package middleware wraps any interfaces.Repository so that records are
// encrypted on the way in and decrypted on the way out.
//
// A [CryptoSession] has the same lifecycle as the session it wraps and adds
// no state of its own. Store encrypts a record.Record into an envelope
// before forwarding it; Fetch, FetchAll and FetchSince decrypt what the
// wrapped session returns by chaining a synchronous transform onto its
// future, on whichever goroutine resolves it. Everything else is forwarded
// unchanged.
//
//	repo, err := middleware.NewCryptoRepository(inner, bundle)
//	session, err := repo.CreateSession(ctx)
//	session.Begin(ctx).Await(ctx)
//	session.SetStoreSink(sink)
//	session.Store(ctx, bookmark)
//
//	results, err := session.FetchAll(ctx).Await(ctx)
//	records, failures := middleware.SplitResults(results)
//
// A record that fails authentication or decryption is reported in its own
// [RecordResult] and does not abort the rest of the fetch; callers decide
// whether a failure is fatal to the sync pass.
package middleware
