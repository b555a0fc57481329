// Package testing provides an in-memory repository for deterministic tests
// and demos of the sync core.
//
// # Overview
//
// [SimulatedRepository] mirrors the durable SQLite repository from the real
// package but keeps envelopes in memory. It records every backend operation
// so tests can assert on exactly what crossed the repository boundary,
// which is how the crypto middleware is checked never to leak plaintext.
//
// # Usage
//
//	config := &interfaces.RepositoryConfig{
//	    Backend:    interfaces.BackendMemory,
//	    Collection: "bookmarks",
//	}
//	repo := testing.NewSimulatedRepository(config)
//	defer repo.Close()
//
//	session, _ := repo.CreateSession(ctx)
//	session.Begin(ctx)
//	session.SetStoreSink(interfaces.NewChannelSink(16))
//	session.Store(ctx, env)
//
//	for _, op := range repo.GetOperationLog() {
//	    fmt.Println(op.Op, op.GUIDs)
//	}
//
// Envelopes keep their first insertion position; storing an existing guid
// replaces it in place. Set AsyncDispatch in the config to resolve futures on
// a worker goroutine, as a networked repository would.
//
// # Fault Injection
//
// [SimulatedRepository.InjectStoreFailure] makes the next store of a guid
// fail, for exercising per-record error reporting.
//
// # Thread Safety
//
// All methods on SimulatedRepository are safe for concurrent use. Internal
// synchronization uses sync.RWMutex.
package testing
