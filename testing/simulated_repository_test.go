package testing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/limits"
	"github.com/opd-ai/cryptosync/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ interfaces.Repository      = (*SimulatedRepository)(nil)
	_ interfaces.EnvelopeBackend = (*SimulatedRepository)(nil)
)

func newTestRepo(t *testing.T, async bool) *SimulatedRepository {
	t.Helper()
	repo := NewSimulatedRepository(&interfaces.RepositoryConfig{
		Backend:       interfaces.BackendMemory,
		Collection:    "bookmarks",
		AsyncDispatch: async,
	})
	t.Cleanup(func() { repo.Close() })
	return repo
}

func env(guid string, modifiedMillis int64) *record.Envelope {
	e := &record.Envelope{ID: guid, Payload: `{"v":"` + guid + `"}`}
	e.SetModifiedMillis(modifiedMillis)
	return e
}

func guidsOf(envs []*record.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.ID)
	}
	return out
}

func await[T any](t *testing.T, f *interfaces.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	return v
}

func activeSession(t *testing.T, repo *SimulatedRepository) (interfaces.RepositorySession, *interfaces.ChannelSink) {
	t.Helper()
	session, err := repo.CreateSession(context.Background())
	require.NoError(t, err)
	await(t, session.Begin(context.Background()))
	sink := interfaces.NewChannelSink(64)
	session.SetStoreSink(sink)
	return session, sink
}

func TestSimulatedRepositoryStoreAndFetch(t *testing.T) {
	for _, async := range []bool{false, true} {
		t.Run(map[bool]string{false: "inline", true: "async"}[async], func(t *testing.T) {
			ctx := context.Background()
			repo := newTestRepo(t, async)
			session, sink := activeSession(t, repo)

			for i, guid := range []string{"c", "a", "b"} {
				require.NoError(t, session.Store(ctx, env(guid, int64(1000*(i+1)))))
			}
			assert.Equal(t, int64(3), await(t, session.StoreDone(ctx)))
			for i := 0; i < 3; i++ {
				out := <-sink.C
				assert.NoError(t, out.Err)
			}

			all := await(t, session.FetchAll(ctx))
			assert.Equal(t, []string{"c", "a", "b"}, guidsOf(all))
			assert.Equal(t, "bookmarks", all[0].Collection)

			fetched := await(t, session.Fetch(ctx, []string{"b", "missing", "c"}))
			assert.Equal(t, []string{"b", "c"}, guidsOf(fetched))

			since := await(t, session.FetchSince(ctx, 2000))
			assert.Equal(t, []string{"a", "b"}, guidsOf(since))
			assert.Equal(t, []string{"b"}, await(t, session.GUIDsSince(ctx, 3000)))

			await(t, session.Finish(ctx))
			assert.Equal(t, interfaces.StatusDone, session.Status())
		})
	}
}

func TestSimulatedRepositoryReplaceKeepsPosition(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, false)
	session, _ := activeSession(t, repo)

	require.NoError(t, session.Store(ctx, env("a", 1000)))
	require.NoError(t, session.Store(ctx, env("b", 1000)))
	replacement := env("a", 5000)
	replacement.Payload = `{"v":"new"}`
	require.NoError(t, session.Store(ctx, replacement))

	snap := repo.Snapshot()
	assert.Equal(t, []string{"a", "b"}, guidsOf(snap))
	assert.Equal(t, `{"v":"new"}`, snap[0].Payload)
	assert.Equal(t, int64(5000), snap[0].ModifiedMillis())
}

func TestSimulatedRepositoryStampsModified(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, false)
	repo.SetTimeProvider(interfaces.FixedTimeProvider{T: time.UnixMilli(1700000000123)})
	session, _ := activeSession(t, repo)

	require.NoError(t, session.Store(ctx, &record.Envelope{ID: "a", Payload: "{}"}))
	assert.Equal(t, int64(1700000000123), repo.Snapshot()[0].ModifiedMillis())
}

func TestSimulatedRepositoryStoreFailures(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, true)
	session, sink := activeSession(t, repo)

	boom := errors.New("disk full")
	repo.InjectStoreFailure("bad", boom)

	require.NoError(t, session.Store(ctx, env("good", 1000)))
	require.NoError(t, session.Store(ctx, env("bad", 1000)))
	require.NoError(t, session.Store(ctx, &record.Envelope{ID: "empty"}))
	require.NoError(t, session.Store(ctx, &record.Envelope{ID: "other", Collection: "history", Payload: "{}"}))
	require.NoError(t, session.Store(ctx, &record.Envelope{ID: "huge", Payload: strings.Repeat("a", limits.MaxRecordPayload+1)}))

	assert.Equal(t, int64(1), await(t, session.StoreDone(ctx)))

	outcomes := map[string]error{}
	for i := 0; i < 5; i++ {
		out := <-sink.C
		outcomes[out.GUID] = out.Err
	}
	assert.NoError(t, outcomes["good"])
	assert.ErrorIs(t, outcomes["bad"], boom)
	assert.Error(t, outcomes["empty"])
	assert.ErrorIs(t, outcomes["other"], interfaces.ErrCollectionMismatch)
	assert.ErrorIs(t, outcomes["huge"], limits.ErrPayloadTooLarge)

	assert.Equal(t, []string{"good"}, guidsOf(repo.Snapshot()))
	stats := repo.GetStats()
	assert.Equal(t, 1, stats.Envelopes)
	assert.Equal(t, 1, stats.Failures)
}

func TestSimulatedSessionStateMachine(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, false)
	session, err := repo.CreateSession(ctx)
	require.NoError(t, err)
	session.SetStoreSink(interfaces.NewChannelSink(8))

	checkInactive := func(t *testing.T) {
		assert.ErrorIs(t, session.Store(ctx, env("a", 1)), interfaces.ErrInactiveSession)
		_, err := session.Fetch(ctx, []string{"a"}).Await(ctx)
		assert.ErrorIs(t, err, interfaces.ErrInactiveSession)
		_, err = session.FetchAll(ctx).Await(ctx)
		assert.ErrorIs(t, err, interfaces.ErrInactiveSession)
		_, err = session.Wipe(ctx).Await(ctx)
		assert.ErrorIs(t, err, interfaces.ErrInactiveSession)
		_, err = session.StoreDone(ctx).Await(ctx)
		assert.ErrorIs(t, err, interfaces.ErrInactiveSession)
	}

	checkInactive(t)
	_, err = session.Finish(ctx).Await(ctx)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	await(t, session.Begin(ctx))
	_, err = session.Begin(ctx).Await(ctx)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	await(t, session.Finish(ctx))
	checkInactive(t)
	_, err = session.Begin(ctx).Await(ctx)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	assert.Empty(t, repo.GetOperationLog())
}

func TestStoreWithoutSink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, false)
	session, err := repo.CreateSession(ctx)
	require.NoError(t, err)
	await(t, session.Begin(ctx))

	assert.ErrorIs(t, session.Store(ctx, env("a", 1)), interfaces.ErrNoDelegateConfigured)
	assert.Empty(t, repo.Snapshot())
}

func TestSimulatedRepositoryWipeAndLog(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, false)
	repo.Seed(env("x", 1), env("y", 2))
	session, _ := activeSession(t, repo)

	assert.Len(t, await(t, session.FetchAll(ctx)), 2)
	await(t, session.Wipe(ctx))
	assert.Empty(t, await(t, session.FetchAll(ctx)))

	log := repo.GetOperationLog()
	require.Len(t, log, 3)
	assert.Equal(t, "fetchAll", log[0].Op)
	assert.Equal(t, []string{"x", "y"}, log[0].GUIDs)
	assert.Equal(t, "wipe", log[1].Op)

	repo.ClearOperationLog()
	assert.Empty(t, repo.GetOperationLog())
}

func TestSimulatedRepositoryCanceledContext(t *testing.T) {
	repo := newTestRepo(t, false)
	session, _ := activeSession(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.FetchAll(ctx).Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedRepositoryClosed(t *testing.T) {
	repo := newTestRepo(t, true)
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	_, err := repo.CreateSession(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrRepositoryClosed)
}
