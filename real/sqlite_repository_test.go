package real

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ interfaces.Repository      = (*SQLiteRepository)(nil)
	_ interfaces.EnvelopeBackend = (*SQLiteRepository)(nil)
)

func testConfig(t *testing.T, collection string) *interfaces.RepositoryConfig {
	return &interfaces.RepositoryConfig{
		Backend:      interfaces.BackendSQLite,
		DatabasePath: filepath.Join(t.TempDir(), "sync.db"),
		Collection:   collection,
	}
}

func openRepo(t *testing.T, config *interfaces.RepositoryConfig) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLiteRepository(config)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func await[T any](t *testing.T, f *interfaces.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	return v
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

// storeAll stores envs in one active session and waits for every outcome.
func storeAll(t *testing.T, repo *SQLiteRepository, envs ...*record.Envelope) {
	t.Helper()
	ctx := context.Background()
	session, err := repo.CreateSession(ctx)
	require.NoError(t, err)
	await(t, session.Begin(ctx))

	sink := interfaces.NewChannelSink(len(envs))
	session.SetStoreSink(sink)
	for _, e := range envs {
		require.NoError(t, session.Store(ctx, e))
	}
	assert.Equal(t, int64(len(envs)), await(t, session.StoreDone(ctx)))
	for range envs {
		out := <-sink.C
		require.NoError(t, out.Err)
	}
	await(t, session.Finish(ctx))
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	for _, async := range []bool{false, true} {
		t.Run(fmt.Sprintf("async=%v", async), func(t *testing.T) {
			ctx := context.Background()
			config := testConfig(t, "bookmarks")
			config.AsyncDispatch = async
			repo := openRepo(t, config)

			tomb := env("gone", 4000)
			tomb.Payload = `{"deleted":true}`
			tomb.Deleted = true
			tomb.SortIndex = 7
			storeAll(t, repo, env("c", 1000), env("a", 2000), env("b", 3000), tomb)

			session, err := repo.CreateSession(ctx)
			require.NoError(t, err)
			await(t, session.Begin(ctx))

			all := await(t, session.FetchAll(ctx))
			assert.Equal(t, []string{"c", "a", "b", "gone"}, guidsOf(all))
			assert.Equal(t, `{"v":"a"}`, all[1].Payload)
			assert.Equal(t, int64(2000), all[1].ModifiedMillis())
			assert.Equal(t, "bookmarks", all[1].Collection)
			assert.True(t, all[3].Deleted)
			assert.Equal(t, 7, all[3].SortIndex)

			fetched := await(t, session.Fetch(ctx, []string{"b", "nope", "c", "a"}))
			assert.Equal(t, []string{"b", "c", "a"}, guidsOf(fetched))

			assert.Equal(t, []string{"b", "gone"}, guidsOf(await(t, session.FetchSince(ctx, 3000))))
			assert.Equal(t, []string{"a", "b", "gone"}, await(t, session.GUIDsSince(ctx, 2000)))

			await(t, session.Finish(ctx))
		})
	}
}

func TestSQLiteRepositoryUpsertKeepsOrder(t *testing.T) {
	repo := openRepo(t, testConfig(t, "bookmarks"))

	storeAll(t, repo, env("a", 1000), env("b", 1000))
	updated := env("a", 9000)
	updated.Payload = `{"v":"updated"}`
	storeAll(t, repo, updated)

	ctx := context.Background()
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := repo.AllEnvelopes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, guidsOf(all))
	assert.Equal(t, `{"v":"updated"}`, all[0].Payload)
	assert.Equal(t, int64(9000), all[0].ModifiedMillis())
}

func TestSQLiteRepositoryPersistsAcrossReopen(t *testing.T) {
	config := testConfig(t, "bookmarks")
	repo, err := OpenSQLiteRepository(config)
	require.NoError(t, err)
	storeAll(t, repo, env("x", 1000))
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	reopened := openRepo(t, config)
	all, err := reopened.AllEnvelopes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, guidsOf(all))
}

func TestSQLiteRepositoryCollectionsAreIsolated(t *testing.T) {
	bookmarksConfig := testConfig(t, "bookmarks")
	historyConfig := *bookmarksConfig
	historyConfig.Collection = "history"

	bookmarks := openRepo(t, bookmarksConfig)
	storeAll(t, bookmarks, env("b1", 1))
	require.NoError(t, bookmarks.Close())

	history := openRepo(t, &historyConfig)
	storeAll(t, history, env("h1", 1))

	ctx := context.Background()
	session, err := history.CreateSession(ctx)
	require.NoError(t, err)
	await(t, session.Begin(ctx))
	await(t, session.Wipe(ctx))
	assert.Empty(t, await(t, session.FetchAll(ctx)))

	bookmarks = openRepo(t, bookmarksConfig)
	n, err := bookmarks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteRepositoryLargeFetch(t *testing.T) {
	repo := openRepo(t, testConfig(t, "bookmarks"))

	envs := make([]*record.Envelope, 0, 1200)
	guids := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		guid := fmt.Sprintf("guid%08d", i)
		envs = append(envs, env(guid, int64(i)))
		guids = append(guids, guid)
	}
	storeAll(t, repo, envs...)

	// Reverse order to check results follow the request.
	for i, j := 0, len(guids)-1; i < j; i, j = i+1, j-1 {
		guids[i], guids[j] = guids[j], guids[i]
	}
	got, err := repo.GetEnvelopes(context.Background(), guids)
	require.NoError(t, err)
	assert.Equal(t, guids, guidsOf(got))
}

func TestSQLiteRepositorySchemaVersion(t *testing.T) {
	config := testConfig(t, "bookmarks")
	openRepo(t, config).Close()

	db, err := sql.Open("sqlite", config.DatabasePath)
	require.NoError(t, err)
	defer db.Close()

	version, err := schemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	_, err = db.Exec(`UPDATE schema_version SET version = 99`)
	require.NoError(t, err)
	db.Close()

	_, err = OpenSQLiteRepository(config)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestSQLiteRepositoryStampsModified(t *testing.T) {
	repo := openRepo(t, testConfig(t, "bookmarks"))
	repo.SetTimeProvider(interfaces.FixedTimeProvider{T: time.UnixMilli(1600000000500)})

	storeAll(t, repo, &record.Envelope{ID: "a", Payload: "{}"})
	all, err := repo.AllEnvelopes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1600000000500), all[0].ModifiedMillis())
}

func TestSQLiteRepositoryErrors(t *testing.T) {
	_, err := OpenSQLiteRepository(&interfaces.RepositoryConfig{Backend: interfaces.BackendSQLite, Collection: "x"})
	assert.ErrorIs(t, err, interfaces.ErrMissingDatabasePath)

	repo := openRepo(t, testConfig(t, "bookmarks"))
	require.NoError(t, repo.Close())
	_, err = repo.CreateSession(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrRepositoryClosed)
}
