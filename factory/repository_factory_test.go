package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/real"
	simulated "github.com/opd-ai/cryptosync/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearSyncEnv isolates a test from SYNC_* variables in the environment.
func clearSyncEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SYNC_BACKEND", "SYNC_DB_PATH", "SYNC_COLLECTION", "SYNC_ASYNC_DISPATCH"} {
		t.Setenv(key, "")
	}
}

func TestNewRepositoryFactoryDefaults(t *testing.T) {
	clearSyncEnv(t)
	f := NewRepositoryFactory()

	config := f.GetCurrentConfig()
	assert.Equal(t, interfaces.BackendMemory, config.Backend)
	assert.Equal(t, DefaultCollection, config.Collection)
	assert.False(t, config.AsyncDispatch)
	assert.Empty(t, config.DatabasePath)
}

func TestEnvironmentVariableParsing(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		checkFunc func(*interfaces.RepositoryConfig) bool
	}{
		{
			name:      "sqlite backend gets default path",
			env:       map[string]string{"SYNC_BACKEND": "sqlite"},
			checkFunc: func(c *interfaces.RepositoryConfig) bool { return c.Backend == interfaces.BackendSQLite && c.DatabasePath == DefaultDatabasePath },
		},
		{
			name:      "sqlite with path",
			env:       map[string]string{"SYNC_BACKEND": "sqlite", "SYNC_DB_PATH": "/tmp/x.db"},
			checkFunc: func(c *interfaces.RepositoryConfig) bool { return c.DatabasePath == "/tmp/x.db" },
		},
		{
			name:      "unknown backend ignored",
			env:       map[string]string{"SYNC_BACKEND": "redis"},
			checkFunc: func(c *interfaces.RepositoryConfig) bool { return c.Backend == interfaces.BackendMemory },
		},
		{
			name:      "collection",
			env:       map[string]string{"SYNC_COLLECTION": "history"},
			checkFunc: func(c *interfaces.RepositoryConfig) bool { return c.Collection == "history" },
		},
		{
			name:      "invalid collection ignored",
			env:       map[string]string{"SYNC_COLLECTION": "a b"},
			checkFunc: func(c *interfaces.RepositoryConfig) bool { return c.Collection == DefaultCollection },
		},
		{
			name:      "async dispatch",
			env:       map[string]string{"SYNC_ASYNC_DISPATCH": "true"},
			checkFunc: func(c *interfaces.RepositoryConfig) bool { return c.AsyncDispatch },
		},
		{
			name:      "invalid async dispatch ignored",
			env:       map[string]string{"SYNC_ASYNC_DISPATCH": "maybe"},
			checkFunc: func(c *interfaces.RepositoryConfig) bool { return !c.AsyncDispatch },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSyncEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			config := NewRepositoryFactory().GetCurrentConfig()
			assert.True(t, tt.checkFunc(config), "unexpected config %+v", config)
		})
	}
}

func TestOptionsApplyAfterEnvironment(t *testing.T) {
	clearSyncEnv(t)
	t.Setenv("SYNC_COLLECTION", "history")

	config := NewRepositoryFactory(WithCollection("forms"), WithAsyncDispatch(true)).GetCurrentConfig()
	assert.Equal(t, "forms", config.Collection)
	assert.True(t, config.AsyncDispatch)
}

func TestCreateRepositoryMemory(t *testing.T) {
	clearSyncEnv(t)
	repo, err := NewRepositoryFactory().CreateRepository()
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.(*simulated.SimulatedRepository)
	assert.True(t, ok)
	assert.Equal(t, DefaultCollection, repo.Collection())
}

func TestCreateRepositorySQLite(t *testing.T) {
	clearSyncEnv(t)
	path := filepath.Join(t.TempDir(), "sync.db")
	f := NewRepositoryFactory(WithSQLite(path))

	repo, err := f.CreateRepository()
	require.NoError(t, err)
	defer repo.Close()

	_, ok := repo.(*real.SQLiteRepository)
	assert.True(t, ok)
	assert.FileExists(t, path)

	session, err := repo.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusUnstarted, session.Status())
}

func TestCreateRepositoryWithInvalidConfig(t *testing.T) {
	clearSyncEnv(t)
	_, err := NewRepositoryFactory().CreateRepositoryWithConfig(&interfaces.RepositoryConfig{Backend: interfaces.BackendSQLite, Collection: "x"})
	assert.ErrorIs(t, err, interfaces.ErrMissingDatabasePath)
}

func TestCreateMemoryForTesting(t *testing.T) {
	clearSyncEnv(t)
	t.Setenv("SYNC_BACKEND", "sqlite")
	f := NewRepositoryFactory()

	sim := f.CreateMemoryForTesting(WithCollection("history"), WithSQLite("ignored.db"))
	defer sim.Close()
	assert.Equal(t, "history", sim.Collection())
}

func TestSwitchBackends(t *testing.T) {
	clearSyncEnv(t)
	f := NewRepositoryFactory()

	f.SwitchToSQLite("")
	config := f.GetCurrentConfig()
	assert.Equal(t, interfaces.BackendSQLite, config.Backend)
	assert.Equal(t, DefaultDatabasePath, config.DatabasePath)

	f.SwitchToMemory()
	assert.Equal(t, interfaces.BackendMemory, f.GetCurrentConfig().Backend)
}

func TestGetCurrentConfigReturnsCopy(t *testing.T) {
	clearSyncEnv(t)
	f := NewRepositoryFactory()
	config := f.GetCurrentConfig()
	config.Collection = "mutated"
	assert.Equal(t, DefaultCollection, f.GetCurrentConfig().Collection)
}

func TestUpdateConfig(t *testing.T) {
	clearSyncEnv(t)
	f := NewRepositoryFactory()

	assert.Error(t, f.UpdateConfig(nil))
	assert.ErrorIs(t, f.UpdateConfig(&interfaces.RepositoryConfig{Backend: "x", Collection: "a"}), interfaces.ErrUnknownBackend)

	update := &interfaces.RepositoryConfig{Backend: interfaces.BackendMemory, Collection: "tabs"}
	require.NoError(t, f.UpdateConfig(update))
	update.Collection = "changed"
	assert.Equal(t, "tabs", f.GetCurrentConfig().Collection)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	t.Run("full", func(t *testing.T) {
		config, err := LoadConfigFile(write("full.yaml", "backend: sqlite\ndatabase_path: /data/b.db\ncollection: history\nasync_dispatch: true\n"))
		require.NoError(t, err)
		assert.Equal(t, &interfaces.RepositoryConfig{
			Backend:       interfaces.BackendSQLite,
			DatabasePath:  "/data/b.db",
			Collection:    "history",
			AsyncDispatch: true,
		}, config)
	})

	t.Run("partial keeps defaults", func(t *testing.T) {
		config, err := LoadConfigFile(write("partial.yaml", "backend: sqlite\n"))
		require.NoError(t, err)
		assert.Equal(t, DefaultCollection, config.Collection)
		assert.Equal(t, DefaultDatabasePath, config.DatabasePath)
	})

	t.Run("empty file", func(t *testing.T) {
		config, err := LoadConfigFile(write("empty.yaml", ""))
		require.NoError(t, err)
		assert.Equal(t, interfaces.BackendMemory, config.Backend)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := LoadConfigFile(write("unknown.yaml", "backend: memory\nretries: 3\n"))
		assert.Error(t, err)
	})

	t.Run("invalid backend", func(t *testing.T) {
		_, err := LoadConfigFile(write("bad.yaml", "backend: redis\n"))
		assert.ErrorIs(t, err, interfaces.ErrUnknownBackend)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestNewRepositoryFactoryFromFile(t *testing.T) {
	clearSyncEnv(t)
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection: history\n"), 0o600))
	t.Setenv("SYNC_ASYNC_DISPATCH", "1")

	f, err := NewRepositoryFactoryFromFile(path)
	require.NoError(t, err)
	config := f.GetCurrentConfig()
	assert.Equal(t, "history", config.Collection)
	assert.True(t, config.AsyncDispatch)
}
