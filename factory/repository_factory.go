package factory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/real"
	"github.com/opd-ai/cryptosync/testing"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultCollection is the collection served when none is configured.
	DefaultCollection = "bookmarks"
	// DefaultDatabasePath is used when the sqlite backend is selected
	// without a path.
	DefaultDatabasePath = "cryptosync.db"
)

// RepositoryFactory creates repositories based on configuration.
// It is safe for concurrent use.
type RepositoryFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.RepositoryConfig
}

// ConfigOption is a functional option for customizing a configuration.
type ConfigOption func(*interfaces.RepositoryConfig)

// NewRepositoryFactory creates a factory from defaults, environment
// overrides and then opts.
func NewRepositoryFactory(opts ...ConfigOption) *RepositoryFactory {
	config := createDefaultConfig()
	applyEnvironmentOverrides(config)
	for _, opt := range opts {
		opt(config)
	}
	logConfigurationInfo("NewRepositoryFactory", config)

	return &RepositoryFactory{defaultConfig: config}
}

// NewRepositoryFactoryFromFile creates a factory from defaults, the YAML file
// at path and then environment overrides.
func NewRepositoryFactoryFromFile(path string) (*RepositoryFactory, error) {
	config, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvironmentOverrides(config)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after environment overrides: %w", err)
	}
	logConfigurationInfo("NewRepositoryFactoryFromFile", config)

	return &RepositoryFactory{defaultConfig: config}, nil
}

// createDefaultConfig initializes the default repository configuration.
//
// Default Value Rationale:
//   - Backend: memory - nothing touches disk unless a path is chosen
//   - Collection: bookmarks - the collection the validator understands
//   - AsyncDispatch: false - results resolve on the caller's goroutine
func createDefaultConfig() *interfaces.RepositoryConfig {
	return &interfaces.RepositoryConfig{
		Backend:    interfaces.BackendMemory,
		Collection: DefaultCollection,
	}
}

// LoadConfigFile reads a YAML configuration. Keys missing from the file keep
// their defaults; unknown keys are an error.
func LoadConfigFile(path string) (*interfaces.RepositoryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := createDefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	applySQLiteDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "LoadConfigFile",
		"path":     path,
		"backend":  config.Backend,
	}).Debug("Loaded repository configuration file")
	return config, nil
}

// applySQLiteDefaults fills in the database path for the sqlite backend.
func applySQLiteDefaults(config *interfaces.RepositoryConfig) {
	if config.Backend == interfaces.BackendSQLite && config.DatabasePath == "" {
		config.DatabasePath = DefaultDatabasePath
	}
}

// applyEnvironmentOverrides updates configuration from SYNC_* variables.
func applyEnvironmentOverrides(config *interfaces.RepositoryConfig) {
	parseBackendSetting(config)
	parseDatabasePathSetting(config)
	parseCollectionSetting(config)
	parseAsyncDispatchSetting(config)
	applySQLiteDefaults(config)
}

// parseBackendSetting updates Backend from SYNC_BACKEND, ignoring unknown names.
func parseBackendSetting(config *interfaces.RepositoryConfig) {
	value := os.Getenv("SYNC_BACKEND")
	if value == "" {
		return
	}
	backend := interfaces.Backend(value)
	if backend != interfaces.BackendMemory && backend != interfaces.BackendSQLite {
		logrus.WithFields(logrus.Fields{
			"function":    "parseBackendSetting",
			"env_var":     "SYNC_BACKEND",
			"value":       value,
			"using_value": config.Backend,
		}).Warn("Unknown SYNC_BACKEND value, using default")
		return
	}
	config.Backend = backend
}

// parseDatabasePathSetting updates DatabasePath from SYNC_DB_PATH.
func parseDatabasePathSetting(config *interfaces.RepositoryConfig) {
	if path := os.Getenv("SYNC_DB_PATH"); path != "" {
		config.DatabasePath = path
	}
}

// parseCollectionSetting updates Collection from SYNC_COLLECTION, ignoring
// names Validate would reject.
func parseCollectionSetting(config *interfaces.RepositoryConfig) {
	value := os.Getenv("SYNC_COLLECTION")
	if value == "" {
		return
	}
	probe := interfaces.RepositoryConfig{Backend: interfaces.BackendMemory, Collection: value}
	if err := probe.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseCollectionSetting",
			"env_var":     "SYNC_COLLECTION",
			"value":       value,
			"error":       err.Error(),
			"using_value": config.Collection,
		}).Warn("Invalid SYNC_COLLECTION value, using default")
		return
	}
	config.Collection = value
}

// parseAsyncDispatchSetting updates AsyncDispatch from SYNC_ASYNC_DISPATCH.
func parseAsyncDispatchSetting(config *interfaces.RepositoryConfig) {
	value := os.Getenv("SYNC_ASYNC_DISPATCH")
	if value == "" {
		return
	}
	async, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseAsyncDispatchSetting",
			"env_var":     "SYNC_ASYNC_DISPATCH",
			"value":       value,
			"error":       err.Error(),
			"using_value": config.AsyncDispatch,
		}).Warn("Failed to parse SYNC_ASYNC_DISPATCH environment variable, using default")
		return
	}
	config.AsyncDispatch = async
}

func logConfigurationInfo(function string, config *interfaces.RepositoryConfig) {
	logrus.WithFields(logrus.Fields{
		"function":       function,
		"backend":        config.Backend,
		"database_path":  config.DatabasePath,
		"collection":     config.Collection,
		"async_dispatch": config.AsyncDispatch,
	}).Info("Created repository factory with configuration")
}

// CreateRepository creates a repository from the factory's configuration.
func (f *RepositoryFactory) CreateRepository() (interfaces.Repository, error) {
	return f.CreateRepositoryWithConfig(nil)
}

// CreateRepositoryWithConfig creates a repository from config, or from the
// factory's configuration when config is nil.
func (f *RepositoryFactory) CreateRepositoryWithConfig(config *interfaces.RepositoryConfig) (interfaces.Repository, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid repository configuration: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "CreateRepositoryWithConfig",
		"backend":    config.Backend,
		"collection": config.Collection,
	}).Info("Creating repository implementation")

	switch config.Backend {
	case interfaces.BackendSQLite:
		return real.OpenSQLiteRepository(config)
	default:
		return testing.NewSimulatedRepository(config), nil
	}
}

// WithCollection sets the collection name.
func WithCollection(collection string) ConfigOption {
	return func(c *interfaces.RepositoryConfig) {
		c.Collection = collection
	}
}

// WithAsyncDispatch enables or disables worker-goroutine dispatch.
func WithAsyncDispatch(enabled bool) ConfigOption {
	return func(c *interfaces.RepositoryConfig) {
		c.AsyncDispatch = enabled
	}
}

// WithSQLite selects the sqlite backend at path.
func WithSQLite(path string) ConfigOption {
	return func(c *interfaces.RepositoryConfig) {
		c.Backend = interfaces.BackendSQLite
		c.DatabasePath = path
	}
}

// CreateMemoryForTesting creates an in-memory repository for tests. Default
// test configuration: collection "bookmarks", inline dispatch.
func (f *RepositoryFactory) CreateMemoryForTesting(opts ...ConfigOption) *testing.SimulatedRepository {
	testConfig := &interfaces.RepositoryConfig{
		Backend:    interfaces.BackendMemory,
		Collection: DefaultCollection,
	}
	for _, opt := range opts {
		opt(testConfig)
	}
	testConfig.Backend = interfaces.BackendMemory

	logrus.WithFields(logrus.Fields{
		"function":       "CreateMemoryForTesting",
		"collection":     testConfig.Collection,
		"async_dispatch": testConfig.AsyncDispatch,
	}).Info("Creating in-memory repository for testing")

	return testing.NewSimulatedRepository(testConfig)
}

// SwitchToMemory switches the configuration to the in-memory backend.
func (f *RepositoryFactory) SwitchToMemory() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToMemory",
		"previous": f.defaultConfig.Backend,
	}).Info("Switching factory to memory backend")
	f.defaultConfig.Backend = interfaces.BackendMemory
}

// SwitchToSQLite switches the configuration to the sqlite backend at path.
func (f *RepositoryFactory) SwitchToSQLite(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSQLite",
		"previous": f.defaultConfig.Backend,
		"path":     path,
	}).Info("Switching factory to sqlite backend")
	f.defaultConfig.Backend = interfaces.BackendSQLite
	f.defaultConfig.DatabasePath = path
	applySQLiteDefaults(f.defaultConfig)
}

// GetCurrentConfig returns a copy of the current default configuration.
func (f *RepositoryFactory) GetCurrentConfig() *interfaces.RepositoryConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	config := *f.defaultConfig
	return &config
}

// UpdateConfig replaces the factory's default configuration with a copy of
// config.
func (f *RepositoryFactory) UpdateConfig(config *interfaces.RepositoryConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "UpdateConfig",
		"old_backend": f.defaultConfig.Backend,
		"new_backend": config.Backend,
	}).Info("Updating factory configuration")

	updated := *config
	f.defaultConfig = &updated
	return nil
}
