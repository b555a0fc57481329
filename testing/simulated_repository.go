package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
)

// OperationRecord is one backend operation, kept for test verification.
type OperationRecord struct {
	Op        string
	GUIDs     []string
	Payloads  []string
	Timestamp int64
	Err       error
}

// SimulatedRepository is an in-memory interfaces.Repository.
type SimulatedRepository struct {
	mu           sync.RWMutex
	config       interfaces.RepositoryConfig
	order        []string
	envelopes    map[string]*record.Envelope
	operationLog []OperationRecord
	storeFaults  map[string]error
	clock        interfaces.TimeProvider
	dispatcher   *interfaces.Dispatcher
	sessions     int
	closed       bool
}

// NewSimulatedRepository creates an empty in-memory repository.
func NewSimulatedRepository(config *interfaces.RepositoryConfig) *SimulatedRepository {
	logrus.WithFields(logrus.Fields{
		"function":       "NewSimulatedRepository",
		"collection":     config.Collection,
		"async_dispatch": config.AsyncDispatch,
	}).Info("Creating simulated repository")

	return &SimulatedRepository{
		config:      *config,
		envelopes:   make(map[string]*record.Envelope),
		storeFaults: make(map[string]error),
		clock:       interfaces.DefaultTimeProvider{},
		dispatcher:  interfaces.NewDispatcher(config.AsyncDispatch),
	}
}

// SetTimeProvider replaces the clock used to stamp envelopes and log entries.
func (r *SimulatedRepository) SetTimeProvider(tp interfaces.TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tp == nil {
		tp = interfaces.DefaultTimeProvider{}
	}
	r.clock = tp
}

func (r *SimulatedRepository) timeProvider() interfaces.TimeProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clock
}

// Collection implements interfaces.Repository.
func (r *SimulatedRepository) Collection() string {
	return r.config.Collection
}

// CreateSession implements interfaces.Repository.
func (r *SimulatedRepository) CreateSession(ctx context.Context) (interfaces.RepositorySession, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, interfaces.ErrRepositoryClosed
	}
	r.sessions++
	clock := r.clock
	r.mu.Unlock()

	id := uuid.NewString()
	logrus.WithFields(logrus.Fields{
		"function":   "SimulatedRepository.CreateSession",
		"session_id": id,
		"collection": r.config.Collection,
	}).Debug("Created simulated session")

	return interfaces.NewBackendSession(id, r.config.Collection, r, r.dispatcher, clock), nil
}

// Close stops the dispatcher. Existing data stays readable via Snapshot.
func (r *SimulatedRepository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.dispatcher.Close()
	return nil
}

// Seed inserts envelopes directly, bypassing sessions and the operation log.
func (r *SimulatedRepository) Seed(envs ...*record.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, env := range envs {
		r.putLocked(env)
	}
}

func (r *SimulatedRepository) putLocked(env *record.Envelope) {
	stored := *env
	if stored.Collection == "" {
		stored.Collection = r.config.Collection
	}
	if _, exists := r.envelopes[stored.ID]; !exists {
		r.order = append(r.order, stored.ID)
	}
	r.envelopes[stored.ID] = &stored
}

// Snapshot returns copies of every envelope in insertion order.
func (r *SimulatedRepository) Snapshot() []*record.Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(func(*record.Envelope) bool { return true })
}

func (r *SimulatedRepository) collectLocked(keep func(*record.Envelope) bool) []*record.Envelope {
	out := make([]*record.Envelope, 0, len(r.order))
	for _, guid := range r.order {
		env := r.envelopes[guid]
		if keep(env) {
			c := *env
			out = append(out, &c)
		}
	}
	return out
}

// InjectStoreFailure makes the next store of guid fail with err.
func (r *SimulatedRepository) InjectStoreFailure(guid string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeFaults[guid] = err
}

// GetOperationLog returns a copy of the operation log.
func (r *SimulatedRepository) GetOperationLog() []OperationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := make([]OperationRecord, len(r.operationLog))
	copy(log, r.operationLog)
	return log
}

// ClearOperationLog resets the operation log between test cases.
func (r *SimulatedRepository) ClearOperationLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operationLog = nil
}

// Stats summarizes the repository for test verification.
type Stats struct {
	Envelopes  int
	Tombstones int
	Sessions   int
	Operations int
	Failures   int
}

// GetStats returns statistics about the repository.
func (r *SimulatedRepository) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Envelopes:  len(r.envelopes),
		Sessions:   r.sessions,
		Operations: len(r.operationLog),
	}
	for _, env := range r.envelopes {
		if env.Deleted {
			stats.Tombstones++
		}
	}
	for _, op := range r.operationLog {
		if op.Err != nil {
			stats.Failures++
		}
	}
	return stats
}

func (r *SimulatedRepository) logOperationLocked(op string, envs []*record.Envelope, guids []string, err error) {
	entry := OperationRecord{
		Op:        op,
		GUIDs:     guids,
		Timestamp: r.clock.Now().UnixMilli(),
		Err:       err,
	}
	for _, env := range envs {
		entry.Payloads = append(entry.Payloads, env.Payload)
		if guids == nil {
			entry.GUIDs = append(entry.GUIDs, env.ID)
		}
	}
	r.operationLog = append(r.operationLog, entry)
}

// PutEnvelope implements interfaces.EnvelopeBackend.
func (r *SimulatedRepository) PutEnvelope(_ context.Context, env *record.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.storeFaults[env.ID]; ok {
		delete(r.storeFaults, env.ID)
		err = fmt.Errorf("simulated store failure for %s: %w", env.ID, err)
		r.logOperationLocked("store", []*record.Envelope{env}, nil, err)
		return err
	}

	r.putLocked(env)
	r.logOperationLocked("store", []*record.Envelope{env}, nil, nil)
	return nil
}

// GetEnvelopes implements interfaces.EnvelopeBackend.
func (r *SimulatedRepository) GetEnvelopes(_ context.Context, guids []string) ([]*record.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*record.Envelope, 0, len(guids))
	for _, guid := range guids {
		if env, ok := r.envelopes[guid]; ok {
			c := *env
			out = append(out, &c)
		}
	}
	r.logOperationLocked("fetch", out, nil, nil)
	return out, nil
}

// AllEnvelopes implements interfaces.EnvelopeBackend.
func (r *SimulatedRepository) AllEnvelopes(_ context.Context) ([]*record.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.collectLocked(func(*record.Envelope) bool { return true })
	r.logOperationLocked("fetchAll", out, nil, nil)
	return out, nil
}

// EnvelopesSince implements interfaces.EnvelopeBackend.
func (r *SimulatedRepository) EnvelopesSince(_ context.Context, sinceMillis int64) ([]*record.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.collectLocked(func(env *record.Envelope) bool { return env.ModifiedMillis() >= sinceMillis })
	r.logOperationLocked("fetchSince", out, nil, nil)
	return out, nil
}

// GUIDsSince implements interfaces.EnvelopeBackend.
func (r *SimulatedRepository) GUIDsSince(_ context.Context, sinceMillis int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	guids := make([]string, 0)
	for _, guid := range r.order {
		if r.envelopes[guid].ModifiedMillis() >= sinceMillis {
			guids = append(guids, guid)
		}
	}
	r.logOperationLocked("guidsSince", nil, guids, nil)
	return guids, nil
}

// WipeEnvelopes implements interfaces.EnvelopeBackend.
func (r *SimulatedRepository) WipeEnvelopes(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := len(r.order)
	r.envelopes = make(map[string]*record.Envelope)
	r.order = nil
	r.logOperationLocked("wipe", nil, []string{}, nil)

	logrus.WithFields(logrus.Fields{
		"function":   "SimulatedRepository.WipeEnvelopes",
		"collection": r.config.Collection,
		"removed":    removed,
	}).Info("Simulated collection wiped")
	return nil
}
