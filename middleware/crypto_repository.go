package middleware

import (
	"context"
	"errors"

	"github.com/opd-ai/cryptosync/crypto"
	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNilRepository is returned when no repository is given to wrap.
	ErrNilRepository = errors.New("middleware: nil repository")
	// ErrNilKeyBundle is returned when no key bundle is given.
	ErrNilKeyBundle = errors.New("middleware: nil key bundle")
)

// CryptoRepository encrypts every record stored in the repository it wraps.
type CryptoRepository struct {
	inner    interfaces.Repository
	bundle   *crypto.KeyBundle
	registry *record.Registry
}

// Option customizes a CryptoRepository.
type Option func(*CryptoRepository)

// WithRegistry sets the codec registry used to serialize payloads.
func WithRegistry(reg *record.Registry) Option {
	return func(r *CryptoRepository) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// NewCryptoRepository wraps inner. The bundle is borrowed; the caller keeps
// ownership and must not wipe it while sessions are in use.
func NewCryptoRepository(inner interfaces.Repository, bundle *crypto.KeyBundle, opts ...Option) (*CryptoRepository, error) {
	if inner == nil {
		return nil, ErrNilRepository
	}
	if bundle == nil {
		return nil, ErrNilKeyBundle
	}
	r := &CryptoRepository{
		inner:    inner,
		bundle:   bundle,
		registry: record.Default,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Collection returns the wrapped repository's collection.
func (r *CryptoRepository) Collection() string {
	return r.inner.Collection()
}

// Inner returns the wrapped repository.
func (r *CryptoRepository) Inner() interfaces.Repository {
	return r.inner
}

// CreateSession creates a session on the wrapped repository and wraps it.
func (r *CryptoRepository) CreateSession(ctx context.Context) (*CryptoSession, error) {
	inner, err := r.inner.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	return NewCryptoSession(inner, r.bundle, r.registry), nil
}

// Close closes the wrapped repository.
func (r *CryptoRepository) Close() error {
	return r.inner.Close()
}

// RecordResult is the outcome of decrypting one fetched envelope. Exactly
// one of Record and Err is set.
type RecordResult struct {
	GUID   string
	Record record.Record
	Err    error
}

// SplitResults separates decrypted records from failures, keeping order.
func SplitResults(results []RecordResult) ([]record.Record, []RecordResult) {
	records := make([]record.Record, 0, len(results))
	var failures []RecordResult
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, res)
			continue
		}
		records = append(records, res.Record)
	}
	return records, failures
}

// CryptoSession encrypts on store and decrypts on fetch around a wrapped
// interfaces.RepositorySession.
type CryptoSession struct {
	inner    interfaces.RepositorySession
	bundle   *crypto.KeyBundle
	registry *record.Registry
}

// NewCryptoSession wraps inner. A nil registry uses record.Default.
func NewCryptoSession(inner interfaces.RepositorySession, bundle *crypto.KeyBundle, registry *record.Registry) *CryptoSession {
	if registry == nil {
		registry = record.Default
	}
	return &CryptoSession{inner: inner, bundle: bundle, registry: registry}
}

// ID returns the wrapped session identifier.
func (s *CryptoSession) ID() string { return s.inner.ID() }

// Collection returns the collection the session operates on.
func (s *CryptoSession) Collection() string { return s.inner.Collection() }

// Status reports the wrapped session state.
func (s *CryptoSession) Status() interfaces.SessionStatus { return s.inner.Status() }

// Begin starts the wrapped session.
func (s *CryptoSession) Begin(ctx context.Context) *interfaces.Future[struct{}] {
	return s.inner.Begin(ctx)
}

// Finish ends the wrapped session.
func (s *CryptoSession) Finish(ctx context.Context) *interfaces.Future[struct{}] {
	return s.inner.Finish(ctx)
}

// SetStoreSink registers the receiver of store outcomes. Outcomes are keyed
// by guid, which encryption leaves unchanged.
func (s *CryptoSession) SetStoreSink(sink interfaces.StoreSink) {
	s.inner.SetStoreSink(sink)
}

// Store encrypts rec and forwards the envelope. Session state is checked
// before any encryption work.
func (s *CryptoSession) Store(ctx context.Context, rec record.Record) error {
	if status := s.inner.Status(); status != interfaces.StatusActive {
		return interfaces.NewSessionError(interfaces.KindInactiveSession, "store", status)
	}

	cr, err := crypto.EncryptRecordWith(s.registry, rec, s.bundle)
	if err != nil {
		return err
	}
	env, err := cr.ToEnvelope()
	if err != nil {
		return err
	}
	if env.Collection == "" {
		env.Collection = s.inner.Collection()
	}
	return s.inner.Store(ctx, env)
}

// StoreDone is forwarded unchanged.
func (s *CryptoSession) StoreDone(ctx context.Context) *interfaces.Future[int64] {
	return s.inner.StoreDone(ctx)
}

// Fetch decrypts the envelopes for guids, in the order the wrapped session
// returns them.
func (s *CryptoSession) Fetch(ctx context.Context, guids []string) *interfaces.Future[[]RecordResult] {
	return interfaces.Then(s.inner.Fetch(ctx, guids), s.decryptAll)
}

// FetchAll decrypts every envelope.
func (s *CryptoSession) FetchAll(ctx context.Context) *interfaces.Future[[]RecordResult] {
	return interfaces.Then(s.inner.FetchAll(ctx), s.decryptAll)
}

// FetchSince decrypts envelopes modified at or after sinceMillis.
func (s *CryptoSession) FetchSince(ctx context.Context, sinceMillis int64) *interfaces.Future[[]RecordResult] {
	return interfaces.Then(s.inner.FetchSince(ctx, sinceMillis), s.decryptAll)
}

// GUIDsSince is forwarded unchanged.
func (s *CryptoSession) GUIDsSince(ctx context.Context, sinceMillis int64) *interfaces.Future[[]string] {
	return s.inner.GUIDsSince(ctx, sinceMillis)
}

// Wipe is forwarded unchanged; it operates on envelopes only.
func (s *CryptoSession) Wipe(ctx context.Context) *interfaces.Future[struct{}] {
	return s.inner.Wipe(ctx)
}

func (s *CryptoSession) decryptAll(envs []*record.Envelope) ([]RecordResult, error) {
	results := make([]RecordResult, 0, len(envs))
	failed := 0
	for _, env := range envs {
		res := s.decryptOne(env)
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}

	if failed > 0 {
		logrus.WithFields(logrus.Fields{
			"function":   "CryptoSession.decryptAll",
			"session_id": s.inner.ID(),
			"collection": s.inner.Collection(),
			"total":      len(envs),
			"failed":     failed,
		}).Warn("Some fetched records could not be decrypted")
	}
	return results, nil
}

func (s *CryptoSession) decryptOne(env *record.Envelope) RecordResult {
	res := RecordResult{GUID: env.ID}
	cr, err := crypto.FromEnvelope(env)
	if err != nil {
		res.Err = err
		return res
	}
	rec, err := cr.DecryptRecordWith(s.registry, s.bundle)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "CryptoSession.decryptOne",
			"guid":     env.ID,
			"kind":     crypto.KindOf(err).String(),
		}).Debug("Record decryption failed")
		res.Err = err
		return res
	}
	res.Record = rec
	return res
}
