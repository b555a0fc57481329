package interfaces

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/cryptosync/limits"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
)

// EnvelopeBackend is the storage a BackendSession drives. A repository's
// dispatcher calls these methods one at a time.
type EnvelopeBackend interface {
	PutEnvelope(ctx context.Context, env *record.Envelope) error
	GetEnvelopes(ctx context.Context, guids []string) ([]*record.Envelope, error)
	AllEnvelopes(ctx context.Context) ([]*record.Envelope, error)
	EnvelopesSince(ctx context.Context, sinceMillis int64) ([]*record.Envelope, error)
	GUIDsSince(ctx context.Context, sinceMillis int64) ([]string, error)
	WipeEnvelopes(ctx context.Context) error
}

// BackendSession implements RepositorySession over an EnvelopeBackend. State
// checks happen on the caller's goroutine; backend work goes through the
// dispatcher.
type BackendSession struct {
	state      SessionState
	id         string
	collection string
	backend    EnvelopeBackend
	dispatcher *Dispatcher
	clock      TimeProvider

	sinkMu sync.Mutex
	sink   StoreSink
	stored atomic.Int64
}

// NewBackendSession creates an Unstarted session. A nil clock uses the
// system clock.
func NewBackendSession(id, collection string, backend EnvelopeBackend, dispatcher *Dispatcher, clock TimeProvider) *BackendSession {
	if clock == nil {
		clock = DefaultTimeProvider{}
	}
	return &BackendSession{
		id:         id,
		collection: collection,
		backend:    backend,
		dispatcher: dispatcher,
		clock:      clock,
	}
}

func (s *BackendSession) ID() string { return s.id }

func (s *BackendSession) Collection() string { return s.collection }

func (s *BackendSession) Status() SessionStatus { return s.state.Status() }

func (s *BackendSession) log(op string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function":   "BackendSession." + op,
		"session_id": s.id,
		"collection": s.collection,
	})
}

// Begin moves the session to Active.
func (s *BackendSession) Begin(ctx context.Context) *Future[struct{}] {
	if err := s.state.Transition("begin", StatusUnstarted, StatusActive); err != nil {
		s.log("Begin").WithError(err).Warn("Invalid session transition")
		return Failed[struct{}](err)
	}
	s.log("Begin").Debug("Session active")
	return s.submitVoid(ctx, func(context.Context) error { return nil })
}

// Finish moves the session to Done once earlier work has drained.
func (s *BackendSession) Finish(ctx context.Context) *Future[struct{}] {
	if err := s.state.Transition("finish", StatusActive, StatusDone); err != nil {
		s.log("Finish").WithError(err).Warn("Invalid session transition")
		return Failed[struct{}](err)
	}
	s.log("Finish").WithField("stored", s.stored.Load()).Debug("Session done")
	return Submit(s.dispatcher, func() (struct{}, error) { return struct{}{}, nil })
}

// SetStoreSink registers the receiver of store outcomes.
func (s *BackendSession) SetStoreSink(sink StoreSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sink = sink
}

func (s *BackendSession) storeSink() StoreSink {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	return s.sink
}

// Store queues env and reports the outcome to the store sink. The envelope is
// copied; a zero modified time is stamped from the session clock.
func (s *BackendSession) Store(ctx context.Context, env *record.Envelope) error {
	if err := s.state.RequireActive("store"); err != nil {
		return err
	}
	sink := s.storeSink()
	if sink == nil {
		return NewSessionError(KindNoDelegateConfigured, "store", StatusActive)
	}
	if env == nil {
		return fmt.Errorf("store: nil envelope")
	}

	stored := *env
	if stored.Collection == "" {
		stored.Collection = s.collection
	}
	if stored.Modified == 0 {
		stored.SetModifiedMillis(s.clock.Now().UnixMilli())
	}

	s.dispatcher.Dispatch(func() {
		err := s.putEnvelope(ctx, &stored)
		if err != nil {
			s.log("Store").WithFields(logrus.Fields{
				"guid":  stored.ID,
				"error": err.Error(),
			}).Warn("Store failed")
			sink.RecordStoreFailed(stored.ID, err)
			return
		}
		s.stored.Add(1)
		sink.RecordStored(stored.ID)
	})
	return nil
}

func (s *BackendSession) putEnvelope(ctx context.Context, env *record.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := env.Validate(); err != nil {
		return err
	}
	if err := limits.ValidateEnvelopePayload(env.Payload); err != nil {
		return fmt.Errorf("envelope %s: %w", env.ID, err)
	}
	if env.Collection != s.collection {
		return fmt.Errorf("%w: %q into %q", ErrCollectionMismatch, env.Collection, s.collection)
	}
	return s.backend.PutEnvelope(ctx, env)
}

// StoreDone resolves after every earlier Store has been reported.
func (s *BackendSession) StoreDone(ctx context.Context) *Future[int64] {
	if err := s.state.RequireActive("storeDone"); err != nil {
		return Failed[int64](err)
	}
	return Submit(s.dispatcher, func() (int64, error) {
		return s.stored.Load(), nil
	})
}

// Fetch returns envelopes for guids in request order.
func (s *BackendSession) Fetch(ctx context.Context, guids []string) *Future[[]*record.Envelope] {
	return submitActive(s, ctx, "fetch", func(ctx context.Context) ([]*record.Envelope, error) {
		return s.backend.GetEnvelopes(ctx, guids)
	})
}

// FetchAll returns every envelope.
func (s *BackendSession) FetchAll(ctx context.Context) *Future[[]*record.Envelope] {
	return submitActive(s, ctx, "fetchAll", s.backend.AllEnvelopes)
}

// FetchSince returns envelopes modified at or after sinceMillis.
func (s *BackendSession) FetchSince(ctx context.Context, sinceMillis int64) *Future[[]*record.Envelope] {
	return submitActive(s, ctx, "fetchSince", func(ctx context.Context) ([]*record.Envelope, error) {
		return s.backend.EnvelopesSince(ctx, sinceMillis)
	})
}

// GUIDsSince returns guids modified at or after sinceMillis.
func (s *BackendSession) GUIDsSince(ctx context.Context, sinceMillis int64) *Future[[]string] {
	return submitActive(s, ctx, "guidsSince", func(ctx context.Context) ([]string, error) {
		return s.backend.GUIDsSince(ctx, sinceMillis)
	})
}

// Wipe removes every envelope in the collection.
func (s *BackendSession) Wipe(ctx context.Context) *Future[struct{}] {
	if err := s.state.RequireActive("wipe"); err != nil {
		return Failed[struct{}](err)
	}
	s.log("Wipe").Info("Wiping collection")
	return s.submitVoid(ctx, s.backend.WipeEnvelopes)
}

func (s *BackendSession) submitVoid(ctx context.Context, fn func(context.Context) error) *Future[struct{}] {
	return Submit(s.dispatcher, func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(ctx)
	})
}

func submitActive[T any](s *BackendSession, ctx context.Context, op string, fn func(context.Context) (T, error)) *Future[T] {
	if err := s.state.RequireActive(op); err != nil {
		return Failed[T](err)
	}
	return Submit(s.dispatcher, func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	})
}
