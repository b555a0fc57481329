package interfaces

// StoreSink receives the outcome of each Store call. Implementations must be
// safe to call from the repository's worker goroutine.
type StoreSink interface {
	RecordStored(guid string)
	RecordStoreFailed(guid string, err error)
}

// StoreSinkFunc adapts a function to StoreSink; err is nil on success.
type StoreSinkFunc func(guid string, err error)

func (f StoreSinkFunc) RecordStored(guid string) { f(guid, nil) }

func (f StoreSinkFunc) RecordStoreFailed(guid string, err error) { f(guid, err) }

// StoreOutcome is one store result delivered through a ChannelSink.
type StoreOutcome struct {
	GUID string
	Err  error
}

// ChannelSink delivers store outcomes as messages. Sends block when the
// buffer is full, so the receiver must drain C while storing.
type ChannelSink struct {
	C chan StoreOutcome
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan StoreOutcome, buffer)}
}

func (s *ChannelSink) RecordStored(guid string) {
	s.C <- StoreOutcome{GUID: guid}
}

func (s *ChannelSink) RecordStoreFailed(guid string, err error) {
	s.C <- StoreOutcome{GUID: guid, Err: err}
}
