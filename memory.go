package causelog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/causelog/internal/canonical"
)

// MemoryLogger records every write verbatim, for tests.
//
// Messages written with the traceback serializer are also tracked separately;
// tests are expected to claim them with FlushTracebacks.
//
// Thread-safety: safe for concurrent use.
type MemoryLogger struct {
	mu          sync.Mutex
	messages    []Fields
	serializers []*MessageSerializer
	tracebacks  []Fields
}

// NewMemoryLogger creates an empty MemoryLogger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Write records msg and serializer without copying or framing them.
func (m *MemoryLogger) Write(msg Fields, serializer *MessageSerializer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.serializers = append(m.serializers, serializer)
	if serializer != nil && serializer == TracebackSerializer() {
		m.tracebacks = append(m.tracebacks, msg)
	}
}

// Messages returns the recorded messages in write order.
func (m *MemoryLogger) Messages() []Fields {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Fields, len(m.messages))
	copy(out, m.messages)
	return out
}

// Serializers returns the serializer recorded with each message.
func (m *MemoryLogger) Serializers() []*MessageSerializer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MessageSerializer, len(m.serializers))
	copy(out, m.serializers)
	return out
}

// Tracebacks returns the traceback messages not yet flushed.
func (m *MemoryLogger) Tracebacks() []Fields {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Fields, len(m.tracebacks))
	copy(out, m.tracebacks)
	return out
}

// Validate checks every recorded message against its serializer: the
// message must validate, serialize, and encode as JSON afterwards. Recorded
// messages are not modified.
func (m *MemoryLogger) Validate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		serializer := m.serializers[i]
		out := msg.Copy()
		if serializer != nil {
			if err := serializer.Validate(msg); err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}
			if err := serializer.Serialize(out); err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}
		}
		if _, err := canonical.Marshal(map[string]any(out)); err != nil {
			return fmt.Errorf("message %d: not JSON-encodable: %w", i, err)
		}
	}
	return nil
}

// Serialize returns serialized copies of the recorded messages.
func (m *MemoryLogger) Serialize() ([]Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Fields, len(m.messages))
	for i, msg := range m.messages {
		c := msg.Copy()
		if s := m.serializers[i]; s != nil {
			if err := s.Serialize(c); err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
		}
		out[i] = c
	}
	return out, nil
}

// FlushTracebacks removes and returns the traceback messages whose error
// satisfies match. The rest stay recorded.
func (m *MemoryLogger) FlushTracebacks(match func(error) bool) []Fields {
	m.mu.Lock()
	defer m.mu.Unlock()
	var flushed, remaining []Fields
	for _, msg := range m.tracebacks {
		if err, ok := msg[ReasonField].(error); ok && match(err) {
			flushed = append(flushed, msg)
		} else {
			remaining = append(remaining, msg)
		}
	}
	m.tracebacks = remaining
	return flushed
}

// Reset forgets everything recorded.
func (m *MemoryLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.serializers = nil
	m.tracebacks = nil
}

// MatchType returns a FlushTracebacks matcher for errors of type E anywhere
// in the chain.
func MatchType[E error]() func(error) bool {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

// MatchIs returns a FlushTracebacks matcher using errors.Is.
func MatchIs(target error) func(error) bool {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}
