package causelog

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/causelog/internal/canonical"
)

// Message types emitted by OutputLogger when a write cannot be delivered.
const (
	SerializationFailureType = "causelog:serialization_failure"
	DestinationFailureType   = "causelog:destination_failure"
)

// Logger is the boundary through which frozen messages leave the core.
// Write never reports failure to its caller.
type Logger interface {
	Write(msg Fields, serializer *MessageSerializer)
}

// OutputLogger serializes messages and fans them out to Destinations.
//
// Failures are recovered, never returned:
//   - a serializer rejecting a message produces a traceback message and a
//     serialization_failure message holding the raw JSON payload;
//   - each failing destination produces a destination_failure message sent
//     back through the same destinations. If that send fails too, the failure
//     is counted and reported on the side channel.
//
// Thread-safety: safe for concurrent use.
type OutputLogger struct {
	dests   *Destinations
	side    *slog.Logger
	dropped atomic.Uint64
}

// LoggerOption configures an OutputLogger.
type LoggerOption func(*OutputLogger)

// WithSideChannel sets where unrecoverable logging failures are reported.
// Default: slog.Default().
func WithSideChannel(l *slog.Logger) LoggerOption {
	return func(o *OutputLogger) {
		o.side = l
	}
}

// NewOutputLogger creates a logger writing to dests. A nil dests means the
// process-wide DefaultDestinations at the time of each write.
func NewOutputLogger(dests *Destinations, opts ...LoggerOption) *OutputLogger {
	l := &OutputLogger{dests: dests}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Destinations returns the registry this logger writes to.
func (l *OutputLogger) Destinations() *Destinations {
	if l.dests == nil {
		return DefaultDestinations()
	}
	return l.dests
}

// DroppedFailures returns how many destination failures could not be
// reported because reporting them failed as well.
func (l *OutputLogger) DroppedFailures() uint64 {
	return l.dropped.Load()
}

func (l *OutputLogger) sideChannel() *slog.Logger {
	if l.side != nil {
		return l.side
	}
	return slog.Default()
}

// Write serializes a copy of msg with serializer, if given, and sends it to
// every destination.
func (l *OutputLogger) Write(msg Fields, serializer *MessageSerializer) {
	original := msg.Copy()
	out := msg.Copy()

	if serializer != nil {
		if err := safeSerialize(serializer, out); err != nil {
			if serializer != TracebackSerializer() {
				WriteTraceback(l, err)
			}
			NewMessage(Fields{
				MessageTypeField: SerializationFailureType,
				"message":        canonical.Stringify(original),
			}, nil).Write(l, nil)
			return
		}
	}

	dests := l.Destinations()
	err := dests.Send(out)
	if err == nil {
		return
	}
	se, ok := err.(*SendError)
	if !ok {
		se = &SendError{Errors: []*DestinationError{{Err: err}}}
	}
	for _, de := range se.Errors {
		l.reportDestinationFailure(dests, de, original)
	}
}

// reportDestinationFailure sends a destination_failure message directly to
// dests. Nothing raised here may reach the caller of Write.
func (l *OutputLogger) reportDestinationFailure(dests *Destinations, de *DestinationError, payload Fields) {
	defer func() {
		if r := recover(); r != nil {
			l.drop(de, &PanicError{Value: r})
		}
	}()

	failure := NewMessage(Fields{
		MessageTypeField: DestinationFailureType,
		ReasonField:      de.Err.Error(),
		ExceptionField:   ErrorKind(de.Err),
		"message":        canonical.Stringify(payload),
	}, nil).Freeze(nil)

	if err := dests.Send(failure); err != nil {
		l.drop(de, err)
	}
}

func (l *OutputLogger) drop(de *DestinationError, err error) {
	l.dropped.Add(1)
	l.sideChannel().Error("destination failure could not be reported",
		"destination", uint64(de.ID),
		"destination_error", de.Err,
		"error", err)
}

func safeSerialize(s *MessageSerializer, msg Fields) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serializer panicked: %w", &PanicError{Value: r})
		}
	}()
	return s.Serialize(msg)
}
