package causelog

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
)

// Message is an immutable bag of fields, optionally bound to a serializer.
// Writing a message frames a copy of its fields with task_uuid, task_level
// and timestamp; the Message itself never changes, so it can be written any
// number of times.
type Message struct {
	contents   Fields
	serializer *MessageSerializer
	clock      clockz.Clock
}

// NewMessage creates a message from a copy of fields. serializer may be nil.
func NewMessage(fields Fields, serializer *MessageSerializer) *Message {
	return &Message{contents: fields.Copy(), serializer: serializer}
}

// WithClock returns a copy of m timestamped by clock instead of the
// process-wide clock.
func (m *Message) WithClock(clock clockz.Clock) *Message {
	return &Message{contents: m.contents, serializer: m.serializer, clock: clock}
}

// Bind returns a new message with fields merged over m's contents.
func (m *Message) Bind(fields Fields) *Message {
	return &Message{contents: m.contents.Merge(fields), serializer: m.serializer, clock: m.clock}
}

// Contents returns a copy of the message's fields.
func (m *Message) Contents() Fields {
	return m.contents.Copy()
}

// Serializer returns the bound serializer, or nil.
func (m *Message) Serializer() *MessageSerializer {
	return m.serializer
}

// Freeze returns the fields as they would be written under action.
//
// If action is nil the current action of the process-wide ExecutionContext
// is used. The message takes the action's task_uuid and its next task level.
// Without any action the message starts a task of its own: a fresh task_uuid
// at level [1].
func (m *Message) Freeze(action *Action) Fields {
	frozen, _ := m.freeze(DefaultExecutionContext(), action)
	return frozen
}

// freeze frames the message under action, or under the current action of ec
// when action is nil.
func (m *Message) freeze(ec *ExecutionContext, action *Action) (Fields, *Action) {
	if action == nil {
		action = ec.Current()
	}

	var (
		taskUUID string
		level    TaskLevel
	)
	if action == nil {
		taskUUID = ec.newTaskID()
		level = NewTaskLevel(1)
	} else {
		taskUUID = action.TaskUUID()
		level = action.nextTaskLevel()
	}

	clock := m.clock
	if clock == nil {
		clock = currentClock()
	}

	frozen := m.contents.Copy()
	frozen[TimestampField] = timestamp(clock.Now())
	frozen[TaskUUIDField] = taskUUID
	frozen[TaskLevelField] = level.Level()
	return frozen, action
}

// Write freezes the message under action and hands it to logger.
//
// A nil logger means the action's logger when an action is known (given or
// current), and DefaultLogger otherwise.
func (m *Message) Write(logger Logger, action *Action) {
	m.write(DefaultExecutionContext(), logger, action)
}

// WriteIn writes the message under the current action of c, or as a new task
// when c has none.
func (m *Message) WriteIn(c *ExecutionContext, logger Logger) {
	m.write(c, logger, nil)
}

// WriteContext writes the message under the action carried by ctx, falling
// back to the current action of ExecutionContextOf(ctx).
func (m *Message) WriteContext(ctx context.Context, logger Logger) {
	m.write(ExecutionContextOf(ctx), logger, FromContext(ctx))
}

func (m *Message) write(ec *ExecutionContext, logger Logger, action *Action) {
	frozen, owner := m.freeze(ec, action)
	if logger == nil && owner != nil {
		logger = owner.Logger()
	}
	resolveLogger(logger).Write(frozen, m.serializer)
}

// LogMessage writes an unbound message with the given fields under the
// current action.
func LogMessage(logger Logger, fields Fields) {
	NewMessage(fields, nil).Write(logger, nil)
}

// timestamp converts t to fractional seconds since the Unix epoch.
func timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
