package causelog

import "context"

var (
	reasonField    = Bind(ReasonField, ForTypes([]Kind{KindString}, nil), "The reason for an event.")
	exceptionField = Bind(ExceptionField, ForTypes([]Kind{KindString}, nil), "The type of the error.")
)

// MessageType binds a schema to a kind of message, identified by the
// message_type field.
type MessageType struct {
	name        string
	description string
	serializer  *MessageSerializer
}

// NewMessageType creates a MessageType whose serializer accepts fields plus a
// constant message_type of name.
//
// NewMessageType panics with a *SchemaError if the fields are malformed;
// message types are normally package-level variables, so this fails at
// startup.
func NewMessageType(name string, fields []BoundField, description string) *MessageType {
	return newMessageType(name, fields, description, false)
}

func newMessageType(name string, fields []BoundField, description string, allowAdditional bool) *MessageType {
	all := make([]BoundField, 0, len(fields)+1)
	all = append(all, fields...)
	all = append(all, Bind(MessageTypeField, ForValue(name), "The message type."))
	return &MessageType{
		name:        name,
		description: description,
		serializer:  MustMessageSerializer(all, allowAdditional),
	}
}

// Name returns the message type name.
func (t *MessageType) Name() string { return t.name }

// Description returns the message type description.
func (t *MessageType) Description() string { return t.description }

// Serializer returns the message type's serializer.
func (t *MessageType) Serializer() *MessageSerializer { return t.serializer }

// New creates a message of this type carrying fields.
func (t *MessageType) New(fields Fields) *Message {
	msg := fields.Copy()
	msg[MessageTypeField] = t.name
	return &Message{contents: msg, serializer: t.serializer}
}

// Log creates a message of this type and writes it under the current action.
func (t *MessageType) Log(logger Logger, fields Fields) {
	t.New(fields).Write(logger, nil)
}

// ActionSerializers holds the three serializers of an action type.
type ActionSerializers struct {
	Start   *MessageSerializer
	Success *MessageSerializer
	Failure *MessageSerializer
}

// ActionType binds schemas to a kind of action, identified by the
// action_type field.
type ActionType struct {
	name        string
	description string
	serializers *ActionSerializers
}

// NewActionType creates an ActionType.
//
// The start schema is startFields plus constant action_type and
// action_status=started; the success schema is successFields plus constant
// action_type and action_status=succeeded. The failure schema is fixed
// (action_type, action_status=failed, reason, exception) and tolerates
// additional fields, since failures may carry extra diagnostics.
//
// NewActionType panics with a *SchemaError if the fields are malformed.
func NewActionType(name string, startFields, successFields []BoundField, description string) *ActionType {
	typeField := Bind(ActionTypeField, ForValue(name), "The action type.")
	status := func(s string) BoundField {
		return Bind(ActionStatusField, ForValue(s), "The action status.")
	}

	start := make([]BoundField, 0, len(startFields)+2)
	start = append(start, startFields...)
	start = append(start, typeField, status(StatusStarted))

	success := make([]BoundField, 0, len(successFields)+2)
	success = append(success, successFields...)
	success = append(success, typeField, status(StatusSucceeded))

	failure := []BoundField{typeField, status(StatusFailed), reasonField, exceptionField}

	return &ActionType{
		name:        name,
		description: description,
		serializers: &ActionSerializers{
			Start:   MustMessageSerializer(start, false),
			Success: MustMessageSerializer(success, false),
			Failure: MustMessageSerializer(failure, true),
		},
	}
}

// Name returns the action type name.
func (t *ActionType) Name() string { return t.name }

// Description returns the action type description.
func (t *ActionType) Description() string { return t.description }

// Serializers returns the action type's serializers.
func (t *ActionType) Serializers() *ActionSerializers { return t.serializers }

// Start starts an action of this type beneath the current action, or as a
// new task if none is running.
func (t *ActionType) Start(logger Logger, fields Fields) *Action {
	return StartAction(logger, t.name, fields, t.serializers)
}

// StartIn starts an action of this type beneath the current action of c.
func (t *ActionType) StartIn(c *ExecutionContext, logger Logger, fields Fields) *Action {
	return c.StartAction(logger, t.name, fields, t.serializers)
}

// AsTask starts an action of this type as a new task.
func (t *ActionType) AsTask(logger Logger, fields Fields) *Action {
	return StartTask(logger, t.name, fields, t.serializers)
}

// StartContext starts an action of this type beneath the action carried by
// ctx. See StartActionContext.
func (t *ActionType) StartContext(ctx context.Context, logger Logger, fields Fields) (context.Context, *Action) {
	return StartActionContext(ctx, logger, t.name, fields, t.serializers)
}
