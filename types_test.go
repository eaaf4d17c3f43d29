package causelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageType_New(t *testing.T) {
	isolate(t)

	note := NewMessageType("app:note", []BoundField{Typed("text", KindString)}, "A note.")
	assert.Equal(t, "app:note", note.Name())
	assert.Equal(t, "A note.", note.Description())

	msg := note.New(Fields{"text": "hello"})
	assert.Equal(t, Fields{MessageTypeField: "app:note", "text": "hello"}, msg.Contents())
	assert.Same(t, note.Serializer(), msg.Serializer())
}

func TestMessageType_Log(t *testing.T) {
	isolate(t)
	logger := NewMemoryLogger()
	note := NewMessageType("app:note", []BoundField{Typed("text", KindString)}, "")

	note.Log(logger, Fields{"text": "hello"})
	note.Log(logger, Fields{"text": 5})

	require.Len(t, logger.Messages(), 2)
	assert.Same(t, note.Serializer(), logger.Serializers()[0])

	err := logger.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message 1")
}

func TestNewMessageType_MalformedSchemaPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewMessageType("bad", []BoundField{Typed(TaskUUIDField, KindString)}, "")
	})
	assert.Panics(t, func() {
		NewMessageType("bad", []BoundField{Typed(MessageTypeField, KindString)}, "")
	})
	assert.Panics(t, func() {
		NewActionType("bad", []BoundField{Typed(ActionStatusField, KindString)}, nil, "")
	})
}

func TestActionType_Serializers(t *testing.T) {
	s := doThing.Serializers()
	assert.False(t, s.Start.AllowsAdditionalFields())
	assert.False(t, s.Success.AllowsAdditionalFields())
	assert.True(t, s.Failure.AllowsAdditionalFields())

	assert.NoError(t, s.Start.Validate(Fields{
		ActionTypeField:   "app:do",
		ActionStatusField: StatusStarted,
		"key":             1,
	}))
	assert.Error(t, s.Start.Validate(Fields{
		ActionTypeField:   "app:do",
		ActionStatusField: StatusSucceeded,
		"key":             1,
	}))
	assert.NoError(t, s.Failure.Validate(Fields{
		ActionTypeField:   "app:do",
		ActionStatusField: StatusFailed,
		ReasonField:       "r",
		ExceptionField:    "e",
		"detail":          []any{1, 2},
	}))
}

func TestActionType_StartRecordsSerializers(t *testing.T) {
	isolate(t)
	logger := NewMemoryLogger()

	a := doThing.Start(logger, Fields{"key": 1})
	a.AddSuccessFields(Fields{"result": "done"})
	a.Finish(nil)

	serializers := logger.Serializers()
	require.Len(t, serializers, 2)
	assert.Same(t, doThing.Serializers().Start, serializers[0])
	assert.Same(t, doThing.Serializers().Success, serializers[1])
	assert.Equal(t, "app:do", a.ActionType())
}
