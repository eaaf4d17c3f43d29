package causelog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutput(t *testing.T, dests ...Destination) *OutputLogger {
	t.Helper()
	d := NewDestinations()
	_, err := d.Add(dests...)
	require.NoError(t, err)
	return NewOutputLogger(d, WithSideChannel(discardLogger()))
}

func TestOutputLogger_WritesSerialized(t *testing.T) {
	isolate(t)
	rec := &recorder{}
	out := newTestOutput(t, rec)

	err := WithAction(doThing.Start(out, Fields{"key": 7}), func(a *Action) error {
		a.AddSuccessFields(Fields{"result": "ok"})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, rec.messages, 2)
	assert.Equal(t, 7, rec.messages[0]["key"])
	assert.Equal(t, StatusSucceeded, rec.messages[1][ActionStatusField])
}

func TestOutputLogger_SerializationFailure(t *testing.T) {
	isolate(t)
	rec := &recorder{}
	out := newTestOutput(t, rec)

	picky := NewMessageType("app:picky", []BoundField{
		Bind("value", NewField(func(v any) (any, error) {
			return nil, errors.New("cannot serialize")
		}, nil), ""),
	}, "")
	picky.Log(out, Fields{"value": "x"})

	require.Len(t, rec.messages, 2)

	tb := rec.messages[0]
	assert.Equal(t, TracebackType, tb[MessageTypeField])
	assert.Contains(t, tb[ReasonField], "cannot serialize")
	assert.IsType(t, "", tb["traceback"])

	failure := rec.messages[1]
	assert.Equal(t, SerializationFailureType, failure[MessageTypeField])
	payload, ok := failure["message"].(string)
	require.True(t, ok)

	var original map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &original))
	assert.Equal(t, "app:picky", original[MessageTypeField])
	assert.Equal(t, "x", original["value"])
}

func TestOutputLogger_SerializerPanicRecovered(t *testing.T) {
	isolate(t)
	rec := &recorder{}
	out := newTestOutput(t, rec)

	panicky := NewMessageType("app:panicky", []BoundField{
		Bind("value", NewField(func(v any) (any, error) {
			panic("serializer bug")
		}, nil), ""),
	}, "")

	assert.NotPanics(t, func() {
		panicky.Log(out, Fields{"value": 1})
	})
	require.Len(t, rec.messages, 2)
	assert.Equal(t, SerializationFailureType, rec.messages[1][MessageTypeField])
}

func TestOutputLogger_DestinationFailureReported(t *testing.T) {
	isolate(t)
	rec := &recorder{}
	flaky := errors.New("connection reset")
	var calls int
	out := newTestOutput(t,
		DestinationFunc(func(Fields) error {
			calls++
			if calls == 1 {
				return flaky
			}
			return nil
		}),
		rec,
	)

	LogMessage(out, Fields{MessageTypeField: "app:note"})

	require.Len(t, rec.messages, 2)
	assert.Equal(t, "app:note", rec.messages[0][MessageTypeField])

	failure := rec.messages[1]
	assert.Equal(t, DestinationFailureType, failure[MessageTypeField])
	assert.Equal(t, "connection reset", failure[ReasonField])
	assert.Equal(t, "*errors.errorString", failure[ExceptionField])
	assert.Contains(t, failure["message"], `"message_type":"app:note"`)
	assert.Zero(t, out.DroppedFailures())
}

func TestOutputLogger_DroppedWhenReportFails(t *testing.T) {
	isolate(t)
	rec := &recorder{}
	out := newTestOutput(t,
		DestinationFunc(func(Fields) error { return errors.New("always") }),
		rec,
	)

	assert.NotPanics(t, func() {
		LogMessage(out, Fields{MessageTypeField: "app:note"})
	})

	// The working destination sees the message and the failure report.
	assert.Len(t, rec.messages, 2)
	assert.Equal(t, uint64(1), out.DroppedFailures())
}

func TestOutputLogger_PanickingDestination(t *testing.T) {
	isolate(t)
	rec := &recorder{}
	out := newTestOutput(t,
		DestinationFunc(func(Fields) error { panic("sink exploded") }),
		rec,
	)

	assert.NotPanics(t, func() {
		LogMessage(out, Fields{MessageTypeField: "app:note"})
	})
	require.Len(t, rec.messages, 2)
	assert.Equal(t, "panic: sink exploded", rec.messages[1][ReasonField])
	assert.Equal(t, "*causelog.PanicError", rec.messages[1][ExceptionField])
	assert.Equal(t, uint64(1), out.DroppedFailures())
}

func TestOutputLogger_NilDestinationsUsesDefault(t *testing.T) {
	isolate(t)
	d := NewDestinations()
	rec := &recorder{}
	_, err := d.Add(rec)
	require.NoError(t, err)
	t.Cleanup(SwapDestinations(d))

	out := NewOutputLogger(nil)
	assert.Same(t, d, out.Destinations())

	LogMessage(out, Fields{MessageTypeField: "app:note"})
	assert.Len(t, rec.messages, 1)
}
