package schemaspec

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causelog"
)

func TestLoad_FormatsAgree(t *testing.T) {
	fromCUE, err := Load(filepath.Join("testdata", "catalog.cue"))
	require.NoError(t, err)
	fromYAML, err := Load(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)

	assert.Equal(t, fromCUE, fromYAML)

	require.Len(t, fromCUE.Messages, 1)
	note := fromCUE.Messages[0]
	assert.Equal(t, "app:note", note.Name)
	assert.Equal(t, "A free-form note.", note.Description)
	assert.Equal(t, []FieldSpec{
		{Name: "text", Kinds: []string{"string"}},
		{Name: "count", Kinds: []string{"number", "null"}},
	}, note.Fields)

	require.Len(t, fromCUE.Actions, 1)
	fetch := fromCUE.Actions[0]
	assert.Equal(t, "app:fetch", fetch.Name)
	assert.Equal(t, []FieldSpec{{Name: "url", Kinds: []string{"string"}}}, fetch.Start)
	assert.Equal(t, []FieldSpec{{Name: "bytes", Kinds: []string{"number"}, Description: "Body size."}}, fetch.Success)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("catalog.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported catalog format")
}

func TestLoadCatalog_Validate(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("testdata", "catalog.cue"))
	require.NoError(t, err)
	assert.Equal(t, []string{"app:note"}, c.MessageTypes())
	assert.Equal(t, []string{"app:fetch"}, c.ActionTypes())

	valid := []causelog.Fields{
		{causelog.MessageTypeField: "app:note", "text": "hi", "count": json.Number("3")},
		{causelog.MessageTypeField: "app:note", "text": "hi", "count": nil},
		{causelog.ActionTypeField: "app:fetch", causelog.ActionStatusField: "started", "url": "https://x"},
		{causelog.ActionTypeField: "app:fetch", causelog.ActionStatusField: "succeeded", "bytes": 10},
		{
			causelog.ActionTypeField:   "app:fetch",
			causelog.ActionStatusField: "failed",
			causelog.ReasonField:       "timeout",
			causelog.ExceptionField:    "*net.OpError",
			"attempt":                  2,
		},
	}
	for i, msg := range valid {
		assert.NoError(t, c.Validate(msg), "message %d", i)
	}

	invalid := []causelog.Fields{
		{causelog.MessageTypeField: "app:note", "text": 5, "count": 1},
		{causelog.MessageTypeField: "app:note", "text": "hi"},
		{causelog.ActionTypeField: "app:fetch", causelog.ActionStatusField: "succeeded"},
		{causelog.ActionTypeField: "app:fetch", causelog.ActionStatusField: "paused", "url": "x"},
		{"text": "untyped"},
	}
	for i, msg := range invalid {
		assert.Error(t, c.Validate(msg), "message %d", i)
	}
}

func TestCatalog_ValidateIgnoringGlobalFields(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("testdata", "catalog.cue"))
	require.NoError(t, err)

	msg := causelog.Fields{causelog.MessageTypeField: "app:note", "text": "hi", "count": nil, "host": "web-1"}
	err = c.Validate(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unexpected field "host"`)

	assert.NoError(t, c.ValidateIgnoring(msg, []string{"host", "pid"}))
	assert.Equal(t, "web-1", msg["host"], "input is left alone")

	declared := causelog.Fields{causelog.MessageTypeField: "app:note", "text": 5, "count": nil}
	assert.Error(t, c.ValidateIgnoring(declared, []string{"text"}), "declared fields are still checked")

	_, err = c.SerializerFor(causelog.Fields{causelog.MessageTypeField: "app:other"})
	assert.ErrorIs(t, c.ValidateIgnoring(causelog.Fields{causelog.MessageTypeField: "app:other"}, []string{"host"}), ErrUnknownType)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCatalog_UnknownType(t *testing.T) {
	c := NewCatalog()
	_, err := c.SerializerFor(causelog.Fields{causelog.MessageTypeField: "app:nope"})
	assert.ErrorIs(t, err, ErrUnknownType)
	_, err = c.SerializerFor(causelog.Fields{causelog.ActionTypeField: "app:nope", causelog.ActionStatusField: "started"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCatalog_SerializerForMatchesActionType(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Add(&Document{Actions: []ActionSpec{{Name: "app:a"}}}))
	at, ok := c.ActionType("app:a")
	require.True(t, ok)

	for status, want := range map[string]*causelog.MessageSerializer{
		causelog.StatusStarted:   at.Serializers().Start,
		causelog.StatusSucceeded: at.Serializers().Success,
		causelog.StatusFailed:    at.Serializers().Failure,
	} {
		got, err := c.SerializerFor(causelog.Fields{causelog.ActionTypeField: "app:a", causelog.ActionStatusField: status})
		require.NoError(t, err)
		assert.Same(t, want, got, status)
	}
}

func TestCatalog_AddRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{"unnamed message", Document{Messages: []MessageSpec{{}}}, "name is required"},
		{"unknown kind", Document{Messages: []MessageSpec{{Name: "m", Fields: []FieldSpec{{Name: "x", Kinds: []string{"integer"}}}}}}, `unknown kind "integer"`},
		{"no kinds", Document{Messages: []MessageSpec{{Name: "m", Fields: []FieldSpec{{Name: "x"}}}}}, "at least one kind"},
		{"reserved field", Document{Messages: []MessageSpec{{Name: "m", Fields: []FieldSpec{{Name: "task_uuid", Kinds: []string{"string"}}}}}}, "reserved"},
		{"underscore field", Document{Actions: []ActionSpec{{Name: "a", Start: []FieldSpec{{Name: "_x", Kinds: []string{"string"}}}}}}, "must not start with"},
		{"duplicate in doc", Document{Messages: []MessageSpec{{Name: "m"}, {Name: "m"}}}, "declared twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalog()
			err := c.Add(&tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, c.MessageTypes())
			assert.Empty(t, c.ActionTypes())
		})
	}
}

func TestCatalog_ReservedFieldIsSchemaError(t *testing.T) {
	c := NewCatalog()
	err := c.Add(&Document{Messages: []MessageSpec{{
		Name:   "m",
		Fields: []FieldSpec{{Name: "timestamp", Kinds: []string{"number"}}},
	}}})
	var se *causelog.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "timestamp", se.Field)
}

func TestCatalog_DuplicateAcrossDocuments(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Add(&Document{Messages: []MessageSpec{{Name: "m"}}}))
	err := c.Add(&Document{Messages: []MessageSpec{{Name: "m"}}})
	assert.ErrorContains(t, err, "declared twice")
}

func TestParseCUE_Errors(t *testing.T) {
	_, err := ParseCUE([]byte(`message: "m": fields: x: 5`), "bad.cue")
	require.Error(t, err)
	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "message.m.fields.x", se.Path)

	_, err = ParseCUE([]byte(`message: "m": fields: x: {description: "no kinds"}`), "bad.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kinds is required")

	_, err = ParseCUE([]byte(`message: {`), "broken.cue")
	require.Error(t, err)
}

func TestParseYAML_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseYAML([]byte("messages:\n  - name: m\n    feilds: []\n"))
	require.Error(t, err)

	doc, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Messages)
}
