package causelog

import (
	"encoding/json"
	"reflect"
)

// Reserved field names injected by message framing.
const (
	TaskUUIDField     = "task_uuid"
	TaskLevelField    = "task_level"
	TimestampField    = "timestamp"
	MessageTypeField  = "message_type"
	ActionTypeField   = "action_type"
	ActionStatusField = "action_status"
	ReasonField       = "reason"
	ExceptionField    = "exception"
)

// Action statuses.
const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ReservedPrefix marks field names used internally. Schemas may not declare
// fields starting with it.
const ReservedPrefix = "_"

// reservedFields are added by framing and are always allowed in validated
// dictionaries.
var reservedFields = []string{TaskLevelField, TaskUUIDField, TimestampField}

// Fields is a flat field-to-value mapping. Values should be JSON-safe once
// serialized: nil, numbers, strings, booleans, slices and string-keyed maps.
type Fields map[string]any

// Copy returns a shallow copy of f. A nil receiver yields an empty map.
func (f Fields) Copy() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge returns a copy of f with every entry of other applied on top.
func (f Fields) Merge(other Fields) Fields {
	out := f.Copy()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Kind is the JSON kind of a field value.
type Kind string

// The closed set of kinds a value may have.
const (
	KindNull    Kind = "null"
	KindNumber  Kind = "number"
	KindString  Kind = "string"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindBoolean Kind = "boolean"
)

// ParseKind maps a kind name to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch k := Kind(name); k {
	case KindNull, KindNumber, KindString, KindArray, KindObject, KindBoolean:
		return k, true
	}
	return "", false
}

// KindOf reports the JSON kind of v. The second result is false when v has no
// JSON representation (structs, channels, functions, non-string map keys).
func KindOf(v any) (Kind, bool) {
	switch v.(type) {
	case nil:
		return KindNull, true
	case bool:
		return KindBoolean, true
	case string:
		return KindString, true
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return KindNumber, true
	case Fields, map[string]any:
		return KindObject, true
	case []any:
		return KindArray, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return KindBoolean, true
	case reflect.String:
		return KindString, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber, true
	case reflect.Slice, reflect.Array:
		return KindArray, true
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindObject, true
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return KindNull, true
		}
	}
	return "", false
}
