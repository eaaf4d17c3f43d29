package causelog

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// SerializeFunc converts an input value to its JSON-safe form. Returning an
// error rejects the input; a Field whose serializer fails is invalid.
type SerializeFunc func(v any) (any, error)

// ValidatorFunc checks an input value without altering it.
type ValidatorFunc func(v any) error

// Field is a serializer plus an optional extra validator for one field value.
type Field struct {
	serialize SerializeFunc
	extra     ValidatorFunc
}

// NewField creates a Field from a serializer and an optional extra validator.
func NewField(serialize SerializeFunc, extra ValidatorFunc) *Field {
	if serialize == nil {
		serialize = identity
	}
	return &Field{serialize: serialize, extra: extra}
}

func identity(v any) (any, error) {
	return v, nil
}

// ForValue creates a Field that only accepts inputs equal to value and always
// serializes to value. Used for constant discriminators such as message_type.
func ForValue(value any) *Field {
	return &Field{
		serialize: func(any) (any, error) { return value, nil },
		extra: func(v any) error {
			if !reflect.DeepEqual(v, value) {
				return newValidationError(v, "value must be %#v, got %#v", value, v)
			}
			return nil
		},
	}
}

// ForTypes creates a Field accepting only values whose JSON kind is one of
// kinds, then applying extra if given. Serialization is the identity.
//
// ForTypes panics if kinds contains an unknown Kind.
func ForTypes(kinds []Kind, extra ValidatorFunc) *Field {
	allowed := slices.Clone(kinds)
	for _, k := range allowed {
		if _, ok := ParseKind(string(k)); !ok {
			panic(fmt.Sprintf("causelog: %q is not a JSON kind", k))
		}
	}
	return &Field{
		serialize: identity,
		extra: func(v any) error {
			kind, ok := KindOf(v)
			if !ok || !slices.Contains(allowed, kind) {
				return newValidationError(v, "value of type %T must be one of %v", v, allowed)
			}
			if extra != nil {
				return extra(v)
			}
			return nil
		},
	}
}

// Validate reports whether v is acceptable: the serializer must succeed and
// the extra validator, if any, must pass.
func (f *Field) Validate(v any) error {
	if _, err := f.serialize(v); err != nil {
		return asValidationError(v, err)
	}
	if f.extra != nil {
		if err := f.extra(v); err != nil {
			return asValidationError(v, err)
		}
	}
	return nil
}

// Serialize returns the serialized form of v.
func (f *Field) Serialize(v any) (any, error) {
	return f.serialize(v)
}

func asValidationError(v any, err error) *ValidationError {
	if ve, ok := err.(*ValidationError); ok {
		return ve
	}
	return &ValidationError{Value: v, Message: err.Error()}
}

// BoundField attaches a Field to a key.
type BoundField struct {
	Key         string
	Field       *Field
	Description string
}

// Bind attaches f to key.
func Bind(key string, f *Field, description string) BoundField {
	return BoundField{Key: key, Field: f, Description: description}
}

// Typed is shorthand for a field accepting the given kinds.
func Typed(key string, kinds ...Kind) BoundField {
	return BoundField{Key: key, Field: ForTypes(kinds, nil)}
}

// MessageSerializer validates and serializes dictionaries against a fixed set
// of bound fields.
//
// INVARIANTS (checked by NewMessageSerializer):
//   - keys are distinct
//   - no key starts with ReservedPrefix
//   - exactly one of action_type and message_type is declared
//   - task_level, task_uuid and timestamp are never declared
type MessageSerializer struct {
	fields          map[string]BoundField
	order           []string
	allowAdditional bool
}

// NewMessageSerializer builds a serializer, returning a *SchemaError if the
// fields break one of the invariants above.
func NewMessageSerializer(fields []BoundField, allowAdditionalFields bool) (*MessageSerializer, error) {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
		if f.Field == nil {
			return nil, &SchemaError{Keys: keys, Field: f.Key, Message: "field has no validator"}
		}
	}

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			return nil, &SchemaError{Keys: keys, Field: k, Message: "duplicate field name"}
		}
		seen[k] = true
	}

	switch {
	case seen[ActionTypeField] && seen[MessageTypeField]:
		return nil, &SchemaError{Keys: keys, Message: "messages must have either 'action_type' or 'message_type', not both"}
	case !seen[ActionTypeField] && !seen[MessageTypeField]:
		return nil, &SchemaError{Keys: keys, Message: "messages must have either 'action_type' or 'message_type'"}
	}

	for _, k := range keys {
		if strings.HasPrefix(k, ReservedPrefix) {
			return nil, &SchemaError{Keys: keys, Field: k, Message: fmt.Sprintf("field names must not start with %q", ReservedPrefix)}
		}
	}
	for _, reserved := range reservedFields {
		if seen[reserved] {
			return nil, &SchemaError{
				Keys:    keys,
				Field:   reserved,
				Message: fmt.Sprintf("the field name %q is reserved for use by the logging framework", reserved),
			}
		}
	}

	s := &MessageSerializer{
		fields:          make(map[string]BoundField, len(fields)),
		order:           keys,
		allowAdditional: allowAdditionalFields,
	}
	for _, f := range fields {
		s.fields[f.Key] = f
	}
	return s, nil
}

// MustMessageSerializer is like NewMessageSerializer but panics on error.
func MustMessageSerializer(fields []BoundField, allowAdditionalFields bool) *MessageSerializer {
	s, err := NewMessageSerializer(fields, allowAdditionalFields)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the bound fields in declaration order.
func (s *MessageSerializer) Fields() []BoundField {
	out := make([]BoundField, len(s.order))
	for i, k := range s.order {
		out[i] = s.fields[k]
	}
	return out
}

// AllowsAdditionalFields reports whether Validate tolerates unknown keys.
func (s *MessageSerializer) AllowsAdditionalFields() bool {
	return s.allowAdditional
}

// Validate checks that every schema field is present and valid and, unless
// additional fields are allowed, that msg holds no other keys besides the
// reserved identity fields.
func (s *MessageSerializer) Validate(msg Fields) error {
	for _, key := range s.order {
		v, ok := msg[key]
		if !ok {
			return newValidationError(msg, "field %q is missing", key)
		}
		if err := s.fields[key].Field.Validate(v); err != nil {
			return &ValidationError{Value: v, Message: fmt.Sprintf("field %q: %s", key, err.Error())}
		}
	}
	if s.allowAdditional {
		return nil
	}
	keys := make([]string, 0, len(msg))
	for key := range msg {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if _, ok := s.fields[key]; ok {
			continue
		}
		if slices.Contains(reservedFields, key) {
			continue
		}
		return newValidationError(msg, "unexpected field %q", key)
	}
	return nil
}

// Serialize replaces, in place, each schema field's value with its serialized
// form. Unknown keys are left alone.
func (s *MessageSerializer) Serialize(msg Fields) error {
	for _, key := range s.order {
		v, ok := msg[key]
		if !ok {
			return newValidationError(msg, "field %q is missing", key)
		}
		out, err := s.fields[key].Field.Serialize(v)
		if err != nil {
			return fmt.Errorf("serialize field %q: %w", key, err)
		}
		msg[key] = out
	}
	return nil
}
