// Package schemaspec loads message and action type declarations from CUE or
// YAML files into a Catalog of causelog types.
//
// A catalog lets tools check messages they did not write (a JSON-lines trace
// file, say) against the schemas the writing program declared.
package schemaspec

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/roach88/causelog"
)

// ErrUnknownType is returned by Catalog.SerializerFor for messages whose
// message_type or action_type the catalog does not declare.
var ErrUnknownType = errors.New("type not declared in catalog")

// FieldSpec declares one field of a message.
type FieldSpec struct {
	Name        string   `yaml:"name"`
	Kinds       []string `yaml:"kinds"`
	Description string   `yaml:"description,omitempty"`
}

// MessageSpec declares a message type.
type MessageSpec struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Fields      []FieldSpec `yaml:"fields,omitempty"`
}

// ActionSpec declares an action type. Start and Success list the fields of
// the start and success messages beyond the ones every action carries.
type ActionSpec struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Start       []FieldSpec `yaml:"start,omitempty"`
	Success     []FieldSpec `yaml:"success,omitempty"`
}

// Document is the parsed content of one catalog file.
type Document struct {
	Messages []MessageSpec `yaml:"messages,omitempty"`
	Actions  []ActionSpec  `yaml:"actions,omitempty"`
}

// Catalog holds message and action types by name.
type Catalog struct {
	messages map[string]*causelog.MessageType
	actions  map[string]*causelog.ActionType
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		messages: make(map[string]*causelog.MessageType),
		actions:  make(map[string]*causelog.ActionType),
	}
}

// Load reads one catalog file, choosing the format by extension
// (.cue, .yaml or .yml).
func Load(path string) (*Document, error) {
	switch filepath.Ext(path) {
	case ".cue":
		return LoadCUE(path)
	case ".yaml", ".yml":
		return LoadYAML(path)
	}
	return nil, fmt.Errorf("%s: unsupported catalog format (want .cue, .yaml or .yml)", path)
}

// LoadCatalog loads every file in paths into one catalog.
func LoadCatalog(paths ...string) (*Catalog, error) {
	c := NewCatalog()
	for _, path := range paths {
		doc, err := Load(path)
		if err != nil {
			return nil, err
		}
		if err := c.Add(doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return c, nil
}

// Add builds the types declared in doc. Nothing is added if any declaration
// is invalid or reuses a name already in the catalog.
func (c *Catalog) Add(doc *Document) error {
	messages := make(map[string]*causelog.MessageType, len(doc.Messages))
	for i, spec := range doc.Messages {
		if spec.Name == "" {
			return fmt.Errorf("messages[%d]: name is required", i)
		}
		if _, dup := c.messages[spec.Name]; dup {
			return fmt.Errorf("message type %q declared twice", spec.Name)
		}
		if _, dup := messages[spec.Name]; dup {
			return fmt.Errorf("message type %q declared twice", spec.Name)
		}
		fields, err := boundFields(spec.Fields)
		if err != nil {
			return fmt.Errorf("message type %q: %w", spec.Name, err)
		}
		mt, err := build(func() *causelog.MessageType {
			return causelog.NewMessageType(spec.Name, fields, spec.Description)
		})
		if err != nil {
			return fmt.Errorf("message type %q: %w", spec.Name, err)
		}
		messages[spec.Name] = mt
	}

	actions := make(map[string]*causelog.ActionType, len(doc.Actions))
	for i, spec := range doc.Actions {
		if spec.Name == "" {
			return fmt.Errorf("actions[%d]: name is required", i)
		}
		if _, dup := c.actions[spec.Name]; dup {
			return fmt.Errorf("action type %q declared twice", spec.Name)
		}
		if _, dup := actions[spec.Name]; dup {
			return fmt.Errorf("action type %q declared twice", spec.Name)
		}
		start, err := boundFields(spec.Start)
		if err != nil {
			return fmt.Errorf("action type %q start: %w", spec.Name, err)
		}
		success, err := boundFields(spec.Success)
		if err != nil {
			return fmt.Errorf("action type %q success: %w", spec.Name, err)
		}
		at, err := build(func() *causelog.ActionType {
			return causelog.NewActionType(spec.Name, start, success, spec.Description)
		})
		if err != nil {
			return fmt.Errorf("action type %q: %w", spec.Name, err)
		}
		actions[spec.Name] = at
	}

	for name, mt := range messages {
		c.messages[name] = mt
	}
	for name, at := range actions {
		c.actions[name] = at
	}
	return nil
}

// build runs a type constructor, turning its *causelog.SchemaError panic
// into an error. Other panics propagate.
func build[T any](construct func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*causelog.SchemaError)
			if !ok {
				panic(r)
			}
			err = se
		}
	}()
	return construct(), nil
}

func boundFields(specs []FieldSpec) ([]causelog.BoundField, error) {
	out := make([]causelog.BoundField, 0, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("fields[%d]: name is required", i)
		}
		if len(spec.Kinds) == 0 {
			return nil, fmt.Errorf("field %q: at least one kind is required", spec.Name)
		}
		kinds := make([]causelog.Kind, 0, len(spec.Kinds))
		for _, name := range spec.Kinds {
			kind, ok := causelog.ParseKind(name)
			if !ok {
				return nil, fmt.Errorf("field %q: unknown kind %q", spec.Name, name)
			}
			kinds = append(kinds, kind)
		}
		out = append(out, causelog.Bind(spec.Name, causelog.ForTypes(kinds, nil), spec.Description))
	}
	return out, nil
}

// MessageType returns the message type called name.
func (c *Catalog) MessageType(name string) (*causelog.MessageType, bool) {
	mt, ok := c.messages[name]
	return mt, ok
}

// ActionType returns the action type called name.
func (c *Catalog) ActionType(name string) (*causelog.ActionType, bool) {
	at, ok := c.actions[name]
	return at, ok
}

// MessageTypes returns the declared message type names, sorted.
func (c *Catalog) MessageTypes() []string {
	return sortedKeys(c.messages)
}

// ActionTypes returns the declared action type names, sorted.
func (c *Catalog) ActionTypes() []string {
	return sortedKeys(c.actions)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SerializerFor picks the serializer msg should satisfy: by message_type for
// messages, by action_type and action_status for action messages. The error
// wraps ErrUnknownType when the type is not declared.
func (c *Catalog) SerializerFor(msg causelog.Fields) (*causelog.MessageSerializer, error) {
	if name, ok := msg[causelog.MessageTypeField].(string); ok {
		mt, found := c.messages[name]
		if !found {
			return nil, fmt.Errorf("message type %q: %w", name, ErrUnknownType)
		}
		return mt.Serializer(), nil
	}

	name, ok := msg[causelog.ActionTypeField].(string)
	if !ok {
		return nil, errors.New("message has neither message_type nor action_type")
	}
	at, found := c.actions[name]
	if !found {
		return nil, fmt.Errorf("action type %q: %w", name, ErrUnknownType)
	}
	s := at.Serializers()
	switch status := msg[causelog.ActionStatusField]; status {
	case causelog.StatusStarted:
		return s.Start, nil
	case causelog.StatusSucceeded:
		return s.Success, nil
	case causelog.StatusFailed:
		return s.Failure, nil
	default:
		return nil, fmt.Errorf("action type %q: invalid action_status %v", name, status)
	}
}

// Validate checks msg against the serializer its type declares.
func (c *Catalog) Validate(msg causelog.Fields) error {
	return c.ValidateIgnoring(msg, nil)
}

// ValidateIgnoring is Validate for traces written with global fields. Keys in
// ignore that the message's schema does not declare are dropped before the
// check; declared ones are still validated.
func (c *Catalog) ValidateIgnoring(msg causelog.Fields, ignore []string) error {
	s, err := c.SerializerFor(msg)
	if err != nil {
		return err
	}
	if len(ignore) == 0 {
		return s.Validate(msg)
	}

	declared := make(map[string]bool)
	for _, f := range s.Fields() {
		declared[f.Key] = true
	}
	stripped := msg.Copy()
	for _, k := range ignore {
		if !declared[k] {
			delete(stripped, k)
		}
	}
	return s.Validate(stripped)
}
