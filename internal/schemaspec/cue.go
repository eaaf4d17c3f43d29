package schemaspec

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// SpecError is a catalog declaration error with its source position.
type SpecError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *SpecError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadCUE reads a CUE catalog:
//
//	message: "app:note": {
//		description: "A note."
//		fields: {
//			text: "string"
//			count: ["number", "null"]
//		}
//	}
//	action: "app:fetch": {
//		start: url: "string"
//		success: bytes: {kinds: ["number"], description: "Body size."}
//	}
//
// A field is a kind name, a list of kind names, or a struct with kinds and
// description.
func LoadCUE(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCUE(data, path)
}

// ParseCUE parses CUE catalog source. filename is used in positions.
func ParseCUE(data []byte, filename string) (*Document, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := &Document{}

	messages := v.LookupPath(cue.ParsePath("message"))
	if messages.Exists() {
		iter, err := messages.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := parseMessage(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			doc.Messages = append(doc.Messages, spec)
		}
	}

	actions := v.LookupPath(cue.ParsePath("action"))
	if actions.Exists() {
		iter, err := actions.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := parseAction(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			doc.Actions = append(doc.Actions, spec)
		}
	}

	return doc, nil
}

func parseMessage(name string, v cue.Value) (MessageSpec, error) {
	spec := MessageSpec{Name: name}
	var err error
	if spec.Description, err = optionalString(v, "description"); err != nil {
		return spec, err
	}
	spec.Fields, err = parseFields("message."+name+".fields", v.LookupPath(cue.ParsePath("fields")))
	return spec, err
}

func parseAction(name string, v cue.Value) (ActionSpec, error) {
	spec := ActionSpec{Name: name}
	var err error
	if spec.Description, err = optionalString(v, "description"); err != nil {
		return spec, err
	}
	if spec.Start, err = parseFields("action."+name+".start", v.LookupPath(cue.ParsePath("start"))); err != nil {
		return spec, err
	}
	spec.Success, err = parseFields("action."+name+".success", v.LookupPath(cue.ParsePath("success")))
	return spec, err
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func parseFields(path string, v cue.Value) ([]FieldSpec, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []FieldSpec
	for iter.Next() {
		name := iter.Label()
		field := iter.Value()
		spec := FieldSpec{Name: name}

		kindsVal := field
		if field.IncompleteKind() == cue.StructKind {
			kindsVal = field.LookupPath(cue.ParsePath("kinds"))
			if !kindsVal.Exists() {
				return nil, &SpecError{Path: path + "." + name, Message: "kinds is required", Pos: field.Pos()}
			}
			if spec.Description, err = optionalString(field, "description"); err != nil {
				return nil, err
			}
		}
		if spec.Kinds, err = kindNames(path+"."+name, kindsVal); err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func kindNames(path string, v cue.Value) ([]string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return []string{s}, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var out []string
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, &SpecError{
		Path:    path,
		Message: fmt.Sprintf("want a kind name or a list of kind names, got %v", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}

// formatCUEError keeps the position of the first CUE error.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &SpecError{Path: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
