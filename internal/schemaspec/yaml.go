package schemaspec

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a YAML catalog:
//
//	messages:
//	  - name: app:note
//	    description: A note.
//	    fields:
//	      - {name: text, kinds: [string]}
//	actions:
//	  - name: app:fetch
//	    start:
//	      - {name: url, kinds: [string]}
//	    success:
//	      - {name: bytes, kinds: [number]}
//
// Unknown keys are rejected, so typos surface as errors.
func LoadYAML(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	doc, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ParseYAML parses YAML catalog source.
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &doc, nil
}
