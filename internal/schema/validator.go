// Package schema validates persisted documents against embedded JSON schemas
// and converts YAML documents to JSON.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDocument = errors.New("invalid document")

//go:embed structure.schema.yaml
var structureSchema []byte

//go:embed snapshot.schema.yaml
var snapshotSchema []byte

// Validator handles JSON schema validation
type Validator struct {
	structureSchema *jsonschema.Schema
	snapshotSchema  *jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	v := &Validator{}

	s, err := compile("structure.schema.json", structureSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to load structure schema: %w", err)
	}
	v.structureSchema = s

	s, err = compile("snapshot.schema.json", snapshotSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot schema: %w", err)
	}
	v.snapshotSchema = s

	return v, nil
}

// MustValidator is NewValidator for package initialisation; the schemas are embedded.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateStructure validates a structure document (JSON or YAML).
func (v *Validator) ValidateStructure(doc []byte) error {
	return validate(v.structureSchema, doc)
}

// ValidateSnapshot validates a design snapshot document (JSON or YAML).
func (v *Validator) ValidateSnapshot(doc []byte) error {
	return validate(v.snapshotSchema, doc)
}

func validate(s *jsonschema.Schema, doc []byte) error {
	if s == nil {
		return fmt.Errorf("schema not loaded")
	}
	raw, err := ToJSON(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := s.Validate(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// compile loads and compiles a YAML schema
func compile(url string, data []byte) (*jsonschema.Schema, error) {
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonschema.CompileString(url, string(jsonData))
}
