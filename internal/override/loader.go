package override

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://journeybff.local/schemas/override.schema.json"

// Loader reads override documents. YAML and JSON are both accepted; the
// document is checked against the embedded JSON schema when validation is
// on.
type Loader struct {
	schema *jsonschema.Schema
}

// NewLoader creates a Loader. With validate false documents are only parsed.
func NewLoader(validate bool) (*Loader, error) {
	l := &Loader{}
	if !validate {
		return l, nil
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("override schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("override schema compile failed: %w", err)
	}
	l.schema = compiled
	return l, nil
}

// LoadFile reads and parses one document and returns it with the SHA-256
// checksum of the file contents.
func (l *Loader) LoadFile(path string) (*Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := l.Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// Parse decodes a document from YAML or JSON bytes.
func (l *Loader) Parse(data []byte) (*Document, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if generic == nil {
		return &Document{}, nil
	}

	// Round-trip through JSON so schema validation and decoding see the
	// same value shapes for YAML and JSON input.
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	if l.schema != nil {
		var instance any
		if err := json.Unmarshal(normalized, &instance); err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		if err := l.schema.Validate(instance); err != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
	}

	var doc Document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &doc, nil
}
