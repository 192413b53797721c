package api

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schema []byte

// Schema returns the JSON schema of the benchmark tree.
func Schema() []byte { return append([]byte(nil), schema...) }

// ValidateSchema checks data against the JSON schema.
func ValidateSchema(data []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("benchmark groups failed validation: %s", strings.Join(details, "; "))
}

// Parse reads, validates and decodes the benchmark tree.
func Parse(r io.Reader, mode Mode) (*BenchmarkGroups, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read benchmark groups: %w", err)
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var groups BenchmarkGroups
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decode benchmark groups: %w", err)
	}
	if err := groups.Validate(mode); err != nil {
		return nil, err
	}
	return &groups, nil
}
