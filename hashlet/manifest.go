// Package hashlet resolves imported bundles to local source files.
//
// A hashlet is a directory holding a hashlet.json manifest and the source
// file it names. The resolver fetches bundles through a Fetcher, validates
// the manifest, and caches the source under a content-addressed key so
// repeated imports of the same bundle at the same revision never fetch
// twice.
package hashlet

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/mod/semver"
)

// Manifest is the hashlet.json contract a bundle ships with.
type Manifest struct {
	Name        string `json:"name"`
	Revision    string `json:"revision"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
}

const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "revision", "source"],
  "properties": {
    "name": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
    "revision": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "source": {"type": "string", "minLength": 1},
    "description": {"type": "string"}
  },
  "additionalProperties": false
}`

var manifestSchema = mustCompileManifestSchema()

func mustCompileManifestSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	const url = "hashlet://manifest.schema.json"
	if err := compiler.AddResource(url, strings.NewReader(manifestSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(url)
}

// ParseManifest validates raw hashlet.json bytes against the manifest
// schema and decodes them.
func ParseManifest(data []byte) (*Manifest, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest is not valid JSON: %w", err)
	}
	if err := manifestSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("manifest rejected: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest decode: %w", err)
	}
	// The schema's revision pattern is necessary but semver is the contract.
	if !semver.IsValid("v" + m.Revision) {
		return nil, fmt.Errorf("manifest revision %q is not a valid semantic version", m.Revision)
	}
	return &m, nil
}
