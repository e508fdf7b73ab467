// Package schema provides JSON schema generation for manifests and plugin
// configuration structs.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/plugwire/plugwire-go/domain/entities"
)

// ManifestSchemaID is the $id of the generated manifest schema.
const ManifestSchemaID = "https://plugwire.dev/schemas/manifest.json"

var (
	manifestOnce   sync.Once
	manifestSchema []byte
	manifestErr    error
)

// GenerateSchema reflects v, typically a plugin config struct, into a JSON
// Schema document. Properties follow the json tags; fields without omitempty
// are required.
func GenerateSchema(v any) ([]byte, error) {
	out, err := json.MarshalIndent(reflectSchema(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}

func reflectSchema(v any) *jsonschema.Schema {
	r := jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(v)
}

// ManifestSchema returns the JSON schema of entities.Manifest. The result is
// generated once and shared; callers must not modify it.
func ManifestSchema() ([]byte, error) {
	manifestOnce.Do(func() {
		s := reflectSchema(&entities.Manifest{})
		s.ID = jsonschema.ID(ManifestSchemaID)
		s.Title = "plugwire manifest"
		manifestSchema, manifestErr = json.MarshalIndent(s, "", "  ")
		if manifestErr != nil {
			manifestErr = fmt.Errorf("failed to marshal manifest schema: %w", manifestErr)
		}
	})
	return manifestSchema, manifestErr
}
