package ports

import "github.com/plugwire/plugwire-go/domain/entities"

// ManifestValidator checks a manifest before it reaches the runtime.
type ManifestValidator interface {
	// ValidateDocument checks the raw JSON document against the manifest schema.
	ValidateDocument(raw []byte) (*entities.ValidationResult, error)

	// Validate checks the semantic rules of a parsed manifest.
	Validate(manifest *entities.Manifest) (*entities.ValidationResult, error)
}
