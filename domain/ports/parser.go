package ports

import "github.com/plugwire/plugwire-go/domain/entities"

// ManifestParser parses raw manifest bytes into a Manifest.
type ManifestParser interface {
	// Parse unmarshals manifest bytes into a Manifest struct.
	Parse(data []byte) (*entities.Manifest, error)

	// Normalize converts the document to JSON so it can be checked against
	// the manifest schema.
	Normalize(data []byte) ([]byte, error)
}
