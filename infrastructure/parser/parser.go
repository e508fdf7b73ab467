// Package parser turns manifest documents into entities.Manifest values.
package parser

import (
	"bytes"

	"github.com/plugwire/plugwire-go/domain/ports"
)

// ForContent picks a parser by looking at the document: a JSON object starts
// with '{', anything else is read as YAML.
func ForContent(data []byte) ports.ManifestParser {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if bytes.HasPrefix(trimmed, []byte("{")) {
		return NewJSONManifestParser()
	}
	return NewYamlManifestParser()
}
