// Package template renders manifest documents with text/template so one
// manifest can serve several deployments. Placeholders read caller-supplied
// variables as {{ .vars.name }} and the process environment through the env
// function.
package template

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/plugwire/plugwire-go/domain/ports"
)

type rendererConfig struct {
	lookupEnv func(string) (string, bool)
	strict    bool
}

// RendererOption configures a Renderer.
type RendererOption func(*rendererConfig)

// WithStrict makes a reference to an unset variable an error. On by default;
// when off, unset variables render as empty strings.
func WithStrict(enabled bool) RendererOption {
	return func(c *rendererConfig) {
		c.strict = enabled
	}
}

// WithEnvLookup replaces os.LookupEnv as the source of the env function.
func WithEnvLookup(fn func(string) (string, bool)) RendererOption {
	return func(c *rendererConfig) {
		c.lookupEnv = fn
	}
}

// Renderer implements ports.ManifestRenderer on text/template.
type Renderer struct {
	config rendererConfig
}

// NewRenderer creates a Renderer.
func NewRenderer(opts ...RendererOption) ports.ManifestRenderer {
	cfg := rendererConfig{lookupEnv: os.LookupEnv, strict: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Renderer{config: cfg}
}

// Render expands raw. env "NAME" yields the variable's value; in strict mode
// an unset variable fails the render, as does a missing .vars key.
func (r *Renderer) Render(raw []byte, vars map[string]string) ([]byte, error) {
	tmpl := template.New("manifest").Funcs(template.FuncMap{
		"env": func(name string) (string, error) {
			v, ok := r.config.lookupEnv(name)
			if !ok && r.config.strict {
				return "", fmt.Errorf("environment variable %s is not set", name)
			}
			return v, nil
		},
	})
	if r.config.strict {
		tmpl = tmpl.Option("missingkey=error")
	} else {
		tmpl = tmpl.Option("missingkey=zero")
	}

	tmpl, err := tmpl.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest template: %w", err)
	}

	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{"vars": vars}); err != nil {
		return nil, fmt.Errorf("failed to render manifest template: %w", err)
	}
	return buf.Bytes(), nil
}
