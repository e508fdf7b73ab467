package host

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/plugwire/plugwire-go/application/template"
	"github.com/plugwire/plugwire-go/application/validation"
	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/domain/ports"
	"github.com/plugwire/plugwire-go/infrastructure/parser"
)

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	parser    ports.ManifestParser // nil: chosen by content
	validator ports.ManifestValidator
	renderer  ports.ManifestRenderer
	vars      map[string]string
	baseDir   string
	validate  bool
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		validate: true,
	}
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithParser forces a manifest parser instead of picking JSON or YAML by content.
func WithParser(p ports.ManifestParser) LoaderOption {
	return func(c *loaderConfig) {
		c.parser = p
	}
}

// WithValidator sets the manifest validator.
func WithValidator(v ports.ManifestValidator) LoaderOption {
	return func(c *loaderConfig) {
		c.validator = v
	}
}

// WithValidation enables or disables validation. Enabled by default.
func WithValidation(enabled bool) LoaderOption {
	return func(c *loaderConfig) {
		c.validate = enabled
	}
}

// WithVars renders manifests as templates before parsing them, with vars
// available as {{ .vars.name }}.
func WithVars(vars map[string]string) LoaderOption {
	return func(c *loaderConfig) {
		c.vars = vars
		if c.renderer == nil {
			c.renderer = template.NewRenderer()
		}
	}
}

// WithRenderer sets the template renderer manifests go through before parsing.
func WithRenderer(r ports.ManifestRenderer) LoaderOption {
	return func(c *loaderConfig) {
		c.renderer = r
	}
}

// WithBaseDir sets the directory relative path sources are resolved against
// when loading from bytes.
func WithBaseDir(dir string) LoaderOption {
	return func(c *loaderConfig) {
		c.baseDir = dir
	}
}

// Loader reads manifests: render, parse, validate, then resolve relative paths.
type Loader struct {
	config loaderConfig
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.validate && cfg.validator == nil {
		v, err := validation.Default()
		if err != nil {
			return nil, err
		}
		cfg.validator = v
	}
	return &Loader{config: cfg}, nil
}

// LoadFile loads the manifest at path. Relative path sources are resolved
// against the manifest's directory.
func (l *Loader) LoadFile(path string) (*entities.Manifest, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: loading caller-named manifests is the point
	if err != nil {
		return nil, &errors.ManifestError{Source: path, Err: err}
	}
	m, err := l.load(raw, filepath.Dir(path))
	if err != nil {
		return nil, &errors.ManifestError{Source: path, Err: err}
	}
	return m, nil
}

// Load loads a JSON or YAML manifest from raw.
func (l *Loader) Load(raw []byte) (*entities.Manifest, error) {
	m, err := l.load(raw, l.config.baseDir)
	if err != nil {
		return nil, &errors.ManifestError{Err: err}
	}
	return m, nil
}

func (l *Loader) load(raw []byte, baseDir string) (*entities.Manifest, error) {
	if l.config.renderer != nil {
		var err error
		if raw, err = l.config.renderer.Render(raw, l.config.vars); err != nil {
			return nil, err
		}
	}

	p := l.config.parser
	if p == nil {
		p = parser.ForContent(raw)
	}

	if l.config.validate {
		doc, err := p.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		res, err := l.config.validator.ValidateDocument(doc)
		if err != nil {
			return nil, err
		}
		if err := validation.Summary(res); err != nil {
			return nil, err
		}
	}

	m, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if l.config.validate {
		if err := l.Validate(m); err != nil {
			return nil, err
		}
	}

	if baseDir != "" {
		for i := range m.Wasm {
			if src := &m.Wasm[i]; src.Path != "" && !filepath.IsAbs(src.Path) {
				src.Path = filepath.Join(baseDir, src.Path)
			}
		}
	}
	return m, nil
}

// Validate applies the semantic rules to an already decoded manifest.
func (l *Loader) Validate(m *entities.Manifest) error {
	if l.config.validator == nil {
		return nil
	}
	res, err := l.config.validator.Validate(m)
	if err != nil {
		return err
	}
	return validation.Summary(res)
}
