package entities

import (
	"encoding/json"
	"time"
)

// Manifest describes one or more wasm sources plus the runtime options a
// plugin is built with.
type Manifest struct {
	Memory       *MemoryOptions    `json:"memory,omitempty" yaml:"memory,omitempty"`
	Config       map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
	AllowedPaths map[string]string `json:"allowed_paths,omitempty" yaml:"allowed_paths,omitempty"`
	Wasm         []WasmSource      `json:"wasm" yaml:"wasm" validate:"required,min=1,dive" jsonschema:"minItems=1" jsonschema_description:"Modules that make up the plugin"`
	AllowedHosts []string          `json:"allowed_hosts,omitempty" yaml:"allowed_hosts,omitempty" validate:"omitempty,dive,required"`
	TimeoutMs    uint64            `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" jsonschema_description:"Per-call timeout in milliseconds"`
}

// WasmSource is a single module: exactly one of Path, URL, or Data is set.
type WasmSource struct {
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Path    string            `json:"path,omitempty" yaml:"path,omitempty"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT" jsonschema:"enum=GET,enum=POST,enum=PUT"`
	// Hash is the hex sha256 of the module bytes.
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty" validate:"omitempty,len=64,hexadecimal" jsonschema:"pattern=^[0-9a-fA-F]{64}$"`
	// Name is the module name other modules import it by. The module named
	// "main", or else the last one, is the plugin's entry module.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Data []byte `json:"data,omitempty" yaml:"data,omitempty"`
}

// MemoryOptions bounds the memory a plugin may use.
type MemoryOptions struct {
	// MaxPages limits linear memory growth, in 64KiB pages.
	MaxPages uint32 `json:"max_pages,omitempty" yaml:"max_pages,omitempty" validate:"omitempty,max=65536" jsonschema:"maximum=65536"`
	// MaxVarBytes limits the total size of plugin variables.
	MaxVarBytes int64 `json:"max_var_bytes,omitempty" yaml:"max_var_bytes,omitempty" validate:"omitempty,min=0"`
}

// MainModuleName is the module name that marks the entry module.
const MainModuleName = "main"

// SourceOption configures a single-source manifest.
type SourceOption func(*WasmSource)

// WithHash sets the expected sha256 of the module.
func WithHash(hash string) SourceOption {
	return func(s *WasmSource) {
		s.Hash = hash
	}
}

// WithName sets the module name.
func WithName(name string) SourceOption {
	return func(s *WasmSource) {
		s.Name = name
	}
}

func newSingleSource(src WasmSource, opts []SourceOption) Manifest {
	for _, opt := range opts {
		opt(&src)
	}
	return Manifest{Wasm: []WasmSource{src}}
}

// ManifestFromPath creates a manifest for one module read from disk.
func ManifestFromPath(path string, opts ...SourceOption) Manifest {
	return newSingleSource(WasmSource{Path: path}, opts)
}

// ManifestFromURL creates a manifest for one module fetched over HTTP.
func ManifestFromURL(url string, opts ...SourceOption) Manifest {
	return newSingleSource(WasmSource{URL: url}, opts)
}

// ManifestFromBytes creates a manifest for one in-memory module.
func ManifestFromBytes(data []byte, opts ...SourceOption) Manifest {
	return newSingleSource(WasmSource{Data: data}, opts)
}

// Timeout returns the per-call timeout, or zero for none.
func (m *Manifest) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond //nolint:gosec // G115: millisecond counts fit in int64
}

// MainIndex returns the index of the entry module.
func (m *Manifest) MainIndex() int {
	for i, w := range m.Wasm {
		if w.Name == MainModuleName {
			return i
		}
	}
	return len(m.Wasm) - 1
}

// Encode serializes the manifest to the JSON form the runtime reads.
func (m *Manifest) Encode() ([]byte, error) {
	return json.Marshal(m)
}
