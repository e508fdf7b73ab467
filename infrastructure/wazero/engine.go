package wazero

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/ports"
	"github.com/plugwire/plugwire-go/infrastructure/fetch"
)

// wasmMagic starts every wasm binary.
var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// Engine implements ports.Engine on wazero. Every instance gets its own
// wazero.Runtime; compiled code is shared through one compilation cache.
type Engine struct {
	cache     wazero.CompilationCache
	fetcher   ports.ModuleFetcher
	cfg       entities.RuntimeConfig
	instances map[string]*Instance
	mu        sync.Mutex
	closed    bool
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	cache   wazero.CompilationCache
	fetcher ports.ModuleFetcher
	runtime entities.RuntimeConfig
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		runtime: entities.DefaultRuntimeConfig(),
	}
}

// WithRuntimeConfig sets the engine-wide defaults.
func WithRuntimeConfig(cfg entities.RuntimeConfig) EngineOption {
	return func(c *engineConfig) {
		c.runtime = cfg
	}
}

// WithFetcher sets the fetcher used for url sources.
func WithFetcher(f ports.ModuleFetcher) EngineOption {
	return func(c *engineConfig) {
		c.fetcher = f
	}
}

// WithCompilationCache shares an existing compilation cache, for example one
// created with wazero.NewCompilationCacheWithDir.
func WithCompilationCache(cache wazero.CompilationCache) EngineOption {
	return func(c *engineConfig) {
		c.cache = cache
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...EngineOption) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cache == nil {
		cfg.cache = wazero.NewCompilationCache()
	}
	if cfg.fetcher == nil {
		cfg.fetcher = fetch.New()
	}
	return &Engine{
		cache:     cfg.cache,
		fetcher:   cfg.fetcher,
		cfg:       cfg.runtime,
		instances: make(map[string]*Instance),
	}
}

// Instantiate builds a plugin from a wasm binary or a JSON manifest.
func (e *Engine) Instantiate(ctx context.Context, source []byte, imports []ports.Import, wasi bool) (ports.Instance, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("engine is closed")
	}

	manifest, err := decodeSource(source)
	if err != nil {
		return nil, err
	}
	if err := validateImports(imports); err != nil {
		return nil, err
	}

	binaries, err := e.loadModules(ctx, manifest)
	if err != nil {
		return nil, err
	}

	inst := newInstance(uuid.NewString(), e, manifest)

	rcfg := wazero.NewRuntimeConfig().
		WithCompilationCache(e.cache).
		WithCloseOnContextDone(true)
	if manifest.Memory != nil && manifest.Memory.MaxPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(manifest.Memory.MaxPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rcfg)
	inst.runtime = r

	if err := e.link(ctx, inst, manifest, binaries, imports, wasi); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	e.mu.Lock()
	e.instances[inst.id] = inst
	e.mu.Unlock()

	slog.DebugContext(ctx, "wazero: instantiated plugin",
		"plugin", inst.id, "modules", len(binaries), "imports", len(imports), "wasi", wasi)
	return inst, nil
}

// link instantiates host modules, dependency modules, and finally the main module.
func (e *Engine) link(ctx context.Context, inst *Instance, m *entities.Manifest, binaries [][]byte, imports []ports.Import, wasi bool) error {
	r := inst.runtime
	if wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return fmt.Errorf("failed to instantiate WASI: %w", err)
		}
	}
	if err := instantiateKernel(ctx, r, inst); err != nil {
		return fmt.Errorf("failed to instantiate kernel: %w", err)
	}
	if err := registerImports(ctx, r, inst, imports); err != nil {
		return err
	}

	mainIdx := m.MainIndex()
	for i, bin := range binaries {
		if i == mainIdx {
			continue
		}
		compiled, err := r.CompileModule(ctx, bin)
		if err != nil {
			return fmt.Errorf("failed to compile module %q: %w", m.Wasm[i].Name, err)
		}
		if _, err := r.InstantiateModule(ctx, compiled, e.moduleConfig(m, m.Wasm[i].Name, wasi)); err != nil {
			return fmt.Errorf("failed to instantiate module %q: %w", m.Wasm[i].Name, err)
		}
	}

	compiled, err := r.CompileModule(ctx, binaries[mainIdx])
	if err != nil {
		return fmt.Errorf("failed to compile main module: %w", err)
	}
	inst.compiled = compiled
	inst.modCfg = e.moduleConfig(m, entities.MainModuleName, wasi)
	return inst.instantiateMain(ctx)
}

func (e *Engine) moduleConfig(m *entities.Manifest, name string, wasi bool) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")
	if !wasi {
		return cfg
	}

	cfg = cfg.WithSysWalltime().WithSysNanotime().WithRandSource(rand.Reader)
	if len(m.AllowedPaths) > 0 {
		fs := wazero.NewFSConfig()
		for host, guest := range m.AllowedPaths {
			if ro, ok := strings.CutPrefix(host, "ro:"); ok {
				fs = fs.WithReadOnlyDirMount(ro, guest)
			} else {
				fs = fs.WithDirMount(host, guest)
			}
		}
		cfg = cfg.WithFSConfig(fs)
	}
	return cfg
}

// Close releases every live instance and the compilation cache.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	live := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		live = append(live, inst)
	}
	e.mu.Unlock()

	for _, inst := range live {
		if err := inst.Close(ctx); err != nil {
			slog.ErrorContext(ctx, "wazero: failed to close instance", "plugin", inst.id, "error", err)
		}
	}
	return e.cache.Close(ctx)
}

// Len returns the number of live instances.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.instances, id)
	e.mu.Unlock()
}

// decodeSource turns the Instantiate source into a manifest.
func decodeSource(source []byte) (*entities.Manifest, error) {
	if bytes.HasPrefix(source, wasmMagic) {
		m := entities.ManifestFromBytes(source)
		return &m, nil
	}
	var m entities.Manifest
	if err := json.Unmarshal(source, &m); err != nil {
		return nil, fmt.Errorf("source is neither a wasm module nor a JSON manifest: %w", err)
	}
	if len(m.Wasm) == 0 {
		return nil, fmt.Errorf("manifest has no wasm sources")
	}
	return &m, nil
}

// loadModules resolves every source to module bytes and checks hashes.
func (e *Engine) loadModules(ctx context.Context, m *entities.Manifest) ([][]byte, error) {
	out := make([][]byte, len(m.Wasm))
	for i, src := range m.Wasm {
		var (
			data []byte
			err  error
		)
		switch {
		case len(src.Data) > 0:
			data = src.Data
		case src.Path != "":
			data, err = os.ReadFile(src.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to read module %s: %w", src.Path, err)
			}
		case src.URL != "":
			data, err = e.fetcher.Fetch(ctx, src)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("wasm source %d has no data, path, or url", i)
		}

		if src.Hash != "" {
			sum := sha256.Sum256(data)
			if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, src.Hash) {
				return nil, fmt.Errorf("hash mismatch for wasm source %d: expected %s, got %s", i, src.Hash, got)
			}
		}
		out[i] = data
	}
	return out, nil
}
