package host

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/domain/ports"
	"github.com/plugwire/plugwire-go/host/registry"
	"github.com/plugwire/plugwire-go/infrastructure/wazero"
)

// WasmBytes is a raw wasm binary.
type WasmBytes []byte

// ManifestBytes is a JSON or YAML manifest document.
type ManifestBytes []byte

// Source is what a plugin can be built from.
type Source interface {
	entities.Manifest | *entities.Manifest | WasmBytes | ManifestBytes
}

var (
	defaultEngineOnce sync.Once
	defaultEngine     *wazero.Engine
)

// DefaultEngine returns the process-wide engine plugins use unless WithEngine
// is given.
func DefaultEngine() ports.Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = wazero.NewEngine()
	})
	return defaultEngine
}

// Plugin is a live plugin instance. A Plugin serves one call at a time.
type Plugin struct {
	registry  *registry.Registry
	cancel    *CancelHandle
	cleanup   runtime.Cleanup
	id        string
	functions []*Function
	ref       registry.Ref
	freed     atomic.Bool
}

type reclaim struct {
	registry *registry.Registry
	ref      registry.Ref
	id       string
}

// NewPlugin builds a plugin from source. Any failure is a
// PluginCreationError carrying the underlying message.
func NewPlugin[S Source](ctx context.Context, source S, opts ...Option) (*Plugin, error) {
	cfg := defaultPluginConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := newPlugin(ctx, any(source), cfg)
	if err != nil {
		var pce *errors.PluginCreationError
		if stdErrors.As(err, &pce) {
			return nil, err
		}
		return nil, &errors.PluginCreationError{Message: err.Error(), Err: err}
	}
	return p, nil
}

func newPlugin(ctx context.Context, source any, cfg pluginConfig) (*Plugin, error) {
	if cfg.engine == nil {
		cfg.engine = DefaultEngine()
	}
	if cfg.registry == nil {
		cfg.registry = registry.Default()
	}

	encoded, err := encodeSource(source, &cfg)
	if err != nil {
		return nil, err
	}

	functions, err := collectFunctions(cfg)
	if err != nil {
		return nil, err
	}
	imports := make([]ports.Import, 0, len(functions))
	for _, f := range functions {
		imp, err := f.toImport()
		if err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}

	inst, err := cfg.engine.Instantiate(ctx, encoded, imports, cfg.wasi)
	if err != nil {
		return nil, err
	}

	if cfg.config != nil {
		values := make(map[string]*string, len(cfg.config))
		for k, v := range cfg.config {
			values[k] = &v
		}
		if err := inst.SetConfig(values); err != nil {
			_ = inst.Close(ctx)
			return nil, err
		}
	}

	ref, err := cfg.registry.Register(inst)
	if err != nil {
		_ = inst.Close(ctx)
		return nil, err
	}

	p := &Plugin{
		registry:  cfg.registry,
		ref:       ref,
		id:        inst.ID(),
		functions: functions,
		cancel:    &CancelHandle{c: inst.CancelHandle()},
	}
	// A plugin dropped without Free is released when collected.
	p.cleanup = runtime.AddCleanup(p, func(r reclaim) {
		if ok, err := r.registry.Release(context.Background(), r.ref); ok {
			slog.Debug("host: reclaimed unreachable plugin", "plugin", r.id, "error", err)
		}
	}, reclaim{registry: cfg.registry, ref: ref, id: p.id})

	slog.DebugContext(ctx, "host: plugin created", "plugin", p.id, "functions", len(functions), "wasi", cfg.wasi)
	return p, nil
}

func encodeSource(source any, cfg *pluginConfig) ([]byte, error) {
	loader := func() (*Loader, error) {
		if cfg.loader == nil {
			l, err := NewLoader()
			if err != nil {
				return nil, err
			}
			cfg.loader = l
		}
		return cfg.loader, nil
	}
	encodeManifest := func(m *entities.Manifest) ([]byte, error) {
		if m == nil {
			return nil, &errors.ManifestError{Err: fmt.Errorf("nil manifest")}
		}
		l, err := loader()
		if err != nil {
			return nil, err
		}
		if err := l.Validate(m); err != nil {
			return nil, &errors.ManifestError{Err: err}
		}
		return m.Encode()
	}

	switch s := source.(type) {
	case entities.Manifest:
		return encodeManifest(&s)
	case *entities.Manifest:
		return encodeManifest(s)
	case WasmBytes:
		if !bytes.HasPrefix(s, wasmMagic) {
			return nil, fmt.Errorf("not a wasm binary")
		}
		return s, nil
	case ManifestBytes:
		l, err := loader()
		if err != nil {
			return nil, err
		}
		m, err := l.Load(s)
		if err != nil {
			return nil, err
		}
		return m.Encode()
	}
	return nil, fmt.Errorf("unsupported plugin source %T", source)
}

var wasmMagic = []byte("\x00asm")

func collectFunctions(cfg pluginConfig) ([]*Function, error) {
	functions := append([]*Function(nil), cfg.functions...)
	for _, env := range cfg.envs {
		if env == nil {
			continue
		}
		fns, err := env.Functions()
		if err != nil {
			return nil, err
		}
		functions = append(functions, fns...)
	}
	for _, f := range functions {
		if f == nil {
			return nil, &errors.MisuseError{Op: "import", Detail: "nil host function"}
		}
	}
	return functions, nil
}

// instance returns the live runtime instance.
func (p *Plugin) instance() (ports.Instance, error) {
	if p.freed.Load() {
		return nil, &errors.UseAfterFreeError{Resource: "plugin", ID: p.id}
	}
	inst, ok := p.registry.Lookup(p.ref)
	if !ok {
		return nil, &errors.UseAfterFreeError{Resource: "plugin", ID: p.id}
	}
	return inst, nil
}

// ID returns the plugin's unique ID.
func (p *Plugin) ID() string {
	return p.id
}

// Alive reports whether the plugin has not been freed.
func (p *Plugin) Alive() bool {
	_, err := p.instance()
	return err == nil
}

// Functions returns the host functions the plugin was linked with.
func (p *Plugin) Functions() []*Function {
	return append([]*Function(nil), p.functions...)
}

// HasFunction reports whether the plugin exports name. After Free it fails
// with UseAfterFreeError.
func (p *Plugin) HasFunction(name string) (bool, error) {
	inst, err := p.instance()
	if err != nil {
		return false, err
	}
	defer runtime.KeepAlive(p)
	return inst.FunctionExists(name), nil
}

// Exports lists the functions the plugin exports.
func (p *Plugin) Exports() ([]string, error) {
	inst, err := p.instance()
	if err != nil {
		return nil, err
	}
	defer runtime.KeepAlive(p)
	return inst.Exports(), nil
}

// SetConfig merges values into the plugin config.
func (p *Plugin) SetConfig(values map[string]string) error {
	inst, err := p.instance()
	if err != nil {
		return err
	}
	defer runtime.KeepAlive(p)
	set := make(map[string]*string, len(values))
	for k, v := range values {
		set[k] = &v
	}
	return inst.SetConfig(set)
}

// Call invokes the export name with input and returns a copy of its output.
// A trap, a host function error, cancellation or a non-zero return code is a
// CallError with the runtime's message.
func (p *Plugin) Call(ctx context.Context, name string, input []byte) ([]byte, error) {
	inst, err := p.instance()
	if err != nil {
		return nil, err
	}
	// The cleanup registered in NewPlugin closes the instance once p is
	// unreachable; p must outlive the call.
	defer runtime.KeepAlive(p)

	rc, err := inst.Call(ctx, name, input)
	if err == nil && rc == 0 {
		return bytes.Clone(inst.Output()), nil
	}
	// A bare UseAfterFreeError means this instance was released. Host
	// function failures arrive wrapped in HostFunctionError.
	if _, closed := err.(*errors.UseAfterFreeError); closed { //nolint:errorlint // only the unwrapped error is the instance's own
		return nil, err
	}

	msg := inst.LastError()
	if msg == "" && err != nil {
		msg = err.Error()
	}
	if err == nil {
		err = fmt.Errorf("plugin returned %d", rc)
	}
	if msg == "" {
		err = fmt.Errorf("%w: %w", errors.ErrCallFailed, err)
	}
	return nil, &errors.CallError{Function: name, Message: msg, Err: err}
}

// CancelHandle returns the handle that aborts this plugin's in-flight call.
// It can be taken at any time, including after Free.
func (p *Plugin) CancelHandle() *CancelHandle {
	return p.cancel
}

// Free releases the plugin. Later calls are no-ops.
func (p *Plugin) Free(ctx context.Context) error {
	if !p.freed.CompareAndSwap(false, true) {
		return nil
	}
	p.cleanup.Stop()
	_, err := p.registry.Release(ctx, p.ref)
	return err
}
