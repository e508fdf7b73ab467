package wazero

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/domain/ports"
)

// Instance implements ports.Instance. Calls are serialized; the cancel handle
// may be used from any goroutine.
type Instance struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	modCfg   wazero.ModuleConfig
	main     api.Module
	engine   *Engine
	mem      *kernelMemory
	config   map[string]string
	vars     map[string][]byte
	hostErr  *errors.HostFunctionError
	cancel   *cancelState
	id       string
	lastErr  string

	timeout     time.Duration
	varBytes    int64
	maxVarBytes int64
	guestLogs   bool

	// Per-call kernel registers.
	input     uint64
	inputLen  uint64
	output    uint64
	outputLen uint64
	errBlock  uint64

	mu     sync.Mutex
	closed bool
}

func newInstance(id string, e *Engine, m *entities.Manifest) *Instance {
	inst := &Instance{
		id:          id,
		engine:      e,
		mem:         newKernelMemory(e.cfg.MaxMemoryBytes),
		config:      make(map[string]string, len(m.Config)),
		vars:        make(map[string][]byte),
		cancel:      &cancelState{},
		timeout:     e.cfg.DefaultTimeout,
		maxVarBytes: e.cfg.MaxVarBytes,
		guestLogs:   e.cfg.EnableGuestLogs,
	}
	for k, v := range m.Config {
		inst.config[k] = v
	}
	if t := m.Timeout(); t > 0 {
		inst.timeout = t
	}
	if m.Memory != nil && m.Memory.MaxVarBytes > 0 {
		inst.maxVarBytes = m.Memory.MaxVarBytes
	}
	return inst
}

// instantiateMain (re)creates the main module from its compiled form.
func (i *Instance) instantiateMain(ctx context.Context) error {
	mod, err := i.runtime.InstantiateModule(WithPluginID(ctx, i.id), i.compiled, i.modCfg)
	if err != nil {
		return fmt.Errorf("failed to instantiate main module: %w", err)
	}
	i.main = mod
	return nil
}

// ID returns the instance identifier.
func (i *Instance) ID() string {
	return i.id
}

// SetConfig merges values into the plugin config; nil values delete keys.
func (i *Instance) SetConfig(values map[string]*string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return &errors.UseAfterFreeError{Resource: "plugin", ID: i.id}
	}
	for k, v := range values {
		if v == nil {
			delete(i.config, k)
			continue
		}
		i.config[k] = *v
	}
	return nil
}

// FunctionExists reports whether the main module exports name.
func (i *Instance) FunctionExists(name string) bool {
	if i.compiled == nil {
		return false
	}
	_, ok := i.compiled.ExportedFunctions()[name]
	return ok
}

// Exports lists the main module's exported functions, sorted.
func (i *Instance) Exports() []string {
	if i.compiled == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(i.compiled.ExportedFunctions()))
}

// Call runs the export name with input.
func (i *Instance) Call(ctx context.Context, name string, input []byte) (int32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return 0, &errors.UseAfterFreeError{Resource: "plugin", ID: i.id}
	}
	if !i.FunctionExists(name) {
		i.lastErr = fmt.Sprintf("function %q not found", name)
		return 0, &errors.FunctionNotFoundError{Name: name}
	}

	// A cancelled or timed out call closes the module; start over from the
	// compiled module so later calls are unaffected.
	if i.main == nil || i.main.IsClosed() {
		slog.DebugContext(ctx, "wazero: re-instantiating main module", "plugin", i.id)
		if err := i.instantiateMain(ctx); err != nil {
			i.lastErr = err.Error()
			return 0, err
		}
	}
	fn := i.main.ExportedFunction(name)
	if fn == nil {
		return 0, &errors.FunctionNotFoundError{Name: name}
	}

	i.resetKernel()
	offset, err := i.mem.allocBytes(input)
	if err != nil {
		i.lastErr = err.Error()
		return 0, err
	}
	i.input, i.inputLen = offset, uint64(len(input))

	callCtx, cancel := i.callContext(WithPluginID(ctx, i.id))
	defer cancel()
	i.cancel.begin(cancel)
	defer i.cancel.end()

	results, err := fn.Call(callCtx)
	if err != nil {
		return i.callFailed(callCtx, name, err)
	}

	var rc int32
	if len(results) > 0 {
		rc = int32(uint32(results[0])) //nolint:gosec // G115: i32 result
	}
	if rc != 0 {
		i.lastErr = i.guestError()
		slog.DebugContext(ctx, "wazero: plugin returned non-zero", "plugin", i.id, "function", name, "rc", rc)
	}
	return rc, nil
}

func (i *Instance) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout > 0 {
		return context.WithTimeout(ctx, i.timeout)
	}
	return context.WithCancel(ctx)
}

// callFailed classifies a failed call and records its message. The message
// comes from the host function that failed, then the cancellation cause, then
// the guest's error_set message, then the runtime.
func (i *Instance) callFailed(ctx context.Context, name string, err error) (int32, error) {
	var exitErr *sys.ExitError
	if stdErrors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 0:
			return 0, nil
		case sys.ExitCodeContextCanceled:
			i.lastErr = "plugin call canceled"
			return 0, fmt.Errorf("%s: %w", i.lastErr, context.Canceled)
		case sys.ExitCodeDeadlineExceeded:
			i.lastErr = "plugin call timed out"
			return 0, fmt.Errorf("%s: %w", i.lastErr, context.DeadlineExceeded)
		default:
			i.lastErr = fmt.Sprintf("plugin exited with code %d", exitErr.ExitCode())
			return int32(exitErr.ExitCode()), err //nolint:gosec // G115: exit codes are small
		}
	}

	switch {
	case i.hostErr != nil:
		i.lastErr = i.hostErr.Err.Error()
		err = i.hostErr
	case ctx.Err() != nil:
		i.lastErr = "plugin call interrupted: " + ctx.Err().Error()
		err = ctx.Err()
	default:
		if msg := i.guestError(); msg != "" {
			i.lastErr = msg
		} else {
			i.lastErr = err.Error()
		}
	}
	slog.DebugContext(ctx, "wazero: plugin call failed", "plugin", i.id, "function", name, "error", i.lastErr)
	return 0, err
}

// guestError returns the message the guest recorded with error_set.
func (i *Instance) guestError() string {
	if i.errBlock == 0 {
		return ""
	}
	b, ok := i.mem.bytesAt(i.errBlock)
	if !ok {
		return ""
	}
	return string(b)
}

// resetKernel clears call-scoped kernel state.
func (i *Instance) resetKernel() {
	i.mem.reset()
	i.input, i.inputLen = 0, 0
	i.output, i.outputLen = 0, 0
	i.errBlock = 0
	i.hostErr = nil
	i.lastErr = ""
}

// recordHostError keeps the first host function error of the current call.
func (i *Instance) recordHostError(err *errors.HostFunctionError) {
	if i.hostErr == nil {
		i.hostErr = err
	}
}

// LastError returns the message of the last failed call.
func (i *Instance) LastError() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// Output returns the bytes the guest set with output_set during the last call.
// The slice aliases kernel memory and is valid until the next call.
func (i *Instance) Output() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.outputLen == 0 {
		return nil
	}
	b, ok := i.mem.Read(i.output, i.outputLen)
	if !ok {
		return nil
	}
	return b
}

// Memory returns the kernel memory.
func (i *Instance) Memory() ports.Memory {
	return i.mem
}

// CancelHandle returns the handle that aborts the in-flight call.
func (i *Instance) CancelHandle() ports.Canceller {
	return i.cancel
}

// Close aborts any running call and releases the instance's runtime.
func (i *Instance) Close(ctx context.Context) error {
	i.cancel.Cancel()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.cancel.close()
	i.engine.forget(i.id)

	slog.DebugContext(ctx, "wazero: closing plugin", "plugin", i.id)
	return i.runtime.Close(ctx)
}
