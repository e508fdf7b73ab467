package host

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/domain/ports"
	"github.com/plugwire/plugwire-go/infrastructure/wazero"
)

// DefaultNamespace is the import module host functions are offered under
// unless WithNamespace says otherwise.
const DefaultNamespace = "extism:host/user"

// Signature is the static declaration of a host function: where the guest
// imports it from and the kinds of its parameters and results.
type Signature struct {
	Namespace string
	Name      string
	Params    []entities.ValueKind
	Results   []entities.ValueKind
}

// HostFunc is the body of a host function. inputs and outputs have exactly
// the declared lengths. Neither p nor the values may be retained after the
// body returns. A returned error fails the plugin call with its message.
type HostFunc func(ctx context.Context, p *CurrentPlugin, inputs, outputs []entities.Value, userData any) error

// Function is a host function ready to be linked into plugins. It is
// immutable once built and may be shared by any number of plugins.
type Function struct {
	sig      Signature
	body     HostFunc
	userData any
	onFree   func(userData any)

	thunkOnce sync.Once
	thunk     ports.HostThunk
	freeOnce  sync.Once
	freed     atomic.Bool
}

// FunctionOption configures a Function.
type FunctionOption func(*Function)

// WithUserData attaches an opaque value passed to every invocation.
func WithUserData(v any) FunctionOption {
	return func(f *Function) {
		f.userData = v
	}
}

// WithNamespace overrides the import namespace.
func WithNamespace(ns string) FunctionOption {
	return func(f *Function) {
		if ns != "" {
			f.sig.Namespace = ns
		}
	}
}

// WithOnFree registers a callback run once, with the user data, when the
// function is freed.
func WithOnFree(fn func(userData any)) FunctionOption {
	return func(f *Function) {
		f.onFree = fn
	}
}

// NewFunction declares and binds a host function in one step.
func NewFunction(name string, params, results []entities.ValueKind, body HostFunc, opts ...FunctionOption) *Function {
	f := &Function{
		sig: Signature{
			Namespace: DefaultNamespace,
			Name:      name,
			Params:    append([]entities.ValueKind(nil), params...),
			Results:   append([]entities.ValueKind(nil), results...),
		},
		body: body,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the import name.
func (f *Function) Name() string {
	return f.sig.Name
}

// Namespace returns the import namespace.
func (f *Function) Namespace() string {
	return f.sig.Namespace
}

// Signature returns a copy of the function's declaration.
func (f *Function) Signature() Signature {
	s := f.sig
	s.Params = append([]entities.ValueKind(nil), s.Params...)
	s.Results = append([]entities.ValueKind(nil), s.Results...)
	return s
}

// Free releases the function. The on-free callback runs at most once, and
// plugins built afterwards can no longer link the function. Plugins already
// linked keep working.
func (f *Function) Free() {
	f.freeOnce.Do(func() {
		f.freed.Store(true)
		if f.onFree != nil {
			f.onFree(f.userData)
		}
	})
}

// Freed reports whether Free was called.
func (f *Function) Freed() bool {
	return f.freed.Load()
}

// toImport returns the runtime form of the function.
func (f *Function) toImport() (ports.Import, error) {
	if f.Freed() {
		return ports.Import{}, &errors.UseAfterFreeError{Resource: "host function", ID: f.sig.Name}
	}
	if f.body == nil {
		return ports.Import{}, &errors.MisuseError{Op: "import", Detail: fmt.Sprintf("host function %q has no body", f.sig.Name)}
	}
	f.thunkOnce.Do(func() {
		f.thunk = f.buildThunk()
	})
	return ports.Import{
		Namespace: f.sig.Namespace,
		Name:      f.sig.Name,
		Params:    f.sig.Params,
		Results:   f.sig.Results,
		Thunk:     f.thunk,
	}, nil
}

// buildThunk adapts the body to the runtime's stack convention. Inputs are
// copied out of the stack first so outputs start zeroed and the body never
// sees a half-written result.
func (f *Function) buildThunk() ports.HostThunk {
	nIn, nOut := len(f.sig.Params), len(f.sig.Results)
	return func(ctx context.Context, mem ports.Memory, stack []uint64) (err error) {
		slots := make([]uint64, nIn+nOut)
		copy(slots, stack[:nIn])

		inputs := make([]entities.Value, nIn)
		for i, k := range f.sig.Params {
			inputs[i] = entities.NewValue(k, &slots[i])
		}
		outputs := make([]entities.Value, nOut)
		for i, k := range f.sig.Results {
			outputs[i] = entities.NewValue(k, &slots[nIn+i])
		}

		id, _ := wazero.PluginIDFromContext(ctx)
		p := newCurrentPlugin(id, mem)
		defer p.invalidate()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("host function %q panicked: %v", f.sig.Name, r)
			}
		}()

		if err := f.body(ctx, p, inputs, outputs, f.userData); err != nil {
			return err
		}
		copy(stack, slots[nIn:])
		return nil
	}
}
