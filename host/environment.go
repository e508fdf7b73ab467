package host

import (
	"context"
	"fmt"
	"reflect"

	"github.com/iancoleman/strcase"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/hostfuncs"
)

// HostEnvironment supplies host functions to NewPlugin.
type HostEnvironment interface {
	Functions() ([]*Function, error)
}

// Method is the shape BindMethods expects of a capability object's methods.
type Method = func(ctx context.Context, p *CurrentPlugin, inputs, outputs []entities.Value) error

var methodType = reflect.TypeOf((Method)(nil))

// Environment groups host function declarations and binds bodies to them.
// Functions come out in declaration order.
type Environment struct {
	namespace string
	decls     []Signature
	index     map[string]int
	bound     map[string]*Function
}

// NewEnvironment creates an empty environment. Declarations without a
// namespace get namespace, or DefaultNamespace when it is empty.
func NewEnvironment(namespace string) *Environment {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Environment{
		namespace: namespace,
		index:     make(map[string]int),
		bound:     make(map[string]*Function),
	}
}

// Declare adds a declaration. Names are unique within an environment.
func (e *Environment) Declare(sig Signature) error {
	if sig.Name == "" {
		return fmt.Errorf("host function name cannot be empty")
	}
	if _, exists := e.index[sig.Name]; exists {
		return fmt.Errorf("host function %q already declared", sig.Name)
	}
	for _, k := range append(append([]entities.ValueKind(nil), sig.Params...), sig.Results...) {
		if !k.Valid() {
			return fmt.Errorf("host function %q: invalid value kind %s", sig.Name, k)
		}
	}
	if sig.Namespace == "" {
		sig.Namespace = e.namespace
	}
	e.index[sig.Name] = len(e.decls)
	e.decls = append(e.decls, sig)
	return nil
}

// Bind attaches a body to a declared name.
func (e *Environment) Bind(name string, body HostFunc, opts ...FunctionOption) error {
	i, ok := e.index[name]
	if !ok {
		return fmt.Errorf("host function %q is not declared", name)
	}
	if _, done := e.bound[name]; done {
		return fmt.Errorf("host function %q is already bound", name)
	}
	if body == nil {
		return fmt.Errorf("host function %q: nil body", name)
	}
	sig := e.decls[i]
	opts = append([]FunctionOption{WithNamespace(sig.Namespace)}, opts...)
	e.bound[name] = NewFunction(name, sig.Params, sig.Results, body, opts...)
	return nil
}

// BindMethods declares sigs and binds each declaration still unbound to the
// method of obj named after it: "host_reflect" resolves to HostReflect. The
// method must have the Method signature; obj is passed as user data.
func (e *Environment) BindMethods(obj any, sigs ...Signature) error {
	for _, sig := range sigs {
		if err := e.Declare(sig); err != nil {
			return err
		}
	}

	v := reflect.ValueOf(obj)
	if !v.IsValid() {
		return fmt.Errorf("cannot bind methods of nil")
	}
	for _, sig := range e.decls {
		if _, done := e.bound[sig.Name]; done {
			continue
		}
		methodName := exportedName(sig.Name)
		m := v.MethodByName(methodName)
		if !m.IsValid() {
			return fmt.Errorf("host function %q: %T has no method %s", sig.Name, obj, methodName)
		}
		if m.Type() != methodType {
			return fmt.Errorf("host function %q: method %s has type %s, want %s", sig.Name, methodName, m.Type(), methodType)
		}
		call := m.Interface().(Method)
		body := func(ctx context.Context, p *CurrentPlugin, in, out []entities.Value, _ any) error {
			return call(ctx, p, in, out)
		}
		if err := e.Bind(sig.Name, body, WithUserData(obj)); err != nil {
			return err
		}
	}
	return nil
}

// Functions returns the bound functions in declaration order. Every
// declaration must be bound.
func (e *Environment) Functions() ([]*Function, error) {
	out := make([]*Function, 0, len(e.decls))
	for _, sig := range e.decls {
		f, ok := e.bound[sig.Name]
		if !ok {
			return nil, fmt.Errorf("host function %q is declared but not bound", sig.Name)
		}
		out = append(out, f)
	}
	return out, nil
}

// exportedName maps snake_case, kebab-case and lower camelCase names to an
// exported Go method name.
func exportedName(name string) string {
	return strcase.ToCamel(name)
}

type functionList []*Function

func (l functionList) Functions() ([]*Function, error) {
	return l, nil
}

// FromRegistry exposes every handler of reg as an (i64) -> (i64) host
// function. The guest passes the offset of a request block and receives the
// offset of the response block; the handler sees the caller's plugin ID.
func FromRegistry(reg *hostfuncs.HandlerRegistry, opts ...FunctionOption) HostEnvironment {
	ptr := []entities.ValueKind{entities.ValueKindPtr}
	fns := make(functionList, 0, reg.Len())
	for _, name := range reg.Names() {
		body := func(ctx context.Context, p *CurrentPlugin, in, out []entities.Value, _ any) error {
			var payload []byte
			if offset, err := in[0].Offset(); err != nil {
				return err
			} else if offset != 0 {
				if payload, err = p.InputBytes(in[0]); err != nil {
					return err
				}
			}
			resp, err := reg.Invoke(hostfuncs.WithCaller(ctx, p.ID()), name, payload)
			if err != nil {
				return fmt.Errorf("host function %q: %w", name, err)
			}
			return p.SetReturn(out[0], resp)
		}
		fns = append(fns, NewFunction(name, ptr, ptr, body, opts...))
	}
	return fns
}
