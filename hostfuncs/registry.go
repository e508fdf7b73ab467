package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// HandlerRegistry is an immutable set of named host functions. Lookups are
// lock-free, so one registry can serve any number of plugins concurrently.
type HandlerRegistry struct {
	handlers map[string]ByteHandler
	names    []string
}

type registryBuilder struct {
	handlers   map[string]ByteHandler
	middleware []Middleware
	errs       []error
}

// NewRegistry builds a HandlerRegistry. Every registration problem (empty or
// duplicate names) is reported, joined into one error.
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
//	    hostfuncs.WithBundle(hostfuncs.ClockBundle()),
//	    hostfuncs.WithHandler("greet", greet),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{handlers: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	wrapped := make(map[string]ByteHandler, len(b.handlers))
	for name, h := range b.handlers {
		// Reverse order so the first middleware is outermost.
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](h)
		}
		wrapped[name] = h
	}

	return &HandlerRegistry{
		handlers: wrapped,
		names:    slices.Sorted(maps.Keys(wrapped)),
	}, nil
}

// Invoke dispatches a call by name. An unknown name yields a NOT_FOUND
// ErrorResponse, not an error.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return NewNotFoundError(name).ToJSON(), nil
	}
	return handler(HostContextFrom(ctx, name), payload)
}

// Has reports whether name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *HandlerRegistry) Names() []string {
	return slices.Clone(r.names)
}

// Len returns the number of registered handlers.
func (r *HandlerRegistry) Len() int {
	return len(r.names)
}

func (b *registryBuilder) addHandler(name string, handler ByteHandler) {
	switch {
	case name == "":
		b.errs = append(b.errs, fmt.Errorf("handler name cannot be empty"))
	case handler == nil:
		b.errs = append(b.errs, fmt.Errorf("handler %q is nil", name))
	default:
		if _, exists := b.handlers[name]; exists {
			b.errs = append(b.errs, fmt.Errorf("duplicate handler name: %q", name))
			return
		}
		b.handlers[name] = handler
	}
}

// WithByteHandler registers a raw ByteHandler.
func WithByteHandler(name string, handler ByteHandler) RegistryOption {
	return func(b *registryBuilder) {
		b.addHandler(name, handler)
	}
}

// WithHandler registers a typed host function wrapped by NewJSONHandler.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		if fn == nil {
			b.addHandler(name, nil)
			return
		}
		b.addHandler(name, NewJSONHandler(fn))
	}
}

// WithBundle registers every handler of a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		hs := bundle.Handlers()
		for _, name := range slices.Sorted(maps.Keys(hs)) {
			b.addHandler(name, hs[name])
		}
	}
}

// WithMiddleware appends middleware. The first one added runs first.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
