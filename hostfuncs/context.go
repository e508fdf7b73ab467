package hostfuncs

import (
	"context"
	"sync"
)

// HostContext is the context a handler runs under. Besides the usual
// cancellation and values it names the function being served and the plugin
// that called it, and carries a small scratch space middleware can use to pass
// data to the handler.
type HostContext interface {
	context.Context

	FunctionName() string

	// PluginID is the caller recorded with WithCaller, or "".
	PluginID() string

	// SetValue stores a value for the rest of this invocation. It mutates the
	// HostContext in place.
	SetValue(key, value any)

	GetValue(key any) (value any, ok bool)
}

type callerKey struct{}

// WithCaller records the calling plugin's ID on ctx.
func WithCaller(ctx context.Context, pluginID string) context.Context {
	return context.WithValue(ctx, callerKey{}, pluginID)
}

type hostContext struct {
	context.Context
	funcName string

	mu      sync.Mutex
	scratch map[any]any
}

// NewHostContext wraps ctx for one invocation of funcName.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{Context: ctx, funcName: funcName}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) PluginID() string {
	id, _ := c.Value(callerKey{}).(string)
	return id
}

func (c *hostContext) SetValue(key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scratch == nil {
		c.scratch = make(map[any]any)
	}
	c.scratch[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.scratch[key]
	return v, ok
}

// HostContextFrom reuses ctx when it already is the HostContext for funcName
// and wraps it otherwise.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok && hc.FunctionName() == funcName {
		return hc
	}
	return NewHostContext(ctx, funcName)
}
