package wazero

import (
	"context"
)

// contextKey is a private type for context keys.
type contextKey struct {
	name string
}

var pluginIDKey = &contextKey{name: "plugin_id"}

// WithPluginID adds the plugin ID to the context.
// Host functions use it to identify the plugin that called them.
func WithPluginID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pluginIDKey, id)
}

// PluginIDFromContext retrieves the plugin ID from the context.
func PluginIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(pluginIDKey).(string)
	return id, ok
}
