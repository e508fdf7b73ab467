package hostfuncs

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxRequestSize is the payload limit used by MaxPayloadMiddleware
// when given a non-positive limit.
const DefaultMaxRequestSize = 1024 * 1024

// Middleware is a function that wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to structured ErrorResponse JSON instead of failing the plugin call.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// MaxPayloadMiddleware rejects requests larger than limit bytes with a
// PAYLOAD_TOO_LARGE response.
func MaxPayloadMiddleware(limit int) Middleware {
	if limit <= 0 {
		limit = DefaultMaxRequestSize
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if len(payload) > limit {
				return NewTooLargeError(len(payload), limit).ToJSON(), nil
			}
			return next(ctx, payload)
		}
	}
}

// TimeoutMiddleware bounds each handler with a context deadline. Handlers
// must observe ctx for the deadline to have effect.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if d <= 0 {
				return next(ctx, payload)
			}
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(tctx, payload)
		}
	}
}

// LoggingMiddleware logs every invocation with its duration. A nil logger
// means slog.Default().
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			l := logger
			if l == nil {
				l = slog.Default()
			}
			funcName, pluginID := "unknown", ""
			if hc, ok := ctx.(HostContext); ok {
				funcName, pluginID = hc.FunctionName(), hc.PluginID()
			}

			start := time.Now()
			resp, err := next(ctx, payload)
			attrs := []any{"function", funcName, "plugin", pluginID, "duration", time.Since(start), "request_bytes", len(payload)}
			if err != nil {
				l.ErrorContext(ctx, "hostfuncs: handler failed", append(attrs, "error", err)...)
			} else {
				l.DebugContext(ctx, "hostfuncs: handler completed", append(attrs, "response_bytes", len(resp))...)
			}
			return resp, err
		}
	}
}
