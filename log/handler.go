package log

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapHandler implements slog.Handler on top of a zap logger, so slog callers
// and guest log output end up in the same destination.
type ZapHandler struct {
	logger *zap.Logger
	opts   handlerConfig
	group  string
}

// HandlerOption configures the ZapHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig logs at info without source locations.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level: slog.LevelInfo,
	}
}

// WithLevel drops records below level.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource attaches the caller file and line to each record.
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// NewHandler creates a ZapHandler writing to logger. A nil logger means the
// runtime logger at the time each record is handled.
func NewHandler(logger *zap.Logger, opts ...HandlerOption) *ZapHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ZapHandler{logger: logger, opts: cfg}
}

func (h *ZapHandler) target() *zap.Logger {
	if h.logger != nil {
		return h.logger
	}
	return Logger()
}

// Enabled reports whether level passes the configured threshold.
func (h *ZapHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level < h.opts.level {
		return false
	}
	return h.target().Core().Enabled(fromSlog(level))
}

// Handle converts the record into a zap entry.
func (h *ZapHandler) Handle(_ context.Context, r slog.Record) error {
	l := h.target()
	ce := l.Check(fromSlog(r.Level), r.Message)
	if ce == nil {
		return nil
	}
	if !r.Time.IsZero() {
		ce.Time = r.Time
	}

	fields := make([]zap.Field, 0, r.NumAttrs()+1)
	r.Attrs(func(a slog.Attr) bool {
		if f, ok := toZapField(h.key(a.Key), a.Value); ok {
			fields = append(fields, f)
		}
		return true
	})
	if h.opts.addSource && r.PC != 0 {
		fs := runtimeFrame(r.PC)
		fields = append(fields, zap.String("source", fs))
	}
	ce.Write(fields...)
	return nil
}

// WithAttrs returns a handler whose logger carries attrs on every entry.
func (h *ZapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zap.Field, 0, len(attrs))
	for _, a := range attrs {
		if f, ok := toZapField(h.key(a.Key), a.Value); ok {
			fields = append(fields, f)
		}
	}
	newHandler := *h
	newHandler.logger = h.target().With(fields...)
	return &newHandler
}

// WithGroup returns a handler that prefixes subsequent keys with name.
func (h *ZapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newHandler := *h
	newHandler.group = h.key(name)
	return &newHandler
}

func (h *ZapHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

// toZapField converts a resolved slog value into a typed zap field. Empty
// attributes are dropped.
func toZapField(key string, v slog.Value) (zap.Field, bool) {
	v = v.Resolve()
	if key == "" && v.Kind() != slog.KindGroup {
		return zap.Skip(), false
	}

	switch v.Kind() {
	case slog.KindString:
		return zap.String(key, v.String()), true
	case slog.KindInt64:
		return zap.Int64(key, v.Int64()), true
	case slog.KindUint64:
		return zap.Uint64(key, v.Uint64()), true
	case slog.KindBool:
		return zap.Bool(key, v.Bool()), true
	case slog.KindFloat64:
		return zap.Float64(key, v.Float64()), true
	case slog.KindTime:
		return zap.Time(key, v.Time()), true
	case slog.KindDuration:
		return zap.Duration(key, v.Duration()), true
	case slog.KindGroup:
		attrs := v.Group()
		if len(attrs) == 0 {
			return zap.Skip(), false
		}
		return zap.Object(key, groupMarshaler(attrs)), true
	default:
		if err, ok := v.Any().(error); ok {
			return zap.NamedError(key, err), true
		}
		return zap.Any(key, v.Any()), true
	}
}

type groupMarshaler []slog.Attr

func (g groupMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, a := range g {
		if f, ok := toZapField(a.Key, a.Value); ok {
			f.AddTo(enc)
		}
	}
	return nil
}

func runtimeFrame(pc uintptr) string {
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return frame.File + ":" + strconv.Itoa(frame.Line)
}
