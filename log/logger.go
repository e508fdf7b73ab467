// Package log holds the process-wide runtime logger. Guest log output and
// runtime diagnostics go through it; its destination and level are set once
// per process with SetFile.
package log

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrAlreadyConfigured is returned by SetFile after the first successful call.
var ErrAlreadyConfigured = stdErrors.New("log destination already configured")

var (
	logger     atomic.Pointer[zap.Logger]
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	guestLevel atomic.Int32
	configured atomic.Bool
	setMu      sync.Mutex
)

func init() {
	logger.Store(zap.NewNop())
	guestLevel.Store(int32(LevelOff))
}

// Logger returns the runtime logger. It is a no-op logger until SetFile is called.
func Logger() *zap.Logger {
	return logger.Load()
}

// CurrentLevel returns the configured level, LevelOff while unconfigured.
func CurrentLevel() Level {
	return Level(guestLevel.Load())
}

// SetFile directs runtime logs to path at the given level. path may be a file
// name or one of "stdout" and "stderr". It succeeds once per process and also
// routes the slog default logger to the same destination.
func SetFile(path, levelName string) error {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return err
	}

	setMu.Lock()
	defer setMu.Unlock()
	if configured.Load() {
		return ErrAlreadyConfigured
	}

	sink, err := openSink(path)
	if err != nil {
		return fmt.Errorf("failed to open log destination %q: %w", path, err)
	}

	level.SetLevel(lvl.Zap())
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeLevel = encodeLevel
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)

	l := zap.New(core).Named("plugwire")
	logger.Store(l)
	slog.SetDefault(slog.New(NewHandler(l)))
	guestLevel.Store(int32(lvl))
	configured.Store(true)
	return nil
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "":
		return nil, fmt.Errorf("empty path")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // G302: log files are world-readable by convention
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}
