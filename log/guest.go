package log

import (
	"go.uber.org/zap"
)

// Guest writes a message logged by a plugin through one of the kernel log
// imports. Messages below the configured level are dropped.
func Guest(pluginID string, lvl Level, msg string) {
	l := Logger()
	if ce := l.Check(lvl.Zap(), msg); ce != nil {
		ce.Write(zap.String("plugin", pluginID), zap.String("origin", "guest"))
	}
}
