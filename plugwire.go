// Package plugwire is the top-level entry point of the plugin host SDK. It
// carries the process-wide settings; plugins themselves are built with the
// host package.
package plugwire

import "github.com/plugwire/plugwire-go/log"

// Version is the SDK version.
const Version = "0.4.0"

// SetLogFile directs runtime diagnostics and guest log output to path, which
// may also be "stdout" or "stderr". level is one of trace, debug, info, warn,
// error or off. It succeeds once per process.
func SetLogFile(path, level string) error {
	return log.SetFile(path, level)
}
