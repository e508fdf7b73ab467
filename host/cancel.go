package host

import "github.com/plugwire/plugwire-go/domain/ports"

// CancelHandle aborts a plugin's in-flight call from any goroutine. It does
// not keep the plugin alive.
type CancelHandle struct {
	c ports.Canceller
}

// Cancel signals the running call and reports whether one was running. It is
// a no-op when no call is in flight, after the call finished, or after the
// plugin was freed.
func (h *CancelHandle) Cancel() bool {
	if h == nil || h.c == nil {
		return false
	}
	return h.c.Cancel()
}
