package entities

import (
	"time"
)

// RuntimeConfig holds the engine-wide defaults applied to every plugin
// unless its manifest says otherwise.
type RuntimeConfig struct {
	// DefaultTimeout bounds each call when the manifest sets no timeout.
	// Zero means no limit.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxVarBytes bounds the plugin variable store.
	MaxVarBytes int64 `json:"max_var_bytes"`

	// MaxMemoryBytes bounds the kernel memory of each plugin. Zero, or anything
	// above 4 GiB, means the 4 GiB ceiling.
	MaxMemoryBytes uint64 `json:"max_memory_bytes"`

	// EnableGuestLogs controls whether guest log imports reach the runtime logger.
	EnableGuestLogs bool `json:"enable_guest_logs"`
}

// DefaultRuntimeConfig returns the default engine configuration.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxVarBytes:     1024 * 1024,
		EnableGuestLogs: true,
	}
}

// RuntimeOption is a functional option for configuring RuntimeConfig.
type RuntimeOption func(*RuntimeConfig)

// WithDefaultTimeout sets the per-call timeout used when the manifest has none.
func WithDefaultTimeout(d time.Duration) RuntimeOption {
	return func(c *RuntimeConfig) {
		if d > 0 {
			c.DefaultTimeout = d
		}
	}
}

// WithMaxVarBytes sets the variable store limit.
func WithMaxVarBytes(n int64) RuntimeOption {
	return func(c *RuntimeConfig) {
		if n >= 0 {
			c.MaxVarBytes = n
		}
	}
}

// WithMaxMemoryBytes sets the kernel memory limit.
func WithMaxMemoryBytes(n uint64) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.MaxMemoryBytes = n
	}
}

// WithGuestLogs enables or disables guest logging.
func WithGuestLogs(enabled bool) RuntimeOption {
	return func(c *RuntimeConfig) {
		c.EnableGuestLogs = enabled
	}
}

// NewRuntimeConfig creates a RuntimeConfig with the given options.
func NewRuntimeConfig(opts ...RuntimeOption) RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
