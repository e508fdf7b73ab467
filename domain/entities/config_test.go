package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRuntimeConfig(t *testing.T) {
	assert.Equal(t, DefaultRuntimeConfig(), NewRuntimeConfig())

	cfg := NewRuntimeConfig(
		WithDefaultTimeout(time.Second),
		WithMaxVarBytes(0),
		WithMaxMemoryBytes(1<<20),
		WithGuestLogs(false),
	)
	assert.Equal(t, time.Second, cfg.DefaultTimeout)
	assert.Zero(t, cfg.MaxVarBytes)
	assert.Equal(t, uint64(1<<20), cfg.MaxMemoryBytes)
	assert.False(t, cfg.EnableGuestLogs)
}

func TestNewRuntimeConfig_IgnoresInvalid(t *testing.T) {
	cfg := NewRuntimeConfig(WithDefaultTimeout(-time.Second), WithMaxVarBytes(-1))
	assert.Zero(t, cfg.DefaultTimeout)
	assert.Equal(t, DefaultRuntimeConfig().MaxVarBytes, cfg.MaxVarBytes)
}
