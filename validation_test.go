package plugwire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugwire/plugwire-go/domain/errors"
)

type serverConfig struct {
	Host string `json:"host" validate:"required,hostname"`
	Port int    `json:"port" validate:"required,min=1,max=65535"`
}

func TestValidateConfig_Valid(t *testing.T) {
	var target serverConfig
	require.NoError(t, ValidateConfig(Config{"host": "example.com", "port": 443}, &target))
	assert.Equal(t, serverConfig{Host: "example.com", Port: 443}, target)
}

func TestValidateConfig_Failures(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		field  string
	}{
		{"missing port", Config{"host": "example.com"}, "port"},
		{"port too low", Config{"host": "example.com", "port": -1}, "port"},
		{"port too high", Config{"host": "example.com", "port": 70000}, "port"},
		{"bad hostname", Config{"host": "not a host", "port": 80}, "host"},
		{"wrong type", Config{"host": "example.com", "port": "eighty"}, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target serverConfig
			err := ValidateConfig(tt.config, &target)
			var ce *errors.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}

func TestValidateConfig_Nested(t *testing.T) {
	type appConfig struct {
		Server serverConfig `json:"server" validate:"required"`
		Tags   []string     `json:"tags" validate:"dive,required"`
	}

	var target appConfig
	err := ValidateConfig(Config{
		"server": map[string]any{"host": "example.com", "port": 0},
		"tags":   []string{"a"},
	}, &target)
	var ce *errors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "server.port", ce.Field)

	err = ValidateConfig(Config{
		"server": map[string]any{"host": "example.com", "port": 8080},
		"tags":   []string{"a", "b"},
	}, &target)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, target.Tags)
}

func TestValidateConfig_Unmarshalable(t *testing.T) {
	var target serverConfig
	err := ValidateConfig(Config{"host": make(chan int)}, &target)
	var ce *errors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "marshal")
}

func TestConfigSchema(t *testing.T) {
	raw, err := ConfigSchema(&serverConfig{})
	require.NoError(t, err)

	var doc struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc.Properties, "host")
	assert.Contains(t, doc.Properties, "port")
	assert.ElementsMatch(t, []string{"host", "port"}, doc.Required)
}
