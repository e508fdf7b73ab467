package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/host"
)

// envPrefix marks environment variables read as settings:
// PLUGWIRE_LOG_LEVEL sets log.level.
const envPrefix = "PLUGWIRE_"

// settings are the CLI-wide options. Sources, lowest precedence first: the
// YAML settings file, PLUGWIRE_* environment variables, then flags.
type settings struct {
	Log struct {
		File  string `koanf:"file"`
		Level string `koanf:"level"`
	} `koanf:"log"`
	Runtime struct {
		Timeout     time.Duration `koanf:"timeout"`
		MaxVarBytes int64         `koanf:"max_var_bytes"`
		GuestLogs   bool          `koanf:"guest_logs"`
	} `koanf:"runtime"`
	// Vars are manifest template variables. They come from --var only.
	Vars map[string]string `koanf:"-"`
}

func defaultSettings() settings {
	var s settings
	s.Log.Level = "info"
	rc := entities.DefaultRuntimeConfig()
	s.Runtime.MaxVarBytes = rc.MaxVarBytes
	s.Runtime.GuestLogs = rc.EnableGuestLogs
	return s
}

// flagKeys maps flag names onto settings keys.
var flagKeys = map[string]string{
	"log-file":  "log.file",
	"log-level": "log.level",
	"timeout":   "runtime.timeout",
}

func loadSettings(path string, flags *pflag.FlagSet) (settings, error) {
	s := defaultSettings()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return s, fmt.Errorf("failed to read settings %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		section, rest, ok := strings.Cut(key, "_")
		if !ok {
			return key
		}
		return section + "." + rest
	}), nil)
	if err != nil {
		return s, fmt.Errorf("failed to read environment: %w", err)
	}

	overrides := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})
	for key, v := range overrides {
		if err := k.Set(key, v); err != nil {
			return s, err
		}
	}

	if err := k.Unmarshal("", &s); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func (s settings) loader() (*host.Loader, error) {
	if len(s.Vars) == 0 {
		return host.NewLoader()
	}
	return host.NewLoader(host.WithVars(s.Vars))
}

func (s settings) runtimeConfig() entities.RuntimeConfig {
	return entities.NewRuntimeConfig(
		entities.WithDefaultTimeout(s.Runtime.Timeout),
		entities.WithMaxVarBytes(s.Runtime.MaxVarBytes),
		entities.WithGuestLogs(s.Runtime.GuestLogs),
	)
}
