package host

import (
	"maps"

	"github.com/plugwire/plugwire-go/domain/ports"
	"github.com/plugwire/plugwire-go/host/registry"
)

// pluginConfig holds the options NewPlugin is built with.
type pluginConfig struct {
	engine    ports.Engine
	registry  *registry.Registry
	loader    *Loader
	config    map[string]string
	functions []*Function
	envs      []HostEnvironment
	wasi      bool
}

func defaultPluginConfig() pluginConfig {
	return pluginConfig{}
}

// Option configures NewPlugin.
type Option func(*pluginConfig)

// WithWASI links the WASI preview 1 imports.
func WithWASI(enabled bool) Option {
	return func(c *pluginConfig) {
		c.wasi = enabled
	}
}

// WithConfig sets plugin config values, applied once the plugin is built.
// Keys also present in the manifest's config are overridden.
func WithConfig(config map[string]string) Option {
	return func(c *pluginConfig) {
		if c.config == nil {
			c.config = make(map[string]string, len(config))
		}
		maps.Copy(c.config, config)
	}
}

// WithFunctions adds host functions.
func WithFunctions(fns ...*Function) Option {
	return func(c *pluginConfig) {
		c.functions = append(c.functions, fns...)
	}
}

// WithEnvironment adds the functions of a host environment.
func WithEnvironment(env HostEnvironment) Option {
	return func(c *pluginConfig) {
		c.envs = append(c.envs, env)
	}
}

// WithEngine sets the runtime engine. The default is a process-wide wazero engine.
func WithEngine(e ports.Engine) Option {
	return func(c *pluginConfig) {
		c.engine = e
	}
}

// WithRegistry sets the registry the plugin is recorded in. The default is
// registry.Default().
func WithRegistry(r *registry.Registry) Option {
	return func(c *pluginConfig) {
		c.registry = r
	}
}

// WithLoader sets the loader used for ManifestBytes sources and for
// validating manifests.
func WithLoader(l *Loader) Option {
	return func(c *pluginConfig) {
		c.loader = l
	}
}
