package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plugwire/plugwire-go"
	"github.com/plugwire/plugwire-go/host"
	"github.com/plugwire/plugwire-go/host/registry"
	"github.com/plugwire/plugwire-go/hostfuncs"
	"github.com/plugwire/plugwire-go/infrastructure/wazero"
)

type settingsKey struct{}

func newRootCommand() *cobra.Command {
	var (
		settingsPath string
		vars         []string
	)

	root := &cobra.Command{
		Use:           "plugwire",
		Short:         "Load wasm plugins and call their exports",
		Version:       plugwire.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(settingsPath, cmd.Flags())
			if err != nil {
				return err
			}
			if s.Vars, err = parseKeyValues(vars); err != nil {
				return err
			}
			if s.Log.File != "" {
				if err := plugwire.SetLogFile(s.Log.File, s.Log.Level); err != nil {
					return err
				}
			}
			cmd.SetContext(context.WithValue(cmd.Context(), settingsKey{}, s))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&settingsPath, "config", "", "YAML settings file")
	flags.String("log-file", "", "write runtime logs to this file, stdout or stderr")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error or off")
	flags.Duration("timeout", 0, "default per-call timeout")
	flags.StringArrayVar(&vars, "var", nil, "manifest template variable key=value, repeatable")

	root.AddCommand(
		newCallCommand(),
		newExportsCommand(),
		newSchemaCommand(),
		newValidateCommand(),
	)
	return root
}

func settingsFrom(ctx context.Context) settings {
	if s, ok := ctx.Value(settingsKey{}).(settings); ok {
		return s
	}
	return defaultSettings()
}

// session owns the engine and registry behind one CLI invocation.
type session struct {
	settings settings
	engine   *wazero.Engine
	registry *registry.Registry
	store    *hostfuncs.KVStore
}

func newSession(s settings) *session {
	return &session{
		settings: s,
		engine:   wazero.NewEngine(wazero.WithRuntimeConfig(s.runtimeConfig())),
		registry: registry.New(),
		store:    hostfuncs.NewKVStore(),
	}
}

// open builds a plugin from a .wasm file or a manifest file. The built-in
// host function bundles are always linked.
func (s *session) open(ctx context.Context, source string, opts ...host.Option) (*host.Plugin, error) {
	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithBundle(hostfuncs.AllBundles(s.store)),
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(slog.Default()),
			hostfuncs.MaxPayloadMiddleware(hostfuncs.DefaultMaxRequestSize),
		),
	)
	if err != nil {
		return nil, err
	}

	opts = append([]host.Option{
		host.WithEngine(s.engine),
		host.WithRegistry(s.registry),
		host.WithEnvironment(host.FromRegistry(reg)),
	}, opts...)

	if strings.EqualFold(filepath.Ext(source), ".wasm") {
		wasm, err := os.ReadFile(source) //nolint:gosec // G304: path comes from the command line
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
		return host.NewPlugin(ctx, host.WasmBytes(wasm), opts...)
	}

	loader, err := s.settings.loader()
	if err != nil {
		return nil, err
	}
	m, err := loader.LoadFile(source)
	if err != nil {
		return nil, err
	}
	return host.NewPlugin(ctx, m, opts...)
}

func (s *session) close(ctx context.Context) error {
	if err := s.registry.Close(ctx); err != nil {
		return err
	}
	return s.engine.Close(ctx)
}
