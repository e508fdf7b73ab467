package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plugwire/plugwire-go/host"
)

type callOptions struct {
	input     string
	inputFile string
	config    []string
	wasi      bool
	repeat    int
}

func newCallCommand() *cobra.Command {
	var o callOptions
	cmd := &cobra.Command{
		Use:   "call <source> <function>",
		Short: "Call an export and print its output",
		Long: "Call an export and print its output. source is a .wasm module or a " +
			"JSON or YAML manifest. Input is taken from --input, --input-file, or " +
			"stdin when --input-file is \"-\".",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args[0], args[1], o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "input passed to the function")
	f.StringVar(&o.inputFile, "input-file", "", "read input from a file, or - for stdin")
	f.StringArrayVarP(&o.config, "set", "s", nil, "plugin config entry key=value, repeatable")
	f.BoolVar(&o.wasi, "wasi", false, "link WASI preview 1")
	f.IntVar(&o.repeat, "repeat", 1, "call the function this many times")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")
	return cmd
}

func parseKeyValues(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid entry %q, want key=value", e)
		}
		out[k] = v
	}
	return out, nil
}

func readInput(cmd *cobra.Command, o callOptions) ([]byte, error) {
	switch o.inputFile {
	case "":
		return []byte(o.input), nil
	case "-":
		return io.ReadAll(cmd.InOrStdin())
	default:
		return os.ReadFile(o.inputFile)
	}
}

func runCall(cmd *cobra.Command, source, function string, o callOptions) error {
	if o.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	config, err := parseKeyValues(o.config)
	if err != nil {
		return err
	}
	input, err := readInput(cmd, o)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	ctx := cmd.Context()
	sess := newSession(settingsFrom(ctx))
	defer func() { _ = sess.close(ctx) }()

	opts := []host.Option{host.WithWASI(o.wasi)}
	if config != nil {
		opts = append(opts, host.WithConfig(config))
	}
	p, err := sess.open(ctx, source, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = p.Free(ctx) }()

	out := cmd.OutOrStdout()
	for range o.repeat {
		output, err := p.Call(ctx, function, input)
		if err != nil {
			return err
		}
		if _, err := out.Write(output); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}
