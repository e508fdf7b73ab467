package main

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest|glob>...",
		Short: "Check manifests without instantiating them",
		Long: "Check manifests without instantiating them. Arguments may be glob " +
			"patterns such as 'plugins/**/*.yaml'.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			loader, err := settingsFrom(cmd.Context()).loader()
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range paths {
				m, err := loader.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d modules)\n", path, len(m.Wasm))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d manifests invalid", failed, len(paths))
			}
			return nil
		},
	}
}

// expandGlobs replaces each pattern with the files it matches. Plain paths
// pass through untouched so a missing file is still reported by name.
func expandGlobs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			out = append(out, arg)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}
