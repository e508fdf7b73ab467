package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugwire/plugwire-go/host"
)

func newExportsCommand() *cobra.Command {
	var wasi bool
	cmd := &cobra.Command{
		Use:   "exports <source>",
		Short: "List the functions a plugin exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess := newSession(settingsFrom(ctx))
			defer func() { _ = sess.close(ctx) }()

			p, err := sess.open(ctx, args[0], host.WithWASI(wasi))
			if err != nil {
				return err
			}
			defer func() { _ = p.Free(ctx) }()

			names, err := p.Exports()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wasi, "wasi", false, "link WASI preview 1")
	return cmd
}
