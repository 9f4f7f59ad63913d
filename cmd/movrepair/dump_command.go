package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"movrepair/internal/atom"
	"movrepair/internal/repair"
)

func newDumpMoovCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-moov <file>",
		Short: "Dump a file's structural-metadata atom tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			atoms, scanErr := atom.ScanTopLevel(buf)
			var moov *atom.Atom
			for _, a := range atoms {
				if a.Tag == atom.TagMoov {
					moov = a
					break
				}
			}
			if moov == nil {
				if scanErr != nil {
					return fmt.Errorf("%s: %w", args[0], scanErr)
				}
				return fmt.Errorf("no moov atom in %s", args[0])
			}
			if moov.Truncated {
				return fmt.Errorf("moov atom in %s is truncated", args[0])
			}
			if err := moov.Expand(); err != nil {
				return err
			}
			dumpAtom(cmd.OutOrStdout(), moov, 0)
			return nil
		},
	}
}

func dumpAtom(w io.Writer, a *atom.Atom, depth int) {
	indent := strings.Repeat("  ", depth)
	size, err := a.EncodedSize()
	if err != nil {
		size = 0
	}
	line := fmt.Sprintf("%s%s (%s)", indent, a.Tag, humanize.IBytes(size))
	if detail := repair.DescribeAtom(a); detail != "" {
		line += ": " + detail
	}
	fmt.Fprintln(w, line)
	for _, c := range a.Children {
		dumpAtom(w, c, depth+1)
	}
}
