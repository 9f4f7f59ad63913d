package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"movrepair/internal/atom"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <file>",
		Short: "List the top-level atoms of a movie file",
		Long: "List the top-level atoms of a movie file. Broken files are " +
			"listed too: atoms whose declared size exceeds the bytes actually " +
			"present are flagged as truncated instead of aborting the scan.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			atoms, scanErr := atom.ScanTopLevel(buf)

			rows := make([][]string, 0, len(atoms))
			for _, a := range atoms {
				note := ""
				size := a.DeclaredSize
				switch {
				case a.Truncated:
					size = uint64(a.HeaderLen) + uint64(len(a.Payload))
					note = fmt.Sprintf("truncated: header declares %s", humanize.IBytes(a.DeclaredSize))
				case a.DeclaredSize == 0:
					size = uint64(a.HeaderLen) + uint64(len(a.Payload))
					note = "extends to end of file"
				}
				rows = append(rows, []string{
					a.Tag.String(),
					fmt.Sprintf("%d", a.Offset),
					humanize.IBytes(size),
					note,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", args[0], humanize.IBytes(uint64(len(buf))))
			fmt.Fprintln(out, renderTable([]string{"Atom", "Offset", "Size", "Note"}, rows, 1, 2))
			if scanErr != nil {
				fmt.Fprintf(out, "warning: %v\n", scanErr)
			}
			return nil
		},
	}
}
