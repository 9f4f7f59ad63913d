package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"movrepair/internal/repair"
)

func newRepairCommand(ctx *commandContext) *cobra.Command {
	var outputFlag string
	var noFixMetadata bool
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "repair <reference> <broken>",
		Short: "Rebuild a broken movie file from an intact reference",
		Long: "Rebuild a broken movie file whose data atom lost its size " +
			"header. Every structural atom is taken from the reference file; " +
			"the data atom comes from the broken file with its size recovered " +
			"from the file length, and the metadata tree is rescaled to match.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			referencePath, brokenPath := args[0], args[1]
			outputPath := strings.TrimSpace(outputFlag)
			if outputPath == "" {
				outputPath = cfg.DefaultOutputPath(brokenPath)
			}

			result, err := repair.Run(referencePath, brokenPath, outputPath, repair.Options{
				FixMetadata: !noFixMetadata,
				Overwrite:   overwrite || cfg.Output.OverwriteExisting,
			}, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data atom size recovered: %s declared, %s actual\n",
				humanize.IBytes(result.DeclaredSize), humanize.IBytes(result.RecoveredSize))
			if result.Ratio != 0 {
				fmt.Fprintf(out, "Metadata scale factor: %.6f (%s reference payload, %s recovered payload)\n",
					result.Ratio, humanize.IBytes(result.ReferencePayload), humanize.IBytes(result.BrokenPayload))
			} else {
				fmt.Fprintln(out, "Metadata repair disabled; structural metadata copied verbatim")
			}

			if changes := result.Report.Changes(); len(changes) > 0 {
				rows := make([][]string, 0, len(changes))
				for _, c := range changes {
					rows = append(rows, []string{c.Location, c.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Updated", "Change"}, rows))
			}
			if skips := result.Report.Skips(); len(skips) > 0 {
				rows := make([][]string, 0, len(skips))
				for _, s := range skips {
					rows = append(rows, []string{s.Location, s.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Skipped", "Reason"}, rows))
			}
			fmt.Fprintf(out, "Wrote %s\n", result.OutputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Repaired output path (default: broken filename with the configured suffix)")
	cmd.Flags().BoolVar(&noFixMetadata, "no-fix-metadata", false, "Copy the structural metadata verbatim instead of rescaling durations and sample tables (requires the broken payload to be no larger than the reference payload)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the output file if it already exists")

	return cmd
}
