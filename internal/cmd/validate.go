package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
)

// NewValidateCmd creates and returns the validate subcommand for the geofs CLI.
// It checks a volume for corruption and consistency problems.
func NewValidateCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a volume for corruption and consistency",
		Long: `Validate a volume for corruption and consistency issues.

This command checks the superblock layout and cursors, re-hashes every content
object against its header, and verifies that every view and reference points
at something that exists. The command fails when any problem is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(cmd, func(vol *geofs.Volume) error {
				return runValidate(cmd, vol, verbose)
			})
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	return cmd
}

func runValidate(cmd *cobra.Command, vol *geofs.Volume, verbose bool) error {
	out := cmd.OutOrStdout()
	if verbose {
		sb := vol.Superblock()
		printf(out, "Validating volume %s\n", vol.Path())
		printf(out, "  volume id:  %016x\n", sb.VolumeID)
		printf(out, "  block size: %d\n", sb.BlockSize)
		printf(out, "  content:    blocks %d-%d\n", sb.ContentStart, sb.ContentStart+sb.ContentBlocks)
		printf(out, "  refs:       blocks %d-%d\n", sb.RefStart, sb.RefStart+sb.RefBlocks)
		printf(out, "  views:      blocks %d-%d\n", sb.ViewStart, sb.ViewStart+sb.ViewBlocks)
	}

	report, err := vol.Check()
	if err != nil {
		return err
	}

	if !report.OK() {
		printf(out, "Volume %s has %d problems:\n", vol.Path(), len(report.Problems))
		for _, p := range report.Problems {
			printf(out, "  - %s\n", problemColor.Sprint(p))
		}
	} else if verbose {
		printf(out, "Volume %s is valid\n", vol.Path())
	}

	printf(out, "\nValidation complete:\n")
	printf(out, "  Objects checked: %d\n", report.ObjectsChecked)
	printf(out, "  Refs checked: %d\n", report.RefsChecked)
	printf(out, "  Views checked: %d\n", report.ViewsChecked)
	printf(out, "  Total errors: %d\n", len(report.Problems))

	if !report.OK() {
		return fmt.Errorf("volume %s failed validation with %d problems", vol.Path(), len(report.Problems))
	}
	return nil
}
