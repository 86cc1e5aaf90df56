package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
)

// NewCreateCmd creates and returns the create subcommand, which formats a
// new volume file.
func NewCreateCmd() *cobra.Command {
	var sizeMB int

	cmd := &cobra.Command{
		Use:   "create [VOLUME]",
		Short: "Create a new volume file",
		Long: `Create a new, empty volume file of the given size.

The file is laid out into fixed content, reference and view regions and starts
with the single Genesis view. An existing file is never overwritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				p, err := volumePath(cmd)
				if err != nil {
					return err
				}
				path = p
			}
			if !cmd.Flags().Changed("size") {
				sizeMB = configFrom(cmd).Volume.SizeMB
			}

			vol, err := geofs.Create(path, sizeMB, geofs.WithLogger(loggerFrom(cmd)))
			if err != nil {
				return fmt.Errorf("create volume %s: %w", path, err)
			}
			st := vol.Stats()
			if err := vol.Close(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printf(out, "Created volume %s\n", path)
			printf(out, "  size:    %s\n", humanize.IBytes(uint64(sizeMB)<<20))
			printf(out, "  content: %d blocks\n", st.ContentBlocksTotal)
			printf(out, "  refs:    %d slots\n", st.RefsTotal)
			printf(out, "  views:   %d slots\n", st.ViewsTotal)
			return nil
		},
	}

	cmd.Flags().IntVarP(&sizeMB, "size", "s", 0, "Volume size in MiB (default volume.size_mb from the configuration)")

	return cmd
}
