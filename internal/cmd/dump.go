package cmd

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/google/renameio"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/internal/dump"
)

// NewDumpCmd creates and returns the dump subcommand.
func NewDumpCmd() *cobra.Command {
	var (
		format   string
		compress bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Export the volume manifest",
		Long: `Export a manifest of the volume: the superblock summary, every view and every
reference record in append order. Formats are json, yaml, msgpack and cbor,
optionally zstd-compressed. Output goes to stdout unless --output is given, in
which case the file is replaced atomically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(dump.Formats, format) {
				return fmt.Errorf("unknown format %q (want one of %v)", format, dump.Formats)
			}
			return withVolume(cmd, func(vol *geofs.Volume) error {
				m := dump.Build(vol)
				if output == "" {
					return dump.Write(cmd.OutOrStdout(), m, format, compress)
				}

				pf, err := renameio.TempFile(filepath.Dir(output), output)
				if err != nil {
					return err
				}
				defer pf.Cleanup()
				if err := dump.Write(pf, m, format, compress); err != nil {
					return err
				}
				if err := pf.CloseAtomicallyReplace(); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Wrote %s manifest (%d views, %d refs) to %s\n", format, len(m.Views), len(m.Refs), output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Manifest format: json, yaml, msgpack or cbor")
	cmd.Flags().BoolVarP(&compress, "compress", "z", false, "Compress the manifest with zstd")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the manifest to this file")

	return cmd
}
