package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/fusefs"
	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/version"
)

// NewMountCmd creates and returns the mount subcommand for the geofs CLI.
// It serves a volume through FUSE until interrupted or unmounted.
func NewMountCmd() *cobra.Command {
	var (
		readOnly   bool
		allowOther bool
	)

	cmd := &cobra.Command{
		Use:   "mount MOUNTPOINT",
		Short: "Mount a volume with FUSE",
		Long: `Mount a volume at the specified mountpoint.

The mount shows two directories: live/ is the read-write tree in the current
view, and views/<id>/ is a read-only tree as each view sees it. Writes in live/
always append. The command runs until interrupted or until the mountpoint is
unmounted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mountpoint := args[0]
			volPath, err := volumePath(cmd)
			if err != nil {
				return err
			}
			if pathsOverlap(volPath, mountpoint) {
				return fmt.Errorf("mountpoint %s overlaps the volume file %s", mountpoint, volPath)
			}

			cfg := configFrom(cmd)
			fuseOpts, err := cfg.Fuse.DecodeOptions()
			if err != nil {
				return err
			}
			mc := fusefs.MountConfig{
				FSName:     cfg.Fuse.FSName,
				Subtype:    cfg.Fuse.Subtype,
				ReadOnly:   readOnly || cfg.Fuse.ReadOnly,
				AllowOther: allowOther || fuseOpts.AllowOther,
			}
			if fuseOpts.VolumeName != "" {
				mc.FSName = fuseOpts.VolumeName
			}

			printf(cmd.OutOrStdout(), "geofs %s starting...\n", version.GetFullVersion())

			return withVolume(cmd, func(vol *geofs.Volume) error {
				log := loggerFrom(cmd)
				fsys, err := fusefs.New(vol, fusefs.Options{
					VFS:      cfg.VFS.VFSOptions(),
					ReadOnly: mc.ReadOnly,
					Logger:   log,
				})
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				log.Infof("geofs %s mounted at %s (volume: %s)", version.GetVersion(), mountpoint, vol.Path())
				return fusefs.Serve(ctx, mountpoint, fsys, mc)
			})
		},
	}

	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Mount read-only")
	cmd.Flags().BoolVar(&allowOther, "allow-other", false, "Allow other users to access the mount")

	return cmd
}

// pathsOverlap reports whether one path is equal to or inside the other.
func pathsOverlap(path1, path2 string) bool {
	a, err := filepath.Abs(path1)
	if err != nil {
		a = filepath.Clean(path1)
	}
	b, err := filepath.Abs(path2)
	if err != nil {
		b = filepath.Clean(path2)
	}
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(a, strings.TrimSuffix(b, sep)+sep) ||
		strings.HasPrefix(b, strings.TrimSuffix(a, sep)+sep)
}
