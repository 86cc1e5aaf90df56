package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/vfs"
)

// NewViewsCmd creates and returns the views subcommand.
func NewViewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "List views",
		Long: `List every view in creation order with its parent, creation time and label.
The current view is marked with '*'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(cmd, func(vol *geofs.Volume) error {
				current := vol.CurrentView()
				out := cmd.OutOrStdout()
				printf(out, "  %4s %6s  %-19s  %s\n", "ID", "PARENT", "CREATED", "LABEL")
				vol.ListViews(func(vi geofs.ViewInfo) bool {
					line := fmt.Sprintf("%4d %6d  %-19s  %s", vi.ID, vi.Parent, geofs.FormatTime(vi.Created), vi.Label)
					if vi.ID == current {
						printf(out, "* %s\n", currentColor.Sprint(line))
					} else {
						printf(out, "  %s\n", line)
					}
					return true
				})
				return nil
			})
		},
	}
}

// NewViewCmd creates and returns the view subcommand, which switches the
// current view.
func NewViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view [ID]",
		Short: "Show or switch the current view",
		Long: `Without arguments print the current view. With an id, make that view current.
The choice is stored in the volume and survives reopening.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(cmd, func(vol *geofs.Volume) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					id, err := parseView(args[0])
					if err != nil {
						return err
					}
					if err := vol.SwitchView(id); err != nil {
						return err
					}
				}
				vi, err := vol.View(vol.CurrentView())
				if err != nil {
					return err
				}
				printf(out, "Current view: %d (%s)\n", vi.ID, vi.Label)
				return nil
			})
		},
	}
}

// NewSnapshotCmd creates and returns the snapshot subcommand.
func NewSnapshotCmd() *cobra.Command {
	var switchTo bool

	cmd := &cobra.Command{
		Use:   "snapshot LABEL",
		Short: "Create a new view",
		Long: `Create a new view as a child of the current one. By default the new view
becomes current, so later changes are made in it while the parent keeps seeing
the tree as it is now.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(cmd, func(vol *geofs.Volume) error {
				id, err := vol.CreateView(args[0])
				if err != nil {
					return err
				}
				if switchTo {
					if err := vol.SwitchView(id); err != nil {
						return err
					}
				}
				printf(cmd.OutOrStdout(), "Created view %d (%s)\n", id, args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&switchTo, "switch", true, "Make the new view current")

	return cmd
}

// NewHistoryCmd creates and returns the history subcommand.
func NewHistoryCmd() *cobra.Command {
	var (
		limit int
		refs  bool
	)

	cmd := &cobra.Command{
		Use:   "history PATH",
		Short: "Show the versions of a path",
		Long: `Show every view in which PATH resolves, with the digest and size it has there.
With --refs, show the raw reference records for the path instead, including the
tombstones left by hide.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if refs {
				return withVolume(cmd, func(vol *geofs.Volume) error {
					n := 0
					_, err := vol.PathHistory(args[0], func(r geofs.Ref) bool {
						if r.Hidden {
							printf(out, "#%-5d view %-4d %s  %s\n", r.ID, r.View, geofs.FormatTime(r.Created), problemColor.Sprint("hidden"))
						} else {
							printf(out, "#%-5d view %-4d %s  %s %s\n", r.ID, r.View, geofs.FormatTime(r.Created), shortDigest(r.Digest), humanize.IBytes(r.Size))
						}
						n++
						return limit <= 0 || n < limit
					})
					return err
				})
			}
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				versions, err := v.History(args[0], limit)
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					printf(out, "%s has no history\n", args[0])
					return nil
				}
				for _, ver := range versions {
					printf(out, "view %-4d %s  %s %9s  %s\n",
						ver.View, geofs.FormatTime(ver.Created), shortDigest(ver.Digest), humanize.IBytes(ver.Size), ver.Label)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many entries (0 for all)")
	cmd.Flags().BoolVar(&refs, "refs", false, "Show raw reference records")

	return cmd
}

// NewRestoreCmd creates and returns the restore subcommand.
func NewRestoreCmd() *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "restore PATH VIEW [DEST]",
		Short: "Restore a path as it was in a view",
		Long: `Copy the contents PATH had in VIEW into DEST (default PATH) in the current
view. Writes append, so restoring onto an existing file extends it. With --host
the contents are written to a host file instead.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := parseView(args[1])
			if err != nil {
				return err
			}
			dest := args[0]
			if len(args) == 3 {
				dest = args[2]
			}

			if host != "" {
				return withVolume(cmd, func(vol *geofs.Volume) error {
					d, err := vol.ResolveAt(args[0], view)
					if err != nil {
						return err
					}
					data, err := vol.ReadAll(d)
					if err != nil {
						return err
					}
					if err := renameio.WriteFile(host, data, 0o644); err != nil {
						return fmt.Errorf("write %s: %w", host, err)
					}
					printf(cmd.OutOrStdout(), "Restored %s@%d to host file %s\n", args[0], view, host)
					return nil
				})
			}

			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				if err := v.RestoreVersion(args[0], view, dest); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Restored %s@%d to %s\n", args[0], view, dest)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Write the restored contents to this host file")

	return cmd
}
