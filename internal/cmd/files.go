package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/vfs"
)

// NewLsCmd creates and returns the ls subcommand.
func NewLsCmd() *cobra.Command {
	var (
		long bool
		view uint64
	)

	cmd := &cobra.Command{
		Use:   "ls [DIR]",
		Short: "List a directory",
		Long: `List the visible children of a directory in the current view, or in the
view given with --view. Hidden entries are not shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}
			return withVolume(cmd, func(vol *geofs.Volume) error {
				if view == 0 {
					view = vol.CurrentView()
				}
				var entries []geofs.DirEntry
				_, err := vol.ListDirAt(dir, view, func(e geofs.DirEntry) bool {
					entries = append(entries, e)
					return true
				})
				if err != nil {
					return err
				}
				sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

				out := cmd.OutOrStdout()
				for _, e := range entries {
					if !long {
						printf(out, "%s\n", entryName(e.Name, e.Type))
						continue
					}
					size := "-"
					if e.Type == geofs.TypeFile {
						size = humanize.IBytes(e.Size)
					}
					printf(out, "%c %9s %s %s %s\n",
						typeChar(e.Type), size, geofs.FormatTime(e.Created), shortDigest(e.Digest), entryName(e.Name, e.Type))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show type, size, creation time and digest")
	cmd.Flags().Uint64Var(&view, "view", 0, "List as of this view instead of the current one")

	return cmd
}

// readAt returns the contents of path in view, or in the current view
// through the VFS when view is zero.
func readAt(cmd *cobra.Command, path string, view uint64) ([]byte, error) {
	var data []byte
	if view == 0 {
		err := withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
			var err error
			data, err = v.ReadFile(path)
			return err
		})
		return data, err
	}
	err := withVolume(cmd, func(vol *geofs.Volume) error {
		d, err := vol.ResolveAt(path, view)
		if err != nil {
			return err
		}
		data, err = vol.ReadAll(d)
		return err
	})
	return data, err
}

// NewCatCmd creates and returns the cat subcommand.
func NewCatCmd() *cobra.Command {
	var view uint64

	cmd := &cobra.Command{
		Use:   "cat PATH",
		Short: "Print a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readAt(cmd, args[0], view)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().Uint64Var(&view, "view", 0, "Read the file as of this view")

	return cmd
}

// NewWriteCmd creates and returns the write subcommand.
func NewWriteCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "write PATH",
		Short: "Append data to a file",
		Long: `Append data read from stdin (or given with --data) to a file, creating it if
needed. The new contents are stored as a new object and bound to the path with a
new reference; earlier contents stay reachable through history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			if cmd.Flags().Changed("data") {
				body = []byte(data)
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				body = b
			}
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				if err := v.WriteFile(args[0], body); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Wrote %s to %s\n", humanize.IBytes(uint64(len(body))), args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Data to append instead of reading stdin")

	return cmd
}

// NewGetCmd creates and returns the get subcommand.
func NewGetCmd() *cobra.Command {
	var view uint64

	cmd := &cobra.Command{
		Use:   "get PATH HOST_FILE",
		Short: "Copy a file out of the volume",
		Long: `Copy a file out of the volume into a host file. The host file is replaced
atomically.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readAt(cmd, args[0], view)
			if err != nil {
				return err
			}
			if err := renameio.WriteFile(args[1], data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			printf(cmd.OutOrStdout(), "Copied %s to %s (%s)\n", args[0], args[1], humanize.IBytes(uint64(len(data))))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&view, "view", 0, "Copy the file as of this view")

	return cmd
}

// NewMkdirCmd creates and returns the mkdir subcommand.
func NewMkdirCmd() *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "mkdir DIR...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				for _, dir := range args {
					mk := v.Mkdir
					if parents {
						mk = v.MkdirAll
					}
					if err := mk(dir); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parents; existing directories are not an error")

	return cmd
}

// NewLnCmd creates and returns the ln subcommand. Only symbolic links exist.
func NewLnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ln TARGET LINK",
		Short: "Create a symbolic link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				return v.Symlink(args[0], args[1])
			})
		},
	}
}

// NewCpCmd creates and returns the cp subcommand.
func NewCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp SRC DST",
		Short: "Copy a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				return v.Copy(args[0], args[1])
			})
		},
	}
}

// NewMvCmd creates and returns the mv subcommand.
func NewMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv OLD NEW",
		Short: "Rename a file",
		Long: `Rename a file. The contents are bound to the new path and the old path is
hidden, which creates a new view.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				return v.Rename(args[0], args[1])
			})
		},
	}
}

// NewHideCmd creates and returns the hide subcommand.
func NewHideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hide PATH...",
		Short: "Hide paths from the current view onwards",
		Long: `Hide paths. Each hide creates a new view in which the path no longer
resolves and switches to it; earlier views still see the path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVFS(cmd, func(v *vfs.VFS, vol *geofs.Volume) error {
				for _, p := range args {
					if err := v.Hide(p); err != nil {
						return err
					}
					printf(cmd.OutOrStdout(), "Hid %s (now in view %d)\n", p, vol.CurrentView())
				}
				return nil
			})
		},
	}
}

// NewFindCmd creates and returns the find subcommand.
func NewFindCmd() *cobra.Command {
	var (
		start string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "find PATTERN",
		Short: "Search for entries by name",
		Long: `Search the tree below --start for entries whose name matches PATTERN. The
pattern supports '*' and '?' wildcards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				n := 0
				return v.Search(start, args[0], func(m vfs.Match) bool {
					name := m.Path
					if m.Stat.IsDir() {
						name += "/"
					}
					printf(cmd.OutOrStdout(), "%s\n", name)
					n++
					return limit <= 0 || n < limit
				})
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "/", "Directory to search from")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many matches (0 for no limit)")

	return cmd
}
