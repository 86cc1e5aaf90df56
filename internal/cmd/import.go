package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
	"github.com/dendrascience/geofs/vfs"
)

// importer copies host files into a volume. Each changed file becomes a new
// reference bound to the whole file contents; unchanged files are skipped.
type importer struct {
	vfs  *vfs.VFS
	vol  *geofs.Volume
	host string
	dest string
	log  logrus.FieldLogger

	files, skipped int
	bytes          uint64
}

func (im *importer) target(hostPath string) (string, error) {
	rel, err := filepath.Rel(im.host, hostPath)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return im.dest, nil
	}
	return util.Canonicalize(im.dest + "/" + filepath.ToSlash(rel))
}

func (im *importer) importFile(hostPath string) error {
	dest, err := im.target(hostPath)
	if err != nil {
		return err
	}
	sum, err := util.GetFileHash(hostPath)
	if err != nil {
		return err
	}
	if cur, err := im.vol.Resolve(dest); err == nil && cur == sum {
		im.skipped++
		return nil
	}
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}
	parent, _ := util.SplitParent(dest)
	if err := im.vfs.MkdirAll(parent); err != nil {
		return err
	}
	d, err := im.vol.Store(data)
	if err != nil {
		return err
	}
	if err := im.vol.CreateRef(dest, d); err != nil {
		return err
	}

	im.files++
	im.bytes += uint64(len(data))
	im.log.WithFields(logrus.Fields{
		"host":   hostPath,
		"path":   dest,
		"digest": d.Short(),
	}).Debug("imported file")
	return nil
}

func (im *importer) importTree() error {
	return filepath.WalkDir(im.host, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			dest, err := im.target(p)
			if err != nil {
				return err
			}
			return im.vfs.MkdirAll(dest)
		}
		if !de.Type().IsRegular() {
			return nil
		}
		return im.importFile(p)
	})
}

// watch re-imports files under root as they change until ctx is done. When
// only is set, events for other files are ignored.
func (im *importer) watch(ctx context.Context, root, only string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	addDirs := func(root string) error {
		return filepath.WalkDir(root, func(p string, de fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if de.IsDir() {
				return w.Add(p)
			}
			return nil
		})
	}
	if err := addDirs(root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.log.WithError(err).Warn("watch error")
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if only != "" && ev.Name != only {
				continue
			}
			fi, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			if fi.IsDir() {
				if err := addDirs(ev.Name); err != nil {
					im.log.WithError(err).WithField("dir", ev.Name).Warn("cannot watch directory")
				}
				continue
			}
			if !fi.Mode().IsRegular() {
				continue
			}
			if err := im.importFile(ev.Name); err != nil {
				im.log.WithError(err).WithField("host", ev.Name).Warn("re-import failed")
				continue
			}
			if err := im.vol.Sync(); err != nil {
				return err
			}
		}
	}
}

// NewImportCmd creates and returns the import subcommand.
func NewImportCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "import HOST_PATH [DEST]",
		Short: "Copy host files into the volume",
		Long: `Copy a host file or directory tree into the volume under DEST (default
/<base name of HOST_PATH>). Files whose contents are already bound to their
destination are skipped. With --watch the command keeps running and imports
every host file again when it changes, so each saved version becomes a new
reference.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			fi, err := os.Stat(host)
			if err != nil {
				return err
			}
			raw := "/" + filepath.Base(host)
			if len(args) == 2 {
				raw = args[1]
			}
			dest, err := util.CanonicalAbs(raw)
			if err != nil {
				return fmt.Errorf("destination %q: %w", raw, err)
			}

			return withVFS(cmd, func(v *vfs.VFS, vol *geofs.Volume) error {
				im := &importer{vfs: v, vol: vol, host: host, dest: dest, log: loggerFrom(cmd)}
				if fi.IsDir() {
					err = im.importTree()
				} else {
					err = im.importFile(host)
				}
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Imported %d files (%s), %d unchanged\n", im.files, humanize.IBytes(im.bytes), im.skipped)

				if !watch {
					return nil
				}
				root, only := host, ""
				if !fi.IsDir() {
					root, only = filepath.Dir(host), host
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				printf(cmd.OutOrStdout(), "Watching %s for changes...\n", host)
				return im.watch(ctx, root, only)
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep importing changed files until interrupted")

	return cmd
}
