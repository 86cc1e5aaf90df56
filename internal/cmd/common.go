package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/internal/config"
	"github.com/dendrascience/geofs/internal/logger"
	"github.com/dendrascience/geofs/util"
	"github.com/dendrascience/geofs/vfs"
)

type ctxKey int

const (
	configKey ctxKey = iota
	loggerKey
)

var errNoVolume = errors.New("no volume given: use --volume or set volume.path in the configuration")

func withRuntime(ctx context.Context, cfg *config.Config, log *logrus.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey, cfg)
	return context.WithValue(ctx, loggerKey, log)
}

// configFrom returns the configuration loaded by the root command, or the
// defaults when the command runs on its own.
func configFrom(cmd *cobra.Command) *config.Config {
	if ctx := cmd.Context(); ctx != nil {
		if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
			return cfg
		}
	}
	return config.Default()
}

func loggerFrom(cmd *cobra.Command) *logrus.Logger {
	if ctx := cmd.Context(); ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*logrus.Logger); ok {
			return l
		}
	}
	return logger.Discard()
}

func volumePath(cmd *cobra.Command) (string, error) {
	p, _ := cmd.Flags().GetString("volume")
	if p == "" {
		p = configFrom(cmd).Volume.Path
	}
	if p == "" {
		return "", errNoVolume
	}
	return p, nil
}

// openVolume opens the volume named by --volume or the configuration.
func openVolume(cmd *cobra.Command) (*geofs.Volume, error) {
	p, err := volumePath(cmd)
	if err != nil {
		return nil, err
	}
	vol, err := geofs.Open(p, geofs.WithLogger(loggerFrom(cmd)))
	if err != nil {
		return nil, fmt.Errorf("open volume %s: %w", p, err)
	}
	return vol, nil
}

// withVolume runs fn against the open volume and closes it afterwards,
// reporting the first error.
func withVolume(cmd *cobra.Command, fn func(vol *geofs.Volume) error) error {
	vol, err := openVolume(cmd)
	if err != nil {
		return err
	}
	err = fn(vol)
	if cerr := vol.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close volume: %w", cerr)
	}
	return err
}

// withVFS is withVolume with the volume mounted at "/" of a fresh VFS.
func withVFS(cmd *cobra.Command, fn func(v *vfs.VFS, vol *geofs.Volume) error) error {
	return withVolume(cmd, func(vol *geofs.Volume) error {
		opts := configFrom(cmd).VFS.VFSOptions()
		opts.Logger = loggerFrom(cmd)
		v := vfs.New(opts)
		if err := v.Mount(vol, "/"); err != nil {
			return err
		}
		err := fn(v, vol)
		if uerr := v.Unmount("/"); uerr != nil && err == nil {
			err = uerr
		}
		return err
	})
}

func parseView(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid view id %q", s)
	}
	return id, nil
}

var digestPalette = []*color.Color{
	color.New(color.FgRed),
	color.New(color.FgGreen),
	color.New(color.FgYellow),
	color.New(color.FgBlue),
	color.New(color.FgMagenta),
	color.New(color.FgCyan),
	color.New(color.FgHiRed),
	color.New(color.FgHiGreen),
	color.New(color.FgHiYellow),
	color.New(color.FgHiMagenta),
}

// shortDigest renders the short form of d in a colour derived from it, so
// equal content is easy to spot in listings.
func shortDigest(d util.Digest) string {
	return digestPalette[util.DigestBucket(d)%len(digestPalette)].Sprint(d.Short())
}

var (
	dirColor     = color.New(color.FgBlue, color.Bold)
	linkColor    = color.New(color.FgCyan)
	currentColor = color.New(color.FgGreen, color.Bold)
	problemColor = color.New(color.FgRed)
)

func entryName(name string, typ geofs.EntryType) string {
	switch typ {
	case geofs.TypeDir:
		return dirColor.Sprint(name + "/")
	case geofs.TypeSymlink:
		return linkColor.Sprint(name)
	}
	return name
}

func typeChar(typ geofs.EntryType) byte {
	switch typ {
	case geofs.TypeDir:
		return 'd'
	case geofs.TypeSymlink:
		return 'l'
	}
	return '-'
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
