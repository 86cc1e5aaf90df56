package fusefs

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MountConfig holds the kernel mount options.
type MountConfig struct {
	FSName     string
	Subtype    string
	ReadOnly   bool
	AllowOther bool
}

func (c MountConfig) options() []fuse.MountOption {
	name, sub := c.FSName, c.Subtype
	if name == "" {
		name = "geofs"
	}
	if sub == "" {
		sub = "geofs"
	}
	opts := []fuse.MountOption{fuse.FSName(name), fuse.Subtype(sub)}
	if c.ReadOnly {
		opts = append(opts, fuse.ReadOnly())
	}
	if c.AllowOther {
		opts = append(opts, fuse.AllowOther())
	}
	return opts
}

// Serve mounts fsys at mountpoint and serves requests until the kernel
// unmounts it or ctx is cancelled. Open handles are flushed before it
// returns.
func Serve(ctx context.Context, mountpoint string, fsys *FS, cfg MountConfig) error {
	c, err := fuse.Mount(mountpoint, cfg.options()...)
	if err != nil {
		return errors.Wrapf(err, "mount %s", mountpoint)
	}
	defer c.Close()

	session := uuid.New()
	log := fsys.log.WithFields(logrus.Fields{
		"session":    session.String(),
		"mountpoint": mountpoint,
		"volume":     fsys.vol.Path(),
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			log.Info("context cancelled, unmounting")
			if err := fuse.Unmount(mountpoint); err != nil {
				log.WithError(err).Warn("unmount failed")
			}
		case <-done:
		}
	}()

	log.Info("serving volume")
	serveErr := fs.Serve(c, fsys)
	closeErr := fsys.Close()
	log.Info("stopped serving")

	if serveErr != nil {
		return errors.Wrap(serveErr, "serve")
	}
	return closeErr
}
