package vfs

import (
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/util"
)

// Version is one view in which a path resolved.
type Version struct {
	View    uint64
	Label   string
	Created time.Time
	Digest  util.Digest
	Size    uint64
}

// Hex returns the digest in hex.
func (ver Version) Hex() string { return ver.Digest.String() }

// History lists the views in which path resolves, in view creation order,
// stopping after limit versions when limit is positive. A path on a volume
// without views has no history. The volume's current view is left alone.
func (v *VFS) History(path string, limit int) ([]Version, error) {
	p, err := v.canonical("history", path)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	m, rel := v.findMount(p)
	if m == nil {
		return nil, pathErr("history", p, syscall.ENOENT)
	}
	vol, ok := m.vol.(Versioned)
	if !ok {
		return nil, nil
	}

	var out []Version
	for _, view := range vol.Views() {
		if limit > 0 && len(out) >= limit {
			break
		}
		d, err := vol.ResolveAt(rel, view.ID)
		if err != nil {
			continue
		}
		size, _ := vol.Size(d)
		out = append(out, Version{
			View:    view.ID,
			Label:   view.Label,
			Created: view.Created,
			Digest:  d,
			Size:    size,
		})
	}
	return out, nil
}

// RestoreVersion copies the content path had in view into restorePath in
// the current view. At most Options.RestoreLimit bytes are restored.
// Writes append, so restoring onto an existing file extends it.
func (v *VFS) RestoreVersion(path string, view uint64, restorePath string) error {
	p, err := v.canonical("restore", path)
	if err != nil {
		return err
	}
	rp, err := v.canonical("restore", restorePath)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	m, rel := v.findMount(p)
	if m == nil {
		return pathErr("restore", p, syscall.ENOENT)
	}
	vol, ok := m.vol.(Versioned)
	if !ok {
		return pathErr("restore", p, syscall.ENOSYS)
	}

	data, err := v.readAtView(vol, rel, view)
	if err != nil {
		return pathErr("restore", p, err)
	}

	fd, err := v.openLocked(rp, Create|WriteOnly)
	if err != nil {
		return pathErr("restore", rp, err)
	}
	f := v.files[fd]
	if _, err := v.writeLocked(f, data); err != nil {
		v.closeLocked(f)
		return pathErr("restore", rp, err)
	}
	if err := v.closeLocked(f); err != nil {
		return pathErr("restore", rp, err)
	}

	v.log.WithFields(logrus.Fields{
		"path":  p,
		"view":  view,
		"to":    rp,
		"bytes": len(data),
	}).Info("restored version")
	return nil
}

// readAtView reads the content rel had in view.
func (v *VFS) readAtView(vol Versioned, rel string, view uint64) ([]byte, error) {
	if _, err := vol.View(view); err != nil {
		return nil, syscall.ENOENT
	}
	d, err := vol.ResolveAt(rel, view)
	if err != nil {
		return nil, syscall.ENOENT
	}
	buf := make([]byte, v.opts.RestoreLimit)
	n, err := vol.Read(d, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
