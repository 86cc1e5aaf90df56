package vfs

import (
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/geofs"
)

type mount struct {
	path      string
	vol       Volume
	root      int
	active    bool
	mountedAt time.Time

	filesCreated uint64
	dirsCreated  uint64
	bytesWritten uint64
}

// MountInfo describes one entry of the mount table.
type MountInfo struct {
	Path         string
	Active       bool
	Versioned    bool
	MountedAt    time.Time
	FilesCreated uint64
	DirsCreated  uint64
	BytesWritten uint64
}

// Mount attaches vol at path. Missing directories leading to path are
// created in the namespace only.
func (v *VFS) Mount(vol Volume, path string) error {
	p, err := v.canonical("mount", path)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	active := 0
	for _, m := range v.mounts {
		if m.active {
			active++
			if m.path == p {
				return pathErr("mount", p, syscall.EEXIST)
			}
		}
	}
	if active >= v.opts.MaxMounts {
		return pathErr("mount", p, syscall.ENOSPC)
	}

	cur := 0
	if p != "/" {
		for name := range strings.SplitSeq(p[1:], "/") {
			next := v.child(cur, name)
			if next == none {
				next = v.addChild(cur, name, none, "")
				v.dentries[next].ino = v.newInode(next, geofs.TypeDir)
			}
			cur = next
		}
	}

	idx := len(v.mounts)
	v.mounts = append(v.mounts, &mount{
		path:      p,
		vol:       vol,
		root:      cur,
		active:    true,
		mountedAt: time.Now(),
	})
	v.pruneChildren(cur)
	d := &v.dentries[cur]
	d.mnt = idx
	d.volPath = "/"
	d.hidden = false
	d.ino = v.newInode(cur, geofs.TypeDir)

	_, versioned := vol.(Versioned)
	v.log.WithFields(logrus.Fields{"path": p, "versioned": versioned}).Info("mounted volume")
	return nil
}

// pruneChildren drops cached children of a dentry that is about to be
// re-rooted, keeping nested mount points and the synthetic directories
// leading to them.
func (v *VFS) pruneChildren(id int) {
	keep := none
	for c := v.dentries[id].firstChild; c != none; {
		next := v.dentries[c].nextSibling
		if d := &v.dentries[c]; d.mnt == none || d.mountRoot() {
			v.dentries[c].nextSibling = keep
			keep = c
		}
		c = next
	}
	v.dentries[id].firstChild = keep
}

// Unmount flushes dirty files open on the mount at path and marks it
// inactive. The mount record stays in the table; paths below it fail with
// ENOENT until something is mounted there again.
func (v *VFS) Unmount(path string) error {
	p, err := v.canonical("unmount", path)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := none
	for i, m := range v.mounts {
		if m.active && m.path == p {
			idx = i
		}
	}
	if idx == none {
		return pathErr("unmount", p, syscall.ENOENT)
	}

	var first error
	for _, f := range v.files {
		if v.dentries[f.dentry].mnt == idx {
			if err := v.flushLocked(f); err != nil && first == nil {
				first = err
			}
		}
	}

	m := v.mounts[idx]
	m.active = false
	v.log.WithFields(logrus.Fields{
		"path":          p,
		"files_created": m.filesCreated,
		"dirs_created":  m.dirsCreated,
		"bytes_written": m.bytesWritten,
	}).Info("unmounted volume")
	return first
}

// Mounts lists the mount table, inactive entries included.
func (v *VFS) Mounts() []MountInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]MountInfo, 0, len(v.mounts))
	for _, m := range v.mounts {
		_, versioned := m.vol.(Versioned)
		out = append(out, MountInfo{
			Path:         m.path,
			Active:       m.active,
			Versioned:    versioned,
			MountedAt:    m.mountedAt,
			FilesCreated: m.filesCreated,
			DirsCreated:  m.dirsCreated,
			BytesWritten: m.bytesWritten,
		})
	}
	return out
}

// findMount picks the active mount with the longest prefix of path and
// returns it with path made relative to the mount.
func (v *VFS) findMount(path string) (*mount, string) {
	var best *mount
	for _, m := range v.mounts {
		if !m.active || !within(path, m.path) {
			continue
		}
		if best == nil || len(m.path) > len(best.path) {
			best = m
		}
	}
	if best == nil {
		return nil, ""
	}
	rel := strings.TrimPrefix(path, best.path)
	if best.path == "/" {
		rel = path
	}
	if rel == "" {
		rel = "/"
	}
	return best, rel
}

func within(path, prefix string) bool {
	if prefix == "/" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == '/'
}
