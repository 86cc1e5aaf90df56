package vfs

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

// Dirent is one entry returned by Readdir.
type Dirent struct {
	Ino  uint64
	Name string
	Type geofs.EntryType
}

// Stat describes path.
func (v *VFS) Stat(path string) (Stat, error) {
	p, err := v.canonical("stat", path)
	if err != nil {
		return Stat{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	st, err := v.statLocked(p)
	return st, pathErr("stat", p, err)
}

func (v *VFS) statLocked(path string) (Stat, error) {
	id, err := v.walk(path)
	if err != nil {
		return Stat{}, err
	}
	return statOf(v.dentries[id].ino), nil
}

// Mkdir creates a directory whose parent must already exist.
func (v *VFS) Mkdir(path string) error {
	p, err := v.canonical("mkdir", path)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return pathErr("mkdir", p, v.mkdirLocked(p))
}

func (v *VFS) mkdirLocked(path string) error {
	parent, name, err := v.lookupParent(path)
	if err != nil {
		return err
	}
	if _, err := v.walk(path); err == nil {
		return syscall.EEXIST
	}
	p := &v.dentries[parent]
	m := v.mounts[p.mnt]
	if err := storeRef(m.vol, util.JoinChild(p.volPath, name), []byte(geofs.DirMarker)); err != nil {
		return err
	}
	m.dirsCreated++
	_, err = v.materialise(parent, name)
	return err
}

// MkdirAll creates path and any missing parents. Existing directories are
// left alone.
func (v *VFS) MkdirAll(path string) error {
	p, err := v.canonical("mkdir", path)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	cur := "/"
	for name := range strings.SplitSeq(strings.TrimPrefix(p, "/"), "/") {
		if name == "" {
			continue
		}
		cur = util.JoinChild(cur, name)
		id, err := v.walk(cur)
		if err == nil {
			if v.dentries[id].ino.typ != geofs.TypeDir {
				return pathErr("mkdir", cur, syscall.ENOTDIR)
			}
			continue
		}
		if err := v.mkdirLocked(cur); err != nil {
			return pathErr("mkdir", cur, err)
		}
	}
	return nil
}

// Readdir calls fn for each visible entry of the directory open at fd until
// fn returns false.
func (v *VFS) Readdir(fd FD, fn func(Dirent) bool) error {
	v.mu.Lock()
	f, err := v.fileLocked(fd)
	if err != nil {
		v.mu.Unlock()
		return fdErr("readdir", err)
	}
	ents, err := v.readdirLocked(f.dentry)
	v.mu.Unlock()
	if err != nil {
		return fdErr("readdir", err)
	}
	for _, e := range ents {
		if !fn(e) {
			break
		}
	}
	return nil
}

// ReadDir returns the entries of the directory at path.
func (v *VFS) ReadDir(path string) ([]Dirent, error) {
	p, err := v.canonical("readdir", path)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	id, err := v.walk(p)
	if err != nil {
		return nil, pathErr("readdir", p, err)
	}
	ents, err := v.readdirLocked(id)
	return ents, pathErr("readdir", p, err)
}

func (v *VFS) readdirLocked(id int) ([]Dirent, error) {
	d := &v.dentries[id]
	if d.ino.typ != geofs.TypeDir {
		return nil, syscall.ENOTDIR
	}

	var ents []Dirent
	seen := make(map[string]bool)
	if d.mnt != none {
		mnt, volPath := d.mnt, d.volPath
		var listed []geofs.DirEntry
		if _, err := v.mounts[mnt].vol.ListDir(volPath, func(e geofs.DirEntry) bool {
			listed = append(listed, e)
			return true
		}); err != nil {
			return nil, err
		}
		for _, e := range listed {
			cid := v.child(id, e.Name)
			if cid == none {
				cid = v.addChild(id, e.Name, mnt, util.JoinChild(volPath, e.Name))
			}
			c := &v.dentries[cid]
			if c.mnt == mnt && !c.mountRoot() {
				c.hidden = false
				if c.ino == nil || c.ino.digest != e.Digest {
					if c.ino == nil {
						c.ino = v.newInode(cid, e.Type)
					}
					c.ino.typ = e.Type
					c.ino.digest = e.Digest
					c.ino.size = e.Size
				}
			}
			seen[e.Name] = true
			ents = append(ents, Dirent{Ino: c.ino.ino, Name: e.Name, Type: c.ino.typ})
		}
	}

	// Mount points and the synthetic directories leading to them.
	for c := v.dentries[id].firstChild; c != none; c = v.dentries[c].nextSibling {
		cd := &v.dentries[c]
		if seen[cd.name] || cd.hidden || cd.ino == nil {
			continue
		}
		if cd.mnt == none || (cd.mountRoot() && v.mounts[cd.mnt].active) {
			ents = append(ents, Dirent{Ino: cd.ino.ino, Name: cd.name, Type: geofs.TypeDir})
		}
	}
	return ents, nil
}

// Hide removes path from the current view of its volume. The root of a
// mount cannot be hidden and a directory must have no visible entries.
func (v *VFS) Hide(path string) error {
	p, err := v.canonical("hide", path)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return pathErr("hide", p, v.hideLocked(p))
}

func (v *VFS) hideLocked(path string) error {
	id, err := v.walk(path)
	if err != nil {
		return err
	}
	d := &v.dentries[id]
	if id == 0 || d.mnt == none || d.mountRoot() {
		return syscall.EPERM
	}
	vol := v.mounts[d.mnt].vol
	if d.ino.typ == geofs.TypeDir {
		n, err := vol.ListDir(d.volPath, func(geofs.DirEntry) bool { return false })
		if err != nil {
			return err
		}
		if n > 0 {
			return syscall.ENOTEMPTY
		}
	}
	if err := vol.Hide(d.volPath); err != nil {
		return err
	}
	d.hidden = true
	v.log.WithField("path", path).Info("hid entry, earlier views keep it")
	return nil
}

// Symlink creates link pointing at target. The target is stored verbatim
// and is not resolved.
func (v *VFS) Symlink(target, link string) error {
	p, err := v.canonical("symlink", link)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return pathErr("symlink", p, v.symlinkLocked(target, p))
}

func (v *VFS) symlinkLocked(target, path string) error {
	parent, name, err := v.lookupParent(path)
	if err != nil {
		return err
	}
	if _, err := v.walk(path); err == nil {
		return syscall.EEXIST
	}
	p := &v.dentries[parent]
	m := v.mounts[p.mnt]
	if err := storeRef(m.vol, util.JoinChild(p.volPath, name), []byte(geofs.SymlinkMarker+target)); err != nil {
		return err
	}
	m.filesCreated++
	_, err = v.materialise(parent, name)
	return err
}

// Readlink returns the target of the symlink at path.
func (v *VFS) Readlink(path string) (string, error) {
	p, err := v.canonical("readlink", path)
	if err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	target, err := v.readlinkLocked(p)
	return target, pathErr("readlink", p, err)
}

func (v *VFS) readlinkLocked(path string) (string, error) {
	id, err := v.walk(path)
	if err != nil {
		return "", err
	}
	d := &v.dentries[id]
	if d.ino.typ != geofs.TypeSymlink {
		return "", syscall.EINVAL
	}
	data, err := v.mounts[d.mnt].vol.ReadAll(d.ino.digest)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, []byte(geofs.SymlinkMarker))), nil
}

// Copy streams src into dst, creating dst when missing. Writes append, so
// copying onto an existing file extends it.
func (v *VFS) Copy(src, dst string) error {
	s, err := v.canonical("copy", src)
	if err != nil {
		return err
	}
	d, err := v.canonical("copy", dst)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return pathErr("copy", s, v.copyLocked(s, d))
}

func (v *VFS) copyLocked(src, dst string) error {
	st, err := v.statLocked(src)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return syscall.EISDIR
	}

	sfd, err := v.openLocked(src, ReadOnly)
	if err != nil {
		return err
	}
	sf := v.files[sfd]
	dfd, err := v.openLocked(dst, WriteOnly|Create)
	if err != nil {
		v.closeLocked(sf)
		return err
	}
	df := v.files[dfd]

	buf := make([]byte, v.opts.CopyChunk)
	var total int
	for {
		n, rerr := v.readLocked(sf, buf)
		if n > 0 {
			if _, werr := v.writeLocked(df, buf[:n]); werr != nil {
				v.closeLocked(sf)
				v.closeLocked(df)
				return werr
			}
			total += n
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			v.closeLocked(sf)
			v.closeLocked(df)
			return rerr
		}
	}

	v.closeLocked(sf)
	if err := v.closeLocked(df); err != nil {
		return err
	}
	v.log.WithFields(logrus.Fields{"src": src, "dst": dst, "bytes": total}).Debug("copied file")
	return nil
}

// Rename copies old to new and hides old, so the old name survives in the
// views that existed before. Directories get a new empty directory; their
// contents are not moved.
func (v *VFS) Rename(oldPath, newPath string) error {
	o, err := v.canonical("rename", oldPath)
	if err != nil {
		return err
	}
	n, err := v.canonical("rename", newPath)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return pathErr("rename", o, v.renameLocked(o, n))
}

func (v *VFS) renameLocked(oldPath, newPath string) error {
	st, err := v.statLocked(oldPath)
	if err != nil {
		return err
	}
	if _, err := v.statLocked(newPath); err == nil {
		return syscall.EEXIST
	}

	if st.IsDir() {
		if err := v.mkdirLocked(newPath); err != nil && Errno(err) != syscall.EEXIST {
			return err
		}
	} else if err := v.copyLocked(oldPath, newPath); err != nil {
		return err
	}

	if err := v.hideLocked(oldPath); err != nil {
		v.log.WithFields(logrus.Fields{
			"path":  oldPath,
			"error": err,
		}).Warn("renamed but could not hide the old name")
	}
	return nil
}

// ReadFile returns the current content of the file at path.
func (v *VFS) ReadFile(path string) ([]byte, error) {
	fd, err := v.Open(path, ReadOnly)
	if err != nil {
		return nil, err
	}
	defer v.Close(fd)

	var out bytes.Buffer
	buf := make([]byte, v.opts.CopyChunk)
	for {
		n, err := v.Read(fd, buf)
		out.Write(buf[:n])
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// WriteFile appends data to the file at path, creating it if needed, and
// closes it so the result is materialised as one reference.
func (v *VFS) WriteFile(path string, data []byte) error {
	fd, err := v.Open(path, WriteOnly|Create)
	if err != nil {
		return err
	}
	if _, err := v.Write(fd, data); err != nil {
		v.Close(fd)
		return err
	}
	return v.Close(fd)
}
