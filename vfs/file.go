package vfs

import (
	"io"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

// OpenFlag selects the access mode and creation behaviour of Open.
type OpenFlag uint32

const (
	ReadOnly  OpenFlag = 0x1
	WriteOnly OpenFlag = 0x2
	ReadWrite OpenFlag = 0x3
	Append    OpenFlag = 0x8
	Create    OpenFlag = 0x100
	Exclusive OpenFlag = 0x200
	Directory OpenFlag = 0x1000
)

func (f OpenFlag) readable() bool { return f&ReadOnly != 0 }
func (f OpenFlag) writable() bool { return f&WriteOnly != 0 }

// FD is an open file descriptor.
type FD int

// file is an open handle. Content is loaded on first use; writes always
// append to the buffer and are materialised as one new reference on Sync
// or Close.
type file struct {
	fd     FD
	dentry int
	ino    *inode
	flags  OpenFlag
	pos    int64
	buf    []byte
	loaded bool
	dirty  bool
	opened time.Time
}

// Open opens path. With Create a missing file is created empty in its
// parent directory; with Exclusive as well an existing file is an error.
// Directories need the Directory flag. Truncation is not supported.
func (v *VFS) Open(path string, flags OpenFlag) (FD, error) {
	p, err := v.canonical("open", path)
	if err != nil {
		return -1, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	fd, err := v.openLocked(p, flags)
	return fd, pathErr("open", p, err)
}

func (v *VFS) openLocked(path string, flags OpenFlag) (FD, error) {
	id, err := v.walk(path)
	switch {
	case Errno(err) == syscall.ENOENT && flags&Create != 0:
		id, err = v.createLocked(path)
		if err != nil {
			return -1, err
		}
	case err != nil:
		return -1, err
	case flags&Create != 0 && flags&Exclusive != 0:
		return -1, syscall.EEXIST
	}

	d := &v.dentries[id]
	if d.ino.typ == geofs.TypeDir && flags&Directory == 0 {
		return -1, syscall.EISDIR
	}
	if len(v.files) >= v.opts.MaxOpenFiles {
		return -1, syscall.ENFILE
	}

	f := &file{
		fd:     v.nextFD,
		dentry: id,
		ino:    d.ino,
		flags:  flags,
		opened: time.Now(),
	}
	if flags&Append != 0 {
		f.pos = int64(d.ino.size)
	}
	v.nextFD++
	v.files[f.fd] = f
	v.stats.Opens++
	return f.fd, nil
}

func (v *VFS) createLocked(path string) (int, error) {
	parent, name, err := v.lookupParent(path)
	if err != nil {
		return none, err
	}
	p := &v.dentries[parent]
	m := v.mounts[p.mnt]
	if err := storeRef(m.vol, util.JoinChild(p.volPath, name), nil); err != nil {
		return none, err
	}
	m.filesCreated++
	return v.materialise(parent, name)
}

func (v *VFS) fileLocked(fd FD) (*file, error) {
	f, ok := v.files[fd]
	if !ok {
		return nil, syscall.EBADF
	}
	return f, nil
}

func (v *VFS) load(f *file) error {
	if f.loaded {
		return nil
	}
	d := &v.dentries[f.dentry]
	if d.mnt != none && !d.mountRoot() && f.ino.typ != geofs.TypeDir {
		data, err := v.mounts[d.mnt].vol.ReadAll(f.ino.digest)
		if err != nil {
			return err
		}
		f.buf = data
	}
	f.loaded = true
	return nil
}

// Close flushes pending writes and releases fd. The descriptor is released
// even when the flush fails.
func (v *VFS) Close(fd FD) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.fileLocked(fd)
	if err != nil {
		return fdErr("close", err)
	}
	return fdErr("close", v.closeLocked(f))
}

func (v *VFS) closeLocked(f *file) error {
	err := v.flushLocked(f)
	delete(v.files, f.fd)
	f.buf = nil
	return err
}

// Read reads from the current position. It returns 0, io.EOF at the end of
// the file.
func (v *VFS) Read(fd FD, p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.fileLocked(fd)
	if err != nil {
		return 0, fdErr("read", err)
	}
	n, err := v.readLocked(f, p)
	if err == io.EOF {
		return n, err
	}
	return n, fdErr("read", err)
}

func (v *VFS) readLocked(f *file, p []byte) (int, error) {
	if !f.flags.readable() {
		return 0, syscall.EPERM
	}
	if f.ino.typ == geofs.TypeDir {
		return 0, syscall.EISDIR
	}
	if err := v.load(f); err != nil {
		return 0, err
	}
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	f.ino.accessed = time.Now()
	v.stats.Reads++
	v.stats.BytesRead += uint64(n)
	return n, nil
}

// Write appends p to the file regardless of the current position and
// advances the position by len(p).
func (v *VFS) Write(fd FD, p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.fileLocked(fd)
	if err != nil {
		return 0, fdErr("write", err)
	}
	n, err := v.writeLocked(f, p)
	return n, fdErr("write", err)
}

func (v *VFS) writeLocked(f *file, p []byte) (int, error) {
	if !f.flags.writable() {
		return 0, syscall.EPERM
	}
	if f.ino.typ == geofs.TypeDir {
		return 0, syscall.EISDIR
	}
	if err := v.load(f); err != nil {
		return 0, err
	}
	f.buf = append(f.buf, p...)
	f.pos += int64(len(p))
	f.dirty = true
	f.ino.size = uint64(len(f.buf))
	f.ino.modified = time.Now()

	v.mounts[v.dentries[f.dentry].mnt].bytesWritten += uint64(len(p))
	v.stats.Writes++
	v.stats.BytesWritten += uint64(len(p))
	return len(p), nil
}

// Seek sets the position for the next Read. whence is io.SeekStart,
// io.SeekCurrent or io.SeekEnd.
func (v *VFS) Seek(fd FD, offset int64, whence int) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.fileLocked(fd)
	if err != nil {
		return 0, fdErr("seek", err)
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		if err := v.load(f); err != nil {
			return 0, fdErr("seek", err)
		}
		pos = int64(len(f.buf)) + offset
	default:
		return 0, fdErr("seek", syscall.EINVAL)
	}
	if pos < 0 {
		return 0, fdErr("seek", syscall.EINVAL)
	}
	f.pos = pos
	return pos, nil
}

// Sync materialises pending writes as a new reference.
func (v *VFS) Sync(fd FD) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.fileLocked(fd)
	if err != nil {
		return fdErr("sync", err)
	}
	return fdErr("sync", v.flushLocked(f))
}

func (v *VFS) flushLocked(f *file) error {
	if !f.dirty {
		return nil
	}
	d := &v.dentries[f.dentry]
	vol := v.mounts[d.mnt].vol
	digest, err := vol.Store(f.buf)
	if err != nil {
		return err
	}
	if err := vol.CreateRef(d.volPath, digest); err != nil {
		return err
	}
	f.ino.digest = digest
	f.ino.size = uint64(len(f.buf))
	f.dirty = false

	v.log.WithFields(logrus.Fields{
		"path":   d.volPath,
		"digest": digest.Short(),
		"size":   len(f.buf),
	}).Debug("flushed file")
	return nil
}

// Fstat describes an open file.
func (v *VFS) Fstat(fd FD) (Stat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.fileLocked(fd)
	if err != nil {
		return Stat{}, fdErr("fstat", err)
	}
	return statOf(f.ino), nil
}

func storeRef(vol Volume, path string, data []byte) error {
	d, err := vol.Store(data)
	if err != nil {
		return err
	}
	return vol.CreateRef(path, d)
}
