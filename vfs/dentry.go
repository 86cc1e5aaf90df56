package vfs

import (
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"time"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

const (
	none    = -1
	rootIno = 1
	probeN  = 31
)

// dentry is a node of the cached path tree. Dentries live in VFS.dentries
// and refer to each other by index. A dentry with mnt == none is a
// synthetic directory that only exists to reach a mount point.
type dentry struct {
	name        string
	parent      int
	firstChild  int
	nextSibling int
	mnt         int
	volPath     string
	hidden      bool
	ino         *inode
}

type inode struct {
	ino      uint64
	typ      geofs.EntryType
	digest   util.Digest
	size     uint64
	created  time.Time
	modified time.Time
	accessed time.Time
}

func (d *dentry) mountRoot() bool {
	return d.mnt != none && d.volPath == "/"
}

func (v *VFS) child(parent int, name string) int {
	for c := v.dentries[parent].firstChild; c != none; c = v.dentries[c].nextSibling {
		if v.dentries[c].name == name {
			return c
		}
	}
	return none
}

func (v *VFS) addChild(parent int, name string, mnt int, volPath string) int {
	id := len(v.dentries)
	v.dentries = append(v.dentries, dentry{
		name:        name,
		parent:      parent,
		firstChild:  none,
		nextSibling: v.dentries[parent].firstChild,
		mnt:         mnt,
		volPath:     volPath,
	})
	v.dentries[parent].firstChild = id
	return id
}

// dropChild undoes the addChild that created id. id must be the newest
// dentry, so nothing else can refer to it yet.
func (v *VFS) dropChild(id int) {
	d := &v.dentries[id]
	v.dentries[d.parent].firstChild = d.nextSibling
	v.dentries = v.dentries[:id]
}

func (v *VFS) inodeKey(id int) string {
	d := &v.dentries[id]
	if d.mnt == none {
		return "synthetic:" + v.dentryPath(id)
	}
	return fmt.Sprintf("mount%d:%s", d.mnt, d.volPath)
}

func (v *VFS) newInode(id int, typ geofs.EntryType) *inode {
	now := time.Now()
	return &inode{
		ino:      v.inodes.InodeFor(v.inodeKey(id)),
		typ:      typ,
		created:  now,
		modified: now,
		accessed: now,
	}
}

// dentryPath rebuilds the namespace path of a dentry.
func (v *VFS) dentryPath(id int) string {
	var parts []string
	for ; id > 0; id = v.dentries[id].parent {
		parts = append(parts, v.dentries[id].name)
	}
	if len(parts) == 0 {
		return "/"
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// walk resolves a canonical absolute path to a dentry, revalidating every
// mounted component against its volume on the way.
func (v *VFS) walk(path string) (int, error) {
	cur := 0
	if err := v.revalidate(cur); err != nil {
		return none, err
	}
	if path == "/" {
		return cur, nil
	}
	for name := range strings.SplitSeq(path[1:], "/") {
		d := &v.dentries[cur]
		if d.ino.typ != geofs.TypeDir {
			return none, syscall.ENOTDIR
		}
		next := v.child(cur, name)
		added := false
		if next == none {
			if d.mnt == none {
				return none, syscall.ENOENT
			}
			next = v.addChild(cur, name, d.mnt, util.JoinChild(d.volPath, name))
			added = true
		}
		if err := v.revalidate(next); err != nil {
			if added {
				v.dropChild(next)
			}
			return none, err
		}
		cur = next
	}
	return cur, nil
}

// revalidate refreshes a dentry from its volume so that view switches and
// writes through other handles are observed.
func (v *VFS) revalidate(id int) error {
	d := &v.dentries[id]
	if d.mnt != none && !v.mounts[d.mnt].active {
		return syscall.ENOENT
	}
	if d.mnt == none || d.mountRoot() {
		if d.ino == nil {
			d.ino = v.newInode(id, geofs.TypeDir)
		}
		return nil
	}

	vol := v.mounts[d.mnt].vol
	digest, err := vol.Resolve(d.volPath)
	if err != nil {
		d.hidden = true
		return err
	}
	d.hidden = false
	if d.ino != nil && d.ino.digest == digest {
		return nil
	}

	typ, size, err := probe(vol, digest)
	if err != nil {
		return err
	}
	if d.ino == nil {
		d.ino = v.newInode(id, typ)
	}
	d.ino.typ = typ
	d.ino.digest = digest
	d.ino.size = size
	d.ino.modified = time.Now()
	return nil
}

func probe(vol Volume, d util.Digest) (geofs.EntryType, uint64, error) {
	size, err := vol.Size(d)
	if err != nil {
		return geofs.TypeFile, 0, err
	}
	buf := make([]byte, probeN)
	n, err := vol.Read(d, buf)
	if err != nil {
		return geofs.TypeFile, 0, err
	}
	return geofs.ClassifyContent(buf[:n]), size, nil
}

// lookupParent resolves the directory that will hold path and returns it with
// the final name.
func (v *VFS) lookupParent(path string) (int, string, error) {
	dir, name := util.SplitParent(path)
	if name == "" {
		return none, "", syscall.EEXIST
	}
	parent, err := v.walk(dir)
	if err != nil {
		return none, "", err
	}
	p := &v.dentries[parent]
	if p.ino.typ != geofs.TypeDir {
		return none, "", syscall.ENOTDIR
	}
	if p.mnt == none {
		return none, "", syscall.EPERM
	}
	return parent, name, nil
}

// materialise returns the dentry for name under parent after a new
// reference has been written for it.
func (v *VFS) materialise(parent int, name string) (int, error) {
	id := v.child(parent, name)
	added := false
	if id == none {
		p := &v.dentries[parent]
		id = v.addChild(parent, name, p.mnt, util.JoinChild(p.volPath, name))
		added = true
	}
	if err := v.revalidate(id); err != nil {
		if added {
			v.dropChild(id)
		}
		return none, err
	}
	return id, nil
}

// Stat describes a path or an open file.
type Stat struct {
	Ino      uint64
	Type     geofs.EntryType
	Mode     fs.FileMode
	Nlink    uint32
	Size     uint64
	Blocks   uint64
	Digest   util.Digest
	Created  time.Time
	Modified time.Time
	Accessed time.Time
}

// IsDir reports whether the stat describes a directory.
func (s Stat) IsDir() bool { return s.Type == geofs.TypeDir }

func statOf(ino *inode) Stat {
	st := Stat{
		Ino:      ino.ino,
		Type:     ino.typ,
		Nlink:    1,
		Size:     ino.size,
		Blocks:   (ino.size + geofs.BlockSize - 1) / geofs.BlockSize,
		Digest:   ino.digest,
		Created:  ino.created,
		Modified: ino.modified,
		Accessed: ino.accessed,
	}
	switch ino.typ {
	case geofs.TypeDir:
		st.Mode = fs.ModeDir | 0o755
		st.Nlink = 2
	case geofs.TypeSymlink:
		st.Mode = fs.ModeSymlink | 0o777
	default:
		st.Mode = 0o644
	}
	return st
}
