package fusefs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

const probeLen = 31

// Views lists every view of the volume as a directory.
type Views struct {
	fs *FS
}

// Attr returns directory attributes
func (v *Views) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = v.fs.inodes.InodeFor(ViewsDir)
	a.Mode = os.ModeDir | 0o555
	a.Nlink = 2
	now := time.Now()
	a.Mtime, a.Ctime, a.Atime = now, now, now
	return nil
}

// Lookup resolves a view id.
func (v *Views) Lookup(ctx context.Context, name string) (fs.Node, error) {
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return nil, syscall.ENOENT
	}
	info, err := v.fs.vol.View(id)
	if err != nil {
		return nil, errno(err)
	}
	return &ViewDir{fs: v.fs, view: info.ID, path: "/", mtime: info.Created}, nil
}

// ReadDirAll lists available views
func (v *Views) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	views := v.fs.vol.Views()
	out := make([]fuse.Dirent, 0, len(views))
	for _, info := range views {
		out = append(out, fuse.Dirent{
			Inode: v.fs.viewInode(info.ID, "/"),
			Name:  strconv.FormatUint(info.ID, 10),
			Type:  fuse.DT_Dir,
		})
	}
	return out, nil
}

func (f *FS) viewInode(view uint64, path string) uint64 {
	return f.inodes.InodeFor(fmt.Sprintf("view%d:%s", view, path))
}

// viewNode builds the read-only node for path as it resolves under view.
func (f *FS) viewNode(view uint64, path string, mtime time.Time) (fs.Node, error) {
	d, err := f.vol.ResolveAt(path, view)
	if err != nil {
		return nil, errno(err)
	}
	size, err := f.vol.Size(d)
	if err != nil {
		return nil, errno(err)
	}
	probe := make([]byte, probeLen)
	n, err := f.vol.Read(d, probe)
	if err != nil {
		return nil, errno(err)
	}

	switch geofs.ClassifyContent(probe[:n]) {
	case geofs.TypeDir:
		return &ViewDir{fs: f, view: view, path: path, mtime: mtime}, nil
	case geofs.TypeSymlink:
		return &ViewFile{fs: f, view: view, path: path, digest: d, size: size, mtime: mtime, link: true}, nil
	default:
		return &ViewFile{fs: f, view: view, path: path, digest: d, size: size, mtime: mtime}, nil
	}
}

// ViewDir is a directory as it existed in one view.
type ViewDir struct {
	fs    *FS
	view  uint64
	path  string
	mtime time.Time
}

// Attr returns directory attributes
func (d *ViewDir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = d.fs.viewInode(d.view, d.path)
	a.Mode = os.ModeDir | 0o555
	a.Nlink = 2
	a.Mtime, a.Ctime, a.Atime = d.mtime, d.mtime, d.mtime
	return nil
}

// Lookup resolves a child under the directory's view.
func (d *ViewDir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	return d.fs.viewNode(d.view, util.JoinChild(d.path, name), d.mtime)
}

// ReadDirAll lists the directory under its view.
func (d *ViewDir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var out []fuse.Dirent
	_, err := d.fs.vol.ListDirAt(d.path, d.view, func(e geofs.DirEntry) bool {
		out = append(out, fuse.Dirent{
			Inode: d.fs.viewInode(d.view, util.JoinChild(d.path, e.Name)),
			Name:  e.Name,
			Type:  direntType(e.Type),
		})
		return true
	})
	if err != nil {
		return nil, errno(err)
	}
	return out, nil
}

// ViewFile is a file or symlink as it existed in one view. It is its own
// handle.
type ViewFile struct {
	fs     *FS
	view   uint64
	path   string
	digest util.Digest
	size   uint64
	mtime  time.Time
	link   bool
}

// Attr returns file attributes
func (f *ViewFile) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = f.fs.viewInode(f.view, f.path)
	a.Size = f.size
	a.Blocks = (f.size + geofs.BlockSize - 1) / geofs.BlockSize
	a.Mode = 0o444
	if f.link {
		a.Mode = os.ModeSymlink | 0o555
	}
	a.Nlink = 1
	a.Mtime, a.Ctime, a.Atime = f.mtime, f.mtime, f.mtime
	return nil
}

// Open refuses anything but read-only access.
func (f *ViewFile) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		return nil, syscall.EROFS
	}
	resp.Flags |= fuse.OpenKeepCache
	return f, nil
}

// ReadAll reads the entire file content
func (f *ViewFile) ReadAll(ctx context.Context) ([]byte, error) {
	data, err := f.fs.vol.ReadAll(f.digest)
	return data, errno(err)
}

// Readlink returns the target of a symlink.
func (f *ViewFile) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	if !f.link {
		return "", syscall.EINVAL
	}
	data, err := f.fs.vol.ReadAll(f.digest)
	if err != nil {
		return "", errno(err)
	}
	return string(bytes.TrimPrefix(data, []byte(geofs.SymlinkMarker))), nil
}

var (
	_ fs.NodeStringLookuper = (*Views)(nil)
	_ fs.HandleReadDirAller = (*Views)(nil)
	_ fs.NodeStringLookuper = (*ViewDir)(nil)
	_ fs.HandleReadDirAller = (*ViewDir)(nil)
	_ fs.NodeOpener         = (*ViewFile)(nil)
	_ fs.HandleReadAller    = (*ViewFile)(nil)
	_ fs.NodeReadlinker     = (*ViewFile)(nil)
)
