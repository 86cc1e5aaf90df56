package fusefs

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
	"github.com/dendrascience/geofs/vfs"
)

const (
	// LiveDir is the read-write tree bound to the volume's current view.
	LiveDir = "live"
	// ViewsDir holds one read-only tree per view, named by view id.
	ViewsDir = "views"

	livePath = "/" + LiveDir
	rootIno  = 1

	// Inodes of view trees are allocated above this so they never collide
	// with the ones the VFS hands out for the live tree.
	viewInodeBase = 1 << 40
)

// Options configures an FS.
type Options struct {
	VFS      vfs.Options
	ReadOnly bool
	Logger   logrus.FieldLogger
}

// FS implements the geofs FUSE filesystem
type FS struct {
	vfs      *vfs.VFS
	vol      *geofs.Volume
	inodes   *util.InodeRegistry
	readOnly bool
	log      logrus.FieldLogger

	closeOnce sync.Once
	closeErr  error
}

// New mounts vol into a fresh VFS under /live and returns the filesystem.
func New(vol *geofs.Volume, opts Options) (*FS, error) {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if opts.VFS.Logger == nil {
		opts.VFS.Logger = log
	}

	v := vfs.New(opts.VFS)
	if err := v.Mount(vol, livePath); err != nil {
		return nil, err
	}
	return &FS{
		vfs:      v,
		vol:      vol,
		inodes:   util.NewInodeRegistry(viewInodeBase),
		readOnly: opts.ReadOnly,
		log:      log.WithField("component", "fuse"),
	}, nil
}

// VFS returns the adapter serving the live tree.
func (f *FS) VFS() *vfs.VFS { return f.vfs }

// Close flushes open handles and unmounts the volume from the VFS. The
// volume itself stays open.
func (f *FS) Close() error {
	f.closeOnce.Do(func() {
		if err := f.vfs.SyncAll(); err != nil {
			f.closeErr = err
		}
		if err := f.vfs.Unmount(livePath); err != nil && f.closeErr == nil {
			f.closeErr = err
		}
	})
	return f.closeErr
}

// Root returns the root directory node
func (f *FS) Root() (fs.Node, error) {
	return &Root{fs: f}, nil
}

// Statfs reports volume capacity in content blocks.
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	st := f.vol.Stats()
	resp.Bsize = geofs.BlockSize
	resp.Frsize = geofs.BlockSize
	resp.Blocks = st.ContentBlocksTotal
	resp.Bfree = st.ContentBlocksTotal - st.ContentBlocksUsed
	resp.Bavail = resp.Bfree
	resp.Files = st.RefsTotal
	resp.Ffree = st.RefsTotal - st.RefsUsed
	resp.Namelen = util.MaxName
	return nil
}

func errno(err error) error {
	if err == nil {
		return nil
	}
	return fuse.Errno(vfs.Errno(err))
}

func direntType(t geofs.EntryType) fuse.DirentType {
	switch t {
	case geofs.TypeDir:
		return fuse.DT_Dir
	case geofs.TypeSymlink:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

func (f *FS) fillAttr(a *fuse.Attr, st vfs.Stat) {
	a.Inode = st.Ino
	a.Size = st.Size
	a.Blocks = st.Blocks
	a.Mode = st.Mode
	a.Nlink = st.Nlink
	a.Mtime = st.Modified
	a.Ctime = st.Created
	a.Atime = st.Accessed
	a.BlockSize = geofs.BlockSize
	if f.readOnly {
		a.Mode &^= 0o222
	}
}

// Root is the top directory holding live and views.
type Root struct {
	fs *FS
}

// Attr returns directory attributes
func (r *Root) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := r.fs.vfs.Stat("/")
	if err != nil {
		return errno(err)
	}
	r.fs.fillAttr(a, st)
	a.Inode = rootIno
	a.Mode = os.ModeDir | 0o555
	return nil
}

// Lookup resolves the two fixed entries.
func (r *Root) Lookup(ctx context.Context, name string) (fs.Node, error) {
	switch name {
	case LiveDir:
		return &Dir{fs: r.fs, path: livePath}, nil
	case ViewsDir:
		return &Views{fs: r.fs}, nil
	}
	return nil, syscall.ENOENT
}

// ReadDirAll lists live and views.
func (r *Root) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	st, err := r.fs.vfs.Stat(livePath)
	if err != nil {
		return nil, errno(err)
	}
	return []fuse.Dirent{
		{Inode: st.Ino, Name: LiveDir, Type: fuse.DT_Dir},
		{Inode: r.fs.inodes.InodeFor(ViewsDir), Name: ViewsDir, Type: fuse.DT_Dir},
	}, nil
}

// liveNode builds the node for a live path of the given type.
func (f *FS) liveNode(path string, typ geofs.EntryType) fs.Node {
	switch typ {
	case geofs.TypeDir:
		return &Dir{fs: f, path: path}
	case geofs.TypeSymlink:
		return &Symlink{fs: f, path: path}
	default:
		return &File{fs: f, path: path}
	}
}

// Dir is a directory of the live tree.
type Dir struct {
	fs   *FS
	path string
}

// Attr returns directory attributes
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := d.fs.vfs.Stat(d.path)
	if err != nil {
		return errno(err)
	}
	d.fs.fillAttr(a, st)
	return nil
}

// Lookup resolves a child through the VFS, which revalidates it against
// the volume.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	p := util.JoinChild(d.path, name)
	st, err := d.fs.vfs.Stat(p)
	if err != nil {
		return nil, errno(err)
	}
	return d.fs.liveNode(p, st.Type), nil
}

// ReadDirAll lists directory contents
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	ents, err := d.fs.vfs.ReadDir(d.path)
	if err != nil {
		return nil, errno(err)
	}
	out := make([]fuse.Dirent, 0, len(ents))
	for _, e := range ents {
		out = append(out, fuse.Dirent{Inode: e.Ino, Name: e.Name, Type: direntType(e.Type)})
	}
	return out, nil
}

// Create creates a new file
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	if d.fs.readOnly {
		return nil, nil, syscall.EROFS
	}
	p := util.JoinChild(d.path, req.Name)
	fd, err := d.fs.vfs.Open(p, openFlags(req.Flags)|vfs.Create)
	if err != nil {
		return nil, nil, errno(err)
	}
	st, err := d.fs.vfs.Fstat(fd)
	if err != nil {
		d.fs.vfs.Close(fd)
		return nil, nil, errno(err)
	}
	d.fs.fillAttr(&resp.Attr, st)
	resp.Flags |= fuse.OpenDirectIO
	return &File{fs: d.fs, path: p}, &Handle{fs: d.fs, fd: fd}, nil
}

// Mkdir creates a new directory
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	if d.fs.readOnly {
		return nil, syscall.EROFS
	}
	p := util.JoinChild(d.path, req.Name)
	if err := d.fs.vfs.Mkdir(p); err != nil {
		return nil, errno(err)
	}
	return &Dir{fs: d.fs, path: p}, nil
}

// Remove hides a file or an empty directory. Earlier views keep it.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if d.fs.readOnly {
		return syscall.EROFS
	}
	p := util.JoinChild(d.path, req.Name)
	st, err := d.fs.vfs.Stat(p)
	if err != nil {
		return errno(err)
	}
	if req.Dir != st.IsDir() {
		if req.Dir {
			return syscall.ENOTDIR
		}
		return syscall.EISDIR
	}
	return errno(d.fs.vfs.Hide(p))
}

// Symlink creates a symbolic link
func (d *Dir) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	if d.fs.readOnly {
		return nil, syscall.EROFS
	}
	p := util.JoinChild(d.path, req.NewName)
	if err := d.fs.vfs.Symlink(req.Target, p); err != nil {
		return nil, errno(err)
	}
	return &Symlink{fs: d.fs, path: p}, nil
}

// Rename copies the entry to its new name and hides the old one.
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	if d.fs.readOnly {
		return syscall.EROFS
	}
	nd, ok := newDir.(*Dir)
	if !ok {
		return syscall.EXDEV
	}
	oldPath := util.JoinChild(d.path, req.OldName)
	newPath := util.JoinChild(nd.path, req.NewName)
	return errno(d.fs.vfs.Rename(oldPath, newPath))
}

// File is a regular file of the live tree.
type File struct {
	fs   *FS
	path string
}

// Attr returns file attributes
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := f.fs.vfs.Stat(f.path)
	if err != nil {
		return errno(err)
	}
	f.fs.fillAttr(a, st)
	return nil
}

// Open opens a handle. Writes always append, so the kernel page cache is
// bypassed and truncation is refused.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if f.fs.readOnly && !req.Flags.IsReadOnly() {
		return nil, syscall.EROFS
	}
	if req.Flags&fuse.OpenTruncate != 0 {
		return nil, syscall.EPERM
	}
	fd, err := f.fs.vfs.Open(f.path, openFlags(req.Flags))
	if err != nil {
		return nil, errno(err)
	}
	resp.Flags |= fuse.OpenDirectIO
	return &Handle{fs: f.fs, fd: fd}, nil
}

// Setattr accepts timestamp changes and a size equal to the current one.
// Any other size would need truncation, which the volume cannot express.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	st, err := f.fs.vfs.Stat(f.path)
	if err != nil {
		return errno(err)
	}
	if req.Valid.Size() && req.Size != st.Size {
		return syscall.EPERM
	}
	f.fs.fillAttr(&resp.Attr, st)
	return nil
}

// Fsync forces synchronization
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	if err := f.fs.vfs.SyncAll(); err != nil {
		return errno(err)
	}
	return errno(f.fs.vol.Sync())
}

// Symlink is a symbolic link of the live tree.
type Symlink struct {
	fs   *FS
	path string
}

// Attr returns link attributes
func (s *Symlink) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := s.fs.vfs.Stat(s.path)
	if err != nil {
		return errno(err)
	}
	s.fs.fillAttr(a, st)
	return nil
}

// Readlink returns the stored target.
func (s *Symlink) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	target, err := s.fs.vfs.Readlink(s.path)
	return target, errno(err)
}

// Handle is an open VFS file descriptor.
type Handle struct {
	fs *FS
	fd vfs.FD
}

// Read reads at the requested offset.
func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if _, err := h.fs.vfs.Seek(h.fd, req.Offset, io.SeekStart); err != nil {
		return errno(err)
	}
	buf := make([]byte, req.Size)
	n, err := h.fs.vfs.Read(h.fd, buf)
	if err == io.EOF {
		resp.Data = buf[:0]
		return nil
	}
	if err != nil {
		return errno(err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write appends the data, whatever offset the kernel asks for.
func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := h.fs.vfs.Write(h.fd, req.Data)
	resp.Size = n
	return errno(err)
}

// Flush materialises pending writes as one reference.
func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return errno(h.fs.vfs.Sync(h.fd))
}

// Release closes the descriptor.
func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return errno(h.fs.vfs.Close(h.fd))
}

func openFlags(f fuse.OpenFlags) vfs.OpenFlag {
	var out vfs.OpenFlag
	switch {
	case f.IsReadWrite():
		out = vfs.ReadWrite
	case f.IsWriteOnly():
		out = vfs.WriteOnly
	default:
		out = vfs.ReadOnly
	}
	if f&fuse.OpenAppend != 0 {
		out |= vfs.Append
	}
	if f&fuse.OpenExclusive != 0 {
		out |= vfs.Exclusive
	}
	return out
}

var (
	_ fs.FS                 = (*FS)(nil)
	_ fs.FSStatfser         = (*FS)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
	_ fs.NodeCreater        = (*Dir)(nil)
	_ fs.NodeMkdirer        = (*Dir)(nil)
	_ fs.NodeRemover        = (*Dir)(nil)
	_ fs.NodeSymlinker      = (*Dir)(nil)
	_ fs.NodeRenamer        = (*Dir)(nil)
	_ fs.NodeOpener         = (*File)(nil)
	_ fs.NodeSetattrer      = (*File)(nil)
	_ fs.NodeFsyncer        = (*File)(nil)
	_ fs.NodeReadlinker     = (*Symlink)(nil)
	_ fs.HandleReader       = (*Handle)(nil)
	_ fs.HandleWriter       = (*Handle)(nil)
	_ fs.HandleFlusher      = (*Handle)(nil)
	_ fs.HandleReleaser     = (*Handle)(nil)
)
