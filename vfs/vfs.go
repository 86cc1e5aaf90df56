package vfs

import (
	"io"
	"io/fs"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

// Volume is the storage a mount is backed by. *geofs.Volume implements it.
type Volume interface {
	Store(data []byte) (util.Digest, error)
	Read(d util.Digest, buf []byte) (int, error)
	ReadAll(d util.Digest) ([]byte, error)
	Size(d util.Digest) (uint64, error)
	CreateRef(path string, d util.Digest) error
	Resolve(path string) (util.Digest, error)
	ListDir(dir string, fn func(geofs.DirEntry) bool) (int, error)
	Hide(path string) error
}

// Versioned is a Volume with views. History and RestoreVersion need it.
// ResolveAt must not change the volume's current view.
type Versioned interface {
	Volume
	ResolveAt(path string, view uint64) (util.Digest, error)
	View(id uint64) (geofs.ViewInfo, error)
	Views() []geofs.ViewInfo
}

// Default limits.
const (
	DefaultMaxOpenFiles = 1024
	DefaultMaxMounts    = 64
	DefaultRestoreLimit = 1 << 20
	DefaultCopyChunk    = 8 << 10
	DefaultSearchDepth  = 32
)

// Options tunes a VFS. Zero values select the defaults.
type Options struct {
	MaxOpenFiles int
	MaxMounts    int
	RestoreLimit int
	CopyChunk    int
	SearchDepth  int
	Logger       logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = DefaultMaxOpenFiles
	}
	if o.MaxMounts <= 0 {
		o.MaxMounts = DefaultMaxMounts
	}
	if o.RestoreLimit <= 0 {
		o.RestoreLimit = DefaultRestoreLimit
	}
	if o.CopyChunk <= 0 {
		o.CopyChunk = DefaultCopyChunk
	}
	if o.SearchDepth <= 0 {
		o.SearchDepth = DefaultSearchDepth
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
}

// Stats are the adapter-wide counters.
type Stats struct {
	Opens        uint64
	Reads        uint64
	Writes       uint64
	BytesRead    uint64
	BytesWritten uint64
	OpenFiles    int
}

// VFS maps hierarchical, mutable file semantics onto append-only volumes
// mounted into a single namespace. All methods are safe for concurrent use.
type VFS struct {
	mu   sync.Mutex
	opts Options
	log  logrus.FieldLogger

	dentries []dentry
	inodes   *util.InodeRegistry
	mounts   []*mount

	files  map[FD]*file
	nextFD FD

	stats Stats
}

// New returns an empty namespace whose root is a bare directory.
func New(opts Options) *VFS {
	opts.applyDefaults()
	v := &VFS{
		opts:   opts,
		log:    opts.Logger,
		inodes: util.NewInodeRegistry(rootIno),
		files:  make(map[FD]*file),
	}
	now := time.Now()
	v.dentries = append(v.dentries, dentry{
		parent:      none,
		firstChild:  none,
		nextSibling: none,
		mnt:         none,
		ino:         &inode{ino: rootIno, typ: geofs.TypeDir, created: now, modified: now, accessed: now},
	})
	return v
}

// Stats returns a snapshot of the adapter counters.
func (v *VFS) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.stats
	s.OpenFiles = len(v.files)
	return s
}

// SyncAll flushes every dirty open file.
func (v *VFS) SyncAll() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var first error
	for _, f := range v.files {
		if err := v.flushLocked(f); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (v *VFS) canonical(op, path string) (string, error) {
	p, err := util.CanonicalAbs(path)
	if err != nil {
		return "", &fs.PathError{Op: op, Path: path, Err: syscall.EINVAL}
	}
	return p, nil
}
