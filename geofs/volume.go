package geofs

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/util"
)

const genesisLabel = "Genesis"

// Volume is an open GeoFS volume file. All exported methods are safe for
// concurrent use; they serialise on a single volume-wide mutex.
type Volume struct {
	mu   sync.Mutex
	f    *os.File
	path string
	sb   Superblock

	content      map[util.Digest]contentEntry
	contentOrder []util.Digest

	refs   []refEntry
	byPath map[util.Digest][]int

	views    []ViewInfo
	viewByID map[uint64]int

	current   uint64
	dirty     bool
	lastStamp uint64

	log   logrus.FieldLogger
	clock func() time.Time
}

// Option configures a Volume at Create or Open time.
type Option func(*Volume)

// WithLogger routes volume logging to l.
func WithLogger(l logrus.FieldLogger) Option {
	return func(v *Volume) {
		if l != nil {
			v.log = l
		}
	}
}

// WithClock replaces the wall clock used for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(v *Volume) {
		if clock != nil {
			v.clock = clock
		}
	}
}

func newVolume(path string, opts ...Option) *Volume {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	v := &Volume{
		path:     path,
		content:  make(map[util.Digest]contentEntry),
		byPath:   make(map[util.Digest][]int),
		viewByID: make(map[uint64]int),
		log:      quiet,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.WithField("volume", path)
	return v
}

// Create makes a new volume file of sizeMB mebibytes at path. The file must
// not already exist. The new volume holds a single Genesis view and is
// positioned on it.
func Create(path string, sizeMB int, opts ...Option) (*Volume, error) {
	if sizeMB < 1 {
		return nil, newError(KindInvalid, "create", path, errors.Errorf("size %d MiB is below the 1 MiB minimum", sizeMB))
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, newError(KindExists, "create", path, err)
		}
		return nil, newError(KindIO, "create", path, err)
	}

	v := newVolume(path, opts...)
	v.f = f

	totalBlocks := uint64(sizeMB) * 1024 * 1024 / BlockSize
	now := v.stamp()
	v.sb = Superblock{
		Magic:         Magic,
		Version:       Version,
		BlockSize:     BlockSize,
		VolumeID:      now,
		Created:       now,
		LastModified:  now,
		ContentStart:  1,
		ContentBlocks: totalBlocks * contentPercent / 100,
		RefBlocks:     totalBlocks * refPercent / 100,
		ViewBlocks:    totalBlocks * viewPercent / 100,
		RefNextID:     1,
		ViewNextID:    1,
		CurrentView:   1,
	}
	v.sb.ContentNextBlock = v.sb.ContentStart
	v.sb.RefStart = v.sb.contentEnd()
	v.sb.ViewStart = v.sb.refEnd()
	v.current = 1

	fail := func(err error) (*Volume, error) {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	if err := f.Truncate(int64(totalBlocks * BlockSize)); err != nil {
		return fail(newError(KindIO, "create", path, errors.Wrap(err, "truncate")))
	}
	if err := v.writeSuperblock(); err != nil {
		return fail(err)
	}

	genesis := viewRecord{id: 1, parent: 0, created: now, label: genesisLabel}
	if err := v.writeView(&genesis); err != nil {
		return fail(err)
	}
	v.sb.ViewNextID = 2
	v.sb.TotalViews = 1
	v.indexView(&genesis)

	if err := v.writeSuperblock(); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(newError(KindIO, "create", path, errors.Wrap(err, "fsync")))
	}

	v.log.WithFields(logrus.Fields{
		"size_mb":        sizeMB,
		"content_blocks": v.sb.ContentBlocks,
		"ref_blocks":     v.sb.RefBlocks,
		"view_blocks":    v.sb.ViewBlocks,
	}).Info("created volume")
	return v, nil
}

// Open loads an existing volume and rebuilds its in-memory indices from the
// three regions.
func Open(path string, opts ...Option) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindNotFound, "open", path, err)
		}
		return nil, newError(KindIO, "open", path, err)
	}

	v := newVolume(path, opts...)
	v.f = f

	buf := make([]byte, SuperblockSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, newError(KindCorrupt, "open", path, errors.New("file too short for a superblock"))
		}
		return nil, newError(KindIO, "open", path, errors.Wrap(err, "read superblock"))
	}
	v.sb.unmarshal(buf)
	if v.sb.Magic != Magic {
		f.Close()
		return nil, newError(KindCorrupt, "open", path, errors.Errorf("bad magic %#x", v.sb.Magic))
	}
	if v.sb.Version != Version || v.sb.BlockSize != BlockSize {
		f.Close()
		return nil, newError(KindCorrupt, "open", path,
			errors.Errorf("unsupported version %d block size %d", v.sb.Version, v.sb.BlockSize))
	}
	if p := v.sb.problems(); len(p) > 0 {
		f.Close()
		return nil, newError(KindCorrupt, "open", path, errors.New(p[0]))
	}
	v.current = v.sb.CurrentView
	v.lastStamp = v.sb.LastModified

	for _, rebuild := range []func() error{v.rebuildContent, v.rebuildRefs, v.rebuildViews} {
		if err := rebuild(); err != nil {
			f.Close()
			return nil, err
		}
	}

	if len(v.views) == 0 {
		v.log.Warn("view index empty, using in-memory Genesis view")
		v.indexView(&viewRecord{id: v.current, created: v.sb.Created, label: genesisLabel})
	}

	v.log.WithFields(logrus.Fields{
		"objects": len(v.contentOrder),
		"refs":    len(v.refs),
		"views":   len(v.views),
		"view":    v.current,
	}).Info("opened volume")
	return v, nil
}

// Close writes the superblock if anything changed, flushes and releases the
// file. Calling Close on a closed or nil volume is a no-op.
func (v *Volume) Close() error {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.f == nil {
		return nil
	}

	var err error
	if v.dirty {
		err = v.flushLocked()
	}
	if cerr := v.f.Close(); cerr != nil && err == nil {
		err = newError(KindIO, "close", v.path, cerr)
	}
	v.f = nil
	v.content = nil
	v.contentOrder = nil
	v.refs = nil
	v.byPath = nil
	v.views = nil
	v.viewByID = nil
	v.log.Info("closed volume")
	return err
}

// Sync writes the superblock if the volume is dirty and flushes the file.
func (v *Volume) Sync() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("sync"); err != nil {
		return err
	}
	if !v.dirty {
		return nil
	}
	return v.flushLocked()
}

// Path returns the backing file path.
func (v *Volume) Path() string {
	return v.path
}

// Superblock returns a copy of the in-memory superblock.
func (v *Volume) Superblock() Superblock {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sb
}

func (v *Volume) flushLocked() error {
	if err := v.writeSuperblock(); err != nil {
		return err
	}
	if err := v.f.Sync(); err != nil {
		return newError(KindIO, "sync", v.path, errors.Wrap(err, "fsync"))
	}
	v.dirty = false
	return nil
}

func (v *Volume) checkOpen(op string) error {
	if v.f == nil {
		return newError(KindInvalid, op, v.path, os.ErrClosed)
	}
	return nil
}

func (v *Volume) writeSuperblock() error {
	if _, err := v.f.WriteAt(v.sb.marshal(), 0); err != nil {
		return newError(KindIO, "write superblock", v.path, err)
	}
	return nil
}

// stamp returns a nanosecond timestamp strictly greater than any previously
// issued by this volume.
func (v *Volume) stamp() uint64 {
	now := uint64(v.clock().UnixNano())
	if now <= v.lastStamp {
		now = v.lastStamp + 1
	}
	v.lastStamp = now
	return now
}

// touch records a mutation.
func (v *Volume) touch() {
	v.sb.LastModified = v.stamp()
	v.dirty = true
}

func (v *Volume) fileSize() (int64, error) {
	fi, err := v.f.Stat()
	if err != nil {
		return 0, newError(KindIO, "stat", v.path, err)
	}
	return fi.Size(), nil
}

func nsTime(ns uint64) time.Time {
	return time.Unix(0, int64(ns))
}
