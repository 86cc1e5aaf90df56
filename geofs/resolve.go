package geofs

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/util"
)

// Content markers that give a stored object directory or symlink meaning.
const (
	DirMarker     = "__PHANTOM_DIR__"
	SymlinkMarker = "__PHANTOM_SYMLINK__"
)

// EntryType is the kind of object a path resolves to.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDir
	TypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// ClassifyContent derives the entry type from the leading bytes of an
// object.
func ClassifyContent(prefix []byte) EntryType {
	switch {
	case bytes.HasPrefix(prefix, []byte(DirMarker)):
		return TypeDir
	case bytes.HasPrefix(prefix, []byte(SymlinkMarker)):
		return TypeSymlink
	default:
		return TypeFile
	}
}

// DirEntry is one visible child returned by ListDir.
type DirEntry struct {
	Name    string
	Digest  util.Digest
	Size    uint64
	Created time.Time
	Type    EntryType
}

// IsDir reports whether the entry is a directory marker.
func (e DirEntry) IsDir() bool { return e.Type == TypeDir }

// Resolve returns the digest path is bound to in the current view.
func (v *Volume) Resolve(path string) (util.Digest, error) {
	p, err := canonical("resolve", path)
	if err != nil {
		return util.ZeroDigest, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("resolve"); err != nil {
		return util.ZeroDigest, err
	}
	return v.resolveLocked(p, v.current)
}

// ResolveAt is Resolve with an explicit view bound in place of the current
// view. The current view is not changed.
func (v *Volume) ResolveAt(path string, view uint64) (util.Digest, error) {
	p, err := canonical("resolve", path)
	if err != nil {
		return util.ZeroDigest, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("resolve"); err != nil {
		return util.ZeroDigest, err
	}
	return v.resolveLocked(p, view)
}

func (v *Volume) resolveLocked(path string, view uint64) (util.Digest, error) {
	r := v.bestRef(util.HashPath(path), view)
	if r == nil || r.tombstone() {
		return util.ZeroDigest, newError(KindNotFound, "resolve", path, nil)
	}
	return r.content, nil
}

// bestRef picks, among references to the path made in views up to view, the
// one with the latest timestamp. On equal timestamps the later record wins.
func (v *Volume) bestRef(pathHash util.Digest, view uint64) *refEntry {
	var best *refEntry
	for _, i := range v.byPath[pathHash] {
		r := &v.refs[i]
		if r.view > view {
			continue
		}
		if best == nil || r.created >= best.created {
			best = r
		}
	}
	return best
}

// ListDir calls fn for every visible direct child of dir in the current
// view, in name order, until fn returns false. It returns the number of
// entries delivered. fn runs with the volume locked and must not call back
// into v.
func (v *Volume) ListDir(dir string, fn func(DirEntry) bool) (int, error) {
	p, err := canonical("list", dir)
	if err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("list"); err != nil {
		return 0, err
	}
	return v.listLocked(p, v.current, fn)
}

// ListDirAt is ListDir under an explicit view bound.
func (v *Volume) ListDirAt(dir string, view uint64, fn func(DirEntry) bool) (int, error) {
	p, err := canonical("list", dir)
	if err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("list"); err != nil {
		return 0, err
	}
	return v.listLocked(p, view, fn)
}

func (v *Volume) listLocked(dir string, view uint64, fn func(DirEntry) bool) (int, error) {
	seen := make(map[string]string)
	for i := range v.refs {
		r := &v.refs[i]
		if r.view > view {
			continue
		}
		name, ok := util.IsDirectChild(dir, r.path)
		if !ok {
			continue
		}
		if _, dup := seen[name]; !dup {
			seen[name] = r.path
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		path := seen[name]
		r := v.bestRef(util.HashPath(path), view)
		if r == nil || r.tombstone() {
			continue
		}
		e := DirEntry{
			Name:    name,
			Digest:  r.content,
			Size:    v.sizeLocked(r.content),
			Created: nsTime(r.created),
		}
		t, err := v.typeLocked(r.content)
		if err != nil {
			return count, err
		}
		e.Type = t
		count++
		if !fn(e) {
			break
		}
	}
	return count, nil
}

// typeLocked probes the first bytes of an object for a marker.
func (v *Volume) typeLocked(d util.Digest) (EntryType, error) {
	if _, ok := v.content[d]; !ok {
		return TypeFile, nil
	}
	probe := make([]byte, len(SymlinkMarker))
	n, err := v.readLocked(d, probe)
	if err != nil {
		return TypeFile, err
	}
	return ClassifyContent(probe[:n]), nil
}

// Hide removes path from view in a new child view of the current one. The
// volume switches to the new view, so the path stays visible in every view
// that existed before the call.
func (v *Volume) Hide(path string) error {
	p, err := canonical("hide", path)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("hide"); err != nil {
		return err
	}
	if _, err := v.resolveLocked(p, v.current); err != nil {
		return newError(KindNotFound, "hide", p, nil)
	}

	id, err := v.createViewLocked(fmt.Sprintf("Hide: %.50s", p))
	if err != nil {
		return err
	}
	if err := v.switchLocked(id); err != nil {
		return err
	}
	if err := v.appendRefLocked(p, util.ZeroDigest, true); err != nil {
		return err
	}
	v.log.WithFields(logrus.Fields{"path": p, "view": id}).Info("hid path")
	return nil
}
