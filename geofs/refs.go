package geofs

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/util"
)

type refEntry struct {
	id       uint64
	pathHash util.Digest
	content  util.Digest
	view     uint64
	created  uint64
	hidden   bool
	path     string
}

// tombstone reports whether the reference hides its path.
func (r *refEntry) tombstone() bool {
	return r.hidden || r.content.IsZero()
}

// Ref is one reference record as seen by history callers.
type Ref struct {
	ID      uint64
	Path    string
	Digest  util.Digest
	View    uint64
	Created time.Time
	Hidden  bool
	Size    uint64 // zero for hidden references
}

func (v *Volume) refInfo(r *refEntry) Ref {
	out := Ref{
		ID:      r.id,
		Path:    r.path,
		Digest:  r.content,
		View:    r.view,
		Created: nsTime(r.created),
		Hidden:  r.tombstone(),
	}
	if !out.Hidden {
		out.Size = v.sizeLocked(r.content)
	}
	return out
}

// CreateRef binds path to the object d in the current view.
func (v *Volume) CreateRef(path string, d util.Digest) error {
	p, err := canonical("create ref", path)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("create ref"); err != nil {
		return err
	}
	return v.appendRefLocked(p, d, false)
}

func (v *Volume) appendRefLocked(path string, d util.Digest, hidden bool) error {
	if len(path) > util.MaxPath {
		return newError(KindInvalid, "create ref", path, util.ErrPathTooLong)
	}

	slot := v.sb.RefNextID - 1
	off := int64(v.sb.RefStart*BlockSize + slot*RefRecordSize)
	if off+RefRecordSize > int64(v.sb.refEnd()*BlockSize) {
		return newError(KindFull, "create ref", path, errors.Errorf("reference slot %d past region end", slot))
	}

	rec := refRecord{
		pathHash: util.HashPath(path),
		content:  d,
		viewID:   v.current,
		created:  v.stamp(),
		path:     path,
	}
	if hidden {
		rec.flags |= refFlagHidden
	}
	if _, err := v.f.WriteAt(rec.marshal(), off); err != nil {
		return newError(KindIO, "create ref", path, errors.Wrapf(err, "write reference at %d", off))
	}

	v.indexRef(v.sb.RefNextID, &rec)
	v.sb.RefNextID++
	v.sb.TotalRefs++
	v.touch()

	v.log.WithFields(logrus.Fields{
		"op":     "ref",
		"path":   path,
		"digest": d.Short(),
		"view":   v.current,
		"hidden": hidden,
	}).Debug("appended reference")
	return nil
}

func (v *Volume) indexRef(id uint64, rec *refRecord) {
	v.refs = append(v.refs, refEntry{
		id:       id,
		pathHash: rec.pathHash,
		content:  rec.content,
		view:     rec.viewID,
		created:  rec.created,
		hidden:   rec.flags&refFlagHidden != 0,
		path:     rec.path,
	})
	v.byPath[rec.pathHash] = append(v.byPath[rec.pathHash], len(v.refs)-1)
	if rec.created > v.lastStamp {
		v.lastStamp = rec.created
	}
}

// rebuildRefs reads every allocated reference slot. Slots whose magic does
// not match are skipped; a slot past the end of the file ends the scan.
func (v *Volume) rebuildRefs() error {
	buf := make([]byte, RefRecordSize)
	base := int64(v.sb.RefStart * BlockSize)
	skipped := 0
	for i := uint64(0); i+1 < v.sb.RefNextID; i++ {
		off := base + int64(i*RefRecordSize)
		n, err := v.f.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return newError(KindIO, "rebuild refs", v.path, errors.Wrapf(err, "read reference at %d", off))
		}
		if n < RefRecordSize {
			v.log.WithField("slot", i).Warn("reference region truncated, stopping scan")
			break
		}
		var rec refRecord
		if !rec.unmarshal(buf) {
			skipped++
			continue
		}
		v.indexRef(i+1, &rec)
	}
	if skipped > 0 {
		v.log.WithField("skipped", skipped).Warn("skipped reference slots with bad magic")
	}
	return nil
}

// RefHistory calls fn for every reference record in append order, hidden
// ones included, until fn returns false. It returns the number of records
// delivered. fn runs with the volume locked and must not call back into v.
func (v *Volume) RefHistory(fn func(Ref) bool) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for i := range v.refs {
		count++
		if !fn(v.refInfo(&v.refs[i])) {
			break
		}
	}
	return count
}

// PathHistory is RefHistory restricted to one path.
func (v *Volume) PathHistory(path string, fn func(Ref) bool) (int, error) {
	p, err := canonical("path history", path)
	if err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("path history"); err != nil {
		return 0, err
	}
	count := 0
	for _, i := range v.byPath[util.HashPath(p)] {
		count++
		if !fn(v.refInfo(&v.refs[i])) {
			break
		}
	}
	return count, nil
}

func canonical(op, path string) (string, error) {
	p, err := util.CanonicalAbs(path)
	if err != nil {
		return "", newError(KindInvalid, op, path, err)
	}
	return p, nil
}
