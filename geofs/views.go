package geofs

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ViewInfo describes one stratum of the volume.
type ViewInfo struct {
	ID      uint64
	Parent  uint64
	Created time.Time
	Label   string
}

// CreateView appends a child of the current view and returns its id. The
// current view is left unchanged.
func (v *Volume) CreateView(label string) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("create view"); err != nil {
		return 0, err
	}
	return v.createViewLocked(label)
}

func (v *Volume) createViewLocked(label string) (uint64, error) {
	rec := viewRecord{
		id:      v.sb.ViewNextID,
		parent:  v.current,
		created: v.stamp(),
		label:   truncateLabel(label),
	}
	v.sb.ViewNextID++
	if err := v.writeView(&rec); err != nil {
		v.sb.ViewNextID--
		return 0, err
	}

	v.indexView(&rec)
	v.sb.TotalViews++
	v.touch()

	v.log.WithFields(logrus.Fields{
		"view":   rec.id,
		"parent": rec.parent,
		"label":  rec.label,
	}).Debug("created view")
	return rec.id, nil
}

func (v *Volume) writeView(rec *viewRecord) error {
	off := int64(v.sb.ViewStart*BlockSize + (rec.id-1)*ViewRecordSize)
	if off+ViewRecordSize > int64(v.sb.viewEnd()*BlockSize) {
		return newError(KindFull, "create view", rec.label, errors.Errorf("view %d past region end", rec.id))
	}
	if _, err := v.f.WriteAt(rec.marshal(), off); err != nil {
		return newError(KindIO, "create view", rec.label, errors.Wrapf(err, "write view at %d", off))
	}
	return nil
}

func (v *Volume) indexView(rec *viewRecord) {
	if _, ok := v.viewByID[rec.id]; ok {
		return
	}
	v.views = append(v.views, ViewInfo{
		ID:      rec.id,
		Parent:  rec.parent,
		Created: nsTime(rec.created),
		Label:   rec.label,
	})
	v.viewByID[rec.id] = len(v.views) - 1
	if rec.created > v.lastStamp {
		v.lastStamp = rec.created
	}
}

// SwitchView makes id the current view. The choice is persisted in the
// superblock on the next Sync or Close.
func (v *Volume) SwitchView(id uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("switch view"); err != nil {
		return err
	}
	return v.switchLocked(id)
}

func (v *Volume) switchLocked(id uint64) error {
	if _, ok := v.viewByID[id]; !ok {
		return newError(KindNotFound, "switch view", "", errors.Errorf("view %d", id))
	}
	v.current = id
	v.sb.CurrentView = id
	v.touch()
	return nil
}

// CurrentView returns the id of the active view.
func (v *Volume) CurrentView() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// View returns the view with the given id.
func (v *Volume) View(id uint64) (ViewInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i, ok := v.viewByID[id]
	if !ok {
		return ViewInfo{}, newError(KindNotFound, "view", "", errors.Errorf("view %d", id))
	}
	return v.views[i], nil
}

// ListViews calls fn for each view in creation order until fn returns false
// and returns the number of views delivered. fn runs with the volume locked
// and must not call back into v.
func (v *Volume) ListViews(fn func(ViewInfo) bool) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for _, vi := range v.views {
		count++
		if !fn(vi) {
			break
		}
	}
	return count
}

// Views returns a copy of the view index in creation order.
func (v *Volume) Views() []ViewInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]ViewInfo(nil), v.views...)
}

func (v *Volume) rebuildViews() error {
	buf := make([]byte, ViewRecordSize)
	base := int64(v.sb.ViewStart * BlockSize)
	skipped := 0
	for i := uint64(0); i+1 < v.sb.ViewNextID; i++ {
		off := base + int64(i*ViewRecordSize)
		n, err := v.f.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return newError(KindIO, "rebuild views", v.path, errors.Wrapf(err, "read view at %d", off))
		}
		if n < ViewRecordSize {
			v.log.WithField("slot", i).Warn("view region truncated, stopping scan")
			break
		}
		var rec viewRecord
		if !rec.unmarshal(buf) {
			skipped++
			continue
		}
		v.indexView(&rec)
	}
	if skipped > 0 {
		v.log.WithField("skipped", skipped).Warn("skipped view slots with bad magic")
	}
	return nil
}
