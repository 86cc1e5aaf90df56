package geofs

import (
	"fmt"

	"github.com/dendrascience/geofs/util"
)

// CheckReport lists every inconsistency found by Check.
type CheckReport struct {
	ObjectsChecked int
	RefsChecked    int
	ViewsChecked   int
	Problems       []string
}

// OK reports whether no problems were found.
func (r *CheckReport) OK() bool { return len(r.Problems) == 0 }

func (r *CheckReport) addf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Check verifies the superblock geometry, re-hashes every indexed object and
// cross-checks references and views against the indices. Only I/O failures
// are returned as errors; inconsistencies go into the report.
func (v *Volume) Check() (*CheckReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("check"); err != nil {
		return nil, err
	}

	r := &CheckReport{}
	sb := &v.sb

	r.Problems = append(r.Problems, sb.problems()...)
	if _, ok := v.viewByID[v.current]; !ok {
		r.addf("current view %d is not in the view index", v.current)
	}

	for _, d := range v.contentOrder {
		r.ObjectsChecked++
		e := v.content[d]
		buf := make([]byte, e.size)
		if _, err := v.readLocked(d, buf); err != nil {
			return nil, err
		}
		if got := util.HashBytes(buf); got != d {
			r.addf("object at block %d hashes to %s, header says %s", e.offset/BlockSize, got.Short(), d.Short())
		}
	}

	for _, vi := range v.views {
		r.ViewsChecked++
		switch {
		case vi.ID == 1 && vi.Parent != 0:
			r.addf("view 1 has parent %d, want 0", vi.Parent)
		case vi.ID != 1 && vi.Parent >= vi.ID:
			r.addf("view %d has parent %d, want a smaller id", vi.ID, vi.Parent)
		}
	}

	for i := range v.refs {
		ref := &v.refs[i]
		r.RefsChecked++
		if ref.view >= sb.ViewNextID {
			r.addf("reference %d (%s) names view %d beyond cursor %d", ref.id, ref.path, ref.view, sb.ViewNextID)
		}
		if util.HashPath(ref.path) != ref.pathHash {
			r.addf("reference %d (%s) path hash mismatch", ref.id, ref.path)
		}
		if !ref.tombstone() {
			if _, ok := v.content[ref.content]; !ok {
				r.addf("reference %d (%s) points at missing object %s", ref.id, ref.path, ref.content.Short())
			}
		}
	}

	return r, nil
}

// maxRegionBlocks bounds each region so that block arithmetic on a damaged
// superblock cannot overflow.
const maxRegionBlocks = 1 << 40

// problems lists geometry and cursor inconsistencies in the superblock.
func (sb *Superblock) problems() []string {
	var out []string
	addf := func(format string, args ...any) {
		out = append(out, fmt.Sprintf(format, args...))
	}

	if sb.ContentBlocks > maxRegionBlocks || sb.RefBlocks > maxRegionBlocks || sb.ViewBlocks > maxRegionBlocks {
		addf("region sizes %d/%d/%d blocks out of range", sb.ContentBlocks, sb.RefBlocks, sb.ViewBlocks)
		return out
	}
	if sb.ContentStart != 1 {
		addf("content region starts at block %d, want 1", sb.ContentStart)
	}
	if sb.RefStart != sb.contentEnd() {
		addf("reference region starts at block %d, want %d", sb.RefStart, sb.contentEnd())
	}
	if sb.ViewStart != sb.refEnd() {
		addf("view region starts at block %d, want %d", sb.ViewStart, sb.refEnd())
	}
	if sb.ContentNextBlock < sb.ContentStart || sb.ContentNextBlock > sb.contentEnd() {
		addf("content cursor %d outside region [%d, %d]", sb.ContentNextBlock, sb.ContentStart, sb.contentEnd())
	}
	if refs := sb.RefBlocks * BlockSize / RefRecordSize; sb.RefNextID < 1 || sb.RefNextID-1 > refs {
		addf("reference cursor %d outside region of %d slots", sb.RefNextID, refs)
	}
	if views := sb.ViewBlocks * BlockSize / ViewRecordSize; sb.ViewNextID < 1 || sb.ViewNextID-1 > views {
		addf("view cursor %d outside region of %d slots", sb.ViewNextID, views)
	}
	if sb.CurrentView == 0 {
		addf("current view is 0")
	}
	return out
}
