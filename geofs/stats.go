package geofs

import "time"

// Stats summarises a volume's allocation state.
type Stats struct {
	VolumeID     uint64
	Created      time.Time
	LastModified time.Time
	CurrentView  uint64

	ContentBlocksUsed  uint64
	ContentBlocksTotal uint64
	RefsUsed           uint64
	RefsTotal          uint64
	ViewsUsed          uint64
	ViewsTotal         uint64

	TotalContentBytes uint64
	TotalRefs         uint64
	TotalViews        uint64

	IndexedObjects int
	IndexedRefs    int
	IndexedViews   int
}

// Stats returns a snapshot of the superblock counters and index sizes.
func (v *Volume) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	sb := &v.sb
	return Stats{
		VolumeID:     sb.VolumeID,
		Created:      nsTime(sb.Created),
		LastModified: nsTime(sb.LastModified),
		CurrentView:  v.current,

		ContentBlocksUsed:  sb.ContentNextBlock - sb.ContentStart,
		ContentBlocksTotal: sb.ContentBlocks,
		RefsUsed:           sb.RefNextID - 1,
		RefsTotal:          sb.RefBlocks * BlockSize / RefRecordSize,
		ViewsUsed:          sb.ViewNextID - 1,
		ViewsTotal:         sb.ViewBlocks * BlockSize / ViewRecordSize,

		TotalContentBytes: sb.TotalContentBytes,
		TotalRefs:         sb.TotalRefs,
		TotalViews:        sb.TotalViews,

		IndexedObjects: len(v.contentOrder),
		IndexedRefs:    len(v.refs),
		IndexedViews:   len(v.views),
	}
}

// Percent returns used as a percentage of total, or zero for an empty
// region.
func Percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) * 100 / float64(total)
}
