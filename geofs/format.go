package geofs

import (
	"bytes"
	"encoding/binary"

	"github.com/dendrascience/geofs/util"
)

// On-disk constants. Multibyte integers are little-endian.
const (
	Magic   uint64 = 0x53464F4547 // "GEOFS"
	Version uint16 = 1

	BlockSize      = 4096
	SuperblockSize = 512
	RefRecordSize  = 4224
	ViewRecordSize = 128
	MaxLabel       = 63

	contentSignature = "CONT"
	refMagic         = 0x46455247 // "GREF"
	viewMagic        = 0x57454956 // "VIEW"

	refFlagHidden = 1 << 0

	contentPercent = 70
	refPercent     = 20
	viewPercent    = 10
)

var le = binary.LittleEndian

// Superblock mirrors block 0 of the volume file.
type Superblock struct {
	Magic        uint64
	Version      uint16
	Flags        uint16
	BlockSize    uint32
	VolumeID     uint64
	Created      uint64
	LastModified uint64

	ContentStart     uint64
	ContentBlocks    uint64
	ContentNextBlock uint64

	RefStart  uint64
	RefBlocks uint64
	RefNextID uint64

	ViewStart  uint64
	ViewBlocks uint64
	ViewNextID uint64

	CurrentView uint64

	TotalContentBytes uint64
	TotalRefs         uint64
	TotalViews        uint64
}

// superblock field offsets
const (
	sbMagic        = 0
	sbVersion      = 8
	sbFlags        = 10
	sbBlockSize    = 12
	sbVolumeID     = 16
	sbCreated      = 24
	sbLastModified = 32
	sbContent      = 40
	sbRef          = 64
	sbView         = 88
	sbCurrentView  = 112
	sbTotals       = 120
)

func (sb *Superblock) marshal() []byte {
	b := make([]byte, SuperblockSize)
	le.PutUint64(b[sbMagic:], sb.Magic)
	le.PutUint16(b[sbVersion:], sb.Version)
	le.PutUint16(b[sbFlags:], sb.Flags)
	le.PutUint32(b[sbBlockSize:], sb.BlockSize)
	le.PutUint64(b[sbVolumeID:], sb.VolumeID)
	le.PutUint64(b[sbCreated:], sb.Created)
	le.PutUint64(b[sbLastModified:], sb.LastModified)

	le.PutUint64(b[sbContent:], sb.ContentStart)
	le.PutUint64(b[sbContent+8:], sb.ContentBlocks)
	le.PutUint64(b[sbContent+16:], sb.ContentNextBlock)

	le.PutUint64(b[sbRef:], sb.RefStart)
	le.PutUint64(b[sbRef+8:], sb.RefBlocks)
	le.PutUint64(b[sbRef+16:], sb.RefNextID)

	le.PutUint64(b[sbView:], sb.ViewStart)
	le.PutUint64(b[sbView+8:], sb.ViewBlocks)
	le.PutUint64(b[sbView+16:], sb.ViewNextID)

	le.PutUint64(b[sbCurrentView:], sb.CurrentView)

	le.PutUint64(b[sbTotals:], sb.TotalContentBytes)
	le.PutUint64(b[sbTotals+8:], sb.TotalRefs)
	le.PutUint64(b[sbTotals+16:], sb.TotalViews)
	return b
}

func (sb *Superblock) unmarshal(b []byte) {
	sb.Magic = le.Uint64(b[sbMagic:])
	sb.Version = le.Uint16(b[sbVersion:])
	sb.Flags = le.Uint16(b[sbFlags:])
	sb.BlockSize = le.Uint32(b[sbBlockSize:])
	sb.VolumeID = le.Uint64(b[sbVolumeID:])
	sb.Created = le.Uint64(b[sbCreated:])
	sb.LastModified = le.Uint64(b[sbLastModified:])

	sb.ContentStart = le.Uint64(b[sbContent:])
	sb.ContentBlocks = le.Uint64(b[sbContent+8:])
	sb.ContentNextBlock = le.Uint64(b[sbContent+16:])

	sb.RefStart = le.Uint64(b[sbRef:])
	sb.RefBlocks = le.Uint64(b[sbRef+8:])
	sb.RefNextID = le.Uint64(b[sbRef+16:])

	sb.ViewStart = le.Uint64(b[sbView:])
	sb.ViewBlocks = le.Uint64(b[sbView+8:])
	sb.ViewNextID = le.Uint64(b[sbView+16:])

	sb.CurrentView = le.Uint64(b[sbCurrentView:])

	sb.TotalContentBytes = le.Uint64(b[sbTotals:])
	sb.TotalRefs = le.Uint64(b[sbTotals+8:])
	sb.TotalViews = le.Uint64(b[sbTotals+16:])
}

// contentEnd is the first block past the content region.
func (sb *Superblock) contentEnd() uint64 { return sb.ContentStart + sb.ContentBlocks }

func (sb *Superblock) refEnd() uint64 { return sb.RefStart + sb.RefBlocks }

func (sb *Superblock) viewEnd() uint64 { return sb.ViewStart + sb.ViewBlocks }

// content object header block
const (
	hdrSignature = 0
	hdrSize      = 8
	hdrDigest    = 16
)

func marshalContentHeader(size uint64, d util.Digest) []byte {
	b := make([]byte, BlockSize)
	copy(b[hdrSignature:], contentSignature)
	le.PutUint64(b[hdrSize:], size)
	copy(b[hdrDigest:], d[:])
	return b
}

func unmarshalContentHeader(b []byte) (size uint64, d util.Digest, ok bool) {
	if string(b[hdrSignature:hdrSignature+4]) != contentSignature {
		return 0, d, false
	}
	size = le.Uint64(b[hdrSize:])
	copy(d[:], b[hdrDigest:hdrDigest+util.DigestSize])
	return size, d, true
}

func dataBlocks(size uint64) uint64 {
	return (size + BlockSize - 1) / BlockSize
}

// reference record field offsets
const (
	refOffMagic   = 0
	refOffFlags   = 4
	refOffPath    = 8
	refOffContent = 40
	refOffView    = 72
	refOffCreated = 80
	refOffPathLen = 88
	refOffPathBuf = 90
)

type refRecord struct {
	flags    uint32
	pathHash util.Digest
	content  util.Digest
	viewID   uint64
	created  uint64
	path     string
}

func (r *refRecord) marshal() []byte {
	b := make([]byte, RefRecordSize)
	le.PutUint32(b[refOffMagic:], refMagic)
	le.PutUint32(b[refOffFlags:], r.flags)
	copy(b[refOffPath:], r.pathHash[:])
	copy(b[refOffContent:], r.content[:])
	le.PutUint64(b[refOffView:], r.viewID)
	le.PutUint64(b[refOffCreated:], r.created)
	le.PutUint16(b[refOffPathLen:], uint16(len(r.path)))
	copy(b[refOffPathBuf:refOffPathBuf+util.MaxPath], r.path)
	return b
}

func (r *refRecord) unmarshal(b []byte) bool {
	if le.Uint32(b[refOffMagic:]) != refMagic {
		return false
	}
	r.flags = le.Uint32(b[refOffFlags:])
	copy(r.pathHash[:], b[refOffPath:refOffPath+util.DigestSize])
	copy(r.content[:], b[refOffContent:refOffContent+util.DigestSize])
	r.viewID = le.Uint64(b[refOffView:])
	r.created = le.Uint64(b[refOffCreated:])
	n := int(le.Uint16(b[refOffPathLen:]))
	if n > util.MaxPath {
		n = util.MaxPath
	}
	r.path = string(b[refOffPathBuf : refOffPathBuf+n])
	return true
}

// view record field offsets
const (
	viewOffMagic   = 0
	viewOffFlags   = 4
	viewOffID      = 8
	viewOffParent  = 16
	viewOffCreated = 24
	viewOffLabel   = 32
	viewLabelLen   = 64
)

type viewRecord struct {
	flags   uint32
	id      uint64
	parent  uint64
	created uint64
	label   string
}

func (v *viewRecord) marshal() []byte {
	b := make([]byte, ViewRecordSize)
	le.PutUint32(b[viewOffMagic:], viewMagic)
	le.PutUint32(b[viewOffFlags:], v.flags)
	le.PutUint64(b[viewOffID:], v.id)
	le.PutUint64(b[viewOffParent:], v.parent)
	le.PutUint64(b[viewOffCreated:], v.created)
	copy(b[viewOffLabel:viewOffLabel+MaxLabel], v.label)
	return b
}

func (v *viewRecord) unmarshal(b []byte) bool {
	if le.Uint32(b[viewOffMagic:]) != viewMagic {
		return false
	}
	v.flags = le.Uint32(b[viewOffFlags:])
	v.id = le.Uint64(b[viewOffID:])
	v.parent = le.Uint64(b[viewOffParent:])
	v.created = le.Uint64(b[viewOffCreated:])
	label := b[viewOffLabel : viewOffLabel+viewLabelLen]
	if i := bytes.IndexByte(label, 0); i >= 0 {
		label = label[:i]
	}
	v.label = string(label)
	return true
}

// truncateLabel cuts a label to MaxLabel bytes without splitting a UTF-8 sequence.
func truncateLabel(s string) string {
	if len(s) <= MaxLabel {
		return s
	}
	cut := MaxLabel
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
