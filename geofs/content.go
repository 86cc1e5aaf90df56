package geofs

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dendrascience/geofs/util"
)

type contentEntry struct {
	offset int64 // file offset of the header block
	size   uint64
}

// Store appends data as a content object and returns its digest. Storing
// bytes that are already present returns the existing digest without
// allocating.
func (v *Volume) Store(data []byte) (util.Digest, error) {
	d := util.HashBytes(data)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("store"); err != nil {
		return util.ZeroDigest, err
	}
	if _, ok := v.content[d]; ok {
		return d, nil
	}

	size := uint64(len(data))
	blocks := 1 + dataBlocks(size)
	if v.sb.ContentNextBlock+blocks > v.sb.contentEnd() {
		return util.ZeroDigest, newError(KindFull, "store", "", errors.Errorf(
			"object needs %d blocks, %d left", blocks, v.sb.contentEnd()-v.sb.ContentNextBlock))
	}

	off := int64(v.sb.ContentNextBlock * BlockSize)
	if _, err := v.f.WriteAt(marshalContentHeader(size, d), off); err != nil {
		return util.ZeroDigest, newError(KindIO, "store", "", errors.Wrapf(err, "write header at %d", off))
	}
	if size > 0 {
		if _, err := v.f.WriteAt(data, off+BlockSize); err != nil {
			return util.ZeroDigest, newError(KindIO, "store", "", errors.Wrapf(err, "write data at %d", off+BlockSize))
		}
	}

	v.indexContent(d, contentEntry{offset: off, size: size})
	v.sb.ContentNextBlock += blocks
	v.sb.TotalContentBytes += size
	v.touch()

	v.log.WithFields(logrus.Fields{
		"digest": d.Short(),
		"size":   size,
		"block":  off / BlockSize,
	}).Debug("stored object")
	return d, nil
}

// Read copies up to len(buf) bytes of the object into buf.
func (v *Volume) Read(d util.Digest, buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("read"); err != nil {
		return 0, err
	}
	return v.readLocked(d, buf)
}

// ReadAll returns the whole object.
func (v *Volume) ReadAll(d util.Digest) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("read"); err != nil {
		return nil, err
	}
	e, ok := v.content[d]
	if !ok {
		return nil, newError(KindNotFound, "read", d.String(), nil)
	}
	buf := make([]byte, e.size)
	n, err := v.readLocked(d, buf)
	return buf[:n], err
}

// Size returns the stored length of the object.
func (v *Volume) Size(d util.Digest) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen("size"); err != nil {
		return 0, err
	}
	e, ok := v.content[d]
	if !ok {
		return 0, newError(KindNotFound, "size", d.String(), nil)
	}
	return e.size, nil
}

// Has reports whether the object is in the content index.
func (v *Volume) Has(d util.Digest) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.content[d]
	return ok
}

func (v *Volume) readLocked(d util.Digest, buf []byte) (int, error) {
	e, ok := v.content[d]
	if !ok {
		return 0, newError(KindNotFound, "read", d.String(), nil)
	}
	n := uint64(len(buf))
	if e.size < n {
		n = e.size
	}
	if n == 0 {
		return 0, nil
	}
	got, err := v.f.ReadAt(buf[:n], e.offset+BlockSize)
	if err != nil && !(errors.Is(err, io.EOF) && uint64(got) == n) {
		return got, newError(KindIO, "read", d.String(), errors.Wrapf(err, "read data at %d", e.offset+BlockSize))
	}
	return got, nil
}

// sizeLocked returns the object size, or zero when it is not indexed.
func (v *Volume) sizeLocked(d util.Digest) uint64 {
	return v.content[d].size
}

func (v *Volume) indexContent(d util.Digest, e contentEntry) {
	if _, ok := v.content[d]; ok {
		return
	}
	v.content[d] = e
	v.contentOrder = append(v.contentOrder, d)
}

// rebuildContent walks the content region from its start up to the
// allocation cursor, indexing every object with a valid header. The walk
// stops at the first block that is not a header, at an object that runs
// past the cursor, or at one whose payload runs past the end of the file.
func (v *Volume) rebuildContent() error {
	fsize, err := v.fileSize()
	if err != nil {
		return err
	}

	off := int64(v.sb.ContentStart * BlockSize)
	end := int64(v.sb.ContentNextBlock * BlockSize)
	hdr := make([]byte, BlockSize)
	for off < end {
		n, err := v.f.ReadAt(hdr, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return newError(KindIO, "rebuild content", v.path, errors.Wrapf(err, "read header at %d", off))
		}
		if n < BlockSize {
			v.log.WithField("offset", off).Warn("content region truncated, stopping scan")
			break
		}
		size, d, ok := unmarshalContentHeader(hdr)
		if !ok {
			break
		}
		if size > uint64(end-off-BlockSize) {
			v.log.WithFields(logrus.Fields{
				"offset": off,
				"size":   size,
			}).Warn("content object runs past the allocation cursor, stopping scan")
			break
		}
		if off+BlockSize+int64(size) > fsize {
			v.log.WithFields(logrus.Fields{
				"offset": off,
				"digest": d.Short(),
			}).Warn("torn content object, stopping scan")
			break
		}
		v.indexContent(d, contentEntry{offset: off, size: size})
		off += int64((1 + dataBlocks(size)) * BlockSize)
	}
	return nil
}
