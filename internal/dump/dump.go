package dump

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack"
	"gopkg.in/yaml.v3"

	"github.com/dendrascience/geofs/geofs"
)

// Formats lists the accepted manifest encodings.
var Formats = []string{"json", "yaml", "msgpack", "cbor"}

// Manifest is a portable description of a volume: its superblock summary,
// every view and every reference record in append order.
type Manifest struct {
	Volume Summary `json:"volume" yaml:"volume" msgpack:"volume" cbor:"volume"`
	Views  []View  `json:"views" yaml:"views" msgpack:"views" cbor:"views"`
	Refs   []Ref   `json:"refs" yaml:"refs" msgpack:"refs" cbor:"refs"`
}

// Summary holds the superblock counters.
type Summary struct {
	Path              string `json:"path" yaml:"path" msgpack:"path" cbor:"path"`
	VolumeID          uint64 `json:"volume_id" yaml:"volume_id" msgpack:"volume_id" cbor:"volume_id"`
	Created           string `json:"created" yaml:"created" msgpack:"created" cbor:"created"`
	LastModified      string `json:"last_modified" yaml:"last_modified" msgpack:"last_modified" cbor:"last_modified"`
	CurrentView       uint64 `json:"current_view" yaml:"current_view" msgpack:"current_view" cbor:"current_view"`
	ContentBlocksUsed uint64 `json:"content_blocks_used" yaml:"content_blocks_used" msgpack:"content_blocks_used" cbor:"content_blocks_used"`
	ContentBlocks     uint64 `json:"content_blocks" yaml:"content_blocks" msgpack:"content_blocks" cbor:"content_blocks"`
	ContentBytes      uint64 `json:"content_bytes" yaml:"content_bytes" msgpack:"content_bytes" cbor:"content_bytes"`
	Objects           int    `json:"objects" yaml:"objects" msgpack:"objects" cbor:"objects"`
	RefsUsed          uint64 `json:"refs_used" yaml:"refs_used" msgpack:"refs_used" cbor:"refs_used"`
	RefSlots          uint64 `json:"ref_slots" yaml:"ref_slots" msgpack:"ref_slots" cbor:"ref_slots"`
	ViewsUsed         uint64 `json:"views_used" yaml:"views_used" msgpack:"views_used" cbor:"views_used"`
	ViewSlots         uint64 `json:"view_slots" yaml:"view_slots" msgpack:"view_slots" cbor:"view_slots"`
}

// View is one view record.
type View struct {
	ID      uint64 `json:"id" yaml:"id" msgpack:"id" cbor:"id"`
	Parent  uint64 `json:"parent" yaml:"parent" msgpack:"parent" cbor:"parent"`
	Label   string `json:"label" yaml:"label" msgpack:"label" cbor:"label"`
	Created string `json:"created" yaml:"created" msgpack:"created" cbor:"created"`
}

// Ref is one reference record. Digest is empty for tombstones.
type Ref struct {
	ID      uint64 `json:"id" yaml:"id" msgpack:"id" cbor:"id"`
	Path    string `json:"path" yaml:"path" msgpack:"path" cbor:"path"`
	View    uint64 `json:"view" yaml:"view" msgpack:"view" cbor:"view"`
	Digest  string `json:"digest,omitempty" yaml:"digest,omitempty" msgpack:"digest,omitempty" cbor:"digest,omitempty"`
	Size    uint64 `json:"size" yaml:"size" msgpack:"size" cbor:"size"`
	Hidden  bool   `json:"hidden" yaml:"hidden" msgpack:"hidden" cbor:"hidden"`
	Created string `json:"created" yaml:"created" msgpack:"created" cbor:"created"`
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Build collects the manifest of vol.
func Build(vol *geofs.Volume) *Manifest {
	st := vol.Stats()
	m := &Manifest{
		Volume: Summary{
			Path:              vol.Path(),
			VolumeID:          st.VolumeID,
			Created:           stamp(st.Created),
			LastModified:      stamp(st.LastModified),
			CurrentView:       st.CurrentView,
			ContentBlocksUsed: st.ContentBlocksUsed,
			ContentBlocks:     st.ContentBlocksTotal,
			ContentBytes:      st.TotalContentBytes,
			Objects:           st.IndexedObjects,
			RefsUsed:          st.RefsUsed,
			RefSlots:          st.RefsTotal,
			ViewsUsed:         st.ViewsUsed,
			ViewSlots:         st.ViewsTotal,
		},
	}
	for _, v := range vol.Views() {
		m.Views = append(m.Views, View{ID: v.ID, Parent: v.Parent, Label: v.Label, Created: stamp(v.Created)})
	}
	vol.RefHistory(func(r geofs.Ref) bool {
		ref := Ref{
			ID:      r.ID,
			Path:    r.Path,
			View:    r.View,
			Size:    r.Size,
			Hidden:  r.Hidden,
			Created: stamp(r.Created),
		}
		if !r.Hidden {
			ref.Digest = geofs.HashToString(r.Digest)
		}
		m.Refs = append(m.Refs, ref)
		return true
	})
	return m
}

// Write encodes m to w in format, optionally zstd-compressed.
func Write(w io.Writer, m *Manifest, format string, compress bool) error {
	if !compress {
		return encode(w, m, format)
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := encode(zw, m, format); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func encode(w io.Writer, m *Manifest, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(m)
	case "cbor":
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return err
		}
		return em.NewEncoder(w).Encode(m)
	}
	return fmt.Errorf("unknown dump format %q (want one of %v)", format, Formats)
}

// Read decodes a manifest written by Write.
func Read(r io.Reader, format string, compressed bool) (*Manifest, error) {
	if compressed {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var m Manifest
	var err error
	switch format {
	case "json":
		err = json.NewDecoder(r).Decode(&m)
	case "yaml":
		err = yaml.NewDecoder(r).Decode(&m)
	case "msgpack":
		err = msgpack.NewDecoder(r).Decode(&m)
	case "cbor":
		err = cbor.NewDecoder(r).Decode(&m)
	default:
		return nil, fmt.Errorf("unknown dump format %q (want one of %v)", format, Formats)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s manifest: %w", format, err)
	}
	return &m, nil
}
