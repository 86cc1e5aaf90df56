package geofs

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/dendrascience/geofs/util"
)

func TestSuperblockLayout(t *testing.T) {
	sb := Superblock{
		Magic:       Magic,
		Version:     Version,
		BlockSize:   BlockSize,
		RefStart:    180,
		ViewNextID:  7,
		CurrentView: 5,
		TotalViews:  6,
	}
	b := sb.marshal()
	if len(b) != SuperblockSize {
		t.Fatalf("marshal() length = %d, want %d", len(b), SuperblockSize)
	}

	tests := []struct {
		name string
		off  int
		want uint64
	}{
		{"magic", 0, Magic},
		{"ref start", 64, 180},
		{"view next id", 104, 7},
		{"current view", 112, 5},
		{"total views", 136, 6},
	}
	for _, tt := range tests {
		if got := binary.LittleEndian.Uint64(b[tt.off:]); got != tt.want {
			t.Errorf("%s at %d = %d, want %d", tt.name, tt.off, got, tt.want)
		}
	}
	if got := binary.LittleEndian.Uint32(b[12:]); got != BlockSize {
		t.Errorf("block size = %d, want %d", got, BlockSize)
	}

	var back Superblock
	back.unmarshal(b)
	if back != sb {
		t.Errorf("unmarshal(marshal()) = %+v, want %+v", back, sb)
	}
}

func TestRefRecordLayout(t *testing.T) {
	rec := refRecord{
		flags:    refFlagHidden,
		pathHash: util.HashPath("/a/b"),
		viewID:   3,
		created:  99,
		path:     "/a/b",
	}
	b := rec.marshal()
	if len(b) != RefRecordSize {
		t.Fatalf("marshal() length = %d, want %d", len(b), RefRecordSize)
	}
	if string(b[0:4]) != "GREF" {
		t.Errorf("magic bytes = %q, want GREF", b[0:4])
	}
	if got := binary.LittleEndian.Uint16(b[88:]); got != 4 {
		t.Errorf("path_len = %d, want 4", got)
	}
	if string(b[90:94]) != "/a/b" {
		t.Errorf("path bytes = %q", b[90:94])
	}

	var back refRecord
	if !back.unmarshal(b) {
		t.Fatal("unmarshal() rejected a valid record")
	}
	if back != rec {
		t.Errorf("unmarshal(marshal()) = %+v, want %+v", back, rec)
	}

	b[0] = 0
	if back.unmarshal(b) {
		t.Error("unmarshal() accepted a record with bad magic")
	}
}

func TestViewRecordLayout(t *testing.T) {
	rec := viewRecord{id: 2, parent: 1, created: 1234, label: "snap"}
	b := rec.marshal()
	if len(b) != ViewRecordSize {
		t.Fatalf("marshal() length = %d, want %d", len(b), ViewRecordSize)
	}
	if string(b[0:4]) != "VIEW" {
		t.Errorf("magic bytes = %q, want VIEW", b[0:4])
	}
	if got := binary.LittleEndian.Uint64(b[16:]); got != 1 {
		t.Errorf("parent = %d, want 1", got)
	}

	var back viewRecord
	if !back.unmarshal(b) || back != rec {
		t.Errorf("unmarshal(marshal()) = %+v, want %+v", back, rec)
	}
}

func TestContentHeader(t *testing.T) {
	d := util.HashBytes([]byte("x"))
	b := marshalContentHeader(1, d)
	size, got, ok := unmarshalContentHeader(b)
	if !ok || size != 1 || got != d {
		t.Errorf("unmarshalContentHeader() = %d, %s, %v", size, got, ok)
	}
	if _, _, ok := unmarshalContentHeader(make([]byte, BlockSize)); ok {
		t.Error("zero block accepted as a header")
	}
}

func TestTruncateLabel(t *testing.T) {
	if got := truncateLabel("short"); got != "short" {
		t.Errorf("truncateLabel(short) = %q", got)
	}
	if got := truncateLabel(strings.Repeat("a", 70)); len(got) != MaxLabel {
		t.Errorf("len(truncateLabel(70 bytes)) = %d, want %d", len(got), MaxLabel)
	}
	// 62 ASCII bytes then a two-byte rune straddling the limit.
	got := truncateLabel(strings.Repeat("a", 62) + "éé")
	if len(got) != 62 {
		t.Errorf("truncateLabel split a rune: len %d", len(got))
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		msg  string
	}{
		{nil, KindOK, "Success"},
		{newError(KindNotFound, "resolve", "/x", nil), KindNotFound, "Not found"},
		{newError(KindFull, "store", "", nil), KindFull, "Volume full"},
		{errors.New("plain"), KindIO, "I/O error"},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.kind)
		}
		if got := StrError(tt.err); got != tt.msg {
			t.Errorf("StrError(%v) = %q, want %q", tt.err, got, tt.msg)
		}
	}

	err := newError(KindExists, "mkdir", "/d", nil)
	if !errors.Is(err, ErrExists) || errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is mismatch for %v", err)
	}
	if got := err.Error(); got != "mkdir: Already exists: /d" {
		t.Errorf("Error() = %q", got)
	}
}
