package fusefs

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"syscall"
	"testing"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

func newTestFS(t *testing.T, readOnly bool) (*FS, *geofs.Volume) {
	t.Helper()
	vol, err := geofs.Create(filepath.Join(t.TempDir(), "fuse.geofs"), 2)
	if err != nil {
		t.Fatalf("create volume: %v", err)
	}
	t.Cleanup(func() { vol.Close() })

	fsys, err := New(vol, Options{ReadOnly: readOnly})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fsys, vol
}

func errnoOf(err error) syscall.Errno {
	var fe fuse.Errno
	if errors.As(err, &fe) {
		return syscall.Errno(fe)
	}
	var se syscall.Errno
	if errors.As(err, &se) {
		return se
	}
	return 0
}

func lookup(t *testing.T, n fs.Node, names ...string) fs.Node {
	t.Helper()
	for _, name := range names {
		l, ok := n.(fs.NodeStringLookuper)
		if !ok {
			t.Fatalf("%T cannot look up %q", n, name)
		}
		next, err := l.Lookup(context.Background(), name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		n = next
	}
	return n
}

func direntNames(t *testing.T, n fs.Node) []string {
	t.Helper()
	ents, err := n.(fs.HandleReadDirAller).ReadDirAll(context.Background())
	if err != nil {
		t.Fatalf("ReadDirAll: %v", err)
	}
	var out []string
	for _, e := range ents {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// createFile creates name in dir, writes data and releases the handle.
func createFile(t *testing.T, dir *Dir, name, data string) {
	t.Helper()
	ctx := context.Background()
	_, h, err := dir.Create(ctx, &fuse.CreateRequest{Name: name, Flags: fuse.OpenWriteOnly}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	handle := h.(*Handle)
	resp := &fuse.WriteResponse{}
	if err := handle.Write(ctx, &fuse.WriteRequest{Data: []byte(data)}, resp); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if resp.Size != len(data) {
		t.Errorf("Write size = %d, want %d", resp.Size, len(data))
	}
	if err := handle.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestRootEntries(t *testing.T) {
	fsys, _ := newTestFS(t, false)
	root, err := fsys.Root()
	if err != nil {
		t.Fatal(err)
	}

	if got := direntNames(t, root); !equalStrings(got, []string{LiveDir, ViewsDir}) {
		t.Errorf("root entries = %v", got)
	}
	var a fuse.Attr
	if err := root.Attr(context.Background(), &a); err != nil {
		t.Fatal(err)
	}
	if a.Inode != rootIno || !a.Mode.IsDir() {
		t.Errorf("root attr = inode %d mode %v", a.Inode, a.Mode)
	}

	_, err = root.(*Root).Lookup(context.Background(), "other")
	if errnoOf(err) != syscall.ENOENT {
		t.Errorf("Lookup(other) = %v, want ENOENT", err)
	}
}

func TestCreateWriteRead(t *testing.T) {
	fsys, vol := newTestFS(t, false)
	ctx := context.Background()
	root, _ := fsys.Root()
	live := lookup(t, root, LiveDir).(*Dir)

	cresp := &fuse.CreateResponse{}
	node, h, err := live.Create(ctx, &fuse.CreateRequest{Name: "a.txt", Flags: fuse.OpenReadWrite}, cresp)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cresp.Flags&fuse.OpenDirectIO == 0 {
		t.Error("created handle should bypass the page cache")
	}
	handle := h.(*Handle)

	for _, chunk := range []string{"hel", "lo"} {
		// The offset is ignored; writes append.
		if err := handle.Write(ctx, &fuse.WriteRequest{Offset: 0, Data: []byte(chunk)}, &fuse.WriteResponse{}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := handle.Flush(ctx, &fuse.FlushRequest{}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	d, err := vol.Resolve("/a.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d != util.HashBytes([]byte("hello")) {
		t.Errorf("flushed digest = %s", d.Short())
	}

	tests := []struct {
		offset int64
		size   int
		want   string
	}{
		{0, 5, "hello"},
		{1, 3, "ell"},
		{4, 10, "o"},
		{5, 10, ""},
		{50, 10, ""},
	}
	for _, tt := range tests {
		resp := &fuse.ReadResponse{}
		if err := handle.Read(ctx, &fuse.ReadRequest{Offset: tt.offset, Size: tt.size}, resp); err != nil {
			t.Fatalf("Read(%d, %d): %v", tt.offset, tt.size, err)
		}
		if string(resp.Data) != tt.want {
			t.Errorf("Read(%d, %d) = %q, want %q", tt.offset, tt.size, resp.Data, tt.want)
		}
	}
	if err := handle.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("Release: %v", err)
	}

	var a fuse.Attr
	if err := node.Attr(ctx, &a); err != nil {
		t.Fatal(err)
	}
	if a.Size != 5 || a.Mode != 0o644 {
		t.Errorf("attr size %d mode %v", a.Size, a.Mode)
	}
	if _, ok := lookup(t, live, "a.txt").(*File); !ok {
		t.Error("lookup of a regular file should give a *File")
	}

	_, _, err = live.Create(ctx, &fuse.CreateRequest{Name: "a.txt", Flags: fuse.OpenWriteOnly | fuse.OpenExclusive}, &fuse.CreateResponse{})
	if errnoOf(err) != syscall.EEXIST {
		t.Errorf("exclusive create of existing file = %v, want EEXIST", err)
	}
}

func TestOpenModes(t *testing.T) {
	fsys, _ := newTestFS(t, false)
	ctx := context.Background()
	root, _ := fsys.Root()
	live := lookup(t, root, LiveDir).(*Dir)
	createFile(t, live, "f", "abc")
	file := lookup(t, live, "f").(*File)

	_, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenWriteOnly | fuse.OpenTruncate}, &fuse.OpenResponse{})
	if errnoOf(err) != syscall.EPERM {
		t.Errorf("truncating open = %v, want EPERM", err)
	}

	h, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenWriteOnly | fuse.OpenAppend}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatalf("append open: %v", err)
	}
	handle := h.(*Handle)
	if err := handle.Write(ctx, &fuse.WriteRequest{Data: []byte("def")}, &fuse.WriteResponse{}); err != nil {
		t.Fatal(err)
	}
	err = handle.Read(ctx, &fuse.ReadRequest{Size: 1}, &fuse.ReadResponse{})
	if errnoOf(err) != syscall.EPERM {
		t.Errorf("read on write-only handle = %v, want EPERM", err)
	}
	if err := handle.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatal(err)
	}

	data, err := fsys.VFS().ReadFile("/live/f")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcdef" {
		t.Errorf("content = %q, want abcdef", data)
	}
}

// TestSetattrDoesNotDeadlock verifies that Setattr returns while the file
// is open.
func TestSetattrDoesNotDeadlock(t *testing.T) {
	fsys, _ := newTestFS(t, false)
	ctx := context.Background()
	root, _ := fsys.Root()
	live := lookup(t, root, LiveDir).(*Dir)
	createFile(t, live, "test.json", "test data")
	file := lookup(t, live, "test.json").(*File)

	h, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadWrite}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.(*Handle).Release(ctx, &fuse.ReleaseRequest{})

	req := &fuse.SetattrRequest{
		Valid: fuse.SetattrMtime,
		Mtime: time.Now(),
	}
	resp := &fuse.SetattrResponse{}

	done := make(chan error, 1)
	go func() {
		done <- file.Setattr(ctx, req, resp)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Setattr failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Setattr deadlocked - test timed out")
	}
	if resp.Attr.Size != 9 {
		t.Errorf("Setattr attr size = %d, want 9", resp.Attr.Size)
	}
}

func TestSetattrSize(t *testing.T) {
	fsys, _ := newTestFS(t, false)
	ctx := context.Background()
	root, _ := fsys.Root()
	live := lookup(t, root, LiveDir).(*Dir)
	createFile(t, live, "test.json", "test")
	file := lookup(t, live, "test.json").(*File)

	tests := []struct {
		name string
		size uint64
		want syscall.Errno
	}{
		{"same size", 4, 0},
		{"truncate", 2, syscall.EPERM},
		{"extend", 10, syscall.EPERM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: tt.size}
			err := file.Setattr(ctx, req, &fuse.SetattrResponse{})
			if errnoOf(err) != tt.want {
				t.Errorf("Setattr(size=%d) = %v, want errno %d", tt.size, err, tt.want)
			}
		})
	}
}

func TestRemoveKeepsEarlierViews(t *testing.T) {
	fsys, vol := newTestFS(t, false)
	ctx := context.Background()
	root, _ := fsys.Root()
	live := lookup(t, root, LiveDir).(*Dir)

	if _, err := live.Mkdir(ctx, &fuse.MkdirRequest{Name: "d"}); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	createFile(t, live, "f", "payload")

	err := live.Remove(ctx, &fuse.RemoveRequest{Name: "f", Dir: true})
	if errnoOf(err) != syscall.ENOTDIR {
		t.Errorf("rmdir of a file = %v, want ENOTDIR", err)
	}
	err = live.Remove(ctx, &fuse.RemoveRequest{Name: "d"})
	if errnoOf(err) != syscall.EISDIR {
		t.Errorf("unlink of a directory = %v, want EISDIR", err)
	}
	if err := live.Remove(ctx, &fuse.RemoveRequest{Name: "f"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := direntNames(t, live); !equalStrings(got, []string{"d"}) {
		t.Errorf("live entries after remove = %v", got)
	}
	if vol.CurrentView() != 2 {
		t.Errorf("current view = %d, want 2", vol.CurrentView())
	}

	views := lookup(t, root, ViewsDir)
	if got := direntNames(t, views); !equalStrings(got, []string{"1", "2"}) {
		t.Errorf("views = %v", got)
	}
	first := lookup(t, views, "1")
	if got := direntNames(t, first); !equalStrings(got, []string{"d", "f"}) {
		t.Errorf("view 1 entries = %v", got)
	}
	vf, ok := lookup(t, first, "f").(*ViewFile)
	if !ok {
		t.Fatal("view lookup of a file should give a *ViewFile")
	}
	data, err := vf.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("view 1 content = %q", data)
	}
	if _, ok := lookup(t, first, "d").(*ViewDir); !ok {
		t.Error("view lookup of a directory should give a *ViewDir")
	}

	second := lookup(t, views, "2")
	_, err = second.(*ViewDir).Lookup(ctx, "f")
	if errnoOf(err) != syscall.ENOENT {
		t.Errorf("view 2 lookup of hidden file = %v, want ENOENT", err)
	}
	_, err = views.(*Views).Lookup(ctx, "99")
	if errnoOf(err) != syscall.ENOENT {
		t.Errorf("lookup of unknown view = %v, want ENOENT", err)
	}
	_, err = views.(*Views).Lookup(ctx, "latest")
	if errnoOf(err) != syscall.ENOENT {
		t.Errorf("lookup of non-numeric view = %v, want ENOENT", err)
	}
}

func TestViewFilesAreReadOnly(t *testing.T) {
	fsys, _ := newTestFS(t, false)
	ctx := context.Background()
	root, _ := fsys.Root()
	createFile(t, lookup(t, root, LiveDir).(*Dir), "f", "x")
	vf := lookup(t, root, ViewsDir, "1", "f").(*ViewFile)

	_, err := vf.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenWriteOnly}, &fuse.OpenResponse{})
	if errnoOf(err) != syscall.EROFS {
		t.Errorf("write open in a view = %v, want EROFS", err)
	}
	h, err := vf.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, &fuse.OpenResponse{})
	if err != nil || h != fs.Handle(vf) {
		t.Errorf("read-only open = %v, %v", h, err)
	}

	var a fuse.Attr
	if err := vf.Attr(ctx, &a); err != nil {
		t.Fatal(err)
	}
	if a.Mode.Perm()&0o222 != 0 {
		t.Errorf("view file mode %v is writable", a.Mode)
	}
}

func TestReadOnlyMount(t *testing.T) {
	fsys, _ := newTestFS(t, true)
	ctx := context.Background()
	if err := fsys.VFS().WriteFile("/live/existing", []byte("x")); err != nil {
		t.Fatal(err)
	}
	root, _ := fsys.Root()
	live := lookup(t, root, LiveDir).(*Dir)

	_, _, err := live.Create(ctx, &fuse.CreateRequest{Name: "new"}, &fuse.CreateResponse{})
	if errnoOf(err) != syscall.EROFS {
		t.Errorf("Create = %v, want EROFS", err)
	}
	if _, err := live.Mkdir(ctx, &fuse.MkdirRequest{Name: "d"}); errnoOf(err) != syscall.EROFS {
		t.Errorf("Mkdir = %v, want EROFS", err)
	}
	if err := live.Remove(ctx, &fuse.RemoveRequest{Name: "existing"}); errnoOf(err) != syscall.EROFS {
		t.Errorf("Remove = %v, want EROFS", err)
	}

	file := lookup(t, live, "existing").(*File)
	if _, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenWriteOnly}, &fuse.OpenResponse{}); errnoOf(err) != syscall.EROFS {
		t.Errorf("write open = %v, want EROFS", err)
	}
	var a fuse.Attr
	if err := file.Attr(ctx, &a); err != nil {
		t.Fatal(err)
	}
	if a.Mode.Perm()&0o222 != 0 {
		t.Errorf("mode %v is writable on a read-only mount", a.Mode)
	}
}

func TestSymlinkAndRename(t *testing.T) {
	fsys, _ := newTestFS(t, false)
	ctx := context.Background()
	root, _ := fsys.Root()
	live := lookup(t, root, LiveDir).(*Dir)
	createFile(t, live, "target", "t")

	if _, err := live.Symlink(ctx, &fuse.SymlinkRequest{NewName: "link", Target: "target"}); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	link, ok := lookup(t, live, "link").(*Symlink)
	if !ok {
		t.Fatal("lookup of a symlink should give a *Symlink")
	}
	target, err := link.Readlink(ctx, &fuse.ReadlinkRequest{})
	if err != nil || target != "target" {
		t.Errorf("Readlink = %q, %v", target, err)
	}

	viewLink := lookup(t, root, ViewsDir, "1", "link").(*ViewFile)
	target, err = viewLink.Readlink(ctx, &fuse.ReadlinkRequest{})
	if err != nil || target != "target" {
		t.Errorf("view Readlink = %q, %v", target, err)
	}

	sub, err := live.Mkdir(ctx, &fuse.MkdirRequest{Name: "sub"})
	if err != nil {
		t.Fatal(err)
	}
	if err := live.Rename(ctx, &fuse.RenameRequest{OldName: "target", NewName: "moved"}, sub); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got := direntNames(t, sub); !equalStrings(got, []string{"moved"}) {
		t.Errorf("sub entries = %v", got)
	}
	if _, err := live.Lookup(ctx, "target"); errnoOf(err) != syscall.ENOENT {
		t.Errorf("old name lookup = %v, want ENOENT", err)
	}

	views := lookup(t, root, ViewsDir)
	err = live.Rename(ctx, &fuse.RenameRequest{OldName: "link", NewName: "x"}, views)
	if errnoOf(err) != syscall.EXDEV {
		t.Errorf("rename into views = %v, want EXDEV", err)
	}
}

func TestStatfsAndClose(t *testing.T) {
	fsys, _ := newTestFS(t, false)
	ctx := context.Background()

	resp := &fuse.StatfsResponse{}
	if err := fsys.Statfs(ctx, &fuse.StatfsRequest{}, resp); err != nil {
		t.Fatal(err)
	}
	if resp.Bsize != geofs.BlockSize || resp.Blocks == 0 || resp.Bfree != resp.Blocks {
		t.Errorf("statfs = %+v", resp)
	}

	if err := fsys.VFS().WriteFile("/live/f", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fsys.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fsys.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := fsys.VFS().Stat("/live/f"); err == nil {
		t.Error("live tree should be gone after Close")
	}
}
