package vfs

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

func newTestVFS(t *testing.T, opts Options) (*VFS, *geofs.Volume) {
	t.Helper()
	vol, err := geofs.Create(filepath.Join(t.TempDir(), "vfs.geofs"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { vol.Close() })

	v := New(opts)
	require.NoError(t, v.Mount(vol, "/geo"))
	return v, vol
}

func requireErrno(t *testing.T, want syscall.Errno, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, Errno(err), "error: %v", err)
}

func names(ents []Dirent) []string {
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func TestOpenWriteCloseMaterialisesOneRef(t *testing.T) {
	v, vol := newTestVFS(t, Options{})

	fd, err := v.Open("/geo/a.txt", ReadWrite|Create)
	require.NoError(t, err)
	refsAfterCreate := vol.Stats().IndexedRefs
	assert.Equal(t, 1, refsAfterCreate, "create stores an empty reference")

	for _, chunk := range []string{"hello", " ", "world"} {
		n, err := v.Write(fd, []byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	assert.Equal(t, refsAfterCreate, vol.Stats().IndexedRefs, "writes stay buffered")

	st, err := v.Fstat(fd)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), st.Size)

	require.NoError(t, v.Close(fd))
	assert.Equal(t, refsAfterCreate+1, vol.Stats().IndexedRefs)

	d, err := vol.Resolve("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, util.HashBytes([]byte("hello world")), d)

	data, err := v.ReadFile("/geo/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	s := v.Stats()
	assert.Equal(t, uint64(3), s.Writes)
	assert.Equal(t, uint64(11), s.BytesWritten)
	assert.Zero(t, s.OpenFiles)
}

func TestWritesAlwaysAppend(t *testing.T) {
	v, _ := newTestVFS(t, Options{})

	fd, err := v.Open("/geo/log", ReadWrite|Create)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("hello"))
	require.NoError(t, err)

	pos, err := v.Seek(fd, 0, io.SeekStart)
	require.NoError(t, err)
	assert.Zero(t, pos)

	buf := make([]byte, 16)
	n, err := v.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	n, err = v.Read(fd, buf)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, n)

	_, err = v.Seek(fd, 1, io.SeekStart)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte(" world"))
	require.NoError(t, err)

	end, err := v.Seek(fd, 0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(11), end)

	_, err = v.Seek(fd, -1, io.SeekStart)
	requireErrno(t, syscall.EINVAL, err)
	_, err = v.Seek(fd, 0, 42)
	requireErrno(t, syscall.EINVAL, err)
	require.NoError(t, v.Close(fd))

	data, err := v.ReadFile("/geo/log")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, v.WriteFile("/geo/log", []byte("!")))
	data, err = v.ReadFile("/geo/log")
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(data))

	fd, err = v.Open("/geo/log", WriteOnly|Append)
	require.NoError(t, err)
	pos, err = v.Seek(fd, 0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)
	require.NoError(t, v.Close(fd))
}

func TestSyncMaterialisesWithoutClosing(t *testing.T) {
	v, vol := newTestVFS(t, Options{})
	fd, err := v.Open("/geo/s", WriteOnly|Create)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("one"))
	require.NoError(t, err)
	require.NoError(t, v.Sync(fd))

	d, err := vol.Resolve("/s")
	require.NoError(t, err)
	assert.Equal(t, util.HashBytes([]byte("one")), d)

	refs := vol.Stats().IndexedRefs
	require.NoError(t, v.Close(fd))
	assert.Equal(t, refs, vol.Stats().IndexedRefs, "clean close writes nothing")
}

func TestOpenErrors(t *testing.T) {
	v, _ := newTestVFS(t, Options{MaxOpenFiles: 2})
	require.NoError(t, v.WriteFile("/geo/f", []byte("x")))
	require.NoError(t, v.Mkdir("/geo/d"))

	_, err := v.Open("/geo/missing", ReadOnly)
	requireErrno(t, syscall.ENOENT, err)

	_, err = v.Open("/geo/f", WriteOnly|Create|Exclusive)
	requireErrno(t, syscall.EEXIST, err)

	_, err = v.Open("/geo/d", ReadOnly)
	requireErrno(t, syscall.EISDIR, err)

	_, err = v.Open("/geo/nodir/f", WriteOnly|Create)
	requireErrno(t, syscall.ENOENT, err)

	_, err = v.Open("/geo/f/child", WriteOnly|Create)
	requireErrno(t, syscall.ENOTDIR, err)

	_, err = v.Open("relative", ReadOnly)
	requireErrno(t, syscall.EINVAL, err)

	ro, err := v.Open("/geo/f", ReadOnly)
	require.NoError(t, err)
	_, err = v.Write(ro, []byte("y"))
	requireErrno(t, syscall.EPERM, err)

	wo, err := v.Open("/geo/f", WriteOnly)
	require.NoError(t, err)
	_, err = v.Read(wo, make([]byte, 1))
	requireErrno(t, syscall.EPERM, err)

	_, err = v.Open("/geo/f", ReadOnly)
	requireErrno(t, syscall.ENFILE, err)

	require.NoError(t, v.Close(ro))
	require.NoError(t, v.Close(wo))
	requireErrno(t, syscall.EBADF, v.Close(wo))
	_, err = v.Read(FD(99), nil)
	requireErrno(t, syscall.EBADF, err)
}

func TestMissingLookupsLeaveNoDentries(t *testing.T) {
	v, _ := newTestVFS(t, Options{})
	require.NoError(t, v.WriteFile("/geo/f", []byte("x")))
	_, err := v.Stat("/geo/f")
	require.NoError(t, err)
	before := len(v.dentries)

	for i := range 50 {
		_, err := v.Stat(fmt.Sprintf("/geo/nope%d", i))
		requireErrno(t, syscall.ENOENT, err)
		_, err = v.Open(fmt.Sprintf("/geo/gone%d/deeper", i), ReadOnly)
		requireErrno(t, syscall.ENOENT, err)
	}
	assert.Equal(t, before, len(v.dentries))

	// A missing name that is created later still resolves.
	require.NoError(t, v.WriteFile("/geo/nope7", []byte("late")))
	data, err := v.ReadFile("/geo/nope7")
	require.NoError(t, err)
	assert.Equal(t, "late", string(data))
	assert.Equal(t, before+1, len(v.dentries))
}

func TestConcurrentFileOps(t *testing.T) {
	v, vol := newTestVFS(t, Options{})
	const workers, files = 4, 5

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dir := fmt.Sprintf("/geo/w%d", w)
			assert.NoError(t, v.MkdirAll(dir))
			for i := range files {
				path := fmt.Sprintf("%s/f%d", dir, i)
				body := fmt.Sprintf("worker %d file %d", w, i)

				fd, err := v.Open(path, WriteOnly|Create)
				if !assert.NoError(t, err) {
					return
				}
				_, err = v.Write(fd, []byte(body))
				assert.NoError(t, err)
				assert.NoError(t, v.Close(fd))

				data, err := v.ReadFile(path)
				assert.NoError(t, err)
				assert.Equal(t, body, string(data))
				_, err = v.ReadDir(dir)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for w := range workers {
		ents, err := v.ReadDir(fmt.Sprintf("/geo/w%d", w))
		require.NoError(t, err)
		assert.Len(t, ents, files)
	}
	assert.Zero(t, v.Stats().OpenFiles)
	rep, err := vol.Check()
	require.NoError(t, err)
	assert.Empty(t, rep.Problems)
}

func TestMkdirAndReaddir(t *testing.T) {
	v, vol := newTestVFS(t, Options{})

	require.NoError(t, v.Mkdir("/geo/docs"))
	requireErrno(t, syscall.EEXIST, v.Mkdir("/geo/docs"))
	requireErrno(t, syscall.ENOENT, v.Mkdir("/geo/a/b"))
	require.NoError(t, v.WriteFile("/geo/docs/readme", []byte("r")))
	requireErrno(t, syscall.ENOTDIR, v.Mkdir("/geo/docs/readme/sub"))
	require.NoError(t, v.MkdirAll("/geo/x/y/z"))
	require.NoError(t, v.MkdirAll("/geo/x/y"))

	st, err := v.Stat("/geo/docs")
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	d, err := vol.Resolve("/docs")
	require.NoError(t, err)
	assert.Equal(t, util.HashBytes([]byte(geofs.DirMarker)), d)

	ents, err := v.ReadDir("/geo")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "x"}, names(ents))

	fd, err := v.Open("/geo/docs", ReadOnly|Directory)
	require.NoError(t, err)
	var got []Dirent
	require.NoError(t, v.Readdir(fd, func(e Dirent) bool {
		got = append(got, e)
		return true
	}))
	require.NoError(t, v.Close(fd))
	require.Len(t, got, 1)
	assert.Equal(t, "readme", got[0].Name)
	assert.Equal(t, geofs.TypeFile, got[0].Type)

	readme, err := v.Stat("/geo/docs/readme")
	require.NoError(t, err)
	assert.Equal(t, readme.Ino, got[0].Ino, "readdir and stat agree on inode numbers")
}

func TestSyntheticRoot(t *testing.T) {
	v, _ := newTestVFS(t, Options{})

	st, err := v.Stat("/")
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	ents, err := v.ReadDir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"geo"}, names(ents))

	_, err = v.Stat("/nowhere")
	requireErrno(t, syscall.ENOENT, err)
	requireErrno(t, syscall.EPERM, v.Mkdir("/outside"))
	requireErrno(t, syscall.EEXIST, v.Mount(nil, "/geo"))
}

func TestSymlink(t *testing.T) {
	v, _ := newTestVFS(t, Options{})
	require.NoError(t, v.WriteFile("/geo/target", []byte("t")))
	require.NoError(t, v.Symlink("/geo/target", "/geo/link"))
	requireErrno(t, syscall.EEXIST, v.Symlink("/x", "/geo/link"))

	got, err := v.Readlink("/geo/link")
	require.NoError(t, err)
	assert.Equal(t, "/geo/target", got)

	st, err := v.Stat("/geo/link")
	require.NoError(t, err)
	assert.Equal(t, geofs.TypeSymlink, st.Type)

	_, err = v.Readlink("/geo/target")
	requireErrno(t, syscall.EINVAL, err)
}

func TestHide(t *testing.T) {
	v, vol := newTestVFS(t, Options{})
	require.NoError(t, v.WriteFile("/geo/f", []byte("x")))
	require.NoError(t, v.Mkdir("/geo/d"))
	require.NoError(t, v.WriteFile("/geo/d/inner", []byte("i")))

	require.NoError(t, v.Hide("/geo/f"))
	_, err := v.Stat("/geo/f")
	requireErrno(t, syscall.ENOENT, err)
	_, err = vol.ResolveAt("/f", 1)
	assert.NoError(t, err, "the hidden file survives in the earlier view")

	requireErrno(t, syscall.ENOTEMPTY, v.Hide("/geo/d"))
	requireErrno(t, syscall.EPERM, v.Hide("/geo"))
	requireErrno(t, syscall.EPERM, v.Hide("/"))
	requireErrno(t, syscall.ENOENT, v.Hide("/geo/f"))

	require.NoError(t, v.Hide("/geo/d/inner"))
	require.NoError(t, v.Hide("/geo/d"))
	ents, err := v.ReadDir("/geo")
	require.NoError(t, err)
	assert.Empty(t, ents)

	// Switching the volume back makes the entries visible again.
	require.NoError(t, vol.SwitchView(1))
	ents, err = v.ReadDir("/geo")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "f"}, names(ents))
	_, err = v.Stat("/geo/f")
	assert.NoError(t, err)
}

func TestCopyAndRename(t *testing.T) {
	v, vol := newTestVFS(t, Options{CopyChunk: 4})
	require.NoError(t, v.WriteFile("/geo/src", []byte("copy me please")))

	require.NoError(t, v.Copy("/geo/src", "/geo/dst"))
	data, err := v.ReadFile("/geo/dst")
	require.NoError(t, err)
	assert.Equal(t, "copy me please", string(data))

	require.NoError(t, v.Mkdir("/geo/dir"))
	requireErrno(t, syscall.EISDIR, v.Copy("/geo/dir", "/geo/dir2"))
	requireErrno(t, syscall.EEXIST, v.Rename("/geo/src", "/geo/dst"))
	requireErrno(t, syscall.ENOENT, v.Rename("/geo/nope", "/geo/other"))

	before := vol.CurrentView()
	require.NoError(t, v.Rename("/geo/src", "/geo/moved"))
	data, err = v.ReadFile("/geo/moved")
	require.NoError(t, err)
	assert.Equal(t, "copy me please", string(data))
	_, err = v.Stat("/geo/src")
	requireErrno(t, syscall.ENOENT, err)
	_, err = vol.ResolveAt("/src", before)
	assert.NoError(t, err, "old name is kept in the earlier view")

	require.NoError(t, v.Rename("/geo/dir", "/geo/newdir"))
	st, err := v.Stat("/geo/newdir")
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	_, err = v.Stat("/geo/dir")
	requireErrno(t, syscall.ENOENT, err)
}

func TestSearch(t *testing.T) {
	v, _ := newTestVFS(t, Options{})
	require.NoError(t, v.MkdirAll("/geo/a/b"))
	for _, p := range []string{"/geo/top.txt", "/geo/a/mid.txt", "/geo/a/b/deep.txt", "/geo/a/b/skip.md"} {
		require.NoError(t, v.WriteFile(p, []byte(p)))
	}

	var found []string
	require.NoError(t, v.Search("/geo/./a/..", "*.txt", func(m Match) bool {
		found = append(found, m.Path)
		return true
	}))
	sort.Strings(found)
	assert.Equal(t, []string{"/geo/a/b/deep.txt", "/geo/a/mid.txt", "/geo/top.txt"}, found)

	var first []string
	require.NoError(t, v.Search("/geo", "?", func(m Match) bool {
		first = append(first, m.Path)
		return false
	}))
	assert.Len(t, first, 1)

	shallow, _ := newTestVFS(t, Options{SearchDepth: 1})
	require.NoError(t, shallow.MkdirAll("/geo/1/2/3"))
	require.NoError(t, shallow.WriteFile("/geo/1/2/3/hit", nil))
	var hits int
	require.NoError(t, shallow.Search("/geo", "hit", func(Match) bool { hits++; return true }))
	assert.Zero(t, hits, "matches below the depth cap are not reported")
}

func TestHistoryAndRestore(t *testing.T) {
	v, vol := newTestVFS(t, Options{})
	require.NoError(t, v.WriteFile("/geo/a.txt", []byte("v1")))
	snap, err := vol.CreateView("snap")
	require.NoError(t, err)
	require.NoError(t, vol.SwitchView(snap))
	require.NoError(t, v.WriteFile("/geo/a.txt", []byte("+v2")))

	require.NoError(t, vol.Sync())
	stamp := vol.Superblock().LastModified

	versions, err := v.History("/geo/a.txt", 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, uint64(1), versions[0].View)
	assert.Equal(t, "Genesis", versions[0].Label)
	assert.Equal(t, util.HashBytes([]byte("v1")).String(), versions[0].Hex())
	assert.Equal(t, uint64(2), versions[0].Size)
	assert.Equal(t, "snap", versions[1].Label)
	assert.Equal(t, util.HashBytes([]byte("v1+v2")), versions[1].Digest)
	assert.Equal(t, snap, vol.CurrentView(), "history keeps the current view")
	assert.Equal(t, stamp, vol.Superblock().LastModified, "history does not modify the volume")

	limited, err := v.History("/geo/a.txt", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, v.RestoreVersion("/geo/a.txt", 1, "/geo/./a.old"))
	data, err := v.ReadFile("/geo/a.old")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.Equal(t, snap, vol.CurrentView())

	requireErrno(t, syscall.ENOENT, v.RestoreVersion("/geo/a.txt", 99, "/geo/x"))
	requireErrno(t, syscall.ENOENT, v.RestoreVersion("/geo/none", 1, "/geo/x"))
	_, err = v.History("/elsewhere/a", 0)
	requireErrno(t, syscall.ENOENT, err)
}

func TestRestoreLimit(t *testing.T) {
	v, _ := newTestVFS(t, Options{RestoreLimit: 4})
	require.NoError(t, v.WriteFile("/geo/big", []byte("0123456789")))
	require.NoError(t, v.RestoreVersion("/geo/big", 1, "/geo/small"))
	data, err := v.ReadFile("/geo/small")
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))
}

// plainVolume hides the view methods of a volume.
type plainVolume struct{ Volume }

func TestUnversionedMount(t *testing.T) {
	v, vol := newTestVFS(t, Options{})
	require.NoError(t, v.Mount(plainVolume{vol}, "/plain"))
	require.NoError(t, v.WriteFile("/plain/f", []byte("x")))

	versions, err := v.History("/plain/f", 0)
	require.NoError(t, err)
	assert.Nil(t, versions)
	requireErrno(t, syscall.ENOSYS, v.RestoreVersion("/plain/f", 1, "/plain/g"))

	mounts := v.Mounts()
	require.Len(t, mounts, 2)
	assert.True(t, mounts[0].Versioned)
	assert.False(t, mounts[1].Versioned)
}

func TestCanonicalPaths(t *testing.T) {
	v, _ := newTestVFS(t, Options{})
	require.NoError(t, v.WriteFile("/geo/a/../b.txt", []byte("b")))

	for _, p := range []string{"/geo/b.txt", "/geo/./b.txt", "//geo//b.txt", "/../../geo/b.txt", "/geo/x/../b.txt"} {
		data, err := v.ReadFile(p)
		require.NoError(t, err, p)
		assert.Equal(t, "b", string(data), p)
	}
}

func TestUnmount(t *testing.T) {
	v, vol := newTestVFS(t, Options{})
	fd, err := v.Open("/geo/u", WriteOnly|Create)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("data"))
	require.NoError(t, err)

	require.NoError(t, v.Unmount("/geo"))
	d, err := vol.Resolve("/u")
	require.NoError(t, err)
	assert.Equal(t, util.HashBytes([]byte("data")), d, "unmount flushes dirty handles")

	_, err = v.Stat("/geo/u")
	requireErrno(t, syscall.ENOENT, err)
	requireErrno(t, syscall.ENOENT, v.Unmount("/geo"))

	mounts := v.Mounts()
	require.Len(t, mounts, 1)
	assert.False(t, mounts[0].Active)
	assert.Equal(t, uint64(1), mounts[0].FilesCreated)
	assert.Equal(t, uint64(4), mounts[0].BytesWritten)
	require.NoError(t, v.Close(fd))

	require.NoError(t, v.Mount(vol, "/geo"))
	data, err := v.ReadFile("/geo/u")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestErrnoMapping(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{geofs.ErrNotFound, syscall.ENOENT},
		{geofs.ErrExists, syscall.EEXIST},
		{geofs.ErrInvalid, syscall.EINVAL},
		{geofs.ErrFull, syscall.ENOSPC},
		{geofs.ErrNoMem, syscall.ENOMEM},
		{geofs.ErrCorrupt, syscall.EIO},
		{io.ErrUnexpectedEOF, syscall.EIO},
		{pathErr("op", "/p", syscall.EXDEV), syscall.EXDEV},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Errno(tt.err), "Errno(%v)", tt.err)
	}
	assert.Zero(t, Errno(nil))
}
