// Package vfs exposes GeoFS volumes through a conventional file interface.
//
// Volumes are mounted into one namespace. Paths are canonicalised before
// use, so ".." can never climb above "/" and equivalent spellings name the
// same entry. Every lookup is revalidated against the volume, which keeps the
// cached dentry tree consistent across view switches.
//
// Files are append-only. Writes are buffered on the open handle and become a
// single new reference on Sync or Close. Directories and symlinks are stored
// as marker content (geofs.DirMarker, geofs.SymlinkMarker). Hide, Rename and
// RestoreVersion never destroy data: earlier views keep seeing what they saw.
//
// Failures are *fs.PathError values carrying a syscall.Errno; use Errno to
// extract it.
package vfs
