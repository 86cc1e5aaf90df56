// Package fusefs exposes a GeoFS volume through FUSE using bazil.org/fuse.
//
// The mount has two top-level directories:
//   - live/: the volume under its current view, read-write through the vfs
//     adapter. Writes append; Remove hides the entry in a new view.
//   - views/<id>/: a read-only tree per view, resolved with that view as the
//     bound and without switching the volume.
//
// Truncation is refused since the volume only ever appends.
package fusefs
