// Package geofs implements an append-only, content-addressed, view-versioned
// filesystem stored in a single fixed-size volume file.
//
// A volume is a 512-byte superblock in block 0 followed by three regions:
//
//   - content: objects addressed by SHA-256 digest, each a header block
//     ("CONT", size, digest) followed by the payload; identical bytes are
//     stored once
//   - references: fixed 4224-byte records binding a path to a digest in a
//     view at a point in time; a hidden record is a tombstone
//   - views: fixed 128-byte records forming a parent-linked chain of strata,
//     starting with Genesis (id 1)
//
// Nothing is overwritten or freed. Resolve picks, for a path, the reference
// with the latest timestamp among those created in views with an id no
// greater than the current view. Hide creates a child view holding a
// tombstone, so every earlier view still sees the old content.
//
// The in-memory indices are rebuilt from disk on Open. The superblock is
// written on Sync and Close.
package geofs
