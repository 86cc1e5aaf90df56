// Package util provides the leaf helpers shared by the geofs core, the VFS
// adapter and the FUSE bridge.
//
// Key Components:
//
// Hashing:
//   - Digest, a SHA-256 value used both for object content and for canonical paths
//   - HashBytes/HashPath for in-memory data and GetHash/GetFileHash for streams and host files
//   - DigestBucket, a colour hash of the hex digest used to colour and bucket objects
//
// Paths:
//   - Canonicalize folds "." and "..", drops empty segments and enforces the
//     name, depth and length limits so that equivalent spellings hash the same
//   - SplitParent, JoinChild and IsDirectChild for directory arithmetic
//   - MatchGlob for '*' and '?' patterns
//
// Inodes:
//   - InodeRegistry gives FUSE nodes stable inode numbers per key
package util
