// Package main provides the geofs command-line interface.
//
// geofs keeps a whole filesystem in one append-only volume file. Contents are
// stored once per SHA-256 digest, every change appends a reference record,
// and views let you see the tree as it was. A volume can be used through the
// subcommands or mounted with FUSE:
//   - create, ls, cat, write, get, mkdir, ln, cp, mv, hide, find, mount
//   - views, view, snapshot, history, restore
//   - stats, validate, dump, import, seed, config, version
package main
