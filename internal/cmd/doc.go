// Package cmd provides the command-line interface implementation for geofs.
//
// It uses the Cobra library for command structure; main runs the tree
// through Fang for styled help and errors. Each command is implemented in
// its own constructor returning a *cobra.Command, grouped as:
//   - filesystem: create, ls, cat, write, get, mkdir, ln, cp, mv, hide, find, mount
//   - views: views, view, snapshot, history, restore
//   - utilities: stats, validate, dump, import, seed, config, version
//
// The root command loads the configuration and logger once and hands them to
// subcommands through the command context. Commands that change the tree go
// through the vfs package so that writes follow the same append-only rules as
// a FUSE mount; read-only queries and view management use the geofs volume
// directly.
package cmd
