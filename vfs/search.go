package vfs

import (
	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

// Match is one search hit.
type Match struct {
	Path string
	Stat Stat
}

// Search walks the tree below start and calls fn for every entry whose name
// matches pattern ('*' and '?' wildcards) until fn returns false. Matches
// are collected first, so fn may call back into the VFS. Directories that
// cannot be opened are skipped silently.
func (v *VFS) Search(start, pattern string, fn func(Match) bool) error {
	p, err := v.canonical("search", start)
	if err != nil {
		return err
	}

	v.mu.Lock()
	var matches []Match
	v.searchLocked(p, pattern, 0, &matches)
	v.mu.Unlock()

	for _, m := range matches {
		if !fn(m) {
			break
		}
	}
	return nil
}

func (v *VFS) searchLocked(dir, pattern string, depth int, out *[]Match) {
	if depth > v.opts.SearchDepth {
		return
	}
	fd, err := v.openLocked(dir, ReadOnly|Directory)
	if err != nil {
		return
	}
	f := v.files[fd]
	ents, err := v.readdirLocked(f.dentry)
	v.closeLocked(f)
	if err != nil {
		return
	}

	for _, e := range ents {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		full := util.JoinChild(dir, e.Name)
		if util.MatchGlob(pattern, e.Name) {
			if st, err := v.statLocked(full); err == nil {
				*out = append(*out, Match{Path: full, Stat: st})
			}
		}
		if e.Type == geofs.TypeDir {
			v.searchLocked(full, pattern, depth+1, out)
		}
	}
}
