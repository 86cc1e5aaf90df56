package util

import "strings"

const (
	// MaxPath is the longest path a reference record can hold.
	MaxPath = 4096
	// MaxName is the longest single path segment.
	MaxName = 255
	// MaxDepth is the most segments a canonical path may have.
	MaxDepth = 64
)

// Canonicalize reduces a path to its unique normal form.
//
// Empty segments and "." are dropped. ".." pops the previous segment; at the
// root of an absolute path it is dropped, so nothing can climb above "/", while
// a leading ".." in a relative path is kept literally. An empty absolute result
// is "/" and an empty relative result is ".".
func Canonicalize(p string) (string, error) {
	absolute := strings.HasPrefix(p, "/")
	stack := make([]string, 0, 8)

	for seg := range strings.SplitSeq(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if n := len(stack); n > 0 && stack[n-1] != ".." {
				stack = stack[:n-1]
				continue
			}
			if absolute {
				continue
			}
		default:
			if len(seg) > MaxName {
				return "", ErrNameTooLong
			}
		}
		stack = append(stack, seg)
		if len(stack) > MaxDepth {
			return "", ErrPathTooDeep
		}
	}

	var out string
	switch {
	case absolute:
		out = "/" + strings.Join(stack, "/")
	case len(stack) == 0:
		out = "."
	default:
		out = strings.Join(stack, "/")
	}
	if len(out) > MaxPath {
		return "", ErrPathTooLong
	}
	return out, nil
}

// CanonicalAbs canonicalises p and rejects relative results.
func CanonicalAbs(p string) (string, error) {
	c, err := Canonicalize(p)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(c, "/") {
		return "", ErrRelativePath
	}
	return c, nil
}

// SplitParent splits a canonical absolute path into its parent directory and
// base name. The root has parent "/" and an empty name.
func SplitParent(p string) (dir, name string) {
	if p == "/" {
		return "/", ""
	}
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/", p[i+1:]
	}
	return p[:i], p[i+1:]
}

// JoinChild appends a single name to a canonical directory path.
func JoinChild(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// IsDirectChild reports whether p names an entry directly inside dir.
func IsDirectChild(dir, p string) (string, bool) {
	var rest string
	if dir == "/" {
		if !strings.HasPrefix(p, "/") {
			return "", false
		}
		rest = p[1:]
	} else {
		if !strings.HasPrefix(p, dir+"/") {
			return "", false
		}
		rest = p[len(dir)+1:]
	}
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// MatchGlob matches name against a pattern where '*' matches any run of
// characters (including none) and '?' matches exactly one byte.
func MatchGlob(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if MatchGlob(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if name == "" {
				return false
			}
		default:
			if name == "" || name[0] != pattern[0] {
				return false
			}
		}
		pattern = pattern[1:]
		name = name[1:]
	}
	return name == ""
}
