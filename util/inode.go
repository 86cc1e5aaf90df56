package util

import (
	"sync"
)

// InodeRegistry hands out inode numbers and remembers which key each belongs
// to, so a path keeps the same inode for the lifetime of a mount.
type InodeRegistry struct {
	mu      sync.Mutex
	highest uint64
	byKey   map[string]uint64
	byInode map[uint64]string
}

// NewInodeRegistry returns a registry whose first allocation is reserved+1.
func NewInodeRegistry(reserved uint64) *InodeRegistry {
	return &InodeRegistry{
		highest: reserved,
		byKey:   make(map[string]uint64),
		byInode: make(map[uint64]string),
	}
}

// GetNewInode allocates an inode not tied to any key.
func (r *InodeRegistry) GetNewInode() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.highest++
	return r.highest
}

// SetInode raises the allocation floor; lower values are ignored.
func (r *InodeRegistry) SetInode(inode uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inode > r.highest {
		r.highest = inode
	}
}

// InodeFor returns the inode bound to key, allocating one on first use.
func (r *InodeRegistry) InodeFor(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ino, ok := r.byKey[key]; ok {
		return ino
	}
	r.highest++
	r.byKey[key] = r.highest
	r.byInode[r.highest] = key
	return r.highest
}

// KeyFromInode is the reverse of InodeFor.
func (r *InodeRegistry) KeyFromInode(inode uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byInode[inode]
	if !ok {
		return "", ErrInodeNotFound
	}
	return key, nil
}
