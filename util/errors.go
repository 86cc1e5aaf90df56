package util

import "errors"

// Sentinel errors for package util.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Host file errors
	ErrExpectedFile = errors.New("expected file, got directory")

	// Digest errors
	ErrInvalidDigest = errors.New("invalid digest: want 64 hex characters")

	// Path errors
	ErrPathTooDeep  = errors.New("path exceeds maximum depth")
	ErrNameTooLong  = errors.New("path segment exceeds maximum name length")
	ErrPathTooLong  = errors.New("path exceeds maximum length")
	ErrRelativePath = errors.New("path must be absolute")

	// Inode errors
	ErrInodeNotFound = errors.New("inode not found in registry")
)
