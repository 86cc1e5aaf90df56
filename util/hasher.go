package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/taigrr/colorhash"
)

// DigestSize is the length in bytes of a content or path digest.
const DigestSize = sha256.Size

// BucketModulus is the number of colour buckets digests are spread across.
const BucketModulus = 1000

// Digest is a SHA-256 digest of either object content or a canonical path.
type Digest [DigestSize]byte

// ZeroDigest is the content digest carried by hide tombstones.
var ZeroDigest Digest

// IsZero reports whether d is the all-zero tombstone digest.
func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

// String returns the 64 character lowercase hex form of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, enough to tell objects apart in listings.
func (d Digest) Short() string {
	return d.String()[:12]
}

// ParseDigest decodes a 64 character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != DigestSize*2 {
		return d, ErrInvalidDigest
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, ErrInvalidDigest
	}
	return d, nil
}

// HashBytes returns the SHA-256 digest of b.
func HashBytes(b []byte) Digest {
	return sha256.Sum256(b)
}

// HashPath returns the digest of a path's UTF-8 bytes. Callers canonicalise first.
func HashPath(path string) Digest {
	return sha256.Sum256([]byte(path))
}

// GetHash calculates the SHA-256 digest of everything readable from r.
func GetHash(r io.Reader) (Digest, error) {
	var d Digest
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return d, err
	}
	copy(d[:], h.Sum(nil))
	return d, nil
}

// GetFileHash hashes a host file and refuses directories.
func GetFileHash(path string) (Digest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Digest{}, err
	}
	if info.IsDir() {
		return Digest{}, ErrExpectedFile
	}
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer file.Close()
	return GetHash(file)
}

// DigestBucket maps a digest onto one of BucketModulus colour buckets.
// The same digest always lands in the same bucket, so listings can colour
// identical content identically and stats can report how evenly objects spread.
func DigestBucket(d Digest) int {
	b := colorhash.HashString(d.String()) % BucketModulus
	if b < 0 {
		b = -b
	}
	return b
}
