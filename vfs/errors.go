package vfs

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/dendrascience/geofs/geofs"
)

// Errno extracts the errno carried by err. Volume errors are mapped by
// kind; anything unrecognised is EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch geofs.KindOf(err) {
	case geofs.KindNotFound:
		return syscall.ENOENT
	case geofs.KindExists:
		return syscall.EEXIST
	case geofs.KindInvalid:
		return syscall.EINVAL
	case geofs.KindFull:
		return syscall.ENOSPC
	case geofs.KindNoMem:
		return syscall.ENOMEM
	default:
		return syscall.EIO
	}
}

func pathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &fs.PathError{Op: op, Path: path, Err: Errno(err)}
}

func fdErr(op string, err error) error {
	return pathErr(op, "", err)
}
