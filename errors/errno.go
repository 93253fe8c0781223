// Sentinel filesystem errors and their mapping onto the POSIX errno values
// defined by the syscall package.

package errors

import (
	"fmt"
	"syscall"
)

// FSError is a sentinel filesystem error with a fixed errno mapping. It is a
// plain string so callers can compare with errors.Is without an allocation.
type FSError string

// ErrNoSuchEntry is returned when a path component, or a name passed to
// directory_delete, does not exist.
const ErrNoSuchEntry = FSError("No such file or directory")

// ErrAlreadyExists is returned by directory_put when the name is already
// present in the directory.
const ErrAlreadyExists = FSError("File exists")

// ErrNameTooLong is returned when a path segment or directory entry name is
// too long to fit in DIR_NAME_LENGTH bytes including the terminator.
const ErrNameTooLong = FSError("File name too long")

// ErrNoSpace is returned when the block or inode bitmap has no free bit.
const ErrNoSpace = FSError("No space left on device")

// ErrNotSupported reports an operation the core does not implement at all
// (link, chmod, utimens, ioctl). No code in this module returns it; the
// FUSE adapter leaves those operations to go-fuse's default ENOSYS.
const ErrNotSupported = FSError("Operation not supported")

// ErrNotADirectory reports that a directory was required and a regular
// file was given. No operation in the core returns it; path resolution
// does not check the directory bit.
const ErrNotADirectory = FSError("Not a directory")

// ErrIO covers failures talking to the backing image (short reads,
// mmap/msync failures) that aren't any of the above.
const ErrIO = FSError("Input/output error")

func (e FSError) Error() string {
	return string(e)
}

// Errno returns the syscall.Errno a host adapter should report for this
// error.
func (e FSError) Errno() syscall.Errno {
	switch e {
	case ErrNoSuchEntry:
		return syscall.ENOENT
	case ErrAlreadyExists:
		return syscall.EEXIST
	case ErrNameTooLong:
		return syscall.ENAMETOOLONG
	case ErrNoSpace:
		return syscall.ENOSPC
	case ErrNotSupported:
		return syscall.ENOSYS
	case ErrNotADirectory:
		return syscall.ENOTDIR
	case ErrIO:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

func (e FSError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e,
	}
}

func (e FSError) WrapError(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: err,
	}
}
