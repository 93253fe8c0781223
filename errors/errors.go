package errors

import (
	"fmt"
	"syscall"
)

// DriverError is a filesystem error with an attached message and an errno
// the host adapter can translate into a negative return value.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
	Errno() syscall.Errno
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) WrapError(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: err,
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}

// Errno walks the wrapped-error chain looking for something that knows its
// own errno; if nothing in the chain does, it reports EIO.
func (e customDriverError) Errno() syscall.Errno {
	var cur error = e
	for cur != nil {
		if withErrno, ok := cur.(interface{ Errno() syscall.Errno }); ok {
			if _, isSelf := cur.(customDriverError); !isSelf {
				return withErrno.Errno()
			}
		}
		unwrapper, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = unwrapper.Unwrap()
	}
	return syscall.EIO
}
