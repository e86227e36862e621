package mount

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/datadir"
)

var (
	// ErrNotFound means nothing exists at the path.
	ErrNotFound = errors.New("no such file or directory")

	// ErrInvalidPath means the path is not absolute.
	ErrInvalidPath = errors.New("invalid path")

	// ErrPermissionDenied is returned by every mutating operation.
	ErrPermissionDenied = errors.New("filesystem is read-only")
)

// Error carries the operation and path of a failed filesystem call.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) error {
	return &Error{Op: op, Path: path, Err: err}
}

// Operation names for errors and metrics.
const (
	OpGetattr = "getattr"
	OpLookup  = "lookup"
	OpReadDir = "readdir"
	OpOpen    = "open"
	OpRead    = "read"
	OpWrite   = "write"
)

// ToFuseError converts an error from this package into the errno the
// kernel expects. Writes fail with EPERM; every failure on the read path,
// an unreachable catalog included, reads as ENOENT.
func ToFuseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied):
		return syscall.EPERM
	}
	return syscall.ENOENT
}

// isMiss reports whether err is an ordinary lookup miss rather than a
// failure worth logging.
func isMiss(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, catalog.ErrNotFound) ||
		errors.Is(err, datadir.ErrNotFound)
}
