package branch

import (
	"errors"
	"os"
	"syscall"
)

// ToErrno translates a branch-level error (an os.PathError/LinkError
// wrapping a syscall.Errno, or a bare syscall.Errno) into the
// syscall.Errno the VFS surface must return, per spec.md §7's error
// taxonomy. Errors that are not a recognisable branch error are
// propagated verbatim as EIO, matching spec.md §7's "branch errors:
// any other error from Branch I/O is propagated verbatim" — EIO is
// the most precise POSIX code available once the original error has
// been collapsed to an errno already.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if os.IsNotExist(err) {
		return syscall.ENOENT
	}
	if os.IsExist(err) {
		return syscall.EEXIST
	}
	if os.IsPermission(err) {
		return syscall.EACCES
	}
	return syscall.EIO
}
