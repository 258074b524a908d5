// Package branch defines the minimal capability the hepunion core
// requires from an underlying directory tree (spec.md §2's "Branch I/O
// Capability"), and supplies the one concrete implementation this
// repository ships: a real local directory, addressed through
// os/syscall, the way a loopback FUSE filesystem would.
//
// The core (internal/resolver, internal/whiteout, internal/sidecar,
// internal/copyup, internal/union) never touches os/syscall directly;
// it only calls through the FS interface, so a branch backed by
// something other than a local directory could be substituted without
// touching core logic.
package branch

import (
	"os"
	"time"
)

// Kind enumerates the entry kinds the union model recognises.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRegular
	KindDirectory
	KindSymlink
	KindFIFO
	KindCharDevice
	KindBlockDevice
	KindSocket
)

// KindFromMode derives a Kind from a raw POSIX mode word.
func KindFromMode(mode uint32) Kind {
	switch mode & sIFMT {
	case sIFREG:
		return KindRegular
	case sIFDIR:
		return KindDirectory
	case sIFLNK:
		return KindSymlink
	case sIFIFO:
		return KindFIFO
	case sIFCHR:
		return KindCharDevice
	case sIFBLK:
		return KindBlockDevice
	case sIFSOCK:
		return KindSocket
	default:
		return KindUnknown
	}
}

const (
	sIFMT  = 0170000
	sIFREG = 0100000
	sIFDIR = 0040000
	sIFLNK = 0120000
	sIFIFO = 0010000
	sIFCHR = 0020000
	sIFBLK = 0060000
	sIFSOCK = 0140000
)

// Attr is the branch-level view of a file's attributes: exactly the
// fields spec.md §4.4 says come from "the resolved file" (type, size,
// blocks, nlink) or may be overridden by a sidecar (mode permission
// bits, uid, gid, atime, mtime, ctime).
type Attr struct {
	Mode   uint32 // full mode word, including type bits
	Uid    uint32
	Gid    uint32
	Size   int64
	Blocks int64
	Nlink  uint64
	Rdev   uint64
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
}

// Kind reports the entry kind implied by Mode.
func (a Attr) Kind() Kind { return KindFromMode(a.Mode) }

// PermBits isolates the permission-mask bits spec.md §4.4 says a
// sidecar may override: setuid, setgid, sticky, and rwx for
// user/group/other. Type bits are excluded.
func (a Attr) PermBits() uint32 { return a.Mode & 07777 }

// WithPermBits returns a copy of a with its permission bits replaced,
// preserving the type bits.
func (a Attr) WithPermBits(bits uint32) Attr {
	a.Mode = (a.Mode &^ 07777) | (bits & 07777)
	return a
}

// Delta carries the fields set_metadata (spec.md §4.4) recognises in a
// setattr request: mode, uid, gid, atime, mtime. A nil pointer means
// "field not present in this delta".
type Delta struct {
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time
	Size  *int64 // truncate; not part of the sidecar-recognised field set but needed for RW setattr
}

// Dirent is one entry returned by ReadDir.
type Dirent struct {
	Name string
	Mode uint32 // type bits only are guaranteed populated
}

// Statfs mirrors the handful of statfs fields hepunion forwards from
// the RO branch (spec.md §6).
type Statfs struct {
	Blocks, Bfree, Bavail uint64
	Files, Ffree          uint64
	Bsize                 uint32
	NameLen               uint32
}

// FS is the Branch I/O capability: stat, open, read, write, readdir,
// mkdir, rmdir, unlink, mknod, mkfifo, symlink, readlink, link,
// setattr, lookup — exactly the set spec.md §2 enumerates, split into
// idiomatic Go methods.
type FS interface {
	// Root returns the branch's absolute root path (B), without a
	// trailing slash.
	Root() string

	// Lookup/Lstat: stat p (the branch-relative path, i.e. B ++ P)
	// without following a trailing symlink. Returns an error
	// satisfying os.IsNotExist when absent.
	Lstat(p string) (Attr, error)

	// Open opens an existing file for read and/or write per flags
	// (os.O_RDONLY / os.O_WRONLY / os.O_RDWR, optionally combined with
	// os.O_TRUNC etc).
	Open(p string, flags int) (*os.File, error)

	// Create creates a new regular file exclusively (O_CREATE|O_EXCL)
	// with the given mode and opens it for read/write.
	Create(p string, mode uint32) (*os.File, error)

	// ReadDir lists the immediate children of the directory at p.
	ReadDir(p string) ([]Dirent, error)

	// Mkdir creates a directory at p with the given mode.
	Mkdir(p string, mode uint32) error

	// Rmdir removes the (assumed empty) directory at p.
	Rmdir(p string) error

	// RemoveAll recursively removes p and everything beneath it,
	// tolerating p's absence. Used to unwind a partial directory
	// copy-up; never part of a VFS-visible operation.
	RemoveAll(p string) error

	// Unlink removes the non-directory entry at p.
	Unlink(p string) error

	// Mknod creates a FIFO, character, or block device node at p.
	Mknod(p string, mode uint32, rdev uint64) error

	// Symlink creates a symlink at p pointing to target.
	Symlink(target, p string) error

	// Readlink reads the target of the symlink at p.
	Readlink(p string) (string, error)

	// Link creates a hard link at newP pointing to the same inode as
	// oldP, both within this branch.
	Link(oldP, newP string) error

	// Setattr applies a partial attribute update to p.
	Setattr(p string, delta Delta) error

	// Statfs returns filesystem-level statistics for the branch.
	Statfs() (Statfs, error)
}
