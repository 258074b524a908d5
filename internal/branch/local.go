package branch

import (
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Local implements FS against a real directory tree rooted at a local
// path, the way a loopback FUSE filesystem addresses its backing
// store.
type Local struct {
	root string
}

// NewLocal returns a Local branch rooted at root. root must be an
// absolute, existing directory; trailing slashes are stripped per
// spec.md §6.
func NewLocal(root string) (*Local, error) {
	root = filepath.Clean(root)
	if !filepath.IsAbs(root) {
		return nil, &os.PathError{Op: "branch", Path: root, Err: syscall.EINVAL}
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &os.PathError{Op: "branch", Path: root, Err: syscall.ENOTDIR}
	}
	return &Local{root: root}, nil
}

func (l *Local) Root() string { return l.root }

func (l *Local) full(p string) string {
	return filepath.Join(l.root, p)
}

func (l *Local) Lstat(p string) (Attr, error) {
	var st syscall.Stat_t
	if err := syscall.Lstat(l.full(p), &st); err != nil {
		return Attr{}, err
	}
	return attrFromStat(&st), nil
}

func (l *Local) Open(p string, flags int) (*os.File, error) {
	return os.OpenFile(l.full(p), flags, 0)
}

func (l *Local) Create(p string, mode uint32) (*os.File, error) {
	return os.OpenFile(l.full(p), os.O_CREATE|os.O_EXCL|os.O_RDWR, os.FileMode(mode&07777))
}

func (l *Local) ReadDir(p string) ([]Dirent, error) {
	f, err := os.Open(l.full(p))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	out := make([]Dirent, 0, len(names))
	for _, name := range names {
		var st syscall.Stat_t
		if err := syscall.Lstat(l.full(filepath.Join(p, name)), &st); err != nil {
			continue
		}
		out = append(out, Dirent{Name: name, Mode: st.Mode})
	}
	return out, nil
}

func (l *Local) Mkdir(p string, mode uint32) error {
	return syscall.Mkdir(l.full(p), mode&07777)
}

func (l *Local) Rmdir(p string) error {
	return syscall.Rmdir(l.full(p))
}

func (l *Local) RemoveAll(p string) error {
	return os.RemoveAll(l.full(p))
}

func (l *Local) Unlink(p string) error {
	return syscall.Unlink(l.full(p))
}

func (l *Local) Mknod(p string, mode uint32, rdev uint64) error {
	return syscall.Mknod(l.full(p), mode, int(rdev))
}

func (l *Local) Symlink(target, p string) error {
	return syscall.Symlink(target, l.full(p))
}

func (l *Local) Readlink(p string) (string, error) {
	buf := make([]byte, 4096)
	n, err := syscall.Readlink(l.full(p), buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func (l *Local) Link(oldP, newP string) error {
	return syscall.Link(l.full(oldP), l.full(newP))
}

func (l *Local) Setattr(p string, delta Delta) error {
	full := l.full(p)

	if delta.Mode != nil {
		if err := syscall.Chmod(full, *delta.Mode&07777); err != nil {
			return err
		}
	}

	if delta.Uid != nil || delta.Gid != nil {
		uid, gid := -1, -1
		if delta.Uid != nil {
			uid = int(*delta.Uid)
		}
		if delta.Gid != nil {
			gid = int(*delta.Gid)
		}
		if err := syscall.Lchown(full, uid, gid); err != nil {
			return err
		}
	}

	if delta.Atime != nil || delta.Mtime != nil {
		now := time.Now()
		at, mt := now, now
		if delta.Atime != nil {
			at = *delta.Atime
		}
		if delta.Mtime != nil {
			mt = *delta.Mtime
		}
		ts := []syscall.Timespec{
			syscall.NsecToTimespec(at.UnixNano()),
			syscall.NsecToTimespec(mt.UnixNano()),
		}
		if err := syscall.UtimesNano(full, ts); err != nil {
			return err
		}
	}

	if delta.Size != nil {
		if err := syscall.Truncate(full, *delta.Size); err != nil {
			return err
		}
	}

	return nil
}

func (l *Local) Statfs() (Statfs, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(l.root, &st); err != nil {
		return Statfs{}, err
	}
	return Statfs{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		NameLen: uint32(st.Namelen),
	}, nil
}

func attrFromStat(st *syscall.Stat_t) Attr {
	return Attr{
		Mode:   st.Mode,
		Uid:    st.Uid,
		Gid:    st.Gid,
		Size:   st.Size,
		Blocks: st.Blocks,
		Nlink:  uint64(st.Nlink),
		Rdev:   uint64(st.Rdev),
		Atime:  time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Mtime:  time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Ctime:  time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
	}
}
