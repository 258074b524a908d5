// Package copyup implements the copy-up engine (spec.md §4.3):
// materialising an RW replica of an RO entry on demand, for every
// entry kind the union supports, and retiring any sidecar once the
// copy-up exists.
package copyup

import (
	"io"
	"os"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/materialize"
	"github.com/go-hepunion/hepunion/internal/pathutil"
	"github.com/go-hepunion/hepunion/internal/sidecar"
)

// MaxSize is the bounded streaming buffer size the regular-file clone
// step uses, per spec.md §4.3.
const MaxSize = 4096

// Engine performs copy-up against a pair of branches, retiring
// sidecars through sc once a copy-up lands.
type Engine struct {
	rw, ro branch.FS
	sc     *sidecar.Subsystem
}

// New returns a copy-up Engine over the given branches and sidecar
// subsystem.
func New(rw, ro branch.FS, sc *sidecar.Subsystem) *Engine {
	return &Engine{rw: rw, ro: ro, sc: sc}
}

// CopyUp materialises an RW replica of the RO entry at p. Its
// preconditions (spec.md §4.3) are: B_rw++p does not exist, B_ro++p
// does.
func (e *Engine) CopyUp(p string) error {
	roAttr, err := e.ro.Lstat(p)
	if err != nil {
		return err
	}
	eff := e.sc.GetEffectiveAttrs(p, roAttr)

	if err := materialize.FindPath(e.rw, e.ro, p); err != nil {
		return err
	}

	if err := e.clone(p, eff); err != nil {
		return err
	}

	if err := e.applyAttrs(p, eff); err != nil {
		return err
	}

	return e.sc.Retire(p)
}

func (e *Engine) clone(p string, eff branch.Attr) error {
	switch eff.Kind() {
	case branch.KindRegular:
		return e.cloneRegular(p, eff)
	case branch.KindSymlink:
		return e.cloneSymlink(p)
	case branch.KindDirectory:
		return e.cloneDirectory(p, eff)
	case branch.KindFIFO, branch.KindCharDevice, branch.KindBlockDevice:
		return e.rw.Mknod(p, eff.Mode, eff.Rdev)
	case branch.KindSocket:
		return e.rw.Mknod(p, eff.Mode, 0)
	default:
		return os.ErrInvalid
	}
}

func (e *Engine) cloneRegular(p string, eff branch.Attr) error {
	src, err := e.ro.Open(p, os.O_RDONLY)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := e.rw.Create(p, eff.PermBits())
	if err != nil {
		return err
	}

	buf := make([]byte, MaxSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		dst.Close()
		_ = e.rw.Unlink(p)
		return err
	}
	return dst.Close()
}

func (e *Engine) cloneSymlink(p string) error {
	target, err := e.ro.Readlink(p)
	if err != nil {
		return err
	}
	return e.rw.Symlink(target, p)
}

func (e *Engine) cloneDirectory(p string, eff branch.Attr) error {
	if err := e.rw.Mkdir(p, eff.PermBits()); err != nil {
		return err
	}

	entries, err := e.ro.ReadDir(p)
	if err != nil {
		e.rollbackDir(p)
		return err
	}

	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		if _, ok := pathutil.IsWhiteoutName(entry.Name); ok {
			continue
		}
		if _, ok := pathutil.IsSidecarName(entry.Name); ok {
			continue
		}
		if err := e.CopyUp(pathutil.Join(p, entry.Name)); err != nil {
			e.rollbackDir(p)
			return err
		}
	}
	return nil
}

func (e *Engine) rollbackDir(p string) {
	_ = e.rw.RemoveAll(p)
}

func (e *Engine) applyAttrs(p string, eff branch.Attr) error {
	uid, gid := eff.Uid, eff.Gid
	if eff.Kind() == branch.KindSymlink {
		// Setattr's mode and time updates follow a trailing symlink, so
		// a symlink replica only takes its owner and group.
		return e.rw.Setattr(p, branch.Delta{Uid: &uid, Gid: &gid})
	}
	mode := eff.PermBits()
	atime, mtime := eff.Atime, eff.Mtime
	return e.rw.Setattr(p, branch.Delta{
		Mode:  &mode,
		Uid:   &uid,
		Gid:   &gid,
		Atime: &atime,
		Mtime: &mtime,
	})
}

// UnlinkCopyUp reports whether the RO original of p still exists, for
// use when an RW copy-up of p is being deleted. It removes nothing and
// creates no sidecar itself: when the RO original is gone it returns
// (false, nil), the no-op case; when it still exists it returns
// (true, nil); any other stat error is returned as is.
func (e *Engine) UnlinkCopyUp(p string) (roStillExists bool, err error) {
	_, err = e.ro.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
