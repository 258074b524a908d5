package union

import (
	"context"
	"os"
	"syscall"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/materialize"
	"github.com/go-hepunion/hepunion/internal/pathutil"
	"github.com/go-hepunion/hepunion/internal/permission"
	"github.com/go-hepunion/hepunion/internal/resolver"
)

func ancestorsOf(p string) []string { return pathutil.Ancestors(p) }

// exists reports whether p currently resolves anywhere in the union
// (RW, or RO and not whited-out).
func (c *Core) exists(p string) bool {
	if _, err := c.RW.Lstat(p); err == nil {
		return true
	}
	if c.Whiteout.Find(p) {
		return false
	}
	_, err := c.RO.Lstat(p)
	return err == nil
}

// canCreateAt implements spec.md §4.6's can_create(P): the caller
// needs W on parent(P)'s effective attributes.
func (c *Core) canCreateAt(caller permission.Caller, p string) error {
	parent, ok := pathutil.Parent(p)
	if !ok {
		return syscall.EINVAL
	}
	parentAttr, err := c.Resolver.StatEffective(parent)
	if err != nil {
		return err
	}
	if !permission.CanCreate(caller, parentAttr) {
		return syscall.EACCES
	}
	return nil
}

// checkCreate implements the common precondition every *-creating
// operation shares (spec.md §4.9): the name must not collide with a
// reserved ".wh."/".me." prefix, and the caller needs W on the parent
// directory's effective attributes.
func (c *Core) checkCreate(caller permission.Caller, p string) error {
	if pathutil.IsReservedName(pathutil.Base(p)) {
		return syscall.EINVAL
	}
	return c.canCreateAt(caller, p)
}

func (c *Core) materializeParent(p string) error {
	parent, ok := pathutil.Parent(p)
	if !ok {
		return syscall.EINVAL
	}
	return materialize.FindPath(c.RW, c.RO, parent)
}

// Create implements spec.md §4.9's create(P, mode): P must be absent
// from the union; an empty file is created in RW with its parent
// chain materialised, and any whiteout at P is removed.
func (c *Core) Create(ctx context.Context, caller permission.Caller, p string, mode uint32) (branch.Attr, error) {
	if c.exists(p) {
		return branch.Attr{}, syscall.EEXIST
	}
	if err := c.checkCreate(caller, p); err != nil {
		return branch.Attr{}, err
	}

	pop := c.PushRoot(ctx)
	defer pop()

	if err := c.materializeParent(p); err != nil {
		return branch.Attr{}, err
	}

	f, err := c.RW.Create(p, mode)
	if err != nil {
		return branch.Attr{}, err
	}
	f.Close()

	if err := c.Whiteout.Unlink(p); err != nil {
		return branch.Attr{}, err
	}

	return c.RW.Lstat(p)
}

// Mkdir implements spec.md §4.9's mkdir(P, mode): creates the RW
// directory, and if a pre-existing RO directory at P would otherwise
// show through, suppresses it by whiting out every entry it lists.
func (c *Core) Mkdir(ctx context.Context, caller permission.Caller, p string, mode uint32) (branch.Attr, error) {
	if c.exists(p) {
		return branch.Attr{}, syscall.EEXIST
	}
	if err := c.checkCreate(caller, p); err != nil {
		return branch.Attr{}, err
	}

	pop := c.PushRoot(ctx)
	defer pop()

	if err := c.materializeParent(p); err != nil {
		return branch.Attr{}, err
	}

	if err := c.RW.Mkdir(p, mode); err != nil {
		return branch.Attr{}, err
	}

	if _, err := c.RO.Lstat(p); err == nil {
		if err := c.Whiteout.HideDirectoryContents(p); err != nil {
			return branch.Attr{}, err
		}
	} else if !os.IsNotExist(err) {
		return branch.Attr{}, err
	}

	if err := c.Whiteout.Unlink(p); err != nil {
		return branch.Attr{}, err
	}

	return c.RW.Lstat(p)
}

// Mknod implements spec.md §4.9's mknod/mkfifo: creates a device,
// socket, or FIFO node at P.
func (c *Core) Mknod(ctx context.Context, caller permission.Caller, p string, mode uint32, rdev uint64) (branch.Attr, error) {
	if c.exists(p) {
		return branch.Attr{}, syscall.EEXIST
	}
	if err := c.checkCreate(caller, p); err != nil {
		return branch.Attr{}, err
	}

	pop := c.PushRoot(ctx)
	defer pop()

	if err := c.materializeParent(p); err != nil {
		return branch.Attr{}, err
	}
	if err := c.RW.Mknod(p, mode, rdev); err != nil {
		return branch.Attr{}, err
	}
	if err := c.Whiteout.Unlink(p); err != nil {
		return branch.Attr{}, err
	}
	return c.RW.Lstat(p)
}

// Symlink implements spec.md §4.9's symlink(P, target).
func (c *Core) Symlink(ctx context.Context, caller permission.Caller, p, target string) (branch.Attr, error) {
	if c.exists(p) {
		return branch.Attr{}, syscall.EEXIST
	}
	if err := c.checkCreate(caller, p); err != nil {
		return branch.Attr{}, err
	}

	pop := c.PushRoot(ctx)
	defer pop()

	if err := c.materializeParent(p); err != nil {
		return branch.Attr{}, err
	}
	if err := c.RW.Symlink(target, p); err != nil {
		return branch.Attr{}, err
	}
	if err := c.Whiteout.Unlink(p); err != nil {
		return branch.Attr{}, err
	}
	return c.RW.Lstat(p)
}

// Link implements spec.md §4.9's link(src, dst): dst must be absent
// and src must resolve. A hard link is created when src lives in RW;
// when src only lives in RO, a cross-branch hard link is impossible
// (two different filesystems), so hepunion falls back to a symlink
// pointing at src's RO branch path, the same fallback the
// hanwen/go-fuse union example this is grounded on uses.
func (c *Core) Link(ctx context.Context, caller permission.Caller, src, dst string) (branch.Attr, error) {
	if c.exists(dst) {
		return branch.Attr{}, syscall.EEXIST
	}
	if err := c.checkCreate(caller, dst); err != nil {
		return branch.Attr{}, err
	}

	out, err := c.Resolver.Resolve(src, 0, caller, ancestorsOf(src))
	if err != nil {
		return branch.Attr{}, err
	}

	pop := c.PushRoot(ctx)
	defer pop()

	if err := c.materializeParent(dst); err != nil {
		return branch.Attr{}, err
	}

	switch out {
	case resolver.FoundInRW, resolver.CopiedUp:
		if err := c.RW.Link(src, dst); err != nil {
			return branch.Attr{}, err
		}
	case resolver.FoundInRO:
		target := c.RO.Root() + src
		if err := c.RW.Symlink(target, dst); err != nil {
			return branch.Attr{}, err
		}
	}

	if err := c.Whiteout.Unlink(dst); err != nil {
		return branch.Attr{}, err
	}
	return c.Resolver.StatEffective(dst)
}

// Unlink implements spec.md §4.9's unlink(P): removes the RW entry if
// there is one, and whites P out when RO also holds it, retiring any
// sidecar first and restoring it if whiteout creation then fails.
func (c *Core) Unlink(ctx context.Context, caller permission.Caller, p string) error {
	rwAttr, rwErr := c.RW.Lstat(p)
	rwExists := rwErr == nil
	if rwErr != nil && !os.IsNotExist(rwErr) {
		return rwErr
	}

	whited := c.Whiteout.Find(p)
	_, roErr := c.RO.Lstat(p)
	roExists := roErr == nil && !whited

	if !rwExists && !roExists {
		return syscall.ENOENT
	}
	if rwExists && rwAttr.Kind() == branch.KindDirectory {
		return syscall.EISDIR
	}

	parent, _ := pathutil.Parent(p)
	parentAttr, perr := c.Resolver.StatEffective(parent)
	if perr != nil {
		return perr
	}
	if !permission.CanRemove(caller, parentAttr) {
		return syscall.EACCES
	}

	pop := c.PushRoot(ctx)
	defer pop()

	var savedSidecar *branch.Attr
	if roExists {
		if sc, ok := c.Sidecar.Find(p); ok {
			savedSidecar = &sc
			if err := c.Sidecar.Retire(p); err != nil {
				return err
			}
		}
	}

	if rwExists {
		if err := c.RW.Unlink(p); err != nil {
			return err
		}
	}

	if roExists {
		if err := c.Whiteout.Create(p); err != nil {
			if savedSidecar != nil {
				_ = c.Sidecar.Create(p, *savedSidecar)
			}
			return err
		}
	}

	return nil
}

// Rmdir implements spec.md §4.9's rmdir(P): P must resolve to a
// directory that is empty across the whole union (spec.md §4.2); the
// RW directory is removed, then P is whited out when RO also held it
// (recreating the RW directory if that whiteout creation fails).
func (c *Core) Rmdir(ctx context.Context, caller permission.Caller, p string) error {
	_, rwErr := c.RW.Lstat(p)
	rwExists := rwErr == nil
	if rwErr != nil && !os.IsNotExist(rwErr) {
		return rwErr
	}

	whited := c.Whiteout.Find(p)
	_, roErr := c.RO.Lstat(p)
	roExists := roErr == nil && !whited

	if !rwExists && !roExists {
		return syscall.ENOENT
	}

	parent, _ := pathutil.Parent(p)
	parentAttr, perr := c.Resolver.StatEffective(parent)
	if perr != nil {
		return perr
	}
	if !permission.CanRemove(caller, parentAttr) {
		return syscall.EACCES
	}

	empty, err := c.Whiteout.IsEmptyDir(p, roExists, rwExists, false)
	if err != nil {
		return err
	}
	if !empty {
		return syscall.ENOTEMPTY
	}

	pop := c.PushRoot(ctx)
	defer pop()

	if rwExists {
		if _, err := c.Whiteout.IsEmptyDir(p, false, true, true); err != nil {
			return err
		}
		if err := c.RW.Rmdir(p); err != nil {
			return err
		}
	}

	if roExists {
		if err := c.Whiteout.Create(p); err != nil {
			if rwExists {
				_ = c.RW.Mkdir(p, 0755)
			}
			return err
		}
	}

	return nil
}

// Setattr implements spec.md §4.9's setattr(P, delta): applied
// directly to RW when P resolves there, routed through the sidecar
// subsystem when P resolves in RO.
func (c *Core) Setattr(ctx context.Context, caller permission.Caller, p string, delta branch.Delta) (branch.Attr, error) {
	if _, err := c.RW.Lstat(p); err == nil {
		pop := c.PushRoot(ctx)
		defer pop()
		if err := c.RW.Setattr(p, delta); err != nil {
			return branch.Attr{}, err
		}
		return c.RW.Lstat(p)
	} else if !os.IsNotExist(err) {
		return branch.Attr{}, err
	}

	if c.Whiteout.Find(p) {
		return branch.Attr{}, syscall.ENOENT
	}
	if _, err := c.RO.Lstat(p); err != nil {
		return branch.Attr{}, err
	}

	pop := c.PushRoot(ctx)
	defer pop()
	if err := c.Sidecar.Set(p, delta); err != nil {
		return branch.Attr{}, err
	}
	return c.Resolver.StatEffective(p)
}

// Getattr returns the effective attributes for p (spec.md §3). An RO
// entry hidden by a whiteout reports ENOENT.
func (c *Core) Getattr(p string) (branch.Attr, error) {
	if _, err := c.RW.Lstat(p); os.IsNotExist(err) && c.Whiteout.Find(p) {
		return branch.Attr{}, syscall.ENOENT
	}
	return c.Resolver.StatEffective(p)
}

// Permission implements getattr-time access control: can_access
// against p's effective attributes plus can_traverse along its
// ancestor chain.
func (c *Core) Permission(caller permission.Caller, p string, mask permission.Mask) error {
	attr, err := c.Resolver.StatEffective(p)
	if err != nil {
		return err
	}
	if !permission.CanTraverse(caller, ancestorsOf(p), c.Resolver.StatEffective) {
		return syscall.EACCES
	}
	if !permission.CanAccess(caller, attr, mask) {
		return syscall.EACCES
	}
	return nil
}

// OpenResult carries the branch-level handle and resolution metadata
// Open produces, for the VFS layer to wrap into a synthetic file
// handle.
type OpenResult struct {
	File    *os.File
	Outcome resolver.Outcome
}

// Open implements spec.md §4.9's open(P, flags): write flags force a
// copy-up via resolve's CreateCopyUp flag; the effective attributes
// are then permission-checked against the requested access mask.
func (c *Core) Open(ctx context.Context, caller permission.Caller, p string, flags int) (OpenResult, error) {
	wantsWrite := flags&(os.O_WRONLY|os.O_RDWR) != 0

	fl := resolver.Flags(0)
	if wantsWrite {
		fl = resolver.CreateCopyUp
		if err := c.canCreateAt(caller, p); err != nil {
			return OpenResult{}, err
		}
	}

	pop := c.PushRoot(ctx)
	out, err := c.Resolver.Resolve(p, fl, caller, ancestorsOf(p))
	pop()
	if err != nil {
		return OpenResult{}, err
	}

	attr, err := c.Resolver.StatEffective(p)
	if err != nil {
		return OpenResult{}, err
	}
	mask := permission.R
	if wantsWrite {
		mask = permission.W
	}
	if !permission.CanAccess(caller, attr, mask) {
		return OpenResult{}, syscall.EACCES
	}

	branchFS := c.RO
	if out != resolver.FoundInRO {
		branchFS = c.RW
	}

	f, err := branchFS.Open(p, flags)
	if err != nil {
		return OpenResult{}, err
	}

	return OpenResult{File: f, Outcome: out}, nil
}
