package vfsops

import (
	"context"
	"syscall"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/ino"
	"github.com/go-hepunion/hepunion/internal/pathutil"
	"github.com/go-hepunion/hepunion/internal/union"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Ensure unionDir implements all necessary interfaces, matching the
// teacher's internal/unionfs/dir.go declaration style.
var (
	_ = (fs.NodeLookuper)((*unionDir)(nil))
	_ = (fs.NodeReaddirer)((*unionDir)(nil))
	_ = (fs.NodeMkdirer)((*unionDir)(nil))
	_ = (fs.NodeMknoder)((*unionDir)(nil))
	_ = (fs.NodeCreater)((*unionDir)(nil))
	_ = (fs.NodeUnlinker)((*unionDir)(nil))
	_ = (fs.NodeRmdirer)((*unionDir)(nil))
	_ = (fs.NodeSymlinker)((*unionDir)(nil))
	_ = (fs.NodeLinker)((*unionDir)(nil))
	_ = (fs.NodeGetattrer)((*unionDir)(nil))
	_ = (fs.NodeSetattrer)((*unionDir)(nil))
	_ = (fs.NodeAccesser)((*unionDir)(nil))
	_ = (fs.NodeStatfser)((*unionDir)(nil))
)

// unionDir is the go-fuse node for a union directory (spec.md §4.7's
// directory iteration union and §4.9's create-shaped operations).
type unionDir struct {
	fs.Inode
	core *union.Core
	path string // union-relative path P, always "/"-rooted
}

func newChildPath(dirPath, name string) string {
	return pathutil.Join(dirPath, name)
}

// newInode builds the correct node type for attr's kind and registers
// it as a persistent child inode, the way the teacher's
// newInodeFromFile/newDirInode pair does.
func (d *unionDir) newInode(ctx context.Context, childPath string, attr branch.Attr) *fs.Inode {
	st := stableAttr(childPath, attr)
	if attr.Kind() == branch.KindDirectory {
		return d.NewPersistentInode(ctx, &unionDir{core: d.core, path: childPath}, st)
	}
	return d.NewPersistentInode(ctx, &unionFile{core: d.core, path: childPath}, st)
}

func entryOutFrom(out *fuse.EntryOut, childPath string, attr branch.Attr) {
	fillAttr(&out.Attr, attr)
	out.Attr.Ino = ino.Hash(childPath)
	out.NodeId = out.Attr.Ino
}

func (d *unionDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := newChildPath(d.path, name)

	end := d.core.BeginLookup(ino.Hash(childPath), childPath)
	defer end()

	attr, err := d.core.Getattr(childPath)
	if err != nil {
		return nil, branch.ToErrno(err)
	}

	entryOutFrom(out, childPath, attr)
	return d.newInode(ctx, childPath, attr), fs.OK
}

func (d *unionDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := d.core.Readdir(d.path)
	if err != nil {
		return nil, branch.ToErrno(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: e.Mode, Ino: e.Ino})
	}
	return fs.NewListDirStream(out), fs.OK
}

func (d *unionDir) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := newChildPath(d.path, name)
	ctx = union.WithOperation(ctx)

	attr, err := d.core.Mkdir(ctx, callerFrom(ctx), childPath, mode)
	if err != nil {
		return nil, branch.ToErrno(err)
	}
	entryOutFrom(out, childPath, attr)
	return d.newInode(ctx, childPath, attr), fs.OK
}

func (d *unionDir) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := newChildPath(d.path, name)
	ctx = union.WithOperation(ctx)

	attr, err := d.core.Mknod(ctx, callerFrom(ctx), childPath, mode, uint64(rdev))
	if err != nil {
		return nil, branch.ToErrno(err)
	}
	entryOutFrom(out, childPath, attr)
	return d.newInode(ctx, childPath, attr), fs.OK
}

func (d *unionDir) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := newChildPath(d.path, name)
	ctx = union.WithOperation(ctx)
	caller := callerFrom(ctx)

	attr, err := d.core.Create(ctx, caller, childPath, mode)
	if err != nil {
		return nil, nil, 0, branch.ToErrno(err)
	}

	res, err := d.core.Open(ctx, caller, childPath, int(flags))
	if err != nil {
		return nil, nil, 0, branch.ToErrno(err)
	}

	entryOutFrom(out, childPath, attr)
	node := d.newInode(ctx, childPath, attr)
	return node, &fileHandle{f: res.File}, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (d *unionDir) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := newChildPath(d.path, name)
	ctx = union.WithOperation(ctx)

	attr, err := d.core.Symlink(ctx, callerFrom(ctx), childPath, target)
	if err != nil {
		return nil, branch.ToErrno(err)
	}
	entryOutFrom(out, childPath, attr)
	return d.newInode(ctx, childPath, attr), fs.OK
}

func (d *unionDir) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var srcPath string
	switch t := target.(type) {
	case *unionFile:
		srcPath = t.path
	case *unionDir:
		srcPath = t.path
	default:
		return nil, syscall.EXDEV
	}

	dstPath := newChildPath(d.path, name)
	ctx = union.WithOperation(ctx)

	attr, err := d.core.Link(ctx, callerFrom(ctx), srcPath, dstPath)
	if err != nil {
		return nil, branch.ToErrno(err)
	}
	entryOutFrom(out, dstPath, attr)
	return d.newInode(ctx, dstPath, attr), fs.OK
}

func (d *unionDir) Unlink(ctx context.Context, name string) syscall.Errno {
	childPath := newChildPath(d.path, name)
	ctx = union.WithOperation(ctx)

	if err := d.core.Unlink(ctx, callerFrom(ctx), childPath); err != nil {
		return branch.ToErrno(err)
	}
	return fs.OK
}

func (d *unionDir) Rmdir(ctx context.Context, name string) syscall.Errno {
	childPath := newChildPath(d.path, name)
	ctx = union.WithOperation(ctx)

	if err := d.core.Rmdir(ctx, callerFrom(ctx), childPath); err != nil {
		return branch.ToErrno(err)
	}
	return fs.OK
}

func (d *unionDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := d.core.Getattr(d.path)
	if err != nil {
		return branch.ToErrno(err)
	}
	fillAttr(&out.Attr, attr)
	out.Attr.Ino = ino.Hash(d.path)
	return fs.OK
}

func (d *unionDir) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	ctx = union.WithOperation(ctx)
	attr, err := d.core.Setattr(ctx, callerFrom(ctx), d.path, deltaFromSetAttrIn(in))
	if err != nil {
		return branch.ToErrno(err)
	}
	fillAttr(&out.Attr, attr)
	out.Attr.Ino = ino.Hash(d.path)
	return fs.OK
}

func (d *unionDir) Access(ctx context.Context, mask uint32) syscall.Errno {
	if err := d.core.Permission(callerFrom(ctx), d.path, maskFromAccess(mask)); err != nil {
		return branch.ToErrno(err)
	}
	return fs.OK
}

// Statfs forwards the RO branch's filesystem statistics (spec.md §6),
// since the RO branch is the larger of the two trees a mount spans.
func (d *unionDir) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st, err := d.core.RO.Statfs()
	if err != nil {
		return branch.ToErrno(err)
	}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = st.Bsize
	out.NameLen = st.NameLen
	return fs.OK
}
