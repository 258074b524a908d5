package vfsops

import (
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/ino"
	"github.com/go-hepunion/hepunion/internal/union"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Ensure unionFile implements all necessary interfaces, matching the
// teacher's internal/unionfs/file.go declaration style.
var (
	_ = (fs.NodeGetattrer)((*unionFile)(nil))
	_ = (fs.NodeSetattrer)((*unionFile)(nil))
	_ = (fs.NodeOpener)((*unionFile)(nil))
	_ = (fs.NodeReader)((*unionFile)(nil))
	_ = (fs.NodeWriter)((*unionFile)(nil))
	_ = (fs.NodeFlusher)((*unionFile)(nil))
	_ = (fs.NodeFsyncer)((*unionFile)(nil))
	_ = (fs.NodeReleaser)((*unionFile)(nil))
	_ = (fs.NodeReadlinker)((*unionFile)(nil))
	_ = (fs.NodeAccesser)((*unionFile)(nil))
)

// unionFile is the go-fuse node for every non-directory union entry:
// regular files, symlinks, FIFOs, device nodes, and sockets.
type unionFile struct {
	fs.Inode
	core *union.Core
	path string
}

// fileHandle wraps the *os.File a branch open returns, the same
// thin-wrapper shape as the teacher's ociFileHandle/unionFileHandle.
type fileHandle struct {
	f *os.File
}

func (f *unionFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := f.core.Getattr(f.path)
	if err != nil {
		return branch.ToErrno(err)
	}
	fillAttr(&out.Attr, attr)
	out.Attr.Ino = ino.Hash(f.path)
	return fs.OK
}

func (f *unionFile) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	ctx = union.WithOperation(ctx)
	attr, err := f.core.Setattr(ctx, callerFrom(ctx), f.path, deltaFromSetAttrIn(in))
	if err != nil {
		return branch.ToErrno(err)
	}
	fillAttr(&out.Attr, attr)
	out.Attr.Ino = ino.Hash(f.path)
	return fs.OK
}

func (f *unionFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	ctx = union.WithOperation(ctx)
	res, err := f.core.Open(ctx, callerFrom(ctx), f.path, int(flags))
	if err != nil {
		return nil, 0, branch.ToErrno(err)
	}
	return &fileHandle{f: res.File}, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *unionFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h, ok := fh.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	n, err := h.f.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		slog.Error("read failed", "path", f.path, "error", err)
		return nil, branch.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

func (f *unionFile) Write(ctx context.Context, fh fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	h, ok := fh.(*fileHandle)
	if !ok {
		return 0, syscall.EBADF
	}
	n, err := h.f.WriteAt(data, off)
	if err != nil {
		slog.Error("write failed", "path", f.path, "error", err)
		return 0, branch.ToErrno(err)
	}
	return uint32(n), fs.OK
}

func (f *unionFile) Flush(ctx context.Context, fh fs.FileHandle) syscall.Errno {
	h, ok := fh.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	dup, err := syscall.Dup(int(h.f.Fd()))
	if err != nil {
		return branch.ToErrno(err)
	}
	return branch.ToErrno(syscall.Close(dup))
}

func (f *unionFile) Fsync(ctx context.Context, fh fs.FileHandle, flags uint32) syscall.Errno {
	h, ok := fh.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	return branch.ToErrno(h.f.Sync())
}

func (f *unionFile) Release(ctx context.Context, fh fs.FileHandle) syscall.Errno {
	h, ok := fh.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	return branch.ToErrno(h.f.Close())
}

func (f *unionFile) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	if target, err := f.core.RW.Readlink(f.path); err == nil {
		return []byte(target), fs.OK
	}
	target, err := f.core.RO.Readlink(f.path)
	if err != nil {
		return nil, branch.ToErrno(err)
	}
	return []byte(target), fs.OK
}

func (f *unionFile) Access(ctx context.Context, mask uint32) syscall.Errno {
	if err := f.core.Permission(callerFrom(ctx), f.path, maskFromAccess(mask)); err != nil {
		return branch.ToErrno(err)
	}
	return fs.OK
}
