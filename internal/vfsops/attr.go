// Package vfsops binds internal/union's Core to go-fuse's fs.InodeEmbedder
// node model (spec.md §1's external interface: a mountable filesystem),
// the way _examples/greatliontech-ocifs/internal/unionfs binds its own
// union-of-layers model to the same library.
package vfsops

import (
	"context"
	"time"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/ino"
	"github.com/go-hepunion/hepunion/internal/permission"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// maskFromAccess converts a go-fuse access() mask (R_OK/W_OK/X_OK,
// numerically 4/2/1, identical to permission.Mask's own bit layout)
// into a permission.Mask.
func maskFromAccess(mask uint32) permission.Mask {
	return permission.Mask(mask & 0x7)
}

// fillAttr copies a branch.Attr's fields into a fuse.Attr, matching the
// teacher's headerToFileInfo helper in internal/unionfs/fs.go. Callers
// set out.Ino separately from the path-derived inode number.
func fillAttr(out *fuse.Attr, attr branch.Attr) {
	out.Size = uint64(attr.Size)
	out.Blocks = uint64(attr.Blocks)
	out.Nlink = uint32(attr.Nlink)
	out.Mode = attr.Mode
	out.Uid = attr.Uid
	out.Gid = attr.Gid
	out.Rdev = uint32(attr.Rdev)
	at, mt, ct := attr.Atime, attr.Mtime, attr.Ctime
	out.SetTimes(&at, &mt, &ct)
}

// stableAttr builds the fs.StableAttr a new inode is registered under:
// its kind (from the mode word) and the deterministic union-wide inode
// number (spec.md §4.8's murmur hash requirement).
func stableAttr(path string, attr branch.Attr) fs.StableAttr {
	return fs.StableAttr{
		Mode: attr.Mode & 0170000,
		Ino:  ino.Hash(path),
	}
}

// callerFrom recovers the requesting uid/gid from ctx, defaulting to an
// unprivileged nobody identity when go-fuse has no caller info attached
// (e.g. during internal synthetic calls), matching the defensive
// fallback the OptiFS/k3s go-fuse examples in the pack use around
// fuse.FromContext.
func callerFrom(ctx context.Context) permission.Caller {
	c, ok := fuse.FromContext(ctx)
	if !ok {
		return permission.Caller{Uid: 65534, Gid: 65534}
	}
	return permission.Caller{Uid: c.Uid, Gid: c.Gid}
}

func timesFromSetAttrIn(in *fuse.SetAttrIn) (atime, mtime *time.Time) {
	if in.Valid&fuse.FATTR_ATIME != 0 {
		t := time.Unix(int64(in.Atime), int64(in.Atimensec))
		atime = &t
	}
	if in.Valid&fuse.FATTR_MTIME != 0 {
		t := time.Unix(int64(in.Mtime), int64(in.Mtimensec))
		mtime = &t
	}
	return
}

func deltaFromSetAttrIn(in *fuse.SetAttrIn) branch.Delta {
	var d branch.Delta
	if in.Valid&fuse.FATTR_MODE != 0 {
		m := in.Mode
		d.Mode = &m
	}
	if in.Valid&fuse.FATTR_UID != 0 {
		u := in.Uid
		d.Uid = &u
	}
	if in.Valid&fuse.FATTR_GID != 0 {
		g := in.Gid
		d.Gid = &g
	}
	if in.Valid&fuse.FATTR_SIZE != 0 {
		s := int64(in.Size)
		d.Size = &s
	}
	d.Atime, d.Mtime = timesFromSetAttrIn(in)
	return d
}
