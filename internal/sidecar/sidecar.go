// Package sidecar implements the metadata sidecar subsystem (spec.md
// §4.4): zero-length ".me."-prefixed RW files whose own filesystem
// attributes (mode, uid, gid, atime, mtime) override an RO entry's
// effective attributes, so a chmod/chown/utime on an RO-resident path
// does not force a full content copy-up.
package sidecar

import (
	"os"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/materialize"
	"github.com/go-hepunion/hepunion/internal/pathutil"
)

// Subsystem owns the two branches a sidecar operation needs.
type Subsystem struct {
	rw, ro branch.FS
}

// New returns a sidecar Subsystem over the given branches.
func New(rw, ro branch.FS) *Subsystem {
	return &Subsystem{rw: rw, ro: ro}
}

// Find returns the sidecar's own attributes for p, or (zero, false) if
// none exists. The returned attributes' permission bits, uid, gid,
// atime, mtime, ctime are exactly the override values spec.md §4.4
// says a sidecar carries.
func (s *Subsystem) Find(p string) (branch.Attr, bool) {
	attr, err := s.rw.Lstat(pathutil.SidecarPath(p))
	if err != nil {
		return branch.Attr{}, false
	}
	return attr, true
}

// GetEffectiveAttrs implements get_effective_attrs (spec.md §4.4):
// resolved is the branch-level stat of p (size/blocks/type/nlink
// authoritative); if a sidecar exists its permission bits, uid, gid,
// atime, mtime, ctime are overlaid on top.
func (s *Subsystem) GetEffectiveAttrs(p string, resolved branch.Attr) branch.Attr {
	sc, ok := s.Find(p)
	if !ok {
		return resolved
	}
	eff := resolved
	eff.Mode = (resolved.Mode &^ 07777) | sc.PermBits()
	eff.Uid = sc.Uid
	eff.Gid = sc.Gid
	eff.Atime = sc.Atime
	eff.Mtime = sc.Mtime
	eff.Ctime = sc.Ctime
	return eff
}

// Set implements set_metadata's RO-resolution branch (spec.md §4.4):
// materialises p's RW parent directory, then creates a new sidecar
// seeded from the RO file's attributes with delta applied, or updates
// an existing sidecar with only the fields delta sets. delta's
// recognised fields are mode, uid, gid, atime, mtime, per spec.md.
func (s *Subsystem) Set(p string, delta branch.Delta) error {
	if err := materialize.FindPath(s.rw, s.ro, p); err != nil {
		return err
	}

	scPath := pathutil.SidecarPath(p)

	if _, ok := s.Find(p); !ok {
		roAttr, err := s.ro.Lstat(p)
		if err != nil {
			return err
		}
		merged := applyDelta(roAttr, delta)
		return s.create(scPath, merged)
	}

	return s.rw.Setattr(scPath, delta)
}

// Create is the bare sidecar construction primitive (spec.md §4.4's
// create_sidecar), used by union.Core.Unlink to put back a sidecar it
// retired when the whiteout for the RO original cannot be created.
func (s *Subsystem) Create(p string, attrs branch.Attr) error {
	if err := materialize.FindPath(s.rw, s.ro, p); err != nil {
		return err
	}
	return s.create(pathutil.SidecarPath(p), attrs)
}

func (s *Subsystem) create(scPath string, attrs branch.Attr) error {
	f, err := s.rw.Create(scPath, attrs.PermBits())
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	f.Close()

	mode := attrs.PermBits()
	uid, gid := attrs.Uid, attrs.Gid
	atime, mtime := attrs.Atime, attrs.Mtime
	return s.rw.Setattr(scPath, branch.Delta{
		Mode:  &mode,
		Uid:   &uid,
		Gid:   &gid,
		Atime: &atime,
		Mtime: &mtime,
	})
}

// Retire removes the sidecar for p if present, silently succeeding
// when absent. Called once a copy-up exists (spec.md §4.3 step 5) or
// when the RO original is deleted via whiteout.
func (s *Subsystem) Retire(p string) error {
	err := s.rw.Unlink(pathutil.SidecarPath(p))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func applyDelta(base branch.Attr, delta branch.Delta) branch.Attr {
	out := base
	if delta.Mode != nil {
		out.Mode = (out.Mode &^ 07777) | (*delta.Mode & 07777)
	}
	if delta.Uid != nil {
		out.Uid = *delta.Uid
	}
	if delta.Gid != nil {
		out.Gid = *delta.Gid
	}
	if delta.Atime != nil {
		out.Atime = *delta.Atime
	}
	if delta.Mtime != nil {
		out.Mtime = *delta.Mtime
	}
	return out
}
