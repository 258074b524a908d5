// Package permission implements the union's permission model
// (spec.md §4.6): POSIX-style access checks evaluated against
// effective attributes and the caller's identity, independent of any
// particular transport so it can be unit tested without a FUSE
// mount.
package permission

import "github.com/go-hepunion/hepunion/internal/branch"

// Mask bits, matching the R_OK/W_OK/X_OK convention access(2) uses.
type Mask uint8

const (
	R Mask = 1 << 2
	W Mask = 1 << 1
	X Mask = 1 << 0
)

// Caller is the effective identity permission checks are evaluated
// against.
type Caller struct {
	Uid uint32
	Gid uint32
}

// IsRoot reports whether c is the root identity.
func (c Caller) IsRoot() bool { return c.Uid == 0 }

// CanAccess implements spec.md §4.6's can_access: root is granted
// everything except X when no execute bit is set anywhere on the
// file (matching classical POSIX root semantics); any other caller is
// checked against the owner/group/other triad selected by whether
// their uid/gid matches the file's.
func CanAccess(caller Caller, attr branch.Attr, mask Mask) bool {
	if caller.IsRoot() {
		if mask&X != 0 {
			return attr.Mode&0111 != 0
		}
		return true
	}

	var bits uint32
	switch {
	case caller.Uid == attr.Uid:
		bits = (attr.Mode >> 6) & 07
	case caller.Gid == attr.Gid:
		bits = (attr.Mode >> 3) & 07
	default:
		bits = attr.Mode & 07
	}

	return uint32(mask)&bits == uint32(mask)
}

// CanRemove implements can_remove(P) ≡ can_access(parent(P), W).
func CanRemove(caller Caller, parentAttr branch.Attr) bool {
	return CanAccess(caller, parentAttr, W)
}

// CanCreate implements can_create(P) ≡ can_remove(P).
func CanCreate(caller Caller, parentAttr branch.Attr) bool {
	return CanAccess(caller, parentAttr, W)
}

// StatFunc resolves the effective attributes of a union-relative path,
// the way CanTraverse needs to probe each ancestor directory without
// depending on the resolver package directly (avoiding an import
// cycle: resolver depends on permission, not the reverse).
type StatFunc func(p string) (branch.Attr, error)

// CanTraverse implements can_traverse(P): requires X on every
// directory along the prefix chain from root to P, exclusive of P
// itself.
func CanTraverse(caller Caller, ancestors []string, stat StatFunc) bool {
	for _, dir := range ancestors {
		attr, err := stat(dir)
		if err != nil {
			return false
		}
		if !CanAccess(caller, attr, X) {
			return false
		}
	}
	return true
}
