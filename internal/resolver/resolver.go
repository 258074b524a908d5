// Package resolver implements the union's central find operation
// (spec.md §4.1): given a relative path and a flag set, locate the
// effective branch for that path, optionally triggering a copy-up.
package resolver

import (
	"os"
	"syscall"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/copyup"
	"github.com/go-hepunion/hepunion/internal/permission"
	"github.com/go-hepunion/hepunion/internal/sidecar"
	"github.com/go-hepunion/hepunion/internal/whiteout"
)

// Flags controls resolve's behaviour, per spec.md §4.1.
type Flags uint8

const (
	// MustRW fails ENOENT unless the path resolves in RW.
	MustRW Flags = 1 << iota
	// MustRO skips the RW probe entirely.
	MustRO
	// CreateCopyUp triggers a copy-up when the path only resolves in RO.
	CreateCopyUp
	// IgnoreWhiteout skips the whiteout check.
	IgnoreWhiteout
)

// Outcome is the resolver's success result, per spec.md §3.
type Outcome int

const (
	FoundInRW Outcome = iota
	FoundInRO
	CopiedUp
)

func (o Outcome) String() string {
	switch o {
	case FoundInRW:
		return "FOUND_IN_RW"
	case FoundInRO:
		return "FOUND_IN_RO"
	case CopiedUp:
		return "COPIED_UP"
	default:
		return "UNKNOWN"
	}
}

// Resolver implements resolve(P, flags) against a branch pair, a
// whiteout subsystem, a sidecar subsystem (for effective-attribute
// overlay during traversal checks), and a copy-up engine.
type Resolver struct {
	rw, ro branch.FS
	wh     *whiteout.Subsystem
	sc     *sidecar.Subsystem
	cu     *copyup.Engine
}

// New returns a Resolver composed from the given branches and
// subsystems.
func New(rw, ro branch.FS, wh *whiteout.Subsystem, sc *sidecar.Subsystem, cu *copyup.Engine) *Resolver {
	return &Resolver{rw: rw, ro: ro, wh: wh, sc: sc, cu: cu}
}

// StatEffective resolves p against whichever branch currently holds
// it and returns its effective attributes (spec.md §3's "effective
// attributes"), without performing any traversal or whiteout check.
// It is used both by callers that need getattr-style information and
// by the traversal-permission check below, which must not recurse
// into Resolve.
func (r *Resolver) StatEffective(p string) (branch.Attr, error) {
	if attr, err := r.rw.Lstat(p); err == nil {
		return attr, nil
	} else if !os.IsNotExist(err) {
		return branch.Attr{}, err
	}
	roAttr, err := r.ro.Lstat(p)
	if err != nil {
		return branch.Attr{}, err
	}
	return r.sc.GetEffectiveAttrs(p, roAttr), nil
}

// Resolve implements spec.md §4.1's algorithm exactly.
func (r *Resolver) Resolve(p string, fl Flags, caller permission.Caller, ancestors []string) (Outcome, error) {
	if fl&MustRO == 0 {
		if _, err := r.rw.Lstat(p); err == nil {
			if !permission.CanTraverse(caller, ancestors, r.StatEffective) {
				return 0, syscall.EACCES
			}
			return FoundInRW, nil
		} else if !os.IsNotExist(err) {
			return 0, err
		}
		if fl&MustRW != 0 {
			return 0, syscall.ENOENT
		}
	}

	if fl&CreateCopyUp != 0 {
		if _, err := r.ro.Lstat(p); err != nil {
			return 0, err
		}
		if fl&IgnoreWhiteout == 0 && r.wh.Find(p) {
			return 0, syscall.ENOENT
		}
		if !permission.CanTraverse(caller, ancestors, r.StatEffective) {
			return 0, syscall.EACCES
		}
		if err := r.cu.CopyUp(p); err != nil {
			return 0, err
		}
		return CopiedUp, nil
	}

	if _, err := r.ro.Lstat(p); err != nil {
		return 0, err
	}
	if fl&IgnoreWhiteout == 0 && r.wh.Find(p) {
		return 0, syscall.ENOENT
	}
	if !permission.CanTraverse(caller, ancestors, r.StatEffective) {
		return 0, syscall.EACCES
	}
	return FoundInRO, nil
}
