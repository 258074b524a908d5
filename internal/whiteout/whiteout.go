// Package whiteout implements the whiteout subsystem (spec.md §4.2):
// creation, discovery, and removal of the zero-length ".wh."-prefixed
// markers that hide an RO entry from the union, and the union
// emptiness test a whiteout-aware rmdir needs.
package whiteout

import (
	"os"
	"syscall"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/materialize"
	"github.com/go-hepunion/hepunion/internal/pathutil"
)

// Subsystem owns the two branches a whiteout operation needs: rw to
// create/find/remove markers in, ro to read directory contents from
// when hiding an entire pre-existing directory.
type Subsystem struct {
	rw, ro branch.FS
}

// New returns a whiteout Subsystem over the given branches.
func New(rw, ro branch.FS) *Subsystem {
	return &Subsystem{rw: rw, ro: ro}
}

// Create ensures the parent of p is materialised in RW, then creates
// the ".wh." marker with root ownership and mode 0400, per spec.md
// §4.2 and the on-disk contract in spec.md §6.
func (s *Subsystem) Create(p string) error {
	if _, ok := pathutil.Parent(p); !ok {
		return syscall.EINVAL
	}
	if pathutil.TooLong(s.rw.Root(), p) {
		return syscall.ENAMETOOLONG
	}

	if err := materialize.FindPath(s.rw, s.ro, p); err != nil {
		return err
	}

	wp := pathutil.WhiteoutPath(p)
	f, err := s.rw.Create(wp, 0400)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	f.Close()

	zero := uint32(0)
	return s.rw.Setattr(wp, branch.Delta{Uid: &zero, Gid: &zero})
}

// Find reports whether a whiteout marker exists for p.
func (s *Subsystem) Find(p string) bool {
	_, err := s.rw.Lstat(pathutil.WhiteoutPath(p))
	return err == nil
}

// Unlink removes the whiteout marker for p if present, silently
// succeeding when absent.
func (s *Subsystem) Unlink(p string) error {
	err := s.rw.Unlink(pathutil.WhiteoutPath(p))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// HideDirectoryContents creates a whiteout for every entry the RO
// directory at p lists, used when a newly created RW directory masks
// a pre-existing RO directory (spec.md §4.9's mkdir contract).
func (s *Subsystem) HideDirectoryContents(p string) error {
	entries, err := s.ro.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := s.Create(pathutil.Join(p, e.Name)); err != nil {
			return err
		}
	}
	return nil
}

// IsEmptyDir implements spec.md §4.2's union emptiness test: every RO
// entry must be whited-out in RW, and RW must contain only whiteouts
// and sidecars (no other entries). When cleanup is true (rmdir's use case), the
// matching whiteouts are deleted once both halves pass the check.
func (s *Subsystem) IsEmptyDir(p string, roExists, rwExists bool, cleanup bool) (bool, error) {
	var roNames []string
	if roExists {
		entries, err := s.ro.ReadDir(p)
		if err != nil && !os.IsNotExist(err) {
			return false, err
		}
		for _, e := range entries {
			roNames = append(roNames, e.Name)
		}
	}

	var rwEntries []branch.Dirent
	if rwExists {
		entries, err := s.rw.ReadDir(p)
		if err != nil && !os.IsNotExist(err) {
			return false, err
		}
		rwEntries = entries
	}

	rwWhiteouts := make(map[string]bool)
	for _, e := range rwEntries {
		orig, ok := pathutil.IsWhiteoutName(e.Name)
		if ok {
			rwWhiteouts[orig] = true
			continue
		}
		if _, ok := pathutil.IsSidecarName(e.Name); ok {
			continue
		}
		// a real (non-whiteout, non-sidecar) RW entry: not empty.
		return false, nil
	}

	for _, name := range roNames {
		if !rwWhiteouts[name] {
			return false, nil
		}
	}

	if cleanup {
		for name := range rwWhiteouts {
			if err := s.Unlink(pathutil.Join(p, name)); err != nil {
				return false, err
			}
		}
	}

	return true, nil
}
