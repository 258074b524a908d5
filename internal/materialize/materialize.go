// Package materialize implements find_path (spec.md §4.5): ensuring
// every directory component of a union-relative path exists in the RW
// branch, copying up missing directories shallowly (their own
// attributes only, not their contents) from the RO branch.
package materialize

import (
	"os"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/pathutil"
)

// FindPath walks the prefixes of p from root to (but excluding) p
// itself, increasing in length. For each prefix not yet present in
// rw but present in ro, it creates the RW replica with the RO
// directory's mode and then applies the RO directory's atime, mtime,
// uid, gid. Prefixes already present in rw are left untouched.
func FindPath(rw, ro branch.FS, p string) error {
	for _, dir := range pathutil.Ancestors(p) {
		if _, err := rw.Lstat(dir); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return err
		}

		roAttr, err := ro.Lstat(dir)
		if err != nil {
			return err
		}

		if err := rw.Mkdir(dir, roAttr.PermBits()); err != nil && !os.IsExist(err) {
			return err
		}

		atime, mtime := roAttr.Atime, roAttr.Mtime
		uid, gid := roAttr.Uid, roAttr.Gid
		if err := rw.Setattr(dir, branch.Delta{
			Uid:   &uid,
			Gid:   &gid,
			Atime: &atime,
			Mtime: &mtime,
		}); err != nil {
			return err
		}
	}
	return nil
}
