package union

import (
	"os"
	"sort"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/ino"
	"github.com/go-hepunion/hepunion/internal/pathutil"
)

// DirEntry is one entry of a union readdir listing, with its inode
// number already assigned per spec.md §4.7 step 4.
type DirEntry struct {
	Name string
	Ino  uint64
	Mode uint32
}

// Readdir implements spec.md §4.7's directory iteration union: merge
// RW and RO entries, apply whiteouts, filter sidecars, and assign an
// inode number to each visible entry. The result is sorted by name for
// a stable, reproducible listing order (not required by the source
// design, but harmless and makes golden-output tests possible).
func (c *Core) Readdir(p string) ([]DirEntry, error) {
	regular := make(map[string]branch.Dirent)
	whiteouts := make(map[string]bool)

	rwEntries, err := c.RW.ReadDir(p)
	switch {
	case err == nil:
		for _, e := range rwEntries {
			if _, ok := pathutil.IsSidecarName(e.Name); ok {
				continue
			}
			if orig, ok := pathutil.IsWhiteoutName(e.Name); ok {
				whiteouts[orig] = true
				continue
			}
			regular[e.Name] = e
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	roEntries, err := c.RO.ReadDir(p)
	switch {
	case err == nil:
		for _, e := range roEntries {
			if whiteouts[e.Name] {
				continue
			}
			if _, ok := regular[e.Name]; ok {
				continue
			}
			regular[e.Name] = e
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	out := make([]DirEntry, 0, len(regular))
	for name, e := range regular {
		out = append(out, DirEntry{
			Name: name,
			Ino:  ino.Hash(pathutil.Join(p, name)),
			Mode: e.Mode,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
