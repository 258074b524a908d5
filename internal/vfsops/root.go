package vfsops

import (
	"github.com/go-hepunion/hepunion/internal/union"
	"github.com/hanwen/go-fuse/v2/fs"
)

// Root builds the go-fuse root node for a hepunion mount over core.
func Root(core *union.Core) fs.InodeEmbedder {
	return &unionDir{core: core, path: "/"}
}
