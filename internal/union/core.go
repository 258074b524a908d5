// Package union composes the resolver, whiteout, sidecar, and
// copy-up subsystems into the single object the VFS surface drives:
// the per-mount state (spec.md §3's "Mount state (S)"), the directory
// iteration union (spec.md §4.7), and the mutation operations
// (spec.md §4.9).
package union

import (
	"sync"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/copyup"
	"github.com/go-hepunion/hepunion/internal/permission"
	"github.com/go-hepunion/hepunion/internal/resolver"
	"github.com/go-hepunion/hepunion/internal/sidecar"
	"github.com/go-hepunion/hepunion/internal/whiteout"
)

// Core is the mount-scoped state a hepunion mount revolves around:
// the two branches, the resolver/whiteout/sidecar/copy-up subsystems
// built from them, the reentrant privilege-escalation primitive, the
// scratch-buffer pool, and the in-flight lookup-context list (spec.md
// §3's Mount state (S) and §4.8's Lookup context (C)).
type Core struct {
	RW, RO   branch.FS
	Resolver *resolver.Resolver
	Whiteout *whiteout.Subsystem
	Sidecar  *sidecar.Subsystem
	CopyUp   *copyup.Engine

	esc     escalation
	scratch sync.Pool

	lookupMu  sync.Mutex
	lookups   []lookupCtx
}

// New builds a Core over an already-opened RW/RO branch pair.
func New(rw, ro branch.FS) *Core {
	wh := whiteout.New(rw, ro)
	sc := sidecar.New(rw, ro)
	cu := copyup.New(rw, ro, sc)
	res := resolver.New(rw, ro, wh, sc, cu)

	c := &Core{
		RW:       rw,
		RO:       ro,
		Resolver: res,
		Whiteout: wh,
		Sidecar:  sc,
		CopyUp:   cu,
	}
	c.scratch.New = func() any { return make([]byte, 0, 4096) }
	return c
}

// scratchBuffer acquires a scratch buffer for the duration of a single
// top-level operation (spec.md §5's scratch-buffer discipline,
// rewritten per spec.md §9's recommendation to back it with a pool
// rather than two fixed per-mount buffers). Callers must call the
// returned release func at every exit path.
func (c *Core) scratchBuffer() (buf []byte, release func()) {
	v := c.scratch.Get().([]byte)
	return v[:0], func() { c.scratch.Put(v) } //nolint:staticcheck // pool reuse, not an escape
}

// lookupCtx is spec.md §4.8's Lookup context (C): a transient
// (inode_number, P) pair recorded while a synthetic inode is under
// construction, so the inode-cache populate callback can recover P
// from the inode number it is asked to populate.
type lookupCtx struct {
	ino  uint64
	path string
}

// BeginLookup records a lookup context for ino/path and returns a func
// to remove it once the cache returns, per spec.md §4.8.
func (c *Core) BeginLookup(ino uint64, path string) (end func()) {
	c.lookupMu.Lock()
	c.lookups = append(c.lookups, lookupCtx{ino: ino, path: path})
	c.lookupMu.Unlock()

	return func() {
		c.lookupMu.Lock()
		defer c.lookupMu.Unlock()
		for i, l := range c.lookups {
			if l.ino == ino && l.path == path {
				c.lookups = append(c.lookups[:i], c.lookups[i+1:]...)
				return
			}
		}
	}
}

// LookupPath recovers the path recorded for ino by BeginLookup, for
// use by an inode-cache populate callback that is only handed the
// inode number.
func (c *Core) LookupPath(ino uint64) (string, bool) {
	c.lookupMu.Lock()
	defer c.lookupMu.Unlock()
	for _, l := range c.lookups {
		if l.ino == ino {
			return l.path, true
		}
	}
	return "", false
}

// Caller is re-exported so callers of union don't need to import
// internal/permission directly for the common case.
type Caller = permission.Caller
