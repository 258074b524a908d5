// Package hepunion is the public entry point: a functional-options
// constructor and a mount handle, mirroring the shape
// _examples/greatliontech-ocifs/ocifs.go uses for its own OCIFS/
// ImageMount pair.
package hepunion

import (
	"fmt"
	"path/filepath"

	"github.com/go-hepunion/hepunion/internal/branch"
	"github.com/go-hepunion/hepunion/internal/union"
	"github.com/go-hepunion/hepunion/internal/vfsops"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Option configures a HepUnion instance at construction time.
type Option func(*HepUnion)

// WithFUSEName overrides the filesystem name reported to the kernel
// (visible in /proc/mounts), "hepunion" by default.
var WithFUSEName = func(name string) Option {
	return func(h *HepUnion) {
		h.fuseName = name
	}
}

// HepUnion holds the handful of mount-independent defaults a process
// may want to override once, analogous to ocifs.go's OCIFS struct.
type HepUnion struct {
	fuseName string
}

// New constructs a HepUnion with defaults applied, then opts.
func New(opts ...Option) (*HepUnion, error) {
	h := &HepUnion{
		fuseName: "hepunion",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// MountOption configures a single Mount call.
type MountOption func(*mountConfig)

type mountConfig struct {
	roPath     string
	rwPath     string
	branchA    string // spec.md §6 branch_spec form; resolved against branchB in Mount
	branchB    string
	mountPoint string
	allowOther bool
	debug      bool
	id         string
}

// MountWithROPath sets the read-only branch's directory.
var MountWithROPath = func(path string) MountOption {
	return func(c *mountConfig) { c.roPath = path }
}

// MountWithRWPath sets the read-write branch's directory.
var MountWithRWPath = func(path string) MountOption {
	return func(c *mountConfig) { c.rwPath = path }
}

// MountWithBranches sets both branch directories from a pair of
// spec.md §6 branch_spec strings ("path", "path:ro", or "path:rw"),
// the generic tagged-pair form accepted alongside MountWithROPath/
// MountWithRWPath. Takes precedence over any MountWithROPath/
// MountWithRWPath in opts, whatever their order.
var MountWithBranches = func(a, b string) MountOption {
	return func(c *mountConfig) { c.branchA, c.branchB = a, b }
}

// MountWithMountPoint sets the directory the union is mounted onto.
var MountWithMountPoint = func(path string) MountOption {
	return func(c *mountConfig) { c.mountPoint = path }
}

// MountWithAllowOther sets the FUSE allow_other mount option.
var MountWithAllowOther = func(allow bool) MountOption {
	return func(c *mountConfig) { c.allowOther = allow }
}

// MountWithDebug enables go-fuse's own request/response trace logging.
var MountWithDebug = func(debug bool) MountOption {
	return func(c *mountConfig) { c.debug = debug }
}

// MountWithID overrides the generated mount session id (see Mount.ID).
var MountWithID = func(id string) MountOption {
	return func(c *mountConfig) { c.id = id }
}

// Mount is a live hepunion mount: the FUSE server plus the union core
// it is driving.
type Mount struct {
	srv        *fuse.Server
	core       *union.Core
	mountPoint string
	id         string
}

// Unmount requests the kernel unmount the filesystem.
func (m *Mount) Unmount() error {
	return m.srv.Unmount()
}

// Wait blocks until the mount is unmounted, either by Unmount or
// externally (fusermount -u, a lazy unmount, process exit).
func (m *Mount) Wait() {
	m.srv.Wait()
}

// MountPoint returns the absolute path the union is mounted onto.
func (m *Mount) MountPoint() string {
	return m.mountPoint
}

// ID returns this mount's session identifier (spec.md §3's mount
// state is scoped per-Mount; this id disambiguates it in logs when a
// process holds several mounts open at once).
func (m *Mount) ID() string {
	return m.id
}

// Mount opens the RO and RW branches, wires a union.Core over them,
// and mounts the result at the configured mount point.
func (h *HepUnion) Mount(opts ...MountOption) (*Mount, error) {
	cfg := &mountConfig{id: uuid.NewString()}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.branchA != "" || cfg.branchB != "" {
		if cfg.branchA == "" || cfg.branchB == "" {
			return nil, fmt.Errorf("hepunion: both branch specs are required together")
		}
		ro, rw, err := resolveBranchSpecs(cfg.branchA, cfg.branchB)
		if err != nil {
			return nil, err
		}
		cfg.roPath, cfg.rwPath = ro, rw
	}

	if cfg.roPath == "" || cfg.rwPath == "" || cfg.mountPoint == "" {
		return nil, fmt.Errorf("hepunion: ro path, rw path, and mount point are all required")
	}

	roPath, err := filepath.Abs(cfg.roPath)
	if err != nil {
		return nil, fmt.Errorf("hepunion: resolving ro path: %w", err)
	}
	rwPath, err := filepath.Abs(cfg.rwPath)
	if err != nil {
		return nil, fmt.Errorf("hepunion: resolving rw path: %w", err)
	}
	mountPoint, err := filepath.Abs(cfg.mountPoint)
	if err != nil {
		return nil, fmt.Errorf("hepunion: resolving mount point: %w", err)
	}

	ro, err := branch.NewLocal(roPath)
	if err != nil {
		return nil, fmt.Errorf("hepunion: opening ro branch: %w", err)
	}
	rw, err := branch.NewLocal(rwPath)
	if err != nil {
		return nil, fmt.Errorf("hepunion: opening rw branch: %w", err)
	}

	core := union.New(rw, ro)
	root := vfsops.Root(core)

	srv, err := fs.Mount(mountPoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther:  cfg.allowOther,
			Name:        h.fuseName,
			DirectMount: true,
			Debug:       cfg.debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("hepunion: mounting: %w", err)
	}

	return &Mount{srv: srv, core: core, mountPoint: mountPoint, id: cfg.id}, nil
}
