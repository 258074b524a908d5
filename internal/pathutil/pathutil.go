// Package pathutil implements the canonical path and special-name
// manipulation the rest of hepunion depends on: turning the names the
// VFS layer hands in into the relative paths (P) the core reasons
// about, and recognising the reserved ".wh." / ".me." prefixes.
package pathutil

import (
	"path"
	"strings"
)

const (
	// WhiteoutPrefix marks a deletion record for the same-named entry
	// in the parent directory.
	WhiteoutPrefix = ".wh."
	// SidecarPrefix marks a metadata-override record for the
	// same-named RO entry in the parent directory.
	SidecarPrefix = ".me."
	// MaxPathLen mirrors the traditional PATH_MAX used by the source
	// design; branch paths longer than this are rejected with
	// ENAMETOOLONG.
	MaxPathLen = 4096
)

// Clean canonicalises p into a union-relative path P: always
// "/"-rooted, never containing "." or ".." segments, never carrying a
// trailing slash except for the root itself.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// Join joins a union-relative parent and a child name into a new
// union-relative path, the way filepath.Join would, but always
// returning a Clean result.
func Join(parent, name string) string {
	return Clean(path.Join(parent, name))
}

// Parent returns the parent path of p and true, or ("", false) if p is
// the root and has no parent.
func Parent(p string) (string, bool) {
	p = Clean(p)
	if p == "/" {
		return "", false
	}
	dir := path.Dir(p)
	return dir, true
}

// Base returns the final path component of p, matching path.Base.
func Base(p string) string {
	return path.Base(Clean(p))
}

// IsWhiteoutName reports whether base is a whiteout marker's base name
// and, if so, returns the original name it hides.
func IsWhiteoutName(base string) (orig string, ok bool) {
	if !strings.HasPrefix(base, WhiteoutPrefix) {
		return "", false
	}
	return strings.TrimPrefix(base, WhiteoutPrefix), true
}

// IsSidecarName reports whether base is a sidecar marker's base name
// and, if so, returns the original name it overrides.
func IsSidecarName(base string) (orig string, ok bool) {
	if !strings.HasPrefix(base, SidecarPrefix) {
		return "", false
	}
	return strings.TrimPrefix(base, SidecarPrefix), true
}

// IsReservedName reports whether name begins with one of the stable
// prefixes reserved for internal bookkeeping (".wh.", ".me."). The VFS
// surface rejects attempts to create entries with these names.
func IsReservedName(name string) bool {
	return strings.HasPrefix(name, WhiteoutPrefix) || strings.HasPrefix(name, SidecarPrefix)
}

// WhiteoutName builds the base name of the whiteout marker that hides
// base within its parent directory.
func WhiteoutName(base string) string {
	return WhiteoutPrefix + base
}

// SidecarName builds the base name of the sidecar marker that carries
// attribute overrides for base within its parent directory.
func SidecarName(base string) string {
	return SidecarPrefix + base
}

// WhiteoutPath returns the union-relative path of the whiteout marker
// for p, within p's own parent directory.
func WhiteoutPath(p string) string {
	p = Clean(p)
	dir, _ := Parent(p)
	return Join(dir, WhiteoutName(Base(p)))
}

// SidecarPath returns the union-relative path of the sidecar marker
// for p, within p's own parent directory.
func SidecarPath(p string) string {
	p = Clean(p)
	dir, _ := Parent(p)
	return Join(dir, SidecarName(Base(p)))
}

// Ancestors returns the list of p's ancestor directories below the
// root, down to (but excluding) p itself, in root-to-leaf order; "/"
// itself is never included. For p == "/" or a top-level p such as
// "/a" it returns nil.
func Ancestors(p string) []string {
	p = Clean(p)
	if p == "/" {
		return nil
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	var out []string
	cur := ""
	for _, s := range segments[:len(segments)-1] {
		cur = cur + "/" + s
		out = append(out, cur)
	}
	return out
}

// TooLong reports whether the composed branch path (root + p) exceeds
// the system path-length budget this design enforces.
func TooLong(branchRoot, p string) bool {
	return len(branchRoot)+len(p) > MaxPathLen
}
