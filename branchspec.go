package hepunion

import (
	"fmt"
	"strings"
)

// branchSpec is spec.md §6's branch_spec: a path optionally tagged
// with its kind.
type branchSpec struct {
	path string
	tag  string // "ro", "rw", or "" if untagged
}

func parseBranchSpec(s string) (branchSpec, error) {
	path, tag := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 {
		switch strings.ToLower(s[i+1:]) {
		case "ro", "rw":
			tag = strings.ToLower(s[i+1:])
			path = s[:i]
		}
	}
	if path == "" {
		return branchSpec{}, fmt.Errorf("hepunion: empty branch path in %q", s)
	}
	return branchSpec{path: path, tag: tag}, nil
}

func complementTag(tag string) string {
	if tag == "ro" {
		return "rw"
	}
	return "ro"
}

// resolveBranchSpecs applies spec.md §6's branch_spec tag-defaulting
// rule to a pair (a, b): if both are tagged they must be distinct; if
// only one is tagged, the other defaults to the remaining kind; if
// neither is tagged, a is RO and b is RW.
func resolveBranchSpecs(a, b string) (roPath, rwPath string, err error) {
	sa, err := parseBranchSpec(a)
	if err != nil {
		return "", "", err
	}
	sb, err := parseBranchSpec(b)
	if err != nil {
		return "", "", err
	}

	switch {
	case sa.tag != "" && sb.tag != "":
		if sa.tag == sb.tag {
			return "", "", fmt.Errorf("hepunion: both branches tagged %q, need one ro and one rw", sa.tag)
		}
	case sa.tag == "" && sb.tag == "":
		sa.tag, sb.tag = "ro", "rw"
	case sa.tag == "":
		sa.tag = complementTag(sb.tag)
	default:
		sb.tag = complementTag(sa.tag)
	}

	if sa.tag == "ro" {
		return sa.path, sb.path, nil
	}
	return sb.path, sa.path, nil
}
