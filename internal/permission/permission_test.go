package permission

import (
	"errors"
	"testing"

	"github.com/go-hepunion/hepunion/internal/branch"
)

func TestCanAccessOwner(t *testing.T) {
	attr := branch.Attr{Mode: 0640, Uid: 100, Gid: 100}
	caller := Caller{Uid: 100, Gid: 100}
	if !CanAccess(caller, attr, R) {
		t.Fatal("owner should have read")
	}
	if !CanAccess(caller, attr, W) {
		t.Fatal("owner should have write")
	}
	if CanAccess(caller, attr, X) {
		t.Fatal("owner should not have execute")
	}
}

func TestCanAccessOther(t *testing.T) {
	attr := branch.Attr{Mode: 0640, Uid: 100, Gid: 100}
	caller := Caller{Uid: 200, Gid: 200}
	if CanAccess(caller, attr, R) {
		t.Fatal("other should not have read on 0640")
	}
}

func TestCanAccessRoot(t *testing.T) {
	attr := branch.Attr{Mode: 0600, Uid: 100, Gid: 100}
	root := Caller{Uid: 0, Gid: 0}
	if !CanAccess(root, attr, R) || !CanAccess(root, attr, W) {
		t.Fatal("root should always read/write")
	}
	if CanAccess(root, attr, X) {
		t.Fatal("root should not get X when no x bit is set anywhere")
	}
}

func TestCanTraverse(t *testing.T) {
	attrs := map[string]branch.Attr{
		"/a":   {Mode: 0755 | 0040000},
		"/a/b": {Mode: 0700 | 0040000, Uid: 1},
	}
	stat := func(p string) (branch.Attr, error) {
		a, ok := attrs[p]
		if !ok {
			return branch.Attr{}, errors.New("not found")
		}
		return a, nil
	}

	if !CanTraverse(Caller{Uid: 1, Gid: 1}, []string{"/a", "/a/b"}, stat) {
		t.Fatal("owner of /a/b should traverse")
	}
	if CanTraverse(Caller{Uid: 2, Gid: 2}, []string{"/a", "/a/b"}, stat) {
		t.Fatal("stranger should not traverse into 0700 dir")
	}
}
