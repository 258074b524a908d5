package materialize

import (
	"testing"

	"github.com/go-hepunion/hepunion/internal/branch"
)

func TestFindPathCreatesShallowChain(t *testing.T) {
	roRoot, rwRoot := t.TempDir(), t.TempDir()
	ro, err := branch.NewLocal(roRoot)
	if err != nil {
		t.Fatal(err)
	}
	rw, err := branch.NewLocal(rwRoot)
	if err != nil {
		t.Fatal(err)
	}

	if err := ro.Mkdir("/a", 0750); err != nil {
		t.Fatal(err)
	}
	if err := ro.Mkdir("/a/b", 0750); err != nil {
		t.Fatal(err)
	}

	if err := FindPath(rw, ro, "/a/b/c"); err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	if _, err := rw.Lstat("/a"); err != nil {
		t.Fatalf("expected /a materialised: %v", err)
	}
	if _, err := rw.Lstat("/a/b"); err != nil {
		t.Fatalf("expected /a/b materialised: %v", err)
	}
	if _, err := rw.Lstat("/a/b/c"); err == nil {
		t.Fatal("/a/b/c itself should not be created by FindPath")
	}
}

func TestFindPathSkipsExistingRWPrefix(t *testing.T) {
	roRoot, rwRoot := t.TempDir(), t.TempDir()
	ro, err := branch.NewLocal(roRoot)
	if err != nil {
		t.Fatal(err)
	}
	rw, err := branch.NewLocal(rwRoot)
	if err != nil {
		t.Fatal(err)
	}

	if err := rw.Mkdir("/a", 0700); err != nil {
		t.Fatal(err)
	}

	if err := FindPath(rw, ro, "/a/b"); err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	attr, err := rw.Lstat("/a")
	if err != nil {
		t.Fatal(err)
	}
	if attr.PermBits() != 0700 {
		t.Fatalf("existing RW prefix should be untouched, got mode %o", attr.PermBits())
	}
}
