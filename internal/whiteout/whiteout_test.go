package whiteout

import (
	"testing"

	"github.com/go-hepunion/hepunion/internal/branch"
)

func setup(t *testing.T) (*Subsystem, branch.FS, branch.FS) {
	t.Helper()
	roRoot, rwRoot := t.TempDir(), t.TempDir()
	ro, err := branch.NewLocal(roRoot)
	if err != nil {
		t.Fatal(err)
	}
	rw, err := branch.NewLocal(rwRoot)
	if err != nil {
		t.Fatal(err)
	}
	return New(rw, ro), rw, ro
}

func TestCreateFindUnlink(t *testing.T) {
	s, rw, _ := setup(t)

	if err := s.Create("/a"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.Find("/a") {
		t.Fatal("expected whiteout to be found")
	}
	attr, err := rw.Lstat("/.wh.a")
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if attr.PermBits() != 0400 {
		t.Fatalf("mode = %o, want 0400", attr.PermBits())
	}
	if attr.Uid != 0 || attr.Gid != 0 {
		t.Fatalf("uid/gid = %d/%d, want 0/0", attr.Uid, attr.Gid)
	}

	if err := s.Unlink("/a"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if s.Find("/a") {
		t.Fatal("expected whiteout gone after unlink")
	}

	// unlinking an absent whiteout silently succeeds.
	if err := s.Unlink("/a"); err != nil {
		t.Fatalf("Unlink absent: %v", err)
	}
}

func TestCreateRootRejected(t *testing.T) {
	s, _, _ := setup(t)
	if err := s.Create("/"); err == nil {
		t.Fatal("expected EINVAL for root path")
	}
}

func TestHideDirectoryContents(t *testing.T) {
	s, rw, ro := setup(t)

	if err := ro.Mkdir("/d", 0755); err != nil {
		t.Fatal(err)
	}
	f, err := ro.Create("/d/x", 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := rw.Mkdir("/d", 0755); err != nil {
		t.Fatal(err)
	}
	if err := s.HideDirectoryContents("/d"); err != nil {
		t.Fatalf("HideDirectoryContents: %v", err)
	}
	if !s.Find("/d/x") {
		t.Fatal("expected /d/x whited out")
	}
}

func TestIsEmptyDir(t *testing.T) {
	s, rw, ro := setup(t)

	if err := ro.Mkdir("/d", 0755); err != nil {
		t.Fatal(err)
	}
	f, err := ro.Create("/d/x", 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := rw.Mkdir("/d", 0755); err != nil {
		t.Fatal(err)
	}

	empty, err := s.IsEmptyDir("/d", true, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if empty {
		t.Fatal("expected non-empty before whiteout")
	}

	if err := s.Create("/d/x"); err != nil {
		t.Fatal(err)
	}

	empty, err = s.IsEmptyDir("/d", true, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if !empty {
		t.Fatal("expected empty after whiteout")
	}

	entries, err := rw.ReadDir("/d")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected whiteouts cleaned up, got %+v", entries)
	}
}
