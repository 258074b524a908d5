package sidecar

import (
	"testing"
	"time"

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
	f, err := ro.Create("/b", 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("hello")
	f.Close()
	return New(rw, ro), rw, ro
}

func TestSetCreatesSidecarFirstTime(t *testing.T) {
	s, _, _ := setup(t)

	mode := uint32(0600)
	if err := s.Set("/b", branch.Delta{Mode: &mode}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	attr, ok := s.Find("/b")
	if !ok {
		t.Fatal("expected sidecar to exist")
	}
	if attr.PermBits() != 0600 {
		t.Fatalf("mode = %o, want 0600", attr.PermBits())
	}
}

func TestGetEffectiveAttrsOverlaysResolved(t *testing.T) {
	s, _, ro := setup(t)

	mode := uint32(0600)
	if err := s.Set("/b", branch.Delta{Mode: &mode}); err != nil {
		t.Fatal(err)
	}

	resolved, err := ro.Lstat("/b")
	if err != nil {
		t.Fatal(err)
	}
	eff := s.GetEffectiveAttrs("/b", resolved)
	if eff.PermBits() != 0600 {
		t.Fatalf("effective mode = %o, want 0600", eff.PermBits())
	}
	if eff.Size != resolved.Size {
		t.Fatalf("effective size should come from resolved file, got %d want %d", eff.Size, resolved.Size)
	}
}

func TestSetUpdatesOnlyDeltaFields(t *testing.T) {
	s, _, _ := setup(t)

	mode := uint32(0600)
	if err := s.Set("/b", branch.Delta{Mode: &mode}); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Find("/b")

	newMtime := time.Now().Add(time.Hour)
	if err := s.Set("/b", branch.Delta{Mtime: &newMtime}); err != nil {
		t.Fatal(err)
	}
	after, _ := s.Find("/b")
	if after.PermBits() != before.PermBits() {
		t.Fatalf("mode should be untouched by an mtime-only delta")
	}
}

func TestRetire(t *testing.T) {
	s, _, _ := setup(t)

	mode := uint32(0600)
	if err := s.Set("/b", branch.Delta{Mode: &mode}); err != nil {
		t.Fatal(err)
	}
	if err := s.Retire("/b"); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if _, ok := s.Find("/b"); ok {
		t.Fatal("expected sidecar gone after retire")
	}
	// retiring an absent sidecar silently succeeds.
	if err := s.Retire("/b"); err != nil {
		t.Fatalf("Retire absent: %v", err)
	}
}
