package union

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"

	"github.com/go-hepunion/hepunion/internal/branch"
)

var root = Caller{Uid: 0, Gid: 0}

func newCore(t *testing.T) (*Core, branch.FS, branch.FS) {
	t.Helper()
	rwRoot, roRoot := t.TempDir(), t.TempDir()
	rw, err := branch.NewLocal(rwRoot)
	if err != nil {
		t.Fatal(err)
	}
	ro, err := branch.NewLocal(roRoot)
	if err != nil {
		t.Fatal(err)
	}
	return New(rw, ro), rw, ro
}

func TestCreateThenReaddir(t *testing.T) {
	c, _, _ := newCore(t)
	ctx := WithOperation(context.Background())

	if _, err := c.Create(ctx, root, "/a", 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create(ctx, root, "/b", 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := c.Readdir("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Name != "b" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestCreateRejectsExisting(t *testing.T) {
	c, _, _ := newCore(t)
	ctx := WithOperation(context.Background())

	if _, err := c.Create(ctx, root, "/a", 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create(ctx, root, "/a", 0644); err != syscall.EEXIST {
		t.Fatalf("err = %v, want EEXIST", err)
	}
}

func TestCreateRejectsReservedName(t *testing.T) {
	c, _, _ := newCore(t)
	ctx := WithOperation(context.Background())

	if _, err := c.Create(ctx, root, "/.wh.a", 0644); err != syscall.EINVAL {
		t.Fatalf("err = %v, want EINVAL", err)
	}
}

func TestUnlinkWhitesOutROFile(t *testing.T) {
	c, _, ro := newCore(t)
	ctx := WithOperation(context.Background())

	f, err := ro.Create("/a", 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	entries, err := c.Readdir("/")
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries = %+v, err = %v", entries, err)
	}

	if err := c.Unlink(ctx, root, "/a"); err != nil {
		t.Fatal(err)
	}

	entries, err = c.Readdir("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want empty after whiteout", entries)
	}
	if !c.Whiteout.Find("/a") {
		t.Fatal("expected whiteout marker for /a")
	}
}

func TestRmdirRequiresEmpty(t *testing.T) {
	c, _, _ := newCore(t)
	ctx := WithOperation(context.Background())

	if _, err := c.Mkdir(ctx, root, "/d", 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create(ctx, root, "/d/f", 0644); err != nil {
		t.Fatal(err)
	}

	if err := c.Rmdir(ctx, root, "/d"); err != syscall.ENOTEMPTY {
		t.Fatalf("err = %v, want ENOTEMPTY", err)
	}

	if err := c.Unlink(ctx, root, "/d/f"); err != nil {
		t.Fatal(err)
	}
	if err := c.Rmdir(ctx, root, "/d"); err != nil {
		t.Fatalf("rmdir of now-empty dir failed: %v", err)
	}
}

func TestMkdirOverRODirectoryFails(t *testing.T) {
	c, _, ro := newCore(t)
	ctx := WithOperation(context.Background())

	if err := ro.Mkdir("/d", 0755); err != nil {
		t.Fatal(err)
	}
	f, err := ro.Create("/d/hidden", 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := c.Mkdir(ctx, root, "/d", 0755); err != syscall.EEXIST {
		t.Fatalf("err = %v, want EEXIST (union already has /d from RO)", err)
	}
}

func TestSetattrOnROPathCreatesSidecar(t *testing.T) {
	c, _, ro := newCore(t)
	ctx := WithOperation(context.Background())

	f, err := ro.Create("/a", 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	mode := uint32(0600)
	if _, err := c.Setattr(ctx, root, "/a", branch.Delta{Mode: &mode}); err != nil {
		t.Fatal(err)
	}

	attr, err := c.Getattr("/a")
	if err != nil {
		t.Fatal(err)
	}
	if attr.PermBits() != 0600 {
		t.Fatalf("PermBits = %o, want 0600", attr.PermBits())
	}
	if _, err := c.RW.Lstat("/a"); err == nil {
		t.Fatal("expected no full copy-up for a metadata-only setattr")
	}
}

func TestOpenForWriteCopiesUp(t *testing.T) {
	c, rw, ro := newCore(t)
	ctx := WithOperation(context.Background())

	f, err := ro.Create("/a", 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("hello"))
	f.Close()

	res, err := c.Open(ctx, root, "/a", os.O_RDWR)
	if err != nil {
		t.Fatal(err)
	}
	defer res.File.Close()

	if _, err := rw.Lstat("/a"); err != nil {
		t.Fatalf("expected copy-up in rw: %v", err)
	}
}

func TestOpenForWriteRequiresParentWritePermission(t *testing.T) {
	c, _, ro := newCore(t)
	ctx := WithOperation(context.Background())

	if err := ro.Mkdir("/d", 0555); err != nil {
		t.Fatal(err)
	}
	f, err := ro.Create("/d/a", 0666)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	other := Caller{Uid: 1000, Gid: 1000}
	if _, err := c.Open(ctx, other, "/d/a", os.O_RDWR); err != syscall.EACCES {
		t.Fatalf("err = %v, want EACCES (file itself is world-writable, but its parent is not)", err)
	}

	res, err := c.Open(ctx, root, "/d/a", os.O_RDWR)
	if err != nil {
		t.Fatalf("root open for write failed: %v", err)
	}
	res.File.Close()
}

func TestPushRootReentrantSameOperation(t *testing.T) {
	c, _, _ := newCore(t)
	ctx := WithOperation(context.Background())

	pop1 := c.PushRoot(ctx)
	done := make(chan struct{})
	go func() {
		// Reentrant push on the same operation token must not block.
		pop2 := c.PushRoot(ctx)
		pop2()
		close(done)
	}()
	<-done
	pop1()
}

func TestPushRootBlocksAcrossOperations(t *testing.T) {
	c, _, _ := newCore(t)
	ctx1 := WithOperation(context.Background())
	ctx2 := WithOperation(context.Background())

	pop1 := c.PushRoot(ctx1)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		pop2 := c.PushRoot(ctx2)
		close(acquired)
		pop2()
	}()

	select {
	case <-acquired:
		t.Fatal("second operation's PushRoot acquired escalation while the first still held it")
	default:
	}

	pop1()
	wg.Wait()
}

func TestLookupContextRoundTrip(t *testing.T) {
	c, _, _ := newCore(t)
	end := c.BeginLookup(42, "/a/b")

	p, ok := c.LookupPath(42)
	if !ok || p != "/a/b" {
		t.Fatalf("LookupPath = %q, %v", p, ok)
	}

	end()
	if _, ok := c.LookupPath(42); ok {
		t.Fatal("expected lookup context to be removed after end()")
	}
}
