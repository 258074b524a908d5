package union

import (
	"context"
	"sync"
)

// escalation implements spec.md §5's push_root/pop_root primitive: a
// reentrant critical section that only one goroutine-stack may hold
// at a time, entered whenever a mutation needs to act with root
// identity (whiteout/sidecar creation, traversal into a directory the
// caller could not otherwise enter).
//
// Go has no public goroutine-id API, so reentrancy is tracked via a
// token carried on the request's context.Context instead of a thread
// id — every top-level operation mints one token (WithOperation) and
// every push/pop along that operation's call stack shares it, so
// nested pushes on the same call stack increment a counter rather
// than re-acquiring the lock, while a concurrent operation (a
// different token) blocks on mu until the holder's depth returns to
// zero.
type escalation struct {
	mu    sync.Mutex // the actual exclusive lock; held only by the outermost push
	state sync.Mutex // guards holder/depth bookkeeping below
	holder *opToken
	depth  int
}

type opTokenKey struct{}

// opToken identifies one top-level operation's call stack.
type opToken struct{}

// WithOperation mints a fresh operation token on ctx, for use as the
// root of a single top-level VFS operation's context tree.
func WithOperation(ctx context.Context) context.Context {
	return context.WithValue(ctx, opTokenKey{}, &opToken{})
}

func tokenOf(ctx context.Context) *opToken {
	t, _ := ctx.Value(opTokenKey{}).(*opToken)
	return t
}

// PushRoot enters the escalation critical section for the duration of
// the returned pop func, reentrant across nested calls that share ctx's
// operation token. It does not save or change any uid/gid: branch I/O
// always runs with the daemon process's own credentials.
func (c *Core) PushRoot(ctx context.Context) (pop func()) {
	tok := tokenOf(ctx)

	c.esc.state.Lock()
	if tok != nil && c.esc.holder == tok {
		c.esc.depth++
		c.esc.state.Unlock()
		return func() { c.popRoot(tok) }
	}
	c.esc.state.Unlock()

	c.esc.mu.Lock() // blocks until no other operation holds escalation

	c.esc.state.Lock()
	c.esc.holder = tok
	c.esc.depth = 1
	c.esc.state.Unlock()

	return func() { c.popRoot(tok) }
}

func (c *Core) popRoot(tok *opToken) {
	c.esc.state.Lock()
	c.esc.depth--
	done := c.esc.depth <= 0
	if done {
		c.esc.holder = nil
		c.esc.depth = 0
	}
	c.esc.state.Unlock()

	if done {
		c.esc.mu.Unlock()
	}
}
