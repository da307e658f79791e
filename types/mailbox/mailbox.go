package mailbox

import (
	"context"
	"fmt"
	"io"

	"github.com/edup2p/mailbox/types"
)

// Callback receives one message.
//
// It runs as its own task on the mailbox's thread, with r positioned right after the envelope.
// It owns r until it calls done, which it must do exactly once, on every path; the connection
// the message came in on is stalled until then. r must not be touched after calling done.
type Callback func(ctx context.Context, r io.Reader, done func())

// Mailbox is an endpoint that can receive messages from anywhere in the cluster, bound to one thread.
//
// The owner of a mailbox must Destroy it on the same thread, typically with a defer right after New.
type Mailbox struct {
	_      types.Incomparable
	noCopy types.NoCopy

	manager  *Manager
	thread   int
	id       ID
	callback Callback

	destroyed bool
}

// New creates a mailbox on the thread the task in ctx is running on.
func New(ctx context.Context, m *Manager, callback Callback) *Mailbox {
	thread := m.pool.Current(ctx)
	if thread < 0 {
		panic("mailbox: New must be called from a task running on a worker thread")
	}
	if callback == nil {
		panic("mailbox: nil callback")
	}

	table := m.Table(thread)

	mb := &Mailbox{
		manager:  m,
		thread:   thread,
		id:       table.allocateID(ctx),
		callback: callback,
	}

	table.register(ctx, mb)

	return mb
}

// Address returns an address other peers can send messages to.
func (mb *Mailbox) Address() Address {
	return NewAddress(mb.manager.Me(), mb.thread, mb.id)
}

func (mb *Mailbox) ID() ID {
	return mb.id
}

func (mb *Mailbox) Thread() int {
	return mb.thread
}

// Destroy unregisters the mailbox. Messages that arrive for it afterwards are dropped.
//
// Destroy must be called on the mailbox's thread, and only once.
func (mb *Mailbox) Destroy(ctx context.Context) {
	mb.manager.pool.AssertOnThread(ctx, mb.thread)

	if mb.destroyed {
		panic(fmt.Sprintf("mailbox: mailbox %d on thread %d destroyed twice", mb.id, mb.thread))
	}

	mb.manager.Table(mb.thread).unregister(ctx, mb)
	mb.destroyed = true
}
