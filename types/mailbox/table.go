package mailbox

import (
	"context"
	"fmt"
	"slices"

	"github.com/edup2p/mailbox/types/coro"
	"golang.org/x/exp/maps"
)

// Table is the registry of mailboxes living on one thread.
//
// A table is only touched from tasks running on its thread, which every method asserts; it has no lock.
type Table struct {
	pool   *coro.Pool
	thread int

	// nextID is never decremented, ids are not reused.
	nextID    ID
	mailboxes map[ID]*Mailbox
}

func newTable(pool *coro.Pool, thread int) *Table {
	return &Table{
		pool:      pool,
		thread:    thread,
		mailboxes: make(map[ID]*Mailbox),
	}
}

func (t *Table) Thread() int {
	return t.thread
}

func (t *Table) assertThread(ctx context.Context) {
	t.pool.AssertOnThread(ctx, t.thread)
}

func (t *Table) allocateID(ctx context.Context) ID {
	t.assertThread(ctx)

	id := t.nextID
	t.nextID++
	return id
}

func (t *Table) register(ctx context.Context, mb *Mailbox) {
	t.assertThread(ctx)

	if _, ok := t.mailboxes[mb.id]; ok {
		panic(fmt.Sprintf("mailbox: id %d is already bound on thread %d", mb.id, t.thread))
	}

	t.mailboxes[mb.id] = mb
}

func (t *Table) unregister(ctx context.Context, mb *Mailbox) {
	t.assertThread(ctx)

	if cur, ok := t.mailboxes[mb.id]; !ok || cur != mb {
		panic(fmt.Sprintf("mailbox: table entry for id %d on thread %d does not refer to this mailbox", mb.id, t.thread))
	}

	delete(t.mailboxes, mb.id)
}

// Find returns the live mailbox bound to id.
func (t *Table) Find(ctx context.Context, id ID) (*Mailbox, bool) {
	t.assertThread(ctx)

	mb, ok := t.mailboxes[id]
	return mb, ok
}

// KnownButGone reports whether id was handed out by this table, but its mailbox has since been destroyed.
func (t *Table) KnownButGone(ctx context.Context, id ID) bool {
	t.assertThread(ctx)

	_, ok := t.mailboxes[id]
	return !ok && id < t.nextID
}

// Len returns the number of live mailboxes.
func (t *Table) Len(ctx context.Context) int {
	t.assertThread(ctx)

	return len(t.mailboxes)
}

// IDs returns the ids of all live mailboxes, in ascending order.
func (t *Table) IDs(ctx context.Context) []ID {
	t.assertThread(ctx)

	ids := maps.Keys(t.mailboxes)
	slices.Sort(ids)
	return ids
}
