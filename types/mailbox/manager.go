package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/edup2p/mailbox/types"
	"github.com/edup2p/mailbox/types/coro"
	"github.com/edup2p/mailbox/types/ifaces"
	"github.com/edup2p/mailbox/types/key"
)

var (
	// ErrMalformedEnvelope is returned by OnMessage when a message does not start with a usable envelope.
	// The stream cannot be trusted after this, and transports close the connection.
	ErrMalformedEnvelope = errors.New("malformed mailbox envelope")

	// ErrEnvelopeWrite is returned to the transport when the envelope of an outgoing message could not be written.
	ErrEnvelopeWrite = errors.New("could not write mailbox envelope")
)

// Manager routes messages between mailboxes, across the cluster.
//
// There is one manager per process, with one Table per worker thread of its pool. It is created at startup,
// and passed to everything that creates mailboxes or sends messages.
type Manager struct {
	svc    ifaces.MessageService
	pool   *coro.Pool
	tables []*Table
}

// NewManager creates a manager over svc, and installs it as svc's message handler.
func NewManager(svc ifaces.MessageService, pool *coro.Pool) *Manager {
	m := &Manager{
		svc:    svc,
		pool:   pool,
		tables: make([]*Table, pool.Threads()),
	}

	for i := range m.tables {
		m.tables[i] = newTable(pool, i)
	}

	svc.SetHandler(m)

	return m
}

// Me returns the local peer.
func (m *Manager) Me() key.NodePublic {
	return m.svc.Connectivity().Me()
}

func (m *Manager) Pool() *coro.Pool {
	return m.pool
}

// Table returns the mailbox table of thread.
func (m *Manager) Table(thread int) *Table {
	if thread < 0 || thread >= len(m.tables) {
		panic(fmt.Sprintf("mailbox: thread %d out of range [0, %d)", thread, len(m.tables)))
	}

	return m.tables[thread]
}

func (m *Manager) L() *slog.Logger {
	return slog.With("mailbox-manager", m.Me().Debug())
}

// Send sends one message to the mailbox at dest, whose payload is produced by writer.
// A nil writer sends an empty payload.
//
// Send does not wait, and does not report whether the message arrived.
func (m *Manager) Send(dest Address, writer ifaces.Writer) {
	if dest.IsNil() {
		panic("mailbox: cannot send to a nil address")
	}

	m.svc.SendMessage(dest.Peer(), func(w io.Writer) error {
		return writeMessage(w, dest, writer)
	})
}

func writeMessage(w io.Writer, dest Address, writer ifaces.Writer) error {
	if err := writeEnvelope(w, dest.thread, dest.id); err != nil {
		return fmt.Errorf("%w: %w", ErrEnvelopeWrite, err)
	}

	if writer == nil {
		return nil
	}

	return writer(w)
}

// OnMessage dispatches a message to the mailbox named by its envelope, and returns after the mailbox's
// callback signalled completion. Cancelling ctx does not cut that wait short.
//
// Messages for mailboxes that do not exist are dropped.
func (m *Manager) OnMessage(ctx context.Context, src key.NodePublic, r io.Reader) error {
	thread, id, err := readEnvelope(r)
	if err != nil {
		return fmt.Errorf("%w from %s: %w", ErrMalformedEnvelope, src.Debug(), err)
	}
	if thread < 0 || thread >= len(m.tables) {
		return fmt.Errorf("%w from %s: thread %d out of range [0, %d)", ErrMalformedEnvelope, src.Debug(), thread, len(m.tables))
	}

	ctx, leave := m.pool.OnThread(ctx, thread)
	defer leave()

	table := m.tables[thread]

	mb, ok := table.Find(ctx, id)
	if !ok {
		m.logDropped(ctx, table, src, id)
		return nil
	}

	slog.Log(ctx, types.LevelTrace, "dispatching message", "to-mailbox", mb.Address().String(), "from-peer", src.Debug())

	done := make(chan struct{})
	var signalled atomic.Bool

	signal := func() {
		if !signalled.CompareAndSwap(false, true) {
			panic(fmt.Sprintf("mailbox: completion of mailbox %d on thread %d signalled more than once", id, thread))
		}
		close(done)
	}

	callback := mb.callback
	m.pool.Spawn(ctx, thread, func(ctx context.Context) {
		callback(ctx, r, signal)
	})

	// r belongs to the callback until it signals, even if the connection behind ctx goes away meanwhile.
	_ = m.pool.Wait(context.WithoutCancel(ctx), done)

	return nil
}

func (m *Manager) logDropped(ctx context.Context, table *Table, src key.NodePublic, id ID) {
	addr := NewAddress(m.Me(), table.thread, id)

	if table.KnownButGone(ctx, id) {
		m.L().Debug("dropping message for mailbox that no longer exists", "mailbox", addr.String(), "from-peer", src.Debug())
	} else {
		m.L().Warn("dropping message for mailbox that was never assigned", "mailbox", addr.String(), "from-peer", src.Debug())
	}
}

// Close detaches the manager from its transport.
//
// All mailboxes must have been destroyed by then; Close panics otherwise.
func (m *Manager) Close(ctx context.Context) {
	for _, t := range m.tables {
		tctx, leave := m.pool.OnThread(ctx, t.thread)
		ids := t.IDs(tctx)
		leave()

		if len(ids) > 0 {
			panic(
				fmt.Sprintf(
					"mailbox: manager closed with %d live mailboxes on thread %d (ids %v); destroy them before closing",
					len(ids),
					t.thread,
					ids,
				),
			)
		}
	}

	m.svc.SetHandler(nil)
}
