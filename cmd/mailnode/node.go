package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/edup2p/mailbox/types/archive"
	"github.com/edup2p/mailbox/types/coro"
	"github.com/edup2p/mailbox/types/key"
	"github.com/edup2p/mailbox/types/mailbox"
	"github.com/edup2p/mailbox/types/peernet"
	"golang.org/x/exp/maps"
)

// Node is a running mailnode: a transport, a worker pool, and a mailbox manager on top of it.
type Node struct {
	ctx context.Context

	svc     *peernet.Service
	pool    *coro.Pool
	manager *mailbox.Manager

	// out receives every message that arrives in one of our mailboxes.
	out io.Writer

	mu    sync.Mutex
	boxes map[mailbox.Address]*mailbox.Mailbox

	listenDone chan struct{}
}

// StartNode brings up a node as configured, and starts listening if cfg.Listen is set.
func StartNode(ctx context.Context, cfg *Config, out io.Writer) (*Node, error) {
	priv, err := cfg.NodeKey()
	if err != nil {
		return nil, err
	}

	infos, err := cfg.PeerInformation()
	if err != nil {
		return nil, err
	}

	svc := peernet.NewService(ctx, priv)
	svc.SetPeers(infos)

	pool := coro.NewPool(cfg.Threads)

	n := &Node{
		ctx:        ctx,
		svc:        svc,
		pool:       pool,
		manager:    mailbox.NewManager(svc, pool),
		out:        out,
		boxes:      make(map[mailbox.Address]*mailbox.Mailbox),
		listenDone: make(chan struct{}),
	}

	if cfg.Listen == "" {
		close(n.listenDone)
		return n, nil
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	go func() {
		defer close(n.listenDone)

		if err := svc.Listen(ln); err != nil {
			slog.Error("listener stopped", "err", err)
		}
	}()

	return n, nil
}

func (n *Node) Me() key.NodePublic {
	return n.svc.Me()
}

// Open creates a mailbox on thread that prints what it receives.
func (n *Node) Open(thread int) (mailbox.Address, error) {
	if thread < 0 || thread >= n.pool.Threads() {
		return mailbox.NilAddress, fmt.Errorf("thread %d out of range [0, %d)", thread, n.pool.Threads())
	}

	var mb *mailbox.Mailbox

	err := n.pool.Run(n.ctx, thread, func(ctx context.Context) {
		mb = mailbox.New(ctx, n.manager, n.printer(thread))
	})
	if err != nil {
		return mailbox.NilAddress, err
	}

	addr := mb.Address()

	n.mu.Lock()
	n.boxes[addr] = mb
	n.mu.Unlock()

	return addr, nil
}

func (n *Node) printer(thread int) mailbox.Callback {
	return func(ctx context.Context, r io.Reader, done func()) {
		defer done()

		if _, err := archive.ReadOrderToken(r); err != nil {
			slog.Warn("could not read order token", "thread", thread, "err", err)
			return
		}

		data, err := io.ReadAll(r)
		if err != nil {
			slog.Warn("could not read message", "thread", thread, "err", err)
			return
		}

		slog.Debug("received message", "thread", thread, "size", len(data))

		if _, err := fmt.Fprintf(n.out, "[thread %d] %s\n", thread, data); err != nil {
			slog.Warn("could not print message", "err", err)
		}
	}
}

// Close destroys the mailbox at addr.
func (n *Node) Close(ctx context.Context, addr mailbox.Address) error {
	n.mu.Lock()
	mb, ok := n.boxes[addr]
	delete(n.boxes, addr)
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("no open mailbox %s", addr)
	}

	return n.pool.Run(ctx, mb.Thread(), mb.Destroy)
}

// List returns the addresses of all open mailboxes, by thread and id.
func (n *Node) List() []mailbox.Address {
	n.mu.Lock()
	addrs := maps.Keys(n.boxes)
	n.mu.Unlock()

	slices.SortFunc(addrs, func(a, b mailbox.Address) int {
		if a.Thread() != b.Thread() {
			return a.Thread() - b.Thread()
		}
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		default:
			return 0
		}
	})

	return addrs
}

// Send sends text to the mailbox at addr.
func (n *Node) Send(addr mailbox.Address, text string) error {
	if addr.IsNil() {
		return errors.New("cannot send to a nil address")
	}

	n.manager.Send(addr, func(w io.Writer) error {
		if err := archive.WriteOrderToken(w, archive.IgnoreToken); err != nil {
			return err
		}

		_, err := io.WriteString(w, text)
		return err
	})

	return nil
}

// Shutdown destroys all mailboxes, and stops the node.
//
// ctx must outlive the node's own context, mailboxes are destroyed with it.
func (n *Node) Shutdown(ctx context.Context) {
	for _, addr := range n.List() {
		if err := n.Close(ctx, addr); err != nil {
			slog.Warn("could not destroy mailbox", "mailbox", addr.String(), "err", err)
		}
	}

	n.manager.Close(ctx)
	n.svc.Close()
	<-n.listenDone
}
