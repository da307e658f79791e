package memnet

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/edup2p/mailbox/types/ifaces"
	"github.com/edup2p/mailbox/types/key"
)

// Node is one peer on a Network. It implements ifaces.MessageService and ifaces.ConnectivityService.
type Node struct {
	ctx context.Context
	ccc context.CancelCauseFunc

	net *Network
	me  key.NodePublic

	mu      sync.RWMutex
	handler ifaces.MessageHandler
	// links holds the outgoing links, by destination.
	links map[key.NodePublic]*link
}

func newNode(ctx context.Context, n *Network, me key.NodePublic) *Node {
	cctx, ccc := context.WithCancelCause(ctx)

	return &Node{
		ctx:   cctx,
		ccc:   ccc,
		net:   n,
		me:    me,
		links: make(map[key.NodePublic]*link),
	}
}

func (n *Node) L() *slog.Logger {
	return slog.With("memnet-node", n.me.Debug())
}

// Close takes the node off the network. Messages still queued from and to it are dropped.
func (n *Node) Close() {
	n.ccc(ErrNodeClosed)
	n.net.leave(n)
}

func (n *Node) Me() key.NodePublic {
	return n.me
}

// Peers returns all other nodes currently on the network.
func (n *Node) Peers() []key.NodePublic {
	return n.net.peers(n.me)
}

func (n *Node) Connectivity() ifaces.ConnectivityService {
	return n
}

func (n *Node) SetHandler(h ifaces.MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.handler = h
}

func (n *Node) getHandler() ifaces.MessageHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.handler
}

func (n *Node) SendMessage(peer key.NodePublic, writer ifaces.Writer) {
	if n.ctx.Err() != nil {
		n.L().Warn("dropping message from closed node", "to-peer", peer.Debug())
		return
	}

	var buf bytes.Buffer
	if err := writer(&buf); err != nil {
		n.L().Error("dropping message, writer failed", "to-peer", peer.Debug(), "err", err)
		return
	}

	dst := n.net.node(peer)
	if dst == nil {
		n.L().Warn("dropping message for unknown peer", "to-peer", peer.Debug())
		return
	}

	if !n.getLink(dst).queue.Push(buf.Bytes()) {
		n.L().Warn("dropping message, link queue full", "to-peer", peer.Debug())
	}
}

// getLink returns the live link to dst, creating it if needed.
func (n *Node) getLink(dst *Node) *link {
	n.mu.Lock()
	defer n.mu.Unlock()

	if l := n.links[dst.me]; l != nil && l.ctx.Err() == nil {
		return l
	}

	l := newLink(n, dst)
	n.links[dst.me] = l
	go l.run()

	return l
}

func (n *Node) dropLink(l *link) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.links[l.dst.me] == l {
		delete(n.links, l.dst.me)
	}
}
