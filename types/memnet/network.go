// Package memnet is an in-process message transport, for tests and single-process clusters.
//
// Every ordered pair of nodes gets its own link, which delivers messages one at a time, in send order,
// like a connection would.
package memnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/edup2p/mailbox/types/key"
	"golang.org/x/exp/maps"
)

// LinkQueueLimit is the amount of messages a link holds before it starts dropping new ones.
const LinkQueueLimit = 4096

var ErrNodeClosed = errors.New("node closed")

// Network is a set of nodes that can reach each other.
type Network struct {
	mu    sync.RWMutex
	nodes map[key.NodePublic]*Node
}

func NewNetwork() *Network {
	return &Network{
		nodes: make(map[key.NodePublic]*Node),
	}
}

// Join adds a node with the given identity to the network. It lives until it is closed, or ctx ends.
func (n *Network) Join(ctx context.Context, me key.NodePublic) (*Node, error) {
	if me.IsZero() {
		return nil, errors.New("cannot join with a zero key")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.nodes[me]; exists {
		return nil, fmt.Errorf("node already joined: %s", me.Debug())
	}

	node := newNode(ctx, n, me)
	n.nodes[me] = node

	slog.Debug("memnet: node joined", "peer", me.Debug())

	return node, nil
}

func (n *Network) node(peer key.NodePublic) *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.nodes[peer]
}

func (n *Network) leave(node *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.nodes[node.me] == node {
		delete(n.nodes, node.me)
	}
}

// peers returns all joined nodes except the given one, sorted.
func (n *Network) peers(except key.NodePublic) []key.NodePublic {
	n.mu.RLock()
	keys := maps.Keys(n.nodes)
	n.mu.RUnlock()

	keys = slices.DeleteFunc(keys, func(k key.NodePublic) bool {
		return k == except
	})
	slices.SortFunc(keys, key.NodePublic.Compare)

	return keys
}
