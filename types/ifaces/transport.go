// Package ifaces contains the interfaces between the mailbox layer and the transports beneath it.
package ifaces

import (
	"context"
	"io"

	"github.com/edup2p/mailbox/types/key"
)

// Writer produces the bytes of one outgoing message.
//
// A non-nil error means the message must be dropped; transports never put a partially written message on the wire.
type Writer func(w io.Writer) error

// MessageHandler receives messages from a MessageService.
type MessageHandler interface {
	// OnMessage is invoked exactly once per received message.
	//
	// r contains exactly that message and may be read once, start to end.
	// Calls for messages arriving over the same connection are sequential; the next one
	// only starts after OnMessage returns.
	//
	// A non-nil error means the stream could not be understood, and the connection it came from is torn down.
	OnMessage(ctx context.Context, src key.NodePublic, r io.Reader) error
}

// ConnectivityService reports the local identity and the peers currently reachable.
type ConnectivityService interface {
	Me() key.NodePublic

	Peers() []key.NodePublic
}

// MessageService moves opaque messages between peers.
type MessageService interface {
	// SendMessage enqueues exactly one message to peer, whose bytes are produced by writer.
	//
	// Delivery is best-effort; there is no acknowledgement and no retry.
	SendMessage(peer key.NodePublic, writer Writer)

	// SetHandler installs the handler for inbound messages.
	SetHandler(h MessageHandler)

	Connectivity() ConnectivityService
}
