package mailbox

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/edup2p/mailbox/types/key"
)

// ID identifies a mailbox within the table of its thread.
type ID uint64

// Address locates a mailbox anywhere in the cluster.
//
// Addresses are plain values, and may outlive the mailbox they name; a message sent to such an address is dropped.
// The zero value is the nil address.
type Address struct {
	peer   key.NodePublic
	thread int
	id     ID
}

// NilAddress is the nil address, with its thread unset.
var NilAddress = Address{thread: -1}

func NewAddress(peer key.NodePublic, thread int, id ID) Address {
	return Address{peer: peer, thread: thread, id: id}
}

// IsNil reports whether the address does not name any peer.
func (a Address) IsNil() bool {
	return a.peer.IsZero()
}

// Peer returns the peer the mailbox lives on, and panics if the address is nil.
func (a Address) Peer() key.NodePublic {
	if a.IsNil() {
		panic("mailbox: cannot get the peer of a nil address")
	}
	return a.peer
}

func (a Address) Thread() int {
	return a.thread
}

func (a Address) ID() ID {
	return a.id
}

func (a Address) String() string {
	if a.IsNil() {
		return "<nil>"
	}

	return fmt.Sprintf("%s/%d/%d", a.peer.Debug(), a.thread, a.id)
}

const addressSep = '/'

// AppendText implements encoding.TextAppender.
//
// A nil address encodes as empty text.
func (a Address) AppendText(b []byte) ([]byte, error) {
	if a.IsNil() {
		return b, nil
	}

	b, err := a.peer.AppendText(b)
	if err != nil {
		return nil, err
	}
	b = append(b, addressSep)
	b = strconv.AppendInt(b, int64(a.thread), 10)
	b = append(b, addressSep)
	b = strconv.AppendUint(b, uint64(a.id), 10)

	return b, nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return a.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = NilAddress
		return nil
	}

	parts := bytes.Split(b, []byte{addressSep})
	if len(parts) != 3 {
		return fmt.Errorf("invalid address %q: expected <peer>/<thread>/<id>", b)
	}

	var peer key.NodePublic
	if err := peer.UnmarshalText(parts[0]); err != nil {
		return fmt.Errorf("invalid address peer: %w", err)
	}
	if peer.IsZero() {
		return fmt.Errorf("invalid address %q: zero peer key", b)
	}

	thread, err := strconv.ParseInt(string(parts[1]), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid address thread: %w", err)
	}
	if thread < 0 {
		return fmt.Errorf("invalid address thread: %d is negative", thread)
	}

	id, err := strconv.ParseUint(string(parts[2]), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid address id: %w", err)
	}

	*a = NewAddress(peer, int(thread), ID(id))
	return nil
}
