package key

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"github.com/edup2p/mailbox/types"
	"go4.org/mem"
	"golang.org/x/crypto/curve25519"
	"strings"
)

// NodePrivate is the long-lived identity of a node; its public half is the node's peer id.
type NodePrivate struct {
	_   types.Incomparable
	key NakedKey
}

// NewNode creates and returns a new node private key.
func NewNode() NodePrivate {
	var ret NodePrivate
	rand(ret.key[:])
	clamp25519Private(ret.key[:])
	return ret
}

func NodePrivateFrom(key NakedKey) NodePrivate {
	return NodePrivate{key: key}
}

// Equal reports whether k and other are the same key.
func (n NodePrivate) Equal(other NodePrivate) bool {
	return subtle.ConstantTimeCompare(n.key[:], other.key[:]) == 1
}

// IsZero reports whether k is the zero value.
func (n NodePrivate) IsZero() bool {
	return n.Equal(NodePrivate{})
}

func (n NodePrivate) Public() NodePublic {
	if n.IsZero() {
		panic("can't take the public key of a zero NodePrivate")
	}

	var ret NodePublic
	curve25519.ScalarBaseMult((*[32]byte)(&ret), (*[32]byte)(&n.key))
	return ret
}

// AppendText implements encoding.TextAppender.
func (n NodePrivate) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, nodePrivateHexPrefix, n.key[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (n NodePrivate) MarshalText() ([]byte, error) {
	return n.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodePrivate) UnmarshalText(b []byte) error {
	return parseHex(n.key[:], mem.B(b), mem.S(nodePrivateHexPrefix))
}

func UnmarshalPrivate(s string) (*NodePrivate, error) {
	if !strings.HasSuffix(s, "\"") && !strings.HasPrefix(s, "\"") {
		s = fmt.Sprintf("\"%s\"", s)
	}

	pub := new(NodePrivate)

	if err := json.Unmarshal([]byte(s), pub); err != nil {
		return nil, err
	}

	return pub, nil
}

func (n NodePrivate) Marshal() string {
	b, _ := json.Marshal(n)
	return string(b)
}
