package peernet

import (
	"net/netip"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/mailbox/types/dial"
	"github.com/edup2p/mailbox/types/key"
)

// Information describes how to reach a peer.
type Information struct {
	// The key the peer announces in its handshake, always set.
	Key key.NodePublic

	// Human-readable name, only used in logs.
	Name gonull.Nullable[string]

	// The domain of the peer, to look up if Addrs is empty.
	Domain gonull.Nullable[string]

	// Forced IPs to try to connect to, bypasses Domain DNS lookup
	Addrs []netip.Addr

	// Optional port override. (Default 7460)
	Port gonull.Nullable[uint16]
}

func (i Information) dialOpts() dial.Opts {
	opts := dial.Opts{
		Addrs: i.Addrs,
		Port:  DefaultPort,
	}

	if i.Domain.Valid {
		opts.Domain = i.Domain.Val
	}

	if i.Port.Valid {
		opts.Port = i.Port.Val
	}

	return opts
}

func (i Information) String() string {
	if i.Name.Valid {
		return i.Name.Val
	}
	return i.Key.Debug()
}
