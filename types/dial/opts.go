package dial

import (
	"net/netip"
	"time"
)

const (
	DefaultConnectTimeout = time.Second * 30
)

type Opts struct {
	Domain string

	// If non-empty, overrides DNS lookup from Domain
	Addrs []netip.Addr

	// Always required, there is no default port.
	Port uint16

	// If zero, uses default of 30 seconds
	ConnectTimeout time.Duration
}

func (opts *Opts) SetDefaults() {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
}
