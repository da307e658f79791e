package peernet

import (
	"time"

	"github.com/edup2p/mailbox/types/key"
)

const (
	// ProtocolVersion is announced to peers during the handshake.
	ProtocolVersion = "1.0.0"

	// CompatibleVersions is the range of peer versions we talk to.
	CompatibleVersions = "^1"
)

const (
	DefaultPort uint16 = 7460

	MaxMessageSize   = 16 << 20
	KeepAlive        = 15 * time.Second
	ReadTimeout      = 3 * KeepAlive
	WriteTimeout     = 5 * time.Second
	HandshakeTimeout = 10 * time.Second
	SendQueueLimit   = 4096 // messages buffered for sending, per peer

	// Inbound connections accepted per remote IP, per AcceptInterval
	AcceptBurst    = 20
	AcceptInterval = 10 * time.Second

	maxHelloLen = key.Len + 64
	maxPingLen  = 1000
)
