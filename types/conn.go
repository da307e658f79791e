package types

import (
	"io"
	"time"
)

// MetaConn is the part of a net.Conn that connection owners need to manage its lifetime,
// without reading or writing through it.
type MetaConn interface {
	io.Closer
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}
