package dial

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func listen(t *testing.T) (net.Listener, uint16) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	return ln, uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestTCPPicksWorkingAddress(t *testing.T) {
	_, port := listen(t)

	conn, err := TCP(context.Background(), Opts{
		Addrs: []netip.Addr{
			// the listener is bound to 127.0.0.1 only
			netip.MustParseAddr("127.0.0.2"),
			netip.MustParseAddr("127.0.0.1"),
		},
		Port:           port,
		ConnectTimeout: 5 * time.Second,
	})

	assert.NoError(t, err)
	if conn != nil {
		_ = conn.Close()
	}
}

func TestTCPAllFail(t *testing.T) {
	ln, port := listen(t)
	_ = ln.Close()

	_, err := TCP(context.Background(), Opts{
		Addrs:          []netip.Addr{netip.MustParseAddr("127.0.0.1")},
		Port:           port,
		ConnectTimeout: 5 * time.Second,
	})

	assert.Error(t, err)
}

func TestTCPNeedsPortAndTarget(t *testing.T) {
	_, err := TCP(context.Background(), Opts{Addrs: []netip.Addr{netip.MustParseAddr("127.0.0.1")}})
	assert.Error(t, err)

	_, err = TCP(context.Background(), Opts{Port: 1})
	assert.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	opts := Opts{}
	opts.SetDefaults()

	assert.Equal(t, DefaultConnectTimeout, opts.ConnectTimeout)
}
