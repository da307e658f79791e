package peernet

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/edup2p/mailbox/types/key"
	"github.com/stretchr/testify/assert"
)

func helloBytes(t *testing.T, k key.NodePublic, version string) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	assert.NoError(t, writeHello(w, k, version))
	return buf.Bytes()
}

func TestHelloRoundTrip(t *testing.T) {
	k := key.NewNode().Public()

	b := helloBytes(t, k, ProtocolVersion)
	assert.Equal(t, byte(frameHello), b[0])
	assert.Len(t, b, 1+4+key.Len+len(ProtocolVersion))

	peer, version, err := readHello(bufio.NewReader(bytes.NewReader(b)))
	assert.NoError(t, err)
	assert.Equal(t, k, peer)
	assert.Equal(t, ProtocolVersion, version.String())
}

func TestHelloAcceptsCompatibleVersions(t *testing.T) {
	k := key.NewNode().Public()

	for _, v := range []string{"1.0.0", "1.4.2", "1.99.0"} {
		_, _, err := readHello(bufio.NewReader(bytes.NewReader(helloBytes(t, k, v))))
		assert.NoError(t, err, v)
	}
}

func TestHelloRejects(t *testing.T) {
	k := key.NewNode().Public()

	_, _, err := readHello(bufio.NewReader(bytes.NewReader(helloBytes(t, k, "2.0.0"))))
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	_, _, err = readHello(bufio.NewReader(bytes.NewReader(helloBytes(t, k, "0.9.0"))))
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	_, _, err = readHello(bufio.NewReader(bytes.NewReader(helloBytes(t, k, "not-a-version"))))
	assert.Error(t, err)

	_, _, err = readHello(bufio.NewReader(bytes.NewReader(helloBytes(t, key.NodePublic{}, ProtocolVersion))))
	assert.Error(t, err)

	// no version at all
	_, _, err = readHello(bufio.NewReader(bytes.NewReader(helloBytes(t, k, ""))))
	assert.Error(t, err)

	// not a hello frame
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	assert.NoError(t, writeFrameHeader(w, frameMessage, 0))
	assert.NoError(t, w.Flush())
	_, _, err = readHello(bufio.NewReader(&buf))
	assert.Error(t, err)
}

func TestAcceptRejectsIncompatiblePeer(t *testing.T) {
	s := NewService(context.Background(), key.NewNode())
	defer s.Close()

	server, client := net.Pipe()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Accept(server)
	}()

	// the accepting side announces itself first
	cr := bufio.NewReader(client)
	peer, _, err := readHello(cr)
	assert.NoError(t, err)
	assert.Equal(t, s.Me(), peer)

	_, err = client.Write(helloBytes(t, key.NewNode().Public(), "2.1.0"))
	assert.NoError(t, err)

	assert.ErrorIs(t, <-errCh, ErrIncompatibleVersion)
}

func TestAcceptRejectsOurselves(t *testing.T) {
	s := NewService(context.Background(), key.NewNode())
	defer s.Close()

	server, client := net.Pipe()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Accept(server)
	}()

	_, _, err := readHello(bufio.NewReader(client))
	assert.NoError(t, err)

	_, err = client.Write(helloBytes(t, s.Me(), ProtocolVersion))
	assert.NoError(t, err)

	assert.Error(t, <-errCh)
}
