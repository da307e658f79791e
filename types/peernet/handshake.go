package peernet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/edup2p/mailbox/types/key"
)

var ErrIncompatibleVersion = errors.New("incompatible protocol version")

var compatible = mustConstraint(CompatibleVersions)

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(fmt.Sprintf("invalid version constraint %q: %s", c, err))
	}
	return cs
}

func writeHello(writer *bufio.Writer, me key.NodePublic, version string) error {
	if err := writeFrameHeader(writer, frameHello, uint32(key.Len+len(version))); err != nil {
		return err
	}

	if _, err := writer.Write(me[:]); err != nil {
		return err
	}

	if _, err := writer.WriteString(version); err != nil {
		return err
	}

	return writer.Flush()
}

func readHello(reader *bufio.Reader) (peer key.NodePublic, version *semver.Version, err error) {
	frType, frLen, err := readFrameHeader(reader)
	if err != nil {
		return
	}

	if frType != frameHello {
		err = fmt.Errorf("frame type was not hello, got %d", frType)
		return
	}

	if frLen <= key.Len {
		err = errors.New("short hello")
		return
	} else if frLen > maxHelloLen {
		err = errors.New("long hello")
		return
	}

	if _, err = io.ReadFull(reader, peer[:]); err != nil {
		return
	}

	vb := make([]byte, frLen-key.Len)
	if _, err = io.ReadFull(reader, vb); err != nil {
		return
	}

	if peer.IsZero() {
		err = errors.New("peer announced a zero key")
		return
	}

	if version, err = semver.NewVersion(string(vb)); err != nil {
		err = fmt.Errorf("invalid protocol version %q: %w", vb, err)
		return
	}

	if !compatible.Check(version) {
		err = fmt.Errorf("%w: peer has %s, we accept %s", ErrIncompatibleVersion, version, CompatibleVersions)
		return
	}

	return
}

// handshakeAccept runs the handshake on a connection that we accepted. We announce ourselves first.
func (s *Service) handshakeAccept(nc net.Conn, brw *bufio.ReadWriter) (key.NodePublic, error) {
	if err := nc.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return key.NodePublic{}, err
	}

	if err := writeHello(brw.Writer, s.pubKey, ProtocolVersion); err != nil {
		return key.NodePublic{}, fmt.Errorf("send hello: %w", err)
	}

	peer, version, err := readHello(brw.Reader)
	if err != nil {
		return key.NodePublic{}, fmt.Errorf("receive hello: %w", err)
	}

	return peer, s.finishHandshake(nc, peer, version)
}

// handshakeDial runs the handshake on a connection that we dialed.
func (s *Service) handshakeDial(nc net.Conn, brw *bufio.ReadWriter) (key.NodePublic, error) {
	if err := nc.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return key.NodePublic{}, err
	}

	peer, version, err := readHello(brw.Reader)
	if err != nil {
		return key.NodePublic{}, fmt.Errorf("receive hello: %w", err)
	}

	if err := writeHello(brw.Writer, s.pubKey, ProtocolVersion); err != nil {
		return key.NodePublic{}, fmt.Errorf("send hello: %w", err)
	}

	return peer, s.finishHandshake(nc, peer, version)
}

func (s *Service) finishHandshake(nc net.Conn, peer key.NodePublic, version *semver.Version) error {
	if peer == s.pubKey {
		return errors.New("connected to ourselves")
	}

	s.L().Debug("handshake done", "peer", peer.Debug(), "peer-version", version.String())

	// Handshake done, clear deadline.
	return nc.SetDeadline(time.Time{})
}
