package peernet

import (
	"bufio"

	"github.com/edup2p/mailbox/types/bin"
)

type FrameType byte

const (
	frameHello FrameType = iota // 32B public key + protocol version string

	frameMessage // message bytes

	// Pings can be sent by either side, and are answered with a pong
	framePing // 8B payload
	framePong // 8B payload

	// Keepalive frames sent by both sides at an interval
	frameKeepAlive // 0B
)

type PingData [8]byte

func readFrameHeader(reader *bufio.Reader) (typ FrameType, frameLen uint32, err error) {
	tb, err := reader.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	frameLen, err = bin.ReadUint32(reader)
	if err != nil {
		return 0, 0, err
	}
	return FrameType(tb), frameLen, nil
}

func writeFrameHeader(bw *bufio.Writer, typ FrameType, frameLen uint32) error {
	if err := bw.WriteByte(byte(typ)); err != nil {
		return err
	}
	return bin.WriteUint32(bw, frameLen)
}
