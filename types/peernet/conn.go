package peernet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/edup2p/mailbox/types"
	"github.com/edup2p/mailbox/types/key"
)

// Conn is a connection to one peer, dialed or accepted.
type Conn struct {
	ctx context.Context
	// context cancel cause
	ccc context.CancelCauseFunc

	svc *Service

	peer key.NodePublic
	// dialer is the node that opened the connection, either us or peer.
	dialer key.NodePublic

	sendQueue *types.Queue[[]byte]

	// An asynchronous pong return channel, hopping a pong between RunReceiver and RunSender
	sendPongCh chan PingData

	runCheck    types.RunCheck
	established atomic.Bool

	// Set by attach, before Run.
	netConn types.MetaConn
	// Not thread-safe; owned by RunReceiver
	buffReader *bufio.Reader
	// Not thread-safe; owned by RunSender
	buffWriter *bufio.Writer
}

func newConn(svc *Service, peer, dialer key.NodePublic) *Conn {
	ctx, ccc := context.WithCancelCause(svc.ctx)

	return &Conn{
		ctx: ctx,
		ccc: ccc,

		svc:    svc,
		peer:   peer,
		dialer: dialer,

		sendQueue:  types.NewQueue[[]byte](SendQueueLimit),
		sendPongCh: make(chan PingData, 1),

		runCheck: types.MakeRunCheck(),
	}
}

func (c *Conn) attach(nc types.MetaConn, brw *bufio.ReadWriter) {
	c.netConn = nc
	c.buffReader = brw.Reader
	c.buffWriter = brw.Writer
}

func (c *Conn) Peer() key.NodePublic {
	return c.peer
}

func (c *Conn) L() *slog.Logger {
	return c.svc.L().With("peer-conn", c.peer.Debug())
}

func (c *Conn) Cancel(cause error) {
	c.ccc(cause)
}

// Queue queues a message for sending, and reports false if it was dropped.
//
// Queue will be called by other goroutines than the Conn-owning Run goroutine.
func (c *Conn) Queue(msg []byte) bool {
	if c.ctx.Err() != nil {
		return false
	}

	return c.sendQueue.Push(msg)
}

// preferredOver reports whether c should replace old, another connection to the same peer.
//
// Both sides must come to the same decision, so the connection opened by the larger key wins.
// Out of two connections opened by the same side, the newer one wins.
func (c *Conn) preferredOver(old *Conn) bool {
	if c.dialer == old.dialer {
		return true
	}

	return c.dialer.Compare(old.dialer) > 0
}

// handOver moves messages still queued on c to next.
func (c *Conn) handOver(next *Conn) {
	for _, msg := range c.sendQueue.Drain() {
		next.sendQueue.Push(msg)
	}
}

// Run blocks until the connection ends, and returns why.
func (c *Conn) Run() error {
	if !c.runCheck.CheckOrMark() {
		panic("peernet: connection ran twice")
	}

	defer func() {
		if err := c.netConn.Close(); err != nil {
			c.L().Debug("error closing connection", "err", err)
		}
	}()

	c.established.Store(true)
	c.L().Info("peer connected", "dialed-by", c.dialer.Debug())

	c.svc.wg.Go(c.RunReceiver)
	c.svc.wg.Go(c.RunSender)

	<-c.ctx.Done()

	c.established.Store(false)

	err := context.Cause(c.ctx)
	c.L().Info("peer disconnected", "reason", err)

	return err
}

func (c *Conn) RunReceiver() {
	defer func() {
		if v := recover(); v != nil {
			c.ccc(fmt.Errorf("receiver panicked: %s", v))
		}
	}()

	for {
		c.setReadDeadline()

		frType, frLen, err := readFrameHeader(c.buffReader)

		if err != nil {
			if errors.Is(err, io.EOF) {
				c.ccc(fmt.Errorf("reader: read EOF"))
				return
			}
			c.ccc(fmt.Errorf("reader: read error: peer %s: readFrameHeader: %w", c.peer.HexString(), err))
			return
		}

		// First see if the context has been cancelled
		if types.IsContextDone(c.ctx) {
			return
		}

		switch frType {
		case frameMessage:
			err = c.handleMessage(frLen)
		case framePing:
			err = c.handlePing(frLen)
		case framePong, frameKeepAlive:
			_, err = io.CopyN(io.Discard, c.buffReader, int64(frLen))
		default:
			err = c.handleUnknownFrame(frType, frLen)
		}

		if err != nil {
			c.ccc(err)
			return
		}
	}
}

func (c *Conn) setReadDeadline() {
	if err := c.netConn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		c.L().Debug("could not set read deadline", "err", err)
	}
}

func (c *Conn) handleMessage(frLen uint32) error {
	if frLen > MaxMessageSize {
		return fmt.Errorf("message longer (%d) than max of %v", frLen, MaxMessageSize)
	}

	// The handler decides how long it takes to read the message.
	if err := c.netConn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}

	body := &io.LimitedReader{R: c.buffReader, N: int64(frLen)}

	herr := c.svc.deliver(c.ctx, c.peer, body)

	// Skip whatever the handler left unread, so the next frame header lines up.
	if _, err := io.Copy(io.Discard, body); err != nil {
		return fmt.Errorf("discarding rest of message: %w", err)
	}

	if herr != nil {
		return fmt.Errorf("handler rejected message: %w", herr)
	}

	return nil
}

func (c *Conn) handlePing(frLen uint32) error {
	var m PingData
	if frLen < uint32(len(m)) {
		return fmt.Errorf("short ping: %v", frLen)
	}
	if frLen > maxPingLen {
		// unreasonably extra large. We leave some extra
		// space for future extensibility, but not too much.
		return fmt.Errorf("ping body too large: %v", frLen)
	}
	_, err := io.ReadFull(c.buffReader, m[:])
	if err != nil {
		return err
	}
	if extra := int64(frLen) - int64(len(m)); extra > 0 {
		_, err = io.CopyN(io.Discard, c.buffReader, extra)
	}
	select {
	case c.sendPongCh <- m:
	default:
		// They're pinging too fast. Ignore.
	}

	return err
}

func (c *Conn) handleUnknownFrame(frameType FrameType, frameLength uint32) error {
	c.L().Warn("got unknown frame type", "frame-type", frameType)

	// Discard the frame, we can't do much with it
	_, err := io.CopyN(io.Discard, c.buffReader, int64(frameLength))
	return err
}

func (c *Conn) RunSender() {
	jitter := time.Duration(rand.Intn(5000)) * time.Millisecond
	keepAliveTicker := time.NewTicker(KeepAlive + jitter)
	defer keepAliveTicker.Stop()
	defer func() {
		if v := recover(); v != nil {
			c.ccc(fmt.Errorf("sender panicked: %s", v))
		}
	}()

	var werr error // last write error
	for {
		if werr != nil {
			c.ccc(fmt.Errorf("sender write error: %w", werr))
			return
		}

		select {
		case <-c.ctx.Done():
			return
		case <-c.sendQueue.Wake():
			for _, msg := range c.sendQueue.Drain() {
				if werr = c.sendMessage(msg); werr != nil {
					break
				}
			}
		case data := <-c.sendPongCh:
			werr = c.sendPong(data)
		case <-keepAliveTicker.C:
			werr = c.sendKeepAlive()
		}

		// Everything above only fills the buffer.
		if werr == nil {
			werr = c.buffWriter.Flush()
		}
	}
}

func (c *Conn) setWriteDeadline() {
	if err := c.netConn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		c.L().Debug("could not set write deadline", "err", err)
	}
}

// sendKeepAlive sends a keep-alive frame, without flushing.
func (c *Conn) sendKeepAlive() error {
	c.setWriteDeadline()

	return writeFrameHeader(c.buffWriter, frameKeepAlive, 0)
}

func (c *Conn) sendMessage(data []byte) error {
	c.setWriteDeadline()

	if err := writeFrameHeader(c.buffWriter, frameMessage, uint32(len(data))); err != nil {
		return err
	}

	_, err := c.buffWriter.Write(data)
	return err
}

func (c *Conn) sendPong(data PingData) error {
	c.setWriteDeadline()

	if err := writeFrameHeader(c.buffWriter, framePong, uint32(len(data))); err != nil {
		return err
	}
	_, err := c.buffWriter.Write(data[:])
	return err
}
