// Package peernet carries messages between peers over TCP.
//
// Every pair of peers keeps at most one connection, which is dialed lazily on the first message to a peer
// in the directory, or accepted from a listener. Messages arriving on one connection are handed to the
// handler one at a time, in order.
package peernet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/edup2p/mailbox/types"
	"github.com/edup2p/mailbox/types/dial"
	"github.com/edup2p/mailbox/types/ifaces"
	"github.com/edup2p/mailbox/types/key"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	"github.com/sourcegraph/conc"
	"golang.org/x/exp/maps"
)

var (
	ErrServiceClosed = errors.New("service closed")

	errReplaced  = errors.New("replaced by a newer connection")
	errDuplicate = errors.New("duplicate connection")
)

// Service is the TCP transport of one node. It implements ifaces.MessageService and ifaces.ConnectivityService.
type Service struct {
	ctx context.Context
	ccc context.CancelCauseFunc

	pubKey key.NodePublic

	handlerMu sync.RWMutex
	handler   ifaces.MessageHandler

	mu        sync.RWMutex
	conns     map[key.NodePublic]*Conn
	directory map[key.NodePublic]Information

	loopback *types.Queue[[]byte]

	// acceptLimit is keyed by remote IP
	acceptLimit limiter.Store

	wg *conc.WaitGroup
}

func NewService(ctx context.Context, privKey key.NodePrivate) *Service {
	ctx, ccc := context.WithCancelCause(ctx)

	store, err := memorystore.New(&memorystore.Config{
		// Number of tokens allowed per interval.
		Tokens: AcceptBurst,

		// Interval until tokens reset.
		Interval: AcceptInterval,

		SweepInterval: 1 * time.Minute,
		SweepMinTTL:   1 * time.Minute,
	})
	if err != nil {
		panic(err)
	}

	s := &Service{
		ctx: ctx,
		ccc: ccc,

		pubKey: privKey.Public(),

		conns:     make(map[key.NodePublic]*Conn),
		directory: make(map[key.NodePublic]Information),

		loopback: types.NewQueue[[]byte](SendQueueLimit),

		acceptLimit: store,

		wg: conc.NewWaitGroup(),
	}

	s.wg.Go(s.runLoopback)

	return s
}

func (s *Service) L() *slog.Logger {
	return slog.With("peernet", s.pubKey.Debug())
}

// Close disconnects from all peers, and waits until all goroutines of the service have stopped.
//
// Handlers still busy with a message are waited for as well.
func (s *Service) Close() {
	s.ccc(ErrServiceClosed)
	s.wg.Wait()

	if err := s.acceptLimit.Close(context.Background()); err != nil {
		s.L().Debug("error closing accept limiter", "err", err)
	}
}

func (s *Service) Me() key.NodePublic {
	return s.pubKey
}

// Peers returns the peers with an established connection, sorted.
func (s *Service) Peers() []key.NodePublic {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := maps.Keys(s.conns)
	peers = slices.DeleteFunc(peers, func(k key.NodePublic) bool {
		return !s.conns[k].established.Load()
	})
	slices.SortFunc(peers, key.NodePublic.Compare)

	return peers
}

func (s *Service) Connectivity() ifaces.ConnectivityService {
	return s
}

func (s *Service) SetHandler(h ifaces.MessageHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	s.handler = h
}

func (s *Service) getHandler() ifaces.MessageHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()

	return s.handler
}

func (s *Service) deliver(ctx context.Context, src key.NodePublic, r io.Reader) error {
	h := s.getHandler()
	if h == nil {
		s.L().Debug("dropping message, no handler installed", "from-peer", src.Debug())
		return nil
	}

	return h.OnMessage(ctx, src, r)
}

// SetPeers replaces the directory of peers we can dial. Existing connections are left alone.
func (s *Service) SetPeers(infos []Information) {
	dir := make(map[key.NodePublic]Information, len(infos))

	for _, info := range infos {
		if info.Key.IsZero() {
			s.L().Warn("ignoring peer without key", "peer", info.String())
			continue
		}
		if info.Key == s.pubKey {
			continue
		}
		dir[info.Key] = info
	}

	s.mu.Lock()
	s.directory = dir
	s.mu.Unlock()

	s.L().Info("peer directory updated", "peers", len(dir))
}

// Known returns the peer directory, sorted by key.
func (s *Service) Known() []Information {
	s.mu.RLock()
	infos := maps.Values(s.directory)
	s.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Information) int {
		return a.Key.Compare(b.Key)
	})

	return infos
}

func (s *Service) SendMessage(peer key.NodePublic, writer ifaces.Writer) {
	if s.ctx.Err() != nil {
		s.L().Warn("dropping message, service closed", "to-peer", peer.Debug())
		return
	}

	var buf bytes.Buffer
	if err := writer(&buf); err != nil {
		s.L().Error("dropping message, writer failed", "to-peer", peer.Debug(), "err", err)
		return
	}

	if buf.Len() > MaxMessageSize {
		s.L().Warn("dropping message, too large", "to-peer", peer.Debug(), "size", buf.Len())
		return
	}

	if peer == s.pubKey {
		if !s.loopback.Push(buf.Bytes()) {
			s.L().Warn("dropping message, loopback queue full")
		}
		return
	}

	c := s.connFor(peer)
	if c == nil {
		s.L().Warn("dropping message, no route to peer", "to-peer", peer.Debug())
		return
	}

	if !c.Queue(buf.Bytes()) {
		s.L().Warn("dropping message, send queue full or connection closing", "to-peer", peer.Debug())
	}
}

// connFor returns the live connection to peer, starting to dial one if there is none.
func (s *Service) connFor(peer key.NodePublic) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.conns[peer]; c != nil && c.ctx.Err() == nil {
		return c
	}

	info, ok := s.directory[peer]
	if !ok {
		return nil
	}

	c := newConn(s, peer, s.pubKey)
	s.conns[peer] = c

	s.wg.Go(func() {
		s.dialAndRun(c, info)
	})

	return c
}

func (s *Service) dialAndRun(c *Conn, info Information) {
	defer s.unregisterConn(c)

	c.L().Debug("dialing peer", "peer-info", info.String())

	nc, err := dial.TCP(c.ctx, info.dialOpts())
	if err != nil {
		c.L().Warn("could not dial peer", "err", err)
		c.Cancel(fmt.Errorf("dial: %w", err))
		return
	}

	brw := bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))

	peer, err := s.handshakeDial(nc, brw)
	if err == nil && peer != c.peer {
		err = fmt.Errorf("dialed %s, but it is %s", c.peer.Debug(), peer.Debug())
	}
	if err != nil {
		c.L().Warn("handshake failed", "err", err)
		c.Cancel(fmt.Errorf("handshake: %w", err))
		if cerr := nc.Close(); cerr != nil {
			c.L().Debug("error closing connection", "err", cerr)
		}
		return
	}

	c.attach(nc, brw)

	if err := c.Run(); err != nil {
		c.L().Debug("outbound connection ended", "err", err)
	}
}

// Listen accepts connections from ln until the service is closed, which also closes ln.
func (s *Service) Listen(ln net.Listener) error {
	s.wg.Go(func() {
		<-s.ctx.Done()
		if err := ln.Close(); err != nil {
			s.L().Debug("error closing listener", "err", err)
		}
	})

	s.L().Info("listening", "addr", ln.Addr().String())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.allowAccept(nc) {
			s.L().Debug("rejecting inbound connection, too many attempts", "remote-addr", nc.RemoteAddr().String())
			_ = nc.Close()
			continue
		}

		s.wg.Go(func() {
			if err := s.Accept(nc); err != nil {
				s.L().Debug("inbound connection ended", "remote-addr", nc.RemoteAddr().String(), "err", err)
			}
		})
	}
}

func (s *Service) allowAccept(nc net.Conn) bool {
	ap, err := netip.ParseAddrPort(nc.RemoteAddr().String())
	if err != nil {
		return true
	}

	_, _, _, ok, err := s.acceptLimit.Take(s.ctx, ap.Addr().Unmap().String())
	if err != nil {
		// the store is closed along with the service
		return false
	}

	return ok
}

// Accept runs the handshake on an inbound connection, and serves it until it ends.
func (s *Service) Accept(nc net.Conn) error {
	brw := bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))

	peer, err := s.handshakeAccept(nc, brw)
	if err != nil {
		_ = nc.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	c := newConn(s, peer, peer)
	c.attach(nc, brw)

	if !s.registerConn(c) {
		c.Cancel(errDuplicate)
		_ = nc.Close()
		return errDuplicate
	}
	defer s.unregisterConn(c)

	return c.Run()
}

// registerConn makes c the connection to its peer, unless the existing one is preferred.
func (s *Service) registerConn(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old := s.conns[c.peer]; old != nil && old.ctx.Err() == nil {
		if !c.preferredOver(old) {
			c.L().Debug("keeping existing connection", "dialed-by", old.dialer.Debug())
			return false
		}

		old.handOver(c)
		old.Cancel(errReplaced)
	}

	s.conns[c.peer] = c
	return true
}

func (s *Service) unregisterConn(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns[c.peer] == c {
		delete(s.conns, c.peer)
	}

	c.Cancel(errors.New("unregistered"))
}

func (s *Service) runLoopback() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.loopback.Wake():
			for _, msg := range s.loopback.Drain() {
				if err := s.deliver(s.ctx, s.pubKey, bytes.NewReader(msg)); err != nil {
					s.L().Error("loopback handler rejected message, dropping queued loopback messages", "err", err)
					s.loopback.Drain()
					break
				}
			}
		}
	}
}
