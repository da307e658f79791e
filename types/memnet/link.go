package memnet

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/edup2p/mailbox/types"
)

// link carries messages from one node to another.
type link struct {
	ctx context.Context
	ccc context.CancelCauseFunc

	src, dst *Node

	queue *types.Queue[[]byte]
}

func newLink(src, dst *Node) *link {
	ctx, ccc := context.WithCancelCause(src.ctx)

	return &link{
		ctx:   ctx,
		ccc:   ccc,
		src:   src,
		dst:   dst,
		queue: types.NewQueue[[]byte](LinkQueueLimit),
	}
}

func (l *link) L() *slog.Logger {
	return slog.With("memnet-link", fmt.Sprintf("%s->%s", l.src.me.Debug(), l.dst.me.Debug()))
}

func (l *link) run() {
	defer l.src.dropLink(l)

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.queue.Wake():
			for _, msg := range l.queue.Drain() {
				if err := l.deliver(msg); err != nil {
					l.L().Warn("closing link", "err", err)
					l.ccc(err)
					return
				}
			}
		}
	}
}

func (l *link) deliver(msg []byte) error {
	if err := context.Cause(l.dst.ctx); err != nil {
		return fmt.Errorf("destination gone: %w", err)
	}

	h := l.dst.getHandler()
	if h == nil {
		l.L().Debug("dropping message, destination has no handler")
		return nil
	}

	if err := h.OnMessage(l.ctx, l.src.me, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("handler rejected message: %w", err)
	}

	return nil
}

