package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/edup2p/mailbox/types/coro"
	"github.com/edup2p/mailbox/types/key"
	"github.com/edup2p/mailbox/types/memnet"
	"github.com/stretchr/testify/assert"
)

// deliver hands every message the fake service collected to the manager, like a single connection would.
func deliver(t *testing.T, m *Manager, svc *fakeService) {
	for _, msg := range svc.take() {
		assert.Equal(t, svc.Me(), msg.peer)
		assert.NoError(t, m.OnMessage(context.Background(), svc.Me(), bytes.NewReader(msg.data)))
	}
}

func TestSendWritesEnvelope(t *testing.T) {
	m, svc := newTestManager()

	m.Send(NewAddress(svc.Me(), 2, 0x0102030405060708), payload([]byte{0xAA}))

	sent := svc.take()
	assert.Len(t, sent, 1)
	assert.Equal(t, []byte{
		0, 0, 0, 2,
		1, 2, 3, 4, 5, 6, 7, 8,
		0xAA,
	}, sent[0].data)
}

func TestSendNilWriter(t *testing.T) {
	m, svc := newTestManager()

	m.Send(NewAddress(svc.Me(), 0, 1), nil)

	sent := svc.take()
	assert.Len(t, sent, 1)
	assert.Len(t, sent[0].data, EnvelopeLen)
}

func TestSendToNilPanics(t *testing.T) {
	m, svc := newTestManager()

	assert.Panics(t, func() {
		m.Send(NilAddress, payload([]byte{1}))
	})
	assert.Panics(t, func() {
		m.Send(Address{}, payload([]byte{1}))
	})
	assert.Empty(t, svc.take())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("no space")
}

func TestEnvelopeWriteFailure(t *testing.T) {
	err := writeMessage(failingWriter{}, NewAddress(key.NewNode().Public(), 0, 0), payload([]byte{1}))
	assert.ErrorIs(t, err, ErrEnvelopeWrite)

	err = writeMessage(io.Discard, NewAddress(key.NewNode().Public(), -1, 0), nil)
	assert.NoError(t, err)
}

func TestSendAndDispatch(t *testing.T) {
	m, svc := newTestManager()

	rec := &recorder{pool: m.Pool()}
	a := newMailbox(t, m, 0, rec.callback)
	addr := a.Address()

	// sent from a task on another thread
	on(t, m, 1, func(ctx context.Context) {
		m.Send(addr, payload([]byte{1, 2, 3, 4}))
	})

	deliver(t, m, svc)

	calls, data, threads := rec.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, [][]byte{{1, 2, 3, 4}}, data)
	assert.Equal(t, []int{0}, threads)

	destroy(t, a)
}

func TestDispatchToDestroyedMailbox(t *testing.T) {
	logs := captureLogs(t)
	m, svc := newTestManager()

	rec := &recorder{pool: m.Pool()}
	a := newMailbox(t, m, 0, rec.callback)
	addr := a.Address()

	m.Send(addr, payload([]byte{1, 2, 3, 4}))
	destroy(t, a)

	deliver(t, m, svc)

	calls, _, _ := rec.snapshot()
	assert.Equal(t, 0, calls)
	assert.Contains(t, logs.String(), addr.String())
	assert.Contains(t, logs.String(), "no longer exists")
	assert.Contains(t, logs.String(), "level=DEBUG")
}

func TestDispatchToUnassignedMailbox(t *testing.T) {
	logs := captureLogs(t)
	m, svc := newTestManager()

	addr := NewAddress(svc.Me(), 1, 7)
	m.Send(addr, payload([]byte{1}))

	deliver(t, m, svc)

	assert.Contains(t, logs.String(), addr.String())
	assert.Contains(t, logs.String(), "never assigned")
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestMalformedEnvelope(t *testing.T) {
	m, svc := newTestManager()

	for _, in := range [][]byte{
		nil,
		{0, 0, 0},
		{0, 0, 0, 0, 1, 2},
		// thread out of range
		{0, 0, 0, testThreads, 0, 0, 0, 0, 0, 0, 0, 0},
		{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0},
	} {
		err := m.OnMessage(context.Background(), svc.Me(), bytes.NewReader(in))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, "%v", in)
	}
}

func TestDispatchWaitsForCompletion(t *testing.T) {
	m, svc := newTestManager()

	release := make(chan struct{})
	var started atomic.Bool

	a := newMailbox(t, m, 0, func(ctx context.Context, r io.Reader, done func()) {
		started.Store(true)
		// suspends without holding thread 0
		_ = m.Pool().Wait(ctx, release)
		done()
	})

	m.Send(a.Address(), nil)
	msgs := svc.take()

	returned := make(chan error)
	go func() {
		returned <- m.OnMessage(context.Background(), svc.Me(), bytes.NewReader(msgs[0].data))
	}()

	assert.Eventually(t, started.Load, assertEventuallyTimeout, assertEventuallyTick)

	// thread 0 stays usable while the callback is suspended
	on(t, m, 0, func(ctx context.Context) {
		_, ok := m.Table(0).Find(ctx, a.ID())
		assert.True(t, ok)
	})

	select {
	case <-returned:
		assert.Fail(t, "dispatch returned before the callback signalled completion")
	default:
	}

	close(release)
	assert.NoError(t, <-returned)

	destroy(t, a)
}

func TestDispatchOutlivesCancelledContext(t *testing.T) {
	m, svc := newTestManager()

	release := make(chan struct{})
	started := make(chan struct{})
	got := make(chan string, 1)

	a := newMailbox(t, m, 1, func(ctx context.Context, r io.Reader, done func()) {
		defer done()

		first := make([]byte, 1)
		_, err := io.ReadFull(r, first)
		assert.NoError(t, err)
		close(started)

		m.Pool().Blocking(ctx, func() { <-release })

		rest, err := io.ReadAll(r)
		assert.NoError(t, err)
		got <- string(first) + string(rest)
	})

	m.Send(a.Address(), payload([]byte("ABCD")))
	msgs := svc.take()

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan error, 1)
	go func() {
		returned <- m.OnMessage(ctx, svc.Me(), bytes.NewReader(msgs[0].data))
	}()

	<-started
	cancel()

	assert.Never(t, func() bool {
		return len(returned) > 0
	}, 20*assertEventuallyTick, assertEventuallyTick)

	close(release)
	assert.NoError(t, <-returned)
	assert.Equal(t, "ABCD", <-got)

	destroy(t, a)
}

func TestDoneTwicePanics(t *testing.T) {
	m, svc := newTestManager()

	var panicked atomic.Bool

	a := newMailbox(t, m, 0, func(_ context.Context, _ io.Reader, done func()) {
		done()
		panicked.Store(assert.Panics(t, done))
	})

	m.Send(a.Address(), nil)
	deliver(t, m, svc)

	assert.Eventually(t, panicked.Load, assertEventuallyTimeout, assertEventuallyTick)

	destroy(t, a)
}

func TestConcurrentSendsDoNotMix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network := memnet.NewNetwork()
	pool := coro.NewPool(testThreads)

	nodeA, err := network.Join(ctx, key.NewNode().Public())
	assert.NoError(t, err)
	nodeB, err := network.Join(ctx, key.NewNode().Public())
	assert.NoError(t, err)

	sender := NewManager(nodeA, pool)
	receiver := NewManager(nodeB, coro.NewPool(testThreads))

	const boxes = 8
	const perBox = 20

	recs := make([]*recorder, boxes)
	mbs := make([]*Mailbox, boxes)
	for i := range boxes {
		recs[i] = &recorder{pool: receiver.Pool()}
		mbs[i] = newMailbox(t, receiver, 0, recs[i].callback)
	}

	var wg sync.WaitGroup
	for i := range boxes {
		wg.Add(1)

		addr := mbs[i].Address()
		pool.Spawn(ctx, i%testThreads, func(ctx context.Context) {
			defer wg.Done()

			for j := range perBox {
				sender.Send(addr, payload([]byte(fmt.Sprintf("box %d message %d", addr.ID(), j))))
			}
		})
	}
	wg.Wait()

	for i := range boxes {
		rec := recs[i]

		assert.Eventually(t, func() bool {
			calls, _, _ := rec.snapshot()
			return calls == perBox
		}, assertEventuallyTimeout, assertEventuallyTick)

		_, data, threads := rec.snapshot()
		for j, d := range data {
			// one sender per box, over one link, so in order
			assert.Equal(t, fmt.Sprintf("box %d message %d", mbs[i].ID(), j), string(d))
			assert.Equal(t, 0, threads[j])
		}
	}

	for _, mb := range mbs {
		destroy(t, mb)
	}
	receiver.Close(ctx)
	sender.Close(ctx)
}

func TestCloseWithLiveMailboxesPanics(t *testing.T) {
	m, svc := newTestManager()

	mb := newMailbox(t, m, 1, unusedCallback)

	assert.PanicsWithValue(t,
		fmt.Sprintf("mailbox: manager closed with 1 live mailboxes on thread 1 (ids [%d]); destroy them before closing", mb.ID()),
		func() {
			m.Close(context.Background())
		},
	)
	assert.NotNil(t, svc.getHandler())

	destroy(t, mb)

	assert.NotPanics(t, func() {
		m.Close(context.Background())
	})
	assert.Nil(t, svc.getHandler())
}
