package mailbox

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/edup2p/mailbox/types"
	"github.com/edup2p/mailbox/types/coro"
	"github.com/edup2p/mailbox/types/ifaces"
	"github.com/edup2p/mailbox/types/key"
	"github.com/stretchr/testify/assert"
)

// Test constants
const assertEventuallyTick time.Duration = 1 * time.Millisecond
const assertEventuallyTimeout time.Duration = 1000 * assertEventuallyTick

const testThreads = 3

type sentMessage struct {
	peer key.NodePublic
	data []byte
}

// fakeService keeps outgoing messages around, for the test to hand to a manager.
type fakeService struct {
	me key.NodePublic

	mu      sync.Mutex
	handler ifaces.MessageHandler
	sent    []sentMessage
}

func newFakeService() *fakeService {
	return &fakeService{me: key.NewNode().Public()}
}

func (f *fakeService) SendMessage(peer key.NodePublic, writer ifaces.Writer) {
	var buf bytes.Buffer
	if err := writer(&buf); err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{peer, buf.Bytes()})
}

func (f *fakeService) SetHandler(h ifaces.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeService) getHandler() ifaces.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeService) Connectivity() ifaces.ConnectivityService { return f }
func (f *fakeService) Me() key.NodePublic                       { return f.me }
func (f *fakeService) Peers() []key.NodePublic                  { return nil }

func (f *fakeService) take() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	sent := f.sent
	f.sent = nil
	return sent
}

func newTestManager() (*Manager, *fakeService) {
	svc := newFakeService()
	return NewManager(svc, coro.NewPool(testThreads)), svc
}

// on runs fn as a task on thread, and waits for it.
func on(t *testing.T, m *Manager, thread int, fn func(ctx context.Context)) {
	assert.NoError(t, m.Pool().Run(context.Background(), thread, fn))
}

func newMailbox(t *testing.T, m *Manager, thread int, cb Callback) *Mailbox {
	var mb *Mailbox
	on(t, m, thread, func(ctx context.Context) {
		mb = New(ctx, m, cb)
	})
	return mb
}

func destroy(t *testing.T, mb *Mailbox) {
	on(t, mb.manager, mb.thread, mb.Destroy)
}

func payload(b []byte) ifaces.Writer {
	return func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	}
}

// recorder is a callback that stores what it reads, and on which thread.
type recorder struct {
	pool *coro.Pool

	mu      sync.Mutex
	calls   int
	data    [][]byte
	threads []int
}

func (r *recorder) callback(ctx context.Context, stream io.Reader, done func()) {
	defer done()

	b, _ := io.ReadAll(stream)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.data = append(r.data, b)
	r.threads = append(r.threads, r.pool.Current(ctx))
}

func (r *recorder) snapshot() (int, [][]byte, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([][]byte(nil), r.data...), append([]int(nil), r.threads...)
}

func unusedCallback(_ context.Context, _ io.Reader, done func()) {
	done()
}

// captureLogs sends the default logger to a buffer for the duration of the test.
func captureLogs(t *testing.T) *syncBuffer {
	buf := &syncBuffer{}

	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: types.LevelTrace})))
	t.Cleanup(func() {
		slog.SetDefault(prev)
	})

	return buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
