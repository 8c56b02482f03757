package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubBus serves canned stream messages and hands out inert subscriptions.
// streamGate, when non-nil, blocks StreamRead until it is closed so tests can
// hold a backfill in flight.
type stubBus struct {
	subCh      chan []byte
	streamMsgs []domain.StreamMessage
	streamGate chan struct{}
}

func (b *stubBus) Publish(context.Context, string, []byte) error      { return nil }
func (b *stubBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	if b.subCh == nil {
		b.subCh = make(chan []byte)
	}
	return b.subCh, nil
}

func (b *stubBus) StreamRead(ctx context.Context, _, _ string, _ int) ([]domain.StreamMessage, error) {
	if b.streamGate != nil {
		select {
		case <-b.streamGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.streamMsgs, nil
}

var _ domain.SignalBus = (*stubBus)(nil)

func newTestClient() *client {
	return &client{
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		subs: map[string]bool{"prices": true},
	}
}

// A client that disconnects while its backfill read is still in flight must
// not bring the hub down: the late frames are dropped, never sent into a
// closed channel.
func TestBackfillPrices_ClientGoneBeforeReadCompletes(t *testing.T) {
	bus := &stubBus{
		streamMsgs: []domain.StreamMessage{{ID: "1-0", Payload: []byte(`{"event":"price_update"}`)}},
		streamGate: make(chan struct{}),
	}
	hub := NewHub(bus, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = hub.Run(ctx)
	}()

	c := newTestClient()
	hub.register <- c

	backfillDone := make(chan struct{})
	go func() {
		defer close(backfillDone)
		hub.backfillPrices(c)
	}()

	// Disconnect while StreamRead is still blocked, then let it finish.
	hub.unregister <- c
	close(bus.streamGate)

	select {
	case <-backfillDone:
	case <-time.After(time.Second):
		t.Fatal("backfill did not return after client disconnect")
	}

	cancel()
	<-runDone
}

func TestBackfillPrices_DeliversToConnectedClient(t *testing.T) {
	bus := &stubBus{
		streamMsgs: []domain.StreamMessage{
			{ID: "1-0", Payload: []byte(`a`)},
			{ID: "2-0", Payload: []byte(`b`)},
		},
	}
	hub := NewHub(bus, testLogger())

	c := newTestClient()
	hub.backfillPrices(c)

	require.Len(t, c.send, 2)
	assert.Equal(t, []byte(`a`), <-c.send)
	assert.Equal(t, []byte(`b`), <-c.send)
}

// Shutdown must release every registered client so its write pump can exit.
func TestRun_ShutdownReleasesClients(t *testing.T) {
	hub := NewHub(&stubBus{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = hub.Run(ctx)
	}()

	c := newTestClient()
	hub.register <- c
	cancel()

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("client done channel not closed on shutdown")
	}
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("hub run loop did not exit")
	}
	select {
	case <-hub.stopped:
	default:
		t.Fatal("hub stopped channel not closed on shutdown")
	}
}

// A bus subscriber stuck behind a full broadcast buffer must still exit when
// the hub shuts down.
func TestSubscribeToChannel_ExitsOnShutdownWhenBroadcastFull(t *testing.T) {
	bus := &stubBus{subCh: make(chan []byte, 1)}
	hub := NewHub(bus, testLogger())

	// Fill the broadcast buffer; nothing is draining it.
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- broadcastMsg{channel: "prices"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		hub.subscribeToChannel(ctx, "prices")
	}()

	bus.subCh <- []byte(`{"event":"price_update"}`)
	cancel()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("subscriber goroutine did not exit on shutdown")
	}
}
