package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omenmarkets/core/internal/domain"
)

type stubRiskStore struct {
	mu        sync.Mutex
	inserted  []domain.SuspiciousTradeRecord
	failNext  int
	insertErr error
}

func (s *stubRiskStore) Insert(_ context.Context, rec domain.SuspiciousTradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return s.insertErr
	}
	s.inserted = append(s.inserted, rec)
	return nil
}

func (s *stubRiskStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

func (s *stubRiskStore) List(context.Context, string, domain.ListOpts) ([]domain.SuspiciousTradeRecord, error) {
	return nil, nil
}

func (s *stubRiskStore) ListBefore(context.Context, time.Time) ([]domain.SuspiciousTradeRecord, error) {
	return nil, nil
}

func (s *stubRiskStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var _ domain.RiskRecordStore = (*stubRiskStore)(nil)

type stubBus struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (b *stubBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *stubBus) StreamAppend(context.Context, string, []byte) error      { return nil }
func (b *stubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

var _ domain.SignalBus = (*stubBus)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord(id string) domain.SuspiciousTradeRecord {
	return domain.SuspiciousTradeRecord{
		ID:              id,
		UserID:          "u1",
		MarketID:        "m1",
		OptionID:        "o1",
		DetectionReason: domain.ReasonSuspiciousTradeThreshold,
		RiskScore:       75,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestRecord_InsertsAndPublishes(t *testing.T) {
	store := &stubRiskStore{}
	bus := &stubBus{}
	rec := NewRecorder(store, bus, discardLogger())

	rec.Record(context.Background(), testRecord("r1"))

	require.Equal(t, 1, store.count())
	assert.Len(t, bus.payloads, 1)
	assert.Empty(t, rec.retries)
}

func TestRecord_InsertFailureQueuesRetry(t *testing.T) {
	store := &stubRiskStore{failNext: 1, insertErr: errors.New("db down")}
	rec := NewRecorder(store, nil, discardLogger())

	rec.Record(context.Background(), testRecord("r1"))

	assert.Equal(t, 0, store.count())
	assert.Len(t, rec.retries, 1)
}

func TestRecord_NeverPanicsWithoutBus(t *testing.T) {
	store := &stubRiskStore{}
	rec := NewRecorder(store, nil, discardLogger())

	rec.Record(context.Background(), testRecord("r1"))
	assert.Equal(t, 1, store.count())
}

func TestRecord_PublishFailureIsIgnored(t *testing.T) {
	store := &stubRiskStore{}
	bus := &stubBus{err: errors.New("bus gone")}
	rec := NewRecorder(store, bus, discardLogger())

	rec.Record(context.Background(), testRecord("r1"))
	assert.Equal(t, 1, store.count())
}

func TestRun_DrainsQueuedRecords(t *testing.T) {
	store := &stubRiskStore{failNext: 1, insertErr: errors.New("db down")}
	rec := NewRecorder(store, nil, discardLogger())
	rec.retryInterval = 5 * time.Millisecond

	rec.Record(context.Background(), testRecord("r1"))
	require.Len(t, rec.retries, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rec.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, rec.retries)
}

func TestDrain_RequeuesPersistentFailures(t *testing.T) {
	store := &stubRiskStore{failNext: 3, insertErr: errors.New("db down")}
	rec := NewRecorder(store, nil, discardLogger())

	rec.Record(context.Background(), testRecord("r1")) // consumes 1 failure

	rec.drain(context.Background()) // fails again, re-queued
	assert.Len(t, rec.retries, 1)
	rec.drain(context.Background()) // third failure
	assert.Len(t, rec.retries, 1)
	rec.drain(context.Background()) // succeeds
	assert.Empty(t, rec.retries)
	assert.Equal(t, 1, store.count())
}
