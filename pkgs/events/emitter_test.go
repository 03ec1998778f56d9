package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEmitter(t *testing.T, cfg *EmitterConfig) *Emitter {
	t.Helper()
	e := NewEmitter(cfg)
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func TestEmitter_DeliversToMatchingSubscribers(t *testing.T) {
	e := startEmitter(t, &EmitterConfig{
		BufferSize:   10,
		MaxWorkers:   2,
		EventTimeout: time.Second,
		SessionID:    "session-1",
	})

	got := make(chan *Event, 4)
	require.NoError(t, e.Subscribe(&Subscriber{
		ID:      "submissions",
		Types:   []EventType{EventRecordSubmitted},
		Handler: func(ev *Event) { got <- ev },
	}))

	var others atomic.Int32
	require.NoError(t, e.Subscribe(&Subscriber{
		ID:      "ledger",
		Types:   []EventType{EventLedgerLoaded},
		Handler: func(*Event) { others.Add(1) },
	}))

	require.NoError(t, e.EmitRecordSubmitted("test", &SubmissionEventPayload{TxHash: "0xabc", Title: "t", FileCount: 2}))

	select {
	case ev := <-got:
		assert.Equal(t, EventRecordSubmitted, ev.Type)
		assert.Equal(t, "0xabc", ev.TxHash)
		assert.Equal(t, "session-1", ev.SessionID)
		assert.NotEmpty(t, ev.ID)

		var payload SubmissionEventPayload
		require.NoError(t, ev.DecodePayload(&payload))
		assert.Equal(t, 2, payload.FileCount)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	assert.Zero(t, others.Load())
}

func TestEmitter_UnsubscribeStopsDelivery(t *testing.T) {
	e := startEmitter(t, nil)

	var count atomic.Int32
	require.NoError(t, e.Subscribe(&Subscriber{ID: "s", Handler: func(*Event) { count.Add(1) }}))
	require.Error(t, e.Subscribe(&Subscriber{ID: "s", Handler: func(*Event) {}}))

	require.NoError(t, e.EmitPendingReconciled("test", "0x1", 4))
	require.Eventually(t, func() bool { return count.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Unsubscribe("s"))
	assert.Error(t, e.Unsubscribe("s"))

	require.NoError(t, e.EmitPendingReconciled("test", "0x2", 5))
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, count.Load())
}

func TestEmitter_PanickingHandlerIsIsolated(t *testing.T) {
	e := startEmitter(t, &EmitterConfig{BufferSize: 10, MaxWorkers: 1, EventTimeout: time.Second})

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, e.Subscribe(&Subscriber{ID: "bad", Handler: func(*Event) { panic("boom") }}))
	require.NoError(t, e.Subscribe(&Subscriber{ID: "good", Handler: func(*Event) { wg.Done() }}))

	require.NoError(t, e.EmitLedgerLoaded("test", &LedgerEventPayload{Total: 3}))
	wg.Wait()

	require.Eventually(t, func() bool {
		return e.Stats().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitter_BufferOverflowDrops(t *testing.T) {
	e := NewEmitter(&EmitterConfig{BufferSize: 1, MaxWorkers: 1, EventTimeout: time.Second, DropOnOverflow: true})
	require.NoError(t, e.Start())
	defer e.Stop()

	block := make(chan struct{})
	require.NoError(t, e.Subscribe(&Subscriber{ID: "slow", Handler: func(*Event) { <-block }}))

	var dropped int
	for i := 0; i < 20; i++ {
		if err := e.EmitLedgerLoaded("test", &LedgerEventPayload{Total: i}); err != nil {
			dropped++
		}
	}
	close(block)

	assert.Positive(t, dropped)
	assert.EqualValues(t, dropped, e.Stats().Dropped)
}

func TestEmitter_LifecycleErrors(t *testing.T) {
	e := NewEmitter(nil)
	assert.Error(t, e.Emit(&Event{Type: EventLedgerLoaded}))
	assert.Error(t, e.Stop())

	require.NoError(t, e.Start())
	assert.ErrorIs(t, e.Start(), ErrAlreadyRunning)
	require.NoError(t, e.Stop())
	assert.ErrorIs(t, e.Emit(&Event{Type: EventLedgerLoaded}), ErrNotRunning)
	assert.ErrorIs(t, e.Start(), ErrShuttingDown)
}

func TestEmitter_SlowHandlerTimesOut(t *testing.T) {
	e := startEmitter(t, &EmitterConfig{BufferSize: 4, MaxWorkers: 1, EventTimeout: 20 * time.Millisecond})

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, e.Subscribe(&Subscriber{ID: "slow", Handler: func(*Event) { <-release }}))

	require.NoError(t, e.EmitLedgerLoaded("test", &LedgerEventPayload{}))
	require.Eventually(t, func() bool { return e.Stats().Failed == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestEmitter_FilterAndInvalidSubscriber(t *testing.T) {
	e := startEmitter(t, nil)
	assert.Error(t, e.Subscribe(nil))
	assert.Error(t, e.Subscribe(&Subscriber{ID: "no-handler"}))

	got := make(chan *Event, 2)
	require.NoError(t, e.Subscribe(&Subscriber{
		ID:      "big-loads",
		Filter:  func(ev *Event) bool { return ev.TxHash == "0x2" },
		Handler: func(ev *Event) { got <- ev },
	}))

	require.NoError(t, e.EmitPendingReconciled("test", "0x1", 1))
	require.NoError(t, e.EmitPendingReconciled("test", "0x2", 2))

	select {
	case ev := <-got:
		assert.Equal(t, "0x2", ev.TxHash)
	case <-time.After(2 * time.Second):
		t.Fatal("filtered event not delivered")
	}
	assert.Eventually(t, func() bool { return e.Stats().Delivered == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, got)
}
