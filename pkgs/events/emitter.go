package events

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultBufferSize   = 256
	DefaultMaxWorkers   = 4
	DefaultEventTimeout = 5 * time.Second

	stopTimeout  = 10 * time.Second
	drainTimeout = 5 * time.Second
)

var (
	ErrNotRunning     = errors.New("emitter not running")
	ErrBufferFull     = errors.New("event buffer full, event dropped")
	ErrShuttingDown   = errors.New("emitter shutting down")
	ErrAlreadyRunning = errors.New("emitter already running")
)

// EmitterConfig contains configuration for the event emitter
type EmitterConfig struct {
	BufferSize     int           // Queued events before Emit starts dropping or blocking
	MaxWorkers     int           // Events delivered concurrently
	EventTimeout   time.Duration // Per-handler budget; a slower handler is abandoned
	DropOnOverflow bool          // Drop instead of blocking when the buffer is full
	SessionID      string        // Stamped on every event that has none
}

// DefaultConfig returns a default configuration
func DefaultConfig() *EmitterConfig {
	return &EmitterConfig{
		BufferSize:     DefaultBufferSize,
		MaxWorkers:     DefaultMaxWorkers,
		EventTimeout:   DefaultEventTimeout,
		DropOnOverflow: true,
	}
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Emitted     uint64
	Dropped     uint64
	Delivered   uint64
	Failed      uint64 // Handler panics and timeouts
	Queued      int
	Subscribers int
	Running     bool
}

// Emitter is the session event bus. Publishers never block on subscribers:
// events are buffered and delivered by a bounded worker pool, and a slow or
// panicking handler only affects itself.
type Emitter struct {
	config *EmitterConfig
	queue  chan *Event
	slots  *semaphore.Weighted

	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	emitted   atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEmitter creates an emitter. Zero config fields take their defaults.
func NewEmitter(config *EmitterConfig) *Emitter {
	cfg := DefaultConfig()
	if config != nil {
		c := *config
		if c.BufferSize <= 0 {
			c.BufferSize = cfg.BufferSize
		}
		if c.MaxWorkers <= 0 {
			c.MaxWorkers = cfg.MaxWorkers
		}
		if c.EventTimeout <= 0 {
			c.EventTimeout = cfg.EventTimeout
		}
		cfg = &c
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Emitter{
		config:      cfg,
		queue:       make(chan *Event, cfg.BufferSize),
		slots:       semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		subscribers: make(map[string]*Subscriber),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins delivering events. An emitter cannot be restarted.
func (e *Emitter) Start() error {
	if e.ctx.Err() != nil {
		return ErrShuttingDown
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	log.WithField("session_id", e.config.SessionID).Debug("Event emitter started")
	e.wg.Add(1)
	go e.run()
	return nil
}

// Stop cancels delivery, hands queued events to subscribers for a short
// grace period and waits for in-flight handlers.
func (e *Emitter) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.WithField("session_id", e.config.SessionID).Debug("Event emitter stopped")
	case <-time.After(stopTimeout):
		log.Warn("Event emitter shutdown timeout, some events may be lost")
	}
	return nil
}

// Emit queues an event for delivery.
func (e *Emitter) Emit(event *Event) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	if event.SessionID == "" {
		event.SessionID = e.config.SessionID
	}
	e.emitted.Add(1)

	select {
	case e.queue <- event:
		return nil
	default:
	}

	if e.config.DropOnOverflow {
		e.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues(string(event.Type)).Inc()
		log.WithFields(log.Fields{
			"event_type": event.Type,
			"event_id":   event.ID,
			"component":  event.Component,
		}).Warn("Event dropped due to buffer overflow")
		return ErrBufferFull
	}

	select {
	case e.queue <- event:
		return nil
	case <-e.ctx.Done():
		return ErrShuttingDown
	}
}

// Subscribe registers a subscriber. IDs must be unique.
func (e *Emitter) Subscribe(subscriber *Subscriber) error {
	if subscriber == nil || subscriber.ID == "" || subscriber.Handler == nil {
		return errors.New("invalid subscriber")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.subscribers[subscriber.ID]; exists {
		return errors.New("subscriber " + subscriber.ID + " already exists")
	}
	e.subscribers[subscriber.ID] = subscriber
	return nil
}

// Unsubscribe removes a subscriber.
func (e *Emitter) Unsubscribe(subscriberID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.subscribers[subscriberID]; !exists {
		return errors.New("subscriber " + subscriberID + " not found")
	}
	delete(e.subscribers, subscriberID)
	return nil
}

// Stats returns the current counters.
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	subscribers := len(e.subscribers)
	e.mu.RUnlock()

	return Stats{
		Emitted:     e.emitted.Load(),
		Dropped:     e.dropped.Load(),
		Delivered:   e.delivered.Load(),
		Failed:      e.failed.Load(),
		Queued:      len(e.queue),
		Subscribers: subscribers,
		Running:     e.running.Load(),
	}
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			e.drain()
			return
		case event := <-e.queue:
			if err := e.slots.Acquire(e.ctx, 1); err != nil {
				e.deliver(event)
				e.drain()
				return
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer e.slots.Release(1)
				e.deliver(event)
			}()
		}
	}
}

// drain delivers what is still queued, synchronously, until the queue is
// empty or the grace period ends.
func (e *Emitter) drain() {
	deadline := time.After(drainTimeout)
	for {
		select {
		case event := <-e.queue:
			e.deliver(event)
		case <-deadline:
			if n := len(e.queue); n > 0 {
				log.WithField("dropped", n).Warn("Shutdown timeout, dropping queued events")
			}
			return
		default:
			return
		}
	}
}

func (e *Emitter) deliver(event *Event) {
	e.mu.RLock()
	targets := make([]*Subscriber, 0, len(e.subscribers))
	for _, sub := range e.subscribers {
		if sub.accepts(event) {
			targets = append(targets, sub)
		}
	}
	e.mu.RUnlock()

	e.delivered.Add(1)
	for _, sub := range targets {
		if err := e.invoke(sub, event); err != nil {
			e.failed.Add(1)
			metrics.EventHandlerFailures.WithLabelValues(string(event.Type)).Inc()
			log.WithFields(log.Fields{
				"subscriber_id": sub.ID,
				"event_type":    event.Type,
				"event_id":      event.ID,
			}).WithError(err).Warn("Event handler failed")
		}
	}
}

// invoke runs one handler under the per-handler timeout. A handler that
// overruns keeps running in its goroutine but no longer holds up delivery.
func (e *Emitter) invoke(sub *Subscriber, event *Event) error {
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- &HandlerPanic{Value: r}
			}
		}()
		sub.Handler(event)
		result <- nil
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(e.config.EventTimeout):
		return errors.New("handler timeout")
	}
}

// accepts reports whether the subscriber wants event.
func (s *Subscriber) accepts(event *Event) bool {
	if len(s.Types) > 0 && !slices.Contains(s.Types, event.Type) {
		return false
	}
	return s.Filter == nil || s.Filter(event)
}

// Helper methods for common event types

// EmitLedgerLoaded announces a completed ledger load
func (e *Emitter) EmitLedgerLoaded(component string, payload *LedgerEventPayload) error {
	event, err := NewEvent(EventLedgerLoaded, SeverityInfo, component, payload)
	if err != nil {
		return err
	}
	return e.Emit(event)
}

// EmitLedgerLoadFailed announces a failed ledger load
func (e *Emitter) EmitLedgerLoadFailed(component string, payload *LedgerEventPayload, cause error) error {
	event, err := NewEvent(EventLedgerLoadFailed, SeverityError, component, payload)
	if err != nil {
		return err
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	return e.Emit(event)
}

// EmitRecordSubmitted announces a transaction accepted by the node
func (e *Emitter) EmitRecordSubmitted(component string, submission *SubmissionEventPayload) error {
	event, err := NewEvent(EventRecordSubmitted, SeverityInfo, component, submission)
	if err != nil {
		return err
	}
	event.TxHash = submission.TxHash
	return e.Emit(event)
}

// EmitSubmissionFailed announces a submission that did not reach the ledger
func (e *Emitter) EmitSubmissionFailed(component string, submission *SubmissionEventPayload) error {
	event, err := NewEvent(EventSubmissionFailed, SeverityWarning, component, submission)
	if err != nil {
		return err
	}
	event.Error = submission.Reason
	return e.Emit(event)
}

// EmitPendingReconciled announces that a pending transaction was matched
func (e *Emitter) EmitPendingReconciled(component string, txHash string, recordID uint64) error {
	event, err := NewEvent(EventPendingReconciled, SeverityInfo, component, &ReconcileEventPayload{
		TxHash:   txHash,
		RecordID: recordID,
	})
	if err != nil {
		return err
	}
	event.TxHash = txHash
	return e.Emit(event)
}

// EmitRecordObserved announces a new record log picked up by the ledger watch
func (e *Emitter) EmitRecordObserved(component string, payload *ObservedEventPayload) error {
	event, err := NewEvent(EventRecordObserved, SeverityInfo, component, payload)
	if err != nil {
		return err
	}
	event.TxHash = payload.TxHash
	return e.Emit(event)
}

// EmitContentPinned announces a stored file
func (e *Emitter) EmitContentPinned(component string, payload *PinEventPayload) error {
	severity := SeverityInfo
	if payload.Deduped {
		severity = SeverityDebug
	}
	event, err := NewEvent(EventContentPinned, severity, component, payload)
	if err != nil {
		return err
	}
	return e.Emit(event)
}
