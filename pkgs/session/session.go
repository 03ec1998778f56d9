// Package session ties the ledger reader, reconciliation and submission
// together for one user session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/events"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pending"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/ASingh442/sikh-historical-chain/pkgs/reconcile"
	"github.com/ASingh442/sikh-historical-chain/pkgs/submission"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const component = "session"

// ErrSuperseded is returned by a reload that was overtaken by a newer one.
// Its result is discarded.
var ErrSuperseded = errors.New("reload superseded by a newer request")

// ErrNotLoaded is returned by Await when no reload has been started.
var ErrNotLoaded = errors.New("no ledger load started")

// Loader produces the full record set, newest first.
type Loader interface {
	LoadAll(ctx context.Context) ([]ledger.Record, error)
}

// Config wires a Session. Pipeline and Capabilities may be nil for a
// read-only session.
type Config struct {
	ID           string
	Loader       Loader
	Engine       *reconcile.Engine
	Pipeline     *submission.Pipeline
	Capabilities *submission.Capabilities
	Emitter      *events.Emitter
	Now          func() time.Time
}

// load is the outcome of one reload generation. done closes once it settles.
type load struct {
	done    chan struct{}
	records []ledger.Record
	err     error
}

// Session owns the record set of one reader. Reloads are last-request-wins.
type Session struct {
	id       string
	loader   Loader
	engine   *reconcile.Engine
	pipeline *submission.Pipeline
	caps     *submission.Capabilities
	emitter  *events.Emitter
	ownsBus  bool
	now      func() time.Time

	mu         sync.Mutex
	generation int64
	cancel     context.CancelFunc
	records    []ledger.Record
	loaded     bool
	latest     *load
	// links survives reloads: cached records never carry a tx hash.
	links map[uint64]string
}

// New creates a session. When cfg.Emitter is nil the session starts and
// owns its own event bus, stopped by Close.
func New(cfg Config) (*Session, error) {
	if cfg.Loader == nil {
		return nil, errors.New("session requires a ledger loader")
	}
	if cfg.Engine == nil {
		cfg.Engine = reconcile.NewEngine(pending.NewMemoryStore())
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{
		id:       cfg.ID,
		loader:   cfg.Loader,
		engine:   cfg.Engine,
		pipeline: cfg.Pipeline,
		caps:     cfg.Capabilities,
		emitter:  cfg.Emitter,
		now:      cfg.Now,
		links:    make(map[uint64]string),
	}

	if s.emitter == nil {
		econf := events.DefaultConfig()
		econf.SessionID = s.id
		s.emitter = events.NewEmitter(econf)
		if err := s.emitter.Start(); err != nil {
			return nil, err
		}
		s.ownsBus = true
	}

	return s, nil
}

// ID returns the session identifier stamped on its events.
func (s *Session) ID() string {
	return s.id
}

// Events returns the session event bus.
func (s *Session) Events() *events.Emitter {
	return s.emitter
}

// Subscribe registers handler for the given event types (all when empty)
// and returns a function that removes it.
func (s *Session) Subscribe(handler events.EventHandler, types ...events.EventType) (func(), error) {
	id := uuid.NewString()
	err := s.emitter.Subscribe(&events.Subscriber{ID: id, Handler: handler, Types: types})
	if err != nil {
		return nil, err
	}
	return func() { _ = s.emitter.Unsubscribe(id) }, nil
}

// Reload reads the ledger, reconciles the pending submission against it and
// publishes the result. Starting a reload cancels any reload in flight; a
// reload that is overtaken returns ErrSuperseded and changes nothing.
func (s *Session) Reload(ctx context.Context) ([]ledger.Record, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	l := &load{done: make(chan struct{})}
	s.latest = l
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	records, err := s.loader.LoadAll(loadCtx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		log.WithField("generation", gen).Debug("Discarding superseded ledger load")
		l.settle(nil, ErrSuperseded)
		return nil, ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		s.emit(func() error {
			return s.emitter.EmitLedgerLoadFailed(component, &events.LedgerEventPayload{Generation: gen}, err)
		})
		l.settle(nil, err)
		return nil, err
	}

	s.applyLinks(records)

	reconciled, result, err := s.engine.Reconcile(ctx, records, s.now())
	if err != nil {
		log.WithError(err).Warn("Reconciliation failed, publishing records without it")
		reconciled = records
	}
	if result.Outcome == reconcile.OutcomeMatched {
		s.links[result.RecordID] = result.TxHash
	}

	s.records = reconciled
	s.loaded = true

	s.emit(func() error {
		return s.emitter.EmitLedgerLoaded(component, &events.LedgerEventPayload{
			Total:      len(reconciled),
			Generation: gen,
			Duration:   time.Since(start).Milliseconds(),
		})
	})
	if result.Outcome == reconcile.OutcomeMatched {
		s.emit(func() error {
			return s.emitter.EmitPendingReconciled(component, result.TxHash, result.RecordID)
		})
	}

	l.settle(reconciled, nil)
	return cloneRecords(reconciled), nil
}

func (l *load) settle(records []ledger.Record, err error) {
	l.records, l.err = records, err
	close(l.done)
}

// Await waits for the most recent reload to settle and returns its result.
// A caller whose own reload was superseded uses it to get the records of
// the load that replaced it.
func (s *Session) Await(ctx context.Context) ([]ledger.Record, error) {
	for {
		s.mu.Lock()
		l := s.latest
		s.mu.Unlock()
		if l == nil {
			return nil, ErrNotLoaded
		}

		select {
		case <-l.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		s.mu.Lock()
		current := s.latest == l
		s.mu.Unlock()
		if current {
			return cloneRecords(l.records), l.err
		}
	}
}

// Records returns the last published record set and whether any load has
// completed.
func (s *Session) Records() ([]ledger.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.records), s.loaded
}

// Pending returns the unmatched submission, if any.
func (s *Session) Pending(ctx context.Context) (pending.Submission, bool, error) {
	return s.engine.Pending(ctx)
}

// IsVerified reports whether addr may attach extended content.
func (s *Session) IsVerified(ctx context.Context, addr common.Address) bool {
	return s.caps.IsVerified(ctx, addr)
}

// Stage validates files for a submission from addr.
func (s *Session) Stage(ctx context.Context, addr common.Address, files []pinning.File) (*submission.UploadBatch, error) {
	return submission.Stage(files, s.IsVerified(ctx, addr))
}

// Submit sends a record. The new record appears after a later Reload links
// it to the returned transaction.
func (s *Session) Submit(ctx context.Context, batch *submission.UploadBatch, meta submission.Metadata) (*pending.Submission, error) {
	if s.pipeline == nil {
		return nil, submission.ErrWriteDisabled
	}
	return s.pipeline.Submit(ctx, batch, meta)
}

// Close cancels any reload in flight and stops an owned event bus.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if s.ownsBus {
		return s.emitter.Stop()
	}
	return nil
}

func (s *Session) applyLinks(records []ledger.Record) {
	if len(s.links) == 0 {
		return
	}
	for i := range records {
		if hash, ok := s.links[records[i].ID]; ok && records[i].PendingTxHash == "" {
			records[i].PendingTxHash = hash
		}
	}
}

func (s *Session) emit(fn func() error) {
	if err := fn(); err != nil {
		log.WithError(err).Debug("Session event not emitted")
	}
}

func cloneRecords(in []ledger.Record) []ledger.Record {
	if in == nil {
		return nil
	}
	out := make([]ledger.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
