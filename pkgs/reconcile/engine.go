package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pending"
	log "github.com/sirupsen/logrus"
)

// Window is how close a record's creation time must be to the reconciliation
// time for it to be taken as the pending submission.
//
// Matching is by time only: receipts and emitted events are not inspected,
// so two submissions landing within one window can be attributed to the
// wrong record.
const Window = 60 * time.Second

// Outcome of a reconciliation pass.
type Outcome string

const (
	OutcomeNoPending Outcome = "no_pending"
	OutcomeMatched   Outcome = "matched"
	OutcomeUnmatched Outcome = "unmatched"
)

// Result describes what a pass did.
type Result struct {
	Outcome  Outcome
	TxHash   string
	RecordID uint64
}

// Engine links a submission known only by transaction hash to the ledger
// record it produced.
type Engine struct {
	store pending.Store
	mu    sync.Mutex
}

// NewEngine creates an engine over the durable pending slot.
func NewEngine(store pending.Store) *Engine {
	return &Engine{store: store}
}

// Remember overwrites the pending slot with s.
func (e *Engine) Remember(ctx context.Context, s pending.Submission) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to persist pending submission: %w", err)
	}
	return nil
}

// Pending returns the current slot.
func (e *Engine) Pending(ctx context.Context) (pending.Submission, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Load(ctx)
}

// Reconcile attaches the pending transaction hash to the newest record
// created within Window of now that has no hash yet, and clears the slot.
// records must be newest first. The input slice is not modified. When
// nothing is in the window the slot is kept for a later pass.
func (e *Engine) Reconcile(ctx context.Context, records []ledger.Record, now time.Time) ([]ledger.Record, Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub, ok, err := e.store.Load(ctx)
	if err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return records, Result{}, fmt.Errorf("failed to read pending submission: %w", err)
	}
	if !ok {
		return records, Result{Outcome: OutcomeNoPending}, nil
	}

	idx := Match(records, now)
	if idx < 0 {
		metrics.Reconciliations.WithLabelValues(string(OutcomeUnmatched)).Inc()
		log.WithFields(log.Fields{
			"tx_hash":      sub.TxHash,
			"submitted_at": sub.SubmittedAt,
			"records":      len(records),
		}).Debug("No record inside the reconciliation window, keeping pending submission")
		return records, Result{Outcome: OutcomeUnmatched, TxHash: sub.TxHash}, nil
	}

	out := make([]ledger.Record, len(records))
	copy(out, records)
	out[idx].PendingTxHash = sub.TxHash

	if err := e.store.Clear(ctx); err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return records, Result{}, fmt.Errorf("failed to clear pending submission: %w", err)
	}

	metrics.Reconciliations.WithLabelValues(string(OutcomeMatched)).Inc()
	log.WithFields(log.Fields{
		"tx_hash":   sub.TxHash,
		"record_id": out[idx].ID,
	}).Info("Linked pending submission to ledger record")

	return out, Result{Outcome: OutcomeMatched, TxHash: sub.TxHash, RecordID: out[idx].ID}, nil
}

// Match returns the index of the first record (in the given order) created
// strictly within Window of now that carries no transaction hash, or -1.
func Match(records []ledger.Record, now time.Time) int {
	for i, r := range records {
		if r.PendingTxHash != "" {
			continue
		}
		if withinWindow(r.CreatedAt, now) {
			return i
		}
	}
	return -1
}

func withinWindow(created, now time.Time) bool {
	d := now.Sub(created)
	if d < 0 {
		d = -d
	}
	return d < Window
}
