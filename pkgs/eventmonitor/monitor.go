// Package eventmonitor watches the records contract for RecordSubmitted logs
// and reloads the session when new records land.
package eventmonitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/events"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	"github.com/ASingh442/sikh-historical-chain/pkgs/session"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

const (
	component = "eventmonitor"

	// DefaultMaxRange limits one FilterLogs call.
	DefaultMaxRange uint64 = 1000

	recordSubmittedEvent = "RecordSubmitted"
)

// LogSource is the subset of an Ethereum client the monitor needs.
// *ethclient.Client satisfies it.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Reloader refreshes the published record set.
type Reloader interface {
	Reload(ctx context.Context) ([]ledger.Record, error)
}

// Config for EventMonitor
type Config struct {
	Source          LogSource
	Reloader        Reloader
	ContractAddress common.Address
	ABI             *abi.ABI // Optional; the event signature falls back to the known one
	StartBlock      uint64   // 0 starts just behind the current head
	PollInterval    time.Duration
	MaxRange        uint64
	Emitter         *events.Emitter
}

// RecordSubmitted is a decoded contract log.
type RecordSubmitted struct {
	RecordID    uint64
	Contributor common.Address
	BlockNumber uint64
	TxHash      common.Hash
}

// EventMonitor polls for new RecordSubmitted logs.
type EventMonitor struct {
	source       LogSource
	reloader     Reloader
	contractAddr common.Address
	signature    common.Hash
	pollInterval time.Duration
	maxRange     uint64
	emitter      *events.Emitter

	mu                 sync.Mutex
	lastProcessedBlock uint64
	started            bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventMonitor creates a monitor. When StartBlock is 0 the current head
// is queried so history is not rescanned.
func NewEventMonitor(ctx context.Context, cfg Config) (*EventMonitor, error) {
	if cfg.Source == nil {
		return nil, errors.New("log source is required")
	}
	if cfg.Reloader == nil {
		return nil, errors.New("reloader is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}

	m := &EventMonitor{
		source:       cfg.Source,
		reloader:     cfg.Reloader,
		contractAddr: cfg.ContractAddress,
		signature:    RecordSubmittedSignature(cfg.ABI),
		pollInterval: cfg.PollInterval,
		maxRange:     cfg.MaxRange,
		emitter:      cfg.Emitter,
	}
	if m.maxRange == 0 {
		m.maxRange = DefaultMaxRange
	}

	if cfg.StartBlock > 0 {
		m.lastProcessedBlock = cfg.StartBlock - 1
	} else {
		head, err := cfg.Source.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get current block: %w", err)
		}
		m.lastProcessedBlock = head
	}

	log.WithFields(log.Fields{
		"contract":   m.contractAddr.Hex(),
		"from_block": m.lastProcessedBlock + 1,
		"signature":  m.signature.Hex(),
	}).Info("Ledger watch configured")
	return m, nil
}

// RecordSubmittedSignature returns the topic hash of RecordSubmitted,
// preferring the ABI definition when it has one.
func RecordSubmittedSignature(parsed *abi.ABI) common.Hash {
	if parsed != nil {
		if ev, ok := parsed.Events[recordSubmittedEvent]; ok {
			return ev.ID
		}
	}
	return crypto.Keccak256Hash([]byte("RecordSubmitted(uint256,address)"))
}

// LastProcessedBlock returns the highest block already scanned.
func (m *EventMonitor) LastProcessedBlock() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastProcessedBlock
}

// Start begins polling until ctx is cancelled or Stop is called.
func (m *EventMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("event monitor already started")
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.pollBlocks(ctx)
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (m *EventMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *EventMonitor) pollBlocks(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Ledger watch poll failed")
			}
		}
	}
}

// Poll scans the next block range and reloads the session when it holds
// new records. It returns the decoded logs. A failed scan leaves the
// cursor in place so the range is retried.
func (m *EventMonitor) Poll(ctx context.Context) ([]RecordSubmitted, error) {
	head, err := m.source.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current block: %w", err)
	}

	m.mu.Lock()
	from := m.lastProcessedBlock + 1
	m.mu.Unlock()
	if from > head {
		return nil, nil
	}

	to := head
	if to-from+1 > m.maxRange {
		to = from + m.maxRange - 1
	}

	logs, err := m.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{m.contractAddr},
		Topics:    [][]common.Hash{{m.signature}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter RecordSubmitted logs: %w", err)
	}

	found := make([]RecordSubmitted, 0, len(logs))
	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}
		ev, ok := parseRecordSubmitted(vLog)
		if !ok {
			log.WithField("tx", vLog.TxHash.Hex()).Debug("Skipping malformed RecordSubmitted log")
			continue
		}
		found = append(found, ev)
	}

	if len(found) > 0 {
		if _, err := m.reloader.Reload(ctx); err != nil && !errors.Is(err, session.ErrSuperseded) {
			return found, fmt.Errorf("reload after %d new records: %w", len(found), err)
		}
		metrics.LedgerRecordsObserved.Add(float64(len(found)))
		m.announce(found)
	}

	m.mu.Lock()
	m.lastProcessedBlock = to
	m.mu.Unlock()
	metrics.LedgerBlocksScanned.Set(float64(to))

	log.WithFields(log.Fields{
		"from":    from,
		"to":      to,
		"records": len(found),
	}).Debug("Ledger watch scanned blocks")
	return found, nil
}

func (m *EventMonitor) announce(found []RecordSubmitted) {
	for _, ev := range found {
		log.WithFields(log.Fields{
			"record_id":   ev.RecordID,
			"contributor": ledger.ShortAddress(ev.Contributor),
			"block":       ev.BlockNumber,
		}).Info("New ledger record observed")

		if m.emitter == nil {
			continue
		}
		err := m.emitter.EmitRecordObserved(component, &events.ObservedEventPayload{
			RecordID:    ev.RecordID,
			Contributor: ev.Contributor.Hex(),
			BlockNumber: ev.BlockNumber,
			TxHash:      ev.TxHash.Hex(),
		})
		if err != nil {
			log.WithError(err).Debug("Dropped record_observed event")
		}
	}
}

// parseRecordSubmitted decodes RecordSubmitted(uint256 indexed id, address
// indexed contributor). Both fields live in topics.
func parseRecordSubmitted(vLog types.Log) (RecordSubmitted, bool) {
	if len(vLog.Topics) < 3 {
		return RecordSubmitted{}, false
	}
	id := new(big.Int).SetBytes(vLog.Topics[1].Bytes())
	if !id.IsUint64() {
		return RecordSubmitted{}, false
	}
	return RecordSubmitted{
		RecordID:    id.Uint64(),
		Contributor: common.BytesToAddress(vLog.Topics[2].Bytes()),
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash,
	}, true
}
