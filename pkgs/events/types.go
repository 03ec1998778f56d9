package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being emitted
type EventType string

const (
	// Ledger events
	EventLedgerLoaded     EventType = "ledger_loaded"
	EventLedgerLoadFailed EventType = "ledger_load_failed"

	// Submission events
	EventRecordSubmitted  EventType = "record_submitted"
	EventSubmissionFailed EventType = "submission_failed"

	// Reconciliation events
	EventPendingReconciled EventType = "pending_reconciled"
	EventRecordObserved    EventType = "record_observed"

	// Storage events
	EventContentPinned EventType = "content_pinned"
)

// EventSeverity indicates the importance/severity of an event
type EventSeverity string

const (
	SeverityDebug   EventSeverity = "debug"
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// Event represents a session event with metadata and payload
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`

	Component string `json:"component"`
	SessionID string `json:"session_id,omitempty"`

	Payload json.RawMessage `json:"payload"`

	TxHash   string            `json:"tx_hash,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LedgerEventPayload describes a completed or failed ledger load
type LedgerEventPayload struct {
	Total      int   `json:"total"`
	Generation int64 `json:"generation"`
	Duration   int64 `json:"duration_ms,omitempty"`
}

// SubmissionEventPayload describes a record sent to the ledger
type SubmissionEventPayload struct {
	TxHash      string `json:"tx_hash"`
	Title       string `json:"title"`
	ContentHash string `json:"content_hash,omitempty"`
	FileCount   int    `json:"file_count"`
	SubmittedAt int64  `json:"submitted_at"`
	Reason      string `json:"reason,omitempty"` // For failures
}

// ReconcileEventPayload links a pending transaction to a ledger record
type ReconcileEventPayload struct {
	TxHash   string `json:"tx_hash"`
	RecordID uint64 `json:"record_id"`
}

// ObservedEventPayload describes a RecordSubmitted log seen on chain
type ObservedEventPayload struct {
	RecordID    uint64 `json:"record_id"`
	Contributor string `json:"contributor"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
}

// PinEventPayload contains data for content pinning
type PinEventPayload struct {
	CID     string `json:"cid"`
	Name    string `json:"name"`
	Size    int64  `json:"size,omitempty"`
	Backend string `json:"backend"`
	Deduped bool   `json:"deduped,omitempty"`
}

// EventHandler is called when an event is emitted
type EventHandler func(event *Event)

// EventFilter can be used to filter events before processing
type EventFilter func(event *Event) bool

// Subscriber represents an event subscriber with optional filtering
type Subscriber struct {
	ID      string
	Handler EventHandler
	Filter  EventFilter
	Types   []EventType // Subscribe to specific event types only
}

// HandlerPanic wraps a value recovered from a subscriber handler.
type HandlerPanic struct {
	Value interface{}
}

func (p *HandlerPanic) Error() string {
	return fmt.Sprintf("handler panic: %v", p.Value)
}

// String returns a string representation of the event
func (e *Event) String() string {
	return fmt.Sprintf("[%s] %s: %s (component=%s, tx=%s)",
		e.Timestamp.Format(time.RFC3339),
		e.Severity,
		e.Type,
		e.Component,
		e.TxHash,
	)
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the payload into v.
func (e *Event) DecodePayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new event with the given parameters
func NewEvent(eventType EventType, severity EventSeverity, component string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		Component: component,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
	}, nil
}
