// Package pending keeps the single durable "most recent unmatched
// submission" slot. A newer submission overwrites the slot; reconciliation
// clears it.
package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Submission is a transaction whose ledger record has not been identified yet.
type Submission struct {
	TxHash      string
	SubmittedAt time.Time
}

// IsZero reports whether s is empty.
func (s Submission) IsZero() bool {
	return s.TxHash == ""
}

// Store is a get/set/clear slot. Implementations must be safe for
// concurrent use.
type Store interface {
	Load(ctx context.Context) (Submission, bool, error)
	Save(ctx context.Context, s Submission) error
	Clear(ctx context.Context) error
}

// document is the persisted shape: {"latest": "<txhash>", "submittedAt": <unix>}.
type document struct {
	Latest      string `json:"latest,omitempty"`
	SubmittedAt int64  `json:"submittedAt,omitempty"`
}

func encode(s Submission) ([]byte, error) {
	doc := document{Latest: s.TxHash}
	if !s.SubmittedAt.IsZero() {
		doc.SubmittedAt = s.SubmittedAt.Unix()
	}
	return json.Marshal(doc)
}

// decode tolerates an empty or legacy document with only "latest".
func decode(data []byte) (Submission, bool, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Submission{}, false, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Submission{}, false, fmt.Errorf("corrupt pending document: %w", err)
	}
	if doc.Latest == "" {
		return Submission{}, false, nil
	}
	s := Submission{TxHash: doc.Latest}
	if doc.SubmittedAt > 0 {
		s.SubmittedAt = time.Unix(doc.SubmittedAt, 0).UTC()
	}
	return s, true, nil
}
