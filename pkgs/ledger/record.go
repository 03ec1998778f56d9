package ledger

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/contentref"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// NotAvailable marks a missing event date or contributor.
	NotAvailable = "N/A"

	// DefaultSource is the attribution used when the submitter gave none.
	DefaultSource = "Anonymous"

	// StatusVerified is the on-chain status of an approved record.
	StatusVerified uint8 = 1
)

// Kind classifies a record by how much content it carries.
type Kind string

const (
	KindMetadata   Kind = "METADATA"
	KindFile       Kind = "FILE"
	KindCollection Kind = "COLLECTION"
)

// RawRecord is the tuple returned by getRecord, before normalization.
type RawRecord struct {
	ID          *big.Int
	Title       string
	Description string
	Source      string
	ContentHash string
	Contributor common.Address
	Timestamp   *big.Int
	Status      uint8
	Approver    common.Address
}

// Record is one normalized ledger entry. Records are immutable once read;
// only PendingTxHash is ever set afterwards, by reconciliation.
type Record struct {
	ID             uint64                 `json:"id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	EventDate      string                 `json:"eventDate"`
	Source         string                 `json:"source"`
	Contributor    common.Address         `json:"contributor"`
	ContentRefs    []contentref.Reference `json:"contentRefs"`
	RawContentHash string                 `json:"rawContentHash"`
	Verified       bool                   `json:"verified"`
	Approver       *common.Address        `json:"approver,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	PendingTxHash  string                 `json:"pendingTxHash,omitempty"`
}

// Kind reports METADATA, FILE or COLLECTION from the number of valid
// content references.
func (r Record) Kind() Kind {
	switch len(r.ContentRefs) {
	case 0:
		return KindMetadata
	case 1:
		return KindFile
	default:
		return KindCollection
	}
}

// ContributorShort renders the contributor as 0x1234...abcd.
func (r Record) ContributorShort() string {
	return ShortAddress(r.Contributor)
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	out := r
	if r.ContentRefs != nil {
		out.ContentRefs = append([]contentref.Reference(nil), r.ContentRefs...)
	}
	if r.Approver != nil {
		a := *r.Approver
		out.Approver = &a
	}
	return out
}

// ShortAddress abbreviates an address, or returns N/A for the zero address.
func ShortAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return NotAvailable
	}
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

type descriptionPayload struct {
	Description *string `json:"description"`
	DateOfEvent *string `json:"dateOfEvent"`
}

// DecodeDescription splits the on-chain description field into the free
// text and the event date. Anything that is not a JSON object is treated as
// plain text with no date.
func DecodeDescription(field string) (description, eventDate string) {
	trimmed := strings.TrimSpace(field)
	if strings.HasPrefix(trimmed, "{") {
		var payload descriptionPayload
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			description, eventDate = "", NotAvailable
			if payload.Description != nil {
				description = *payload.Description
			}
			if payload.DateOfEvent != nil && *payload.DateOfEvent != "" {
				eventDate = *payload.DateOfEvent
			}
			return description, eventDate
		}
	}
	return field, NotAvailable
}

// EncodeDescription builds the JSON payload written to the description field.
func EncodeDescription(description, eventDate string) (string, error) {
	payload, err := json.Marshal(struct {
		Description string `json:"description"`
		DateOfEvent string `json:"dateOfEvent"`
	}{description, eventDate})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Normalize converts the raw tuple into a Record. It never fails: malformed
// fields degrade to defaults.
func Normalize(raw RawRecord) Record {
	description, eventDate := DecodeDescription(raw.Description)

	source := strings.TrimSpace(raw.Source)
	if source == "" {
		source = DefaultSource
	}

	rec := Record{
		Title:          raw.Title,
		Description:    description,
		EventDate:      eventDate,
		Source:         source,
		Contributor:    raw.Contributor,
		ContentRefs:    contentref.ParseList(raw.ContentHash),
		RawContentHash: raw.ContentHash,
		Verified:       raw.Status == StatusVerified,
	}
	if raw.ID != nil {
		rec.ID = raw.ID.Uint64()
	}
	if raw.Timestamp != nil {
		rec.CreatedAt = time.Unix(raw.Timestamp.Int64(), 0).UTC()
	}
	if raw.Approver != (common.Address{}) {
		approver := raw.Approver
		rec.Approver = &approver
	}
	return rec
}
