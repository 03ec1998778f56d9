package submission

import (
	"errors"
	"fmt"
	"strings"
)

// ErrWriteDisabled is returned by every write path in read-only mode,
// before any network call.
var ErrWriteDisabled = errors.New("write operations disabled (read-only mode)")

// Issue is one validation failure, tied to a file or a metadata field.
type Issue struct {
	Subject string // File name or field name
	Reason  string
}

// Rejection reasons for staged files
const (
	ReasonInvalidName   = "invalid file name (must contain letters or numbers)"
	ReasonDisallowed    = "file type not allowed"
	ReasonCountExceeded = "max 5 files per submission"
)

// ValidationError collects every problem found in one call.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", i.Subject, i.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether any issue carries reason.
func (e *ValidationError) Has(reason string) bool {
	for _, i := range e.Issues {
		if i.Reason == reason {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(subject, reason string) {
	e.Issues = append(e.Issues, Issue{Subject: subject, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

// UploadError means the pinning service rejected the batch. No chain write
// was attempted.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ChainWriteError means the ledger write was not accepted. The pending slot
// is unchanged.
type ChainWriteError struct {
	Err error
}

func (e *ChainWriteError) Error() string {
	return fmt.Sprintf("error submitting record to ledger: %v", e.Err)
}

func (e *ChainWriteError) Unwrap() error {
	return e.Err
}
