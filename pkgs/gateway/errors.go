package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidReference is returned when the input is not a usable content
// reference. No network call is made in that case.
var ErrInvalidReference = errors.New("invalid content reference")

// Attempt records why a single candidate failed.
type Attempt struct {
	Candidate string
	Err       error
}

// ExhaustedError means every candidate was tried and none succeeded.
type ExhaustedError struct {
	Ref      string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d gateways failed for %s", len(e.Attempts), e.Ref)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Candidate, a.Err)
	}
	return b.String()
}

// LastError is the failure detail of the final candidate, the one surfaced
// to end users.
func (e *ExhaustedError) LastError() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway responded %d", e.Code)
	}
	return fmt.Sprintf("gateway responded %d: %s", e.Code, e.Body)
}

// IsExhausted reports whether err is, or wraps, an *ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
