// Package fault classifies errors crossing component boundaries. Engines and
// stores return ordinary errors wrapped in a Kind; the HTTP facade and the
// batch job log translate kinds into statuses and counters without string
// matching.
package fault

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	BadRequest            Kind = "bad_request"
	NotFound              Kind = "not_found"
	StoreUnavailable      Kind = "store_unavailable"
	CapabilityUnavailable Kind = "capability_unavailable"
	CapabilityQuota       Kind = "capability_quota"
	ParseError            Kind = "parse_error"
	PersistConflict       Kind = "persist_conflict"
	Timeout               Kind = "timeout"
	Cancelled             Kind = "cancelled"
	ConsumerSlow          Kind = "consumer_slow"
	Internal              Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with no underlying cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil err yields nil so call sites can
// wrap unconditionally.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the classification of err. Unclassified context errors map
// to Timeout/Cancelled; everything else unclassified is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return Internal
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
