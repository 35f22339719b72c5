package broker

import (
	"errors"
	"fmt"
)

// Kind classifies upstream failures so retry policy can branch on it.
type Kind int

const (
	// Transient covers network errors and 5xx responses; safe to retry.
	Transient Kind = iota
	// NonRetryable covers auth rejections and other permanent failures.
	NonRetryable
	// DataInvalid covers well-formed responses with unusable payloads.
	DataInvalid
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case NonRetryable:
		return "non_retryable"
	case DataInvalid:
		return "data_invalid"
	default:
		return "unknown"
	}
}

// Error tags an upstream failure with its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind tag.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the kind from err, defaulting to Transient for untagged
// errors so plain network failures stay retryable.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return Transient
}

// IsRetryable reports whether a retry policy may re-attempt after err.
func IsRetryable(err error) bool {
	return KindOf(err) == Transient
}
