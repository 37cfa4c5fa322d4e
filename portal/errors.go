package portal

import (
	"errors"
	"fmt"

	"github.com/pevans/civicfetch/dom"
)

// Kind classifies an extraction failure.
type Kind int

const (
	// KindNotFound means an expected element or payload was absent.
	KindNotFound Kind = iota + 1

	// KindTimeout means a bounded wait elapsed.
	KindTimeout

	// KindInternal means the driver itself failed.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindTimeout:
		return "timeout"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ExtractionError is the typed outcome for everything that can go wrong
// while reading the portal.
type ExtractionError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// wrapErr classifies err for op. Timeouts reported by the backend become
// KindTimeout and anything else KindInternal.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return err
	}
	kind := KindInternal
	if errors.Is(err, dom.ErrTimeout) {
		kind = KindTimeout
	}
	return &ExtractionError{Kind: kind, Op: op, Err: err}
}

func notFound(op string) error {
	return &ExtractionError{Kind: KindNotFound, Op: op}
}

func isKind(err error, k Kind) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == k
}

// IsNotFound reports whether err is a KindNotFound extraction error.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsTimeout reports whether err is a KindTimeout extraction error.
func IsTimeout(err error) bool { return isKind(err, KindTimeout) }

// IsInternal reports whether err is a KindInternal extraction error.
func IsInternal(err error) bool { return isKind(err, KindInternal) }
