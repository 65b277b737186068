package conformance

import (
	"context"
	"errors"

	"github.com/example/go-nnconform/internal/datatype"
	"github.com/example/go-nnconform/internal/interp"
	"github.com/example/go-nnconform/internal/nnapi"
	"github.com/example/go-nnconform/internal/tolerance"
	"github.com/example/go-nnconform/internal/verify"
)

// FailureKind groups case errors for reports.
type FailureKind uint8

const (
	KindNone FailureKind = iota
	KindMismatch
	KindUnsupported
	KindNoTolerance
	KindUndefinedOutput
	KindContext
	KindCancelled
	KindRuntime
)

var kindNames = [...]string{
	KindNone:            "pass",
	KindMismatch:        "mismatch",
	KindUnsupported:     "unsupported",
	KindNoTolerance:     "no-tolerance-rule",
	KindUndefinedOutput: "undefined-output",
	KindContext:         "context",
	KindCancelled:       "cancelled",
	KindRuntime:         "runtime",
}

func (k FailureKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Classify maps a case error to its failure kind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, verify.ErrAssertionMismatch):
		return KindMismatch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, nnapi.ErrContextCreation):
		return KindContext
	case errors.Is(err, ErrUnsupportedGraph),
		errors.Is(err, datatype.ErrUnsupportedDataType),
		errors.Is(err, tolerance.ErrUnsupportedLayout):
		return KindUnsupported
	case errors.Is(err, tolerance.ErrNoToleranceRule):
		return KindNoTolerance
	case errors.Is(err, interp.ErrUndefinedGraphOutput):
		return KindUndefinedOutput
	default:
		return KindRuntime
	}
}
