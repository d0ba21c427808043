// Package errs defines the error kinds shared by the message codec, the frame
// protocols, the queues and the services.
//
// Each kind is a sentinel carrying a gRPC status code. Call sites wrap the
// sentinel with context (fmt.Errorf("...: %w", errs.ErrDataLoss)) and callers
// test for the kind with errors.Is or Code.
package errs

import (
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is a sentinel error identified by its status code.
type Kind struct {
	code codes.Code
}

// Error returns the lower-case, space separated name of the code,
// e.g. "data loss".
func (k *Kind) Error() string {
	var b strings.Builder
	for i, r := range k.code.String() {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Code returns the status code of the kind.
func (k *Kind) Code() codes.Code { return k.code }

// GRPCStatus lets status.Code and status.FromError understand a bare kind.
func (k *Kind) GRPCStatus() *status.Status {
	return status.New(k.code, k.Error())
}

var (
	// ErrInvalidArgument is returned for malformed setter input or a query with
	// the wrong parameter type or width.
	ErrInvalidArgument = &Kind{codes.InvalidArgument}
	// ErrNotFound is returned when a queried key is absent.
	ErrNotFound = &Kind{codes.NotFound}
	// ErrDataLoss is returned for malformed wire bytes and frame validity or
	// checksum failures.
	ErrDataLoss = &Kind{codes.DataLoss}
	// ErrResourceExhausted is returned when a non-blocking send finds the
	// transport full.
	ErrResourceExhausted = &Kind{codes.ResourceExhausted}
	// ErrUnavailable is returned when the transport is closed or unreachable.
	ErrUnavailable = &Kind{codes.Unavailable}
	// ErrPermissionDenied is returned when a reserved key is mutated through the
	// generic setters.
	ErrPermissionDenied = &Kind{codes.PermissionDenied}
	// ErrDeadlineExceeded is returned when a bounded wait, such as stopping a
	// worker, runs out.
	ErrDeadlineExceeded = &Kind{codes.DeadlineExceeded}
	// ErrFailedPrecondition is returned when a queue is used before it is opened.
	ErrFailedPrecondition = &Kind{codes.FailedPrecondition}
)

var kinds = []*Kind{
	ErrInvalidArgument,
	ErrNotFound,
	ErrDataLoss,
	ErrResourceExhausted,
	ErrUnavailable,
	ErrPermissionDenied,
	ErrDeadlineExceeded,
	ErrFailedPrecondition,
}

// Code reports the kind of err. It returns codes.OK for a nil error and
// codes.Unknown for an error that wraps none of the kinds in this package.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.code
		}
	}
	return codes.Unknown
}
