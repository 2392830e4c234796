package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	// ErrBlockNotFound is returned when a past host block at or below the
	// readiness threshold cannot be resolved by number.
	ErrBlockNotFound = errors.New("relay: past block not found by number")
)

// SignerError wraps a failure from the transaction signer. Signer faults may
// be transient when an external signing service is in use, so the batch
// retries them indefinitely.
type SignerError struct {
	Err error
}

func (e *SignerError) Error() string { return "relay: signer: " + e.Err.Error() }

func (e *SignerError) Unwrap() error { return e.Err }

// IsUnlimitedRetry reports whether a submission error is a transport-level or
// local-signer fault. Such errors fail the pass like any other, but are logged
// distinctly because only the external scheduler's retry can resolve them.
func IsUnlimitedRetry(err error) bool {
	var sigErr *SignerError
	if errors.As(err, &sigErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
