package passrunner

import (
	"context"
)

// PassRunner re-invokes the relay pass handler forever, backing off after
// failures. It owns the infinite-loop policy the relay core deliberately does
// not implement.
type PassRunner interface {
	SetHandler(PassHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PassHandler executes one relay pass. Returning cont=false stops the runner;
// a non-nil error triggers backoff before the next pass.
type PassHandler func(ctx context.Context) (cont bool, err error)
