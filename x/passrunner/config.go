package passrunner

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = time.Minute
)

// Config configures a PassRunner.
type Config struct {
	// Handler is the function invoked for every pass.
	Handler PassHandler
	// InitialBackoff is the delay after the first consecutive failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential failure backoff.
	MaxBackoff time.Duration
	// Sleep waits for the given duration or until the context is done.
	// Useful for deterministic tests. Defaults to a timer wait if nil.
	Sleep  func(ctx context.Context, d time.Duration)
	Logger zerolog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		Handler:        nil, // Set later by an upper layer
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Logger:         logger.With().Str("component", "pass-runner").Logger(),
	}
}
