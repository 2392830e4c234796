package passrunner

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

// LocalPassRunner implements PassRunner with capped exponential backoff after
// failed passes. Successful passes re-run immediately; the relay's height
// notifier provides the pacing.
type LocalPassRunner struct {
	// Log and lifecycle
	log     zerolog.Logger
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
	// Handler
	handler PassHandler
	// Backoff management
	backoff *backoff.Backoff
	sleep   func(ctx context.Context, d time.Duration)
}

// NewLocalPassRunner constructs a LocalPassRunner.
// If config.Handler is nil, SetHandler must be called before Start.
func NewLocalPassRunner(cfg Config) PassRunner {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}

	return &LocalPassRunner{
		log:     cfg.Logger,
		handler: cfg.Handler,
		backoff: &backoff.Backoff{
			Min:    cfg.InitialBackoff,
			Max:    cfg.MaxBackoff,
			Factor: 2,
		},
		sleep: cfg.Sleep,
	}
}

// SetHandler sets the handler invoked for every pass.
// It should be called before Start; otherwise Start will panic.
func (r *LocalPassRunner) SetHandler(handler PassHandler) {
	r.handler = handler
}

// Start begins running passes until the context is canceled or Stop is called.
func (r *LocalPassRunner) Start(ctx context.Context) error {
	if r.handler == nil {
		panic("passrunner: LocalPassRunner requires a handler to start")
	}

	if r.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	r.done = make(chan struct{})

	go r.run(runCtx)
	return nil
}

// Stop halts the runner and waits for the in-flight pass to finish.
func (r *LocalPassRunner) Stop(ctx context.Context) error {
	if !r.started {
		return nil
	}

	r.started = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run invokes the handler until it reports cont=false or the context ends.
func (r *LocalPassRunner) run(ctx context.Context) {
	defer close(r.done)

	for {
		if ctx.Err() != nil {
			return
		}

		cont, err := r.handler(ctx)
		if err != nil {
			d := r.backoff.Duration()
			r.log.Warn().Err(err).Dur("backoff", d).Msg("pass failed, backing off")
			r.sleep(ctx, d)
		} else {
			r.backoff.Reset()
		}

		if !cont {
			r.log.Info().Msg("pass handler requested stop")
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
