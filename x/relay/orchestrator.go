package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// OrchestratorConfig bundles the orchestrator's settings and collaborators.
type OrchestratorConfig struct {
	Settings Config
	Logger   zerolog.Logger

	DB      TxBeginner
	Store   Store
	Host    HostChainReader
	Heights HeightSource
	Engine  SubmissionEngine
	Metrics *Metrics
}

// Orchestrator drives one relay pass: wait for a ready height, fetch ordered
// candidates below the finality threshold inside a queue transaction,
// classify their anchoring blocks, fan out all stable submissions, join every
// outcome, then delete consumed anchors and commit — or roll back so a
// partially delivered batch is retried whole. Benign contract rejections in
// the engine make that whole-batch retry safe.
type Orchestrator struct {
	cfg     Config
	log     zerolog.Logger
	db      TxBeginner
	store   Store
	host    HostChainReader
	heights HeightSource
	engine  SubmissionEngine
	metrics *Metrics
	workers pond.Pool
}

// NewOrchestrator constructs an Orchestrator. A single instance owns the
// store; concurrent orchestrators over the same queue are not supported.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.DB == nil || cfg.Store == nil || cfg.Host == nil || cfg.Heights == nil || cfg.Engine == nil {
		return nil, errors.New("relay: orchestrator requires db, store, host, heights and engine")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}

	return &Orchestrator{
		cfg:     cfg.Settings,
		log:     cfg.Logger.With().Str("component", "orchestrator").Logger(),
		db:      cfg.DB,
		store:   cfg.Store,
		host:    cfg.Host,
		heights: cfg.Heights,
		engine:  cfg.Engine,
		metrics: cfg.Metrics,
		workers: pond.NewPool(cfg.Settings.MaxConcurrentSubmissions),
	}, nil
}

// Close releases the submission worker pool.
func (o *Orchestrator) Close() {
	o.workers.StopAndWait()
}

// RunPass executes one atomic pass. It always reports continue=true: the
// caller owns the forever-retry policy, and no failure at this level is
// terminal.
func (o *Orchestrator) RunPass(ctx context.Context) (bool, error) {
	log := o.log.With().Str("pass_id", uuid.NewString()).Logger()

	height, err := o.heights.NextHeight(ctx)
	if err != nil {
		o.metrics.PassesTotal.WithLabelValues("error").Inc()
		return true, fmt.Errorf("resolve ready height: %w", err)
	}
	var threshold uint64
	if height > o.cfg.FinalityDelay {
		threshold = height - o.cfg.FinalityDelay
	}

	tx, err := o.db.Begin(ctx)
	if err != nil {
		o.metrics.PassesTotal.WithLabelValues("error").Inc()
		return true, fmt.Errorf("begin queue transaction: %w", err)
	}

	records, err := o.store.FetchReady(ctx, tx, threshold)
	if err != nil {
		o.rollback(ctx, tx, log)
		o.metrics.PassesTotal.WithLabelValues("error").Inc()
		return true, fmt.Errorf("fetch ready delegations: %w", err)
	}

	part := newClassifier(o.host, log).partition(ctx, records)
	o.observe(log, threshold, part)

	if len(part.candidates) == 0 && len(part.anchors) == 0 {
		if err := tx.Commit(ctx); err != nil {
			o.metrics.PassesTotal.WithLabelValues("error").Inc()
			return true, fmt.Errorf("commit empty pass: %w", err)
		}
		log.Info().Msg("no delegations to handle")
		o.metrics.PassesTotal.WithLabelValues("empty").Inc()
		return true, nil
	}

	// Fan out every stable candidate and join all outcomes before deciding.
	// Siblings are not cancelled on failure: an already-sent transaction
	// cannot be recalled, so each submission runs to completion. Candidates
	// go to the pool as individual tasks rather than a task group, whose
	// shared context would skip queued siblings after the first error.
	tasks := make([]pond.Task, len(part.candidates))
	for i, rec := range part.candidates {
		tasks[i] = o.workers.SubmitErr(func() error {
			return o.engine.Submit(ctx, rec)
		})
	}
	var batchErr error
	for _, task := range tasks {
		if err := task.Wait(); err != nil && batchErr == nil {
			batchErr = err
		}
	}
	if batchErr != nil {
		o.rollback(ctx, tx, log)
		o.metrics.PassesTotal.WithLabelValues("failed").Inc()
		return true, fmt.Errorf("delegation batch submission failed, will retry: %w", batchErr)
	}

	// Submissions are settled on-chain; deleting consumed anchors is
	// best-effort. Leftover records are absorbed on a later pass via the
	// contract's benign rejections.
	if err := o.store.DeleteByAnchor(ctx, tx, part.anchors); err != nil {
		log.Error().Err(err).Msg("cannot clean delegation queue, will be cleaned later")
	}

	if err := tx.Commit(ctx); err != nil {
		o.metrics.PassesTotal.WithLabelValues("error").Inc()
		return true, fmt.Errorf("commit pass: %w", err)
	}
	o.metrics.PassesTotal.WithLabelValues("ok").Inc()
	return true, nil
}

func (o *Orchestrator) observe(log zerolog.Logger, threshold uint64, part readiness) {
	o.metrics.RecordsDeferred.Set(float64(part.deferred))
	if part.dismissed > 0 {
		o.metrics.RecordsDismissed.Add(float64(part.dismissed))
		log.Info().Int("dismissed", part.dismissed).Msg("delegations dismissed due to reorg")
	}
	if part.deferred > 0 {
		log.Error().Int("deferred", part.deferred).Msg("delegations deferred due to unknown block status")
	}
	if len(part.candidates) > 0 {
		o.metrics.BatchSize.Observe(float64(len(part.candidates)))
		log.Info().
			Int("ready", len(part.candidates)).
			Uint64("threshold", threshold).
			Msg("processing ready delegations")
	}
}

func (o *Orchestrator) rollback(ctx context.Context, tx pgx.Tx, log zerolog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Error().Err(err).Msg("queue transaction rollback failed")
	}
}
