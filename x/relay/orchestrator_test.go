package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeDB struct {
	tx       *fakeTx
	beginErr error
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return d.tx, nil
}

type fakeStore struct {
	records   []DelegationRecord
	fetchErr  error
	deleteErr error

	fetchedUpTo uint64
	deleted     []common.Hash
}

func (s *fakeStore) FetchReady(ctx context.Context, tx pgx.Tx, upToBlock uint64) ([]DelegationRecord, error) {
	s.fetchedUpTo = upToBlock
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []DelegationRecord
	for _, rec := range s.records {
		if rec.BlockNumber <= upToBlock {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteByAnchor(ctx context.Context, tx pgx.Tx, blockHashes []common.Hash) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, blockHashes...)
	return nil
}

type fakeHeights struct {
	height uint64
	err    error
}

func (h *fakeHeights) NextHeight(ctx context.Context) (uint64, error) {
	return h.height, h.err
}

type fakeEngine struct {
	mu        sync.Mutex
	submitted []DelegationRecord
	failFor   map[uint64]error // keyed by delegation counter
}

func (e *fakeEngine) Submit(ctx context.Context, rec DelegationRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = append(e.submitted, rec)
	if e.failFor != nil {
		if err := e.failFor[rec.DelegationCounter]; err != nil {
			return err
		}
	}
	return nil
}

func (e *fakeEngine) submittedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.submitted)
}

type orchTestEnv struct {
	orch    *Orchestrator
	db      *fakeDB
	store   *fakeStore
	host    *stubHost
	heights *fakeHeights
	engine  *fakeEngine
}

func newOrchTestEnv(t *testing.T) *orchTestEnv {
	return newOrchTestEnvWith(t, func(*Config) {})
}

func newOrchTestEnvWith(t *testing.T, tune func(*Config)) *orchTestEnv {
	t.Helper()

	cfg := DefaultConfig()
	cfg.GatewayChainID = 1
	cfg.FinalityDelay = 5
	tune(&cfg)

	env := &orchTestEnv{
		db:      &fakeDB{tx: &fakeTx{}},
		store:   &fakeStore{},
		host:    newStubHost(),
		heights: &fakeHeights{height: 105},
		engine:  &fakeEngine{},
	}

	orch, err := NewOrchestrator(OrchestratorConfig{
		Settings: cfg,
		Logger:   testLogger(),
		DB:       env.db,
		Store:    env.store,
		Host:     env.host,
		Heights:  env.heights,
		Engine:   env.engine,
		Metrics:  testMetrics(),
	})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	env.orch = orch
	return env
}

func TestRunPassSubmitsStableAndCleansUp(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	anchor := env.host.addBlock(100)
	env.store.records = []DelegationRecord{
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 1},
	}

	cont, err := env.orch.RunPass(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.Equal(t, 1, env.engine.submittedCount())
	require.Equal(t, []common.Hash{anchor}, env.store.deleted)
	require.True(t, env.db.tx.committed)
	require.False(t, env.db.tx.rolledBack)
}

func TestRunPassDismissedNeverSubmitted(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	env.host.addBlock(100) // live hash differs from the recorded one
	recorded := common.HexToHash("0xdead")
	env.store.records = []DelegationRecord{
		{BlockNumber: 100, BlockHash: recorded, DelegationCounter: 1},
	}

	cont, err := env.orch.RunPass(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.Zero(t, env.engine.submittedCount())
	require.Equal(t, []common.Hash{recorded}, env.store.deleted)
	require.True(t, env.db.tx.committed)
}

func TestRunPassThresholdFromHeightAndDelay(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	env.heights.height = 205

	cont, err := env.orch.RunPass(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.Equal(t, uint64(200), env.store.fetchedUpTo)
	require.True(t, env.db.tx.committed)
}

func TestRunPassAtomicityOnPartialFailure(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	anchor := env.host.addBlock(100)
	env.store.records = []DelegationRecord{
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 1},
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 2},
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 3},
	}
	env.engine.failFor = map[uint64]error{2: errors.New("receipt reverted")}

	cont, err := env.orch.RunPass(context.Background())
	require.Error(t, err)
	require.True(t, cont)
	// every sibling ran to completion despite the failure
	require.Equal(t, 3, env.engine.submittedCount())
	require.Empty(t, env.store.deleted)
	require.True(t, env.db.tx.rolledBack)
	require.False(t, env.db.tx.committed)
}

func TestRunPassAllUnknownCommitsNoOp(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	env.host.errs[100] = errors.New("rpc unavailable")
	env.store.records = []DelegationRecord{
		{BlockNumber: 100, BlockHash: common.HexToHash("0x01"), DelegationCounter: 1},
	}

	cont, err := env.orch.RunPass(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.Zero(t, env.engine.submittedCount())
	require.Empty(t, env.store.deleted)
	require.True(t, env.db.tx.committed)
}

func TestRunPassEmptyStoreCommitsNoOp(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)

	cont, err := env.orch.RunPass(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.True(t, env.db.tx.committed)
}

func TestRunPassCleanupFailureStillCommits(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	anchor := env.host.addBlock(100)
	env.store.records = []DelegationRecord{
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 1},
	}
	env.store.deleteErr = errors.New("constraint violated")

	cont, err := env.orch.RunPass(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.Equal(t, 1, env.engine.submittedCount())
	require.True(t, env.db.tx.committed)
}

func TestRunPassFetchErrorRollsBack(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	env.store.fetchErr = errors.New("relation does not exist")

	cont, err := env.orch.RunPass(context.Background())
	require.Error(t, err)
	require.True(t, cont)
	require.True(t, env.db.tx.rolledBack)
}

func TestRunPassHeightErrorPropagates(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	env.heights.err = errors.New("host rpc down")

	cont, err := env.orch.RunPass(context.Background())
	require.Error(t, err)
	require.True(t, cont)
	require.False(t, env.db.tx.committed)
	require.False(t, env.db.tx.rolledBack)
}

func TestRunPassQueuedSiblingsRunAfterFailure(t *testing.T) {
	t.Parallel()

	// A single worker forces sequential dispatch, so the first candidate's
	// failure fully resolves before its queued siblings start.
	env := newOrchTestEnvWith(t, func(cfg *Config) {
		cfg.MaxConcurrentSubmissions = 1
	})
	anchor := env.host.addBlock(100)
	env.store.records = []DelegationRecord{
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 1},
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 2},
		{BlockNumber: 100, BlockHash: anchor, DelegationCounter: 3},
	}
	env.engine.failFor = map[uint64]error{1: errors.New("receipt reverted")}

	cont, err := env.orch.RunPass(context.Background())
	require.Error(t, err)
	require.True(t, cont)
	require.Equal(t, 3, env.engine.submittedCount())
	require.True(t, env.db.tx.rolledBack)
}

func TestRunPassDeletesEveryConsumedAnchor(t *testing.T) {
	t.Parallel()

	env := newOrchTestEnv(t)
	a100 := env.host.addBlock(100)
	a101 := env.host.addBlock(101)
	env.store.records = []DelegationRecord{
		{BlockNumber: 100, BlockHash: a100, DelegationCounter: 1},
		{BlockNumber: 100, BlockHash: a100, DelegationCounter: 2},
		{BlockNumber: 101, BlockHash: a101, DelegationCounter: 1},
	}

	cont, err := env.orch.RunPass(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.Equal(t, 3, env.engine.submittedCount())
	require.ElementsMatch(t, []common.Hash{a100, a101}, env.store.deleted)
}
