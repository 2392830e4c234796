// Package pgxstore persists the pending delegation queue in Postgres.
package pgxstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ciphernode/delegation-relayer/x/relay"
)

// Sentinel errors for store operations
var (
	ErrFetchFailed  = errors.New("delegation fetch failed")
	ErrDeleteFailed = errors.New("delegation delete failed")
	ErrSchemaFailed = errors.New("schema setup failed")
)

//go:embed schema.sql
var schemaDDL string

var (
	_ relay.Store      = (*Store)(nil)
	_ relay.TxBeginner = (*Store)(nil)
)

// Store implements the relay.Store interface using pgx. Fetch and delete run
// inside a caller-supplied transaction; Begin opens one on the pool so the
// orchestrator can scope a whole pass to it.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL store with an existing connection pool.
// Returns the store and a closer function.
func New(pool *pgxpool.Pool) (*Store, func()) {
	store := &Store{pool: pool}
	closer := func() {
		pool.Close()
	}
	return store, closer
}

// Begin opens a queue transaction.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// EnsureSchema creates the queue table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaFailed, err)
	}
	return nil
}

// FetchReady returns all records anchored at or below upToBlock in intended
// application order: (block_number, delegation_counter, correlation_id).
func (s *Store) FetchReady(ctx context.Context, tx pgx.Tx, upToBlock uint64) ([]relay.DelegationRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT delegator, delegate, contract_address, delegation_counter,
		       expiry_date, host_chain_id, block_hash, block_number, correlation_id
		FROM delegate_user_decrypt
		WHERE block_number <= $1
		ORDER BY block_number ASC, delegation_counter ASC, correlation_id ASC
	`, int64(upToBlock))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer rows.Close()

	var records []relay.DelegationRecord
	for rows.Next() {
		var (
			rec                             relay.DelegationRecord
			delegator, delegate, contract   []byte
			counter, expiry, chainID, block int64
			blockHash                       []byte
		)
		if err := rows.Scan(
			&delegator, &delegate, &contract, &counter,
			&expiry, &chainID, &blockHash, &block, &rec.CorrelationID,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
		rec.Delegator = common.BytesToAddress(delegator)
		rec.Delegate = common.BytesToAddress(delegate)
		rec.ContractAddress = common.BytesToAddress(contract)
		rec.DelegationCounter = uint64(counter)
		rec.ExpiryDate = uint64(expiry)
		rec.HostChainID = uint64(chainID)
		rec.BlockHash = common.BytesToHash(blockHash)
		rec.BlockNumber = uint64(block)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return records, nil
}

// DeleteByAnchor removes every record anchored to one of the given block
// hashes. A no-op on an empty set.
func (s *Store) DeleteByAnchor(ctx context.Context, tx pgx.Tx, blockHashes []common.Hash) error {
	if len(blockHashes) == 0 {
		return nil
	}
	hashes := make([][]byte, len(blockHashes))
	for i, h := range blockHashes {
		hashes[i] = h.Bytes()
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM delegate_user_decrypt
		WHERE block_hash = ANY($1)
	`, hashes); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	return nil
}
