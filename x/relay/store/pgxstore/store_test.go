package pgxstore

import (
	"context"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// newDBTx connects to the database named by TEST_DATABASE_URL and opens a
// transaction that is rolled back on cleanup, so runs leave no rows behind.
// Tests are skipped when the variable is unset.
func newDBTx(t *testing.T) (*Store, pgx.Tx) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := &Store{pool: pool}
	require.NoError(t, store.EnsureSchema(ctx))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })

	// Start from a clean slate; truncation is transactional and rolls back
	// with the rest.
	_, err = tx.Exec(ctx, "TRUNCATE delegate_user_decrypt")
	require.NoError(t, err)

	return store, tx
}

func insertRecord(t *testing.T, tx pgx.Tx, blockNumber, counter int64, blockHash common.Hash) {
	t.Helper()
	_, err := tx.Exec(context.Background(), `
		INSERT INTO delegate_user_decrypt
		(delegator, delegate, contract_address, delegation_counter,
		 expiry_date, host_chain_id, block_hash, block_number, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		common.HexToAddress("0x01").Bytes(),
		common.HexToAddress("0x02").Bytes(),
		common.HexToAddress("0x03").Bytes(),
		counter, int64(1_900_000_000), int64(31337),
		blockHash.Bytes(), blockNumber, nil,
	)
	require.NoError(t, err)
}

func TestFetchReadyOrdersByBlockThenCounter(t *testing.T) {
	store, tx := newDBTx(t)
	ctx := context.Background()

	hash100 := common.HexToHash("0xaa")
	hash101 := common.HexToHash("0xbb")

	// inserted out of intended order on purpose
	insertRecord(t, tx, 101, 1, hash101)
	insertRecord(t, tx, 100, 2, hash100)
	insertRecord(t, tx, 100, 1, hash100)

	records, err := store.FetchReady(ctx, tx, 101)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, uint64(100), records[0].BlockNumber)
	require.Equal(t, uint64(1), records[0].DelegationCounter)
	require.Equal(t, uint64(100), records[1].BlockNumber)
	require.Equal(t, uint64(2), records[1].DelegationCounter)
	require.Equal(t, uint64(101), records[2].BlockNumber)
	require.Equal(t, uint64(1), records[2].DelegationCounter)
}

func TestFetchReadyHonorsThreshold(t *testing.T) {
	store, tx := newDBTx(t)
	ctx := context.Background()

	insertRecord(t, tx, 100, 1, common.HexToHash("0xaa"))
	insertRecord(t, tx, 101, 1, common.HexToHash("0xbb"))

	records, err := store.FetchReady(ctx, tx, 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(100), records[0].BlockNumber)
}

func TestDeleteByAnchorRemovesOnlyMatchingHashes(t *testing.T) {
	store, tx := newDBTx(t)
	ctx := context.Background()

	consumed := common.HexToHash("0xaa")
	kept := common.HexToHash("0xbb")
	insertRecord(t, tx, 100, 1, consumed)
	insertRecord(t, tx, 100, 2, consumed)
	insertRecord(t, tx, 101, 1, kept)

	require.NoError(t, store.DeleteByAnchor(ctx, tx, []common.Hash{consumed}))

	records, err := store.FetchReady(ctx, tx, 200)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, kept, records[0].BlockHash)
}
