package relay

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v5"
)

// HostChainReader is the read-only host-chain surface used for reorg
// detection and height fallback queries. *ethclient.Client satisfies it.
type HostChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// GatewayClient is the gateway-chain RPC surface used to build, submit and
// confirm delegation transactions. *ethclient.Client satisfies it.
type GatewayClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Signer signs gateway transactions. Implementations may be local keys or
// external signing services.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// NonceSource hands out gateway account nonces, serialized across concurrent
// submissions.
type NonceSource interface {
	Next(ctx context.Context) (uint64, error)
	// Reset discards cached state so the next call re-seeds from the chain.
	Reset()
}

// Store is the durable delegation queue. Fetch and delete run inside the
// caller-supplied transaction so one pass is atomic over read and cleanup.
type Store interface {
	// FetchReady returns records anchored at or below upToBlock, ordered by
	// (block_number, delegation_counter, correlation_id).
	FetchReady(ctx context.Context, tx pgx.Tx, upToBlock uint64) ([]DelegationRecord, error)

	// DeleteByAnchor removes every record anchored to one of the given block
	// hashes.
	DeleteByAnchor(ctx context.Context, tx pgx.Tx, blockHashes []common.Hash) error
}

// TxBeginner opens queue-database transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// HeightSource yields the next host-chain height the pipeline should process
// up to, blocking until one is available or a fallback resolves.
type HeightSource interface {
	NextHeight(ctx context.Context) (uint64, error)
}

// SubmissionEngine submits one delegation grant and waits for its
// confirmation, classifying every failure mode.
type SubmissionEngine interface {
	Submit(ctx context.Context, rec DelegationRecord) error
}
