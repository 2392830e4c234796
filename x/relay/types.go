package relay

import (
	"github.com/ethereum/go-ethereum/common"
)

// DelegationRecord is one pending delegation observed on the host chain,
// queued for submission to the gateway access-control contract. Records are
// inserted by the host-chain indexer and only ever deleted by the relay
// pipeline, never updated.
type DelegationRecord struct {
	Delegator         common.Address
	Delegate          common.Address
	ContractAddress   common.Address
	DelegationCounter uint64
	ExpiryDate        uint64
	HostChainID       uint64

	// BlockHash and BlockNumber anchor the record to the host-chain block the
	// delegation event was observed in. The hash is compared against the live
	// chain to detect reorgs before submission.
	BlockHash   common.Hash
	BlockNumber uint64

	// CorrelationID is an optional identifier assigned by the indexer, used as
	// the queue ordering tie-breaker and for log correlation.
	CorrelationID []byte
}

// BlockStatus classifies a record's anchoring block against the live host
// chain. Computed at most once per height within a pass and never persisted.
type BlockStatus int

const (
	// BlockUnknown means the live hash could not be resolved; the record stays
	// queued and is retried on the next pass.
	BlockUnknown BlockStatus = iota
	// BlockStable means the recorded hash still matches the canonical chain.
	BlockStable
	// BlockDismissed means the block was reorged out; records anchored to it
	// are dropped without submission.
	BlockDismissed
)

func (s BlockStatus) String() string {
	switch s {
	case BlockStable:
		return "stable"
	case BlockDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}
