package relay

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// classifier resolves the live host-chain hash for anchoring heights and
// memoizes each lookup so the host chain is consulted at most once per height
// within a single pass. A classifier must not outlive its pass.
type classifier struct {
	host  HostChainReader
	log   zerolog.Logger
	cache map[uint64]lookupResult
}

type lookupResult struct {
	hash common.Hash
	err  error
}

func newClassifier(host HostChainReader, log zerolog.Logger) *classifier {
	return &classifier{
		host:  host,
		log:   log,
		cache: make(map[uint64]lookupResult),
	}
}

// classify compares a record's anchoring hash against the canonical chain.
func (c *classifier) classify(ctx context.Context, height uint64, recorded common.Hash) BlockStatus {
	res, ok := c.cache[height]
	if !ok {
		res = c.resolve(ctx, height)
		c.cache[height] = res
	}
	switch {
	case res.err != nil:
		return BlockUnknown
	case res.hash == recorded:
		return BlockStable
	default:
		return BlockDismissed
	}
}

func (c *classifier) resolve(ctx context.Context, height uint64) lookupResult {
	header, err := c.host.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// The height is at or below the finality threshold, so the block
			// must exist. Treated as a failed lookup and retried next pass.
			c.log.Error().Uint64("block_number", height).Msg("past block not found by number")
			return lookupResult{err: ErrBlockNotFound}
		}
		c.log.Error().Err(err).Uint64("block_number", height).
			Msg("cannot resolve block hash, delegations at this height will retry next pass")
		return lookupResult{err: err}
	}
	if header == nil {
		c.log.Error().Uint64("block_number", height).Msg("past block not found by number")
		return lookupResult{err: ErrBlockNotFound}
	}
	return lookupResult{hash: header.Hash()}
}

// readiness is the outcome of partitioning fetched records by block status.
type readiness struct {
	// candidates are records anchored to stable blocks, in store order.
	candidates []DelegationRecord
	// anchors are the block hashes whose records are consumed this pass,
	// covering both stable and dismissed blocks, deduplicated in first-seen
	// order.
	anchors []common.Hash
	// dismissed and deferred count records dropped by reorg and records
	// awaiting a resolvable block status.
	dismissed int
	deferred  int
}

// partition splits records into submission candidates, anchors to delete and
// deferred leftovers. Dismissed records contribute their anchor without ever
// becoming candidates, so reorged-out delegations are garbage collected
// unsubmitted.
func (c *classifier) partition(ctx context.Context, records []DelegationRecord) readiness {
	var part readiness
	seen := make(map[common.Hash]struct{})

	addAnchor := func(h common.Hash) {
		if _, dup := seen[h]; dup {
			return
		}
		seen[h] = struct{}{}
		part.anchors = append(part.anchors, h)
	}

	for _, rec := range records {
		switch c.classify(ctx, rec.BlockNumber, rec.BlockHash) {
		case BlockStable:
			part.candidates = append(part.candidates, rec)
			addAnchor(rec.BlockHash)
		case BlockDismissed:
			part.dismissed++
			addAnchor(rec.BlockHash)
		case BlockUnknown:
			part.deferred++
		}
	}
	return part
}
