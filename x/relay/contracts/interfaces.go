package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Binding abstracts the gateway-chain access-control contract consumed by the
// submission engine.
type Binding interface {
	// Address returns the contract address calldata is sent to.
	Address() common.Address

	// ABI returns the parsed contract ABI.
	ABI() abi.ABI

	// BuildDelegateCalldata encodes a delegateUserDecryption call.
	BuildDelegateCalldata(
		hostChainID uint64,
		delegator, delegate, delegatedContract common.Address,
		expiryDate, delegationCounter uint64,
	) ([]byte, error)

	// BenignRejection reports whether a send error carries revert data that
	// decodes to a contract error meaning the delegation is already in effect.
	// The returned string is the contract error name.
	BenignRejection(err error) (string, bool)
}
