package contracts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// AccessController ABI JSON embedded at compile time
//
//go:embed abi/access_controller.json
var accessControllerABIJSON string

var _ Binding = (*AccessControllerBinding)(nil)

// Contract errors that mean the requested delegation is already in effect on
// the gateway. A send rejected with one of these must be treated as success.
const (
	errAlreadyDelegatedOrRevoked = "AlreadyDelegatedOrRevoked"
	errDelegationCounterTooLow   = "DelegationCounterTooLow"
)

// AccessControllerBinding provides calldata encoding and revert decoding for
// the gateway access-control contract that records user-decryption delegations.
type AccessControllerBinding struct {
	address common.Address
	abi     abi.ABI
}

// NewAccessControllerBinding parses the embedded ABI and validates the
// contract address.
func NewAccessControllerBinding(contractAddr string) (*AccessControllerBinding, error) {
	if !common.IsHexAddress(strings.TrimSpace(contractAddr)) {
		return nil, fmt.Errorf("invalid access controller address %q", contractAddr)
	}

	parsedABI, err := abi.JSON(strings.NewReader(accessControllerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse AccessController ABI: %w", err)
	}

	return &AccessControllerBinding{
		address: common.HexToAddress(contractAddr),
		abi:     parsedABI,
	}, nil
}

// Address returns the gateway address of the access-control contract.
func (b *AccessControllerBinding) Address() common.Address {
	return b.address
}

// ABI returns the parsed ABI of the access-control contract.
func (b *AccessControllerBinding) ABI() abi.ABI {
	return b.abi
}

// BuildDelegateCalldata encodes delegateUserDecryption with the delegation's
// identity and its monotonic counter.
func (b *AccessControllerBinding) BuildDelegateCalldata(
	hostChainID uint64,
	delegator, delegate, delegatedContract common.Address,
	expiryDate, delegationCounter uint64,
) ([]byte, error) {
	data, err := b.abi.Pack(
		"delegateUserDecryption",
		new(big.Int).SetUint64(hostChainID),
		delegator,
		delegate,
		delegatedContract,
		expiryDate,
		delegationCounter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack delegateUserDecryption calldata: %w", err)
	}
	return data, nil
}

// BenignRejection inspects a send error for revert data whose selector matches
// AlreadyDelegatedOrRevoked or DelegationCounterTooLow.
func (b *AccessControllerBinding) BenignRejection(err error) (string, bool) {
	data, ok := revertData(err)
	if !ok || len(data) < 4 {
		return "", false
	}
	for _, name := range []string{errAlreadyDelegatedOrRevoked, errDelegationCounterTooLow} {
		abiErr, found := b.abi.Errors[name]
		if !found {
			continue
		}
		if bytes.Equal(data[:4], abiErr.ID.Bytes()[:4]) {
			return name, true
		}
	}
	return "", false
}

// revertData extracts ABI-encoded revert data from an RPC error response.
func revertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch data := dataErr.ErrorData().(type) {
	case string:
		decoded, decErr := hexutil.Decode(data)
		if decErr != nil {
			return nil, false
		}
		return decoded, true
	case []byte:
		return data, true
	default:
		return nil, false
	}
}
