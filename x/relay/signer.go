package relay

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var _ Signer = (*LocalECDSASigner)(nil)

// LocalECDSASigner signs gateway transactions with an in-process secp256k1 key.
type LocalECDSASigner struct {
	address common.Address
	key     *ecdsa.PrivateKey
	signer  types.Signer
}

func NewLocalECDSASigner(chainID *big.Int, key *ecdsa.PrivateKey) *LocalECDSASigner {
	return &LocalECDSASigner{
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
		signer:  types.LatestSignerForChainID(chainID),
	}
}

// NewLocalECDSASignerFromHex parses a hex-encoded private key.
func NewLocalECDSASignerFromHex(chainID *big.Int, pkHex string) (*LocalECDSASigner, error) {
	key, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, err
	}
	return NewLocalECDSASigner(chainID, key), nil
}

func (s *LocalECDSASigner) Address() common.Address {
	return s.address
}

func (s *LocalECDSASigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, s.signer, s.key)
}
