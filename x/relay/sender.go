package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/ciphernode/delegation-relayer/x/relay/contracts"
)

var _ SubmissionEngine = (*Sender)(nil)

// Sender submits one delegation grant to the gateway access-control contract
// and waits for its confirmation. Failures are classified into three tiers:
// benign contract rejections (success), transport and signer faults (retried
// indefinitely by the outer scheduler), and everything else (also retried,
// logged as plain failures). The Sender itself never retries; retry is a
// batch-level concern.
type Sender struct {
	cfg      Config
	gateway  GatewayClient
	contract contracts.Binding
	signer   Signer
	nonces   NonceSource
	metrics  *Metrics
	log      zerolog.Logger
}

func NewSender(
	cfg Config,
	gateway GatewayClient,
	contract contracts.Binding,
	signer Signer,
	nonces NonceSource,
	m *Metrics,
	log zerolog.Logger,
) *Sender {
	return &Sender{
		cfg:      cfg,
		gateway:  gateway,
		contract: contract,
		signer:   signer,
		nonces:   nonces,
		metrics:  m,
		log:      log.With().Str("component", "sender").Logger(),
	}
}

// Submit encodes, sends and confirms a single delegation grant.
func (s *Sender) Submit(ctx context.Context, rec DelegationRecord) error {
	log := s.log.With().
		Str("delegator", rec.Delegator.Hex()).
		Str("delegate", rec.Delegate.Hex()).
		Str("contract", rec.ContractAddress.Hex()).
		Uint64("counter", rec.DelegationCounter).
		Uint64("host_chain_id", rec.HostChainID).
		Logger()

	tx, err := s.buildTransaction(ctx, rec)
	if err != nil {
		s.metrics.SubmissionsFailed.WithLabelValues("build").Inc()
		// The build may have drawn a nonce that will never reach the chain;
		// discard the cached sequence so no gap wedges later submissions.
		s.nonces.Reset()
		log.Warn().Err(err).Msg("building delegation transaction failed")
		return err
	}

	if err := s.gateway.SendTransaction(ctx, tx); err != nil {
		if name, benign := s.contract.BenignRejection(err); benign {
			log.Warn().Str("contract_error", name).
				Msg("delegation not accepted by the contract, already applied")
			return nil
		}
		s.metrics.SubmissionsFailed.WithLabelValues("send").Inc()
		s.nonces.Reset()
		if IsUnlimitedRetry(err) {
			log.Warn().Err(err).Msg("transaction sending failed with unlimited retry error")
		} else {
			log.Warn().Err(err).Msg("transaction sending failed")
		}
		return fmt.Errorf("send delegation transaction: %w", err)
	}

	// Once the send was accepted we assume a receipt will eventually exist;
	// transport errors while waiting propagate and fail the batch.
	receipt, err := s.waitReceipt(ctx, tx.Hash())
	if err != nil {
		s.metrics.SubmissionsFailed.WithLabelValues("receipt").Inc()
		log.Error().Err(err).Str("tx_hash", tx.Hash().Hex()).Msg("getting receipt failed")
		return err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		s.metrics.SubmissionsFailed.WithLabelValues("reverted").Inc()
		log.Error().Str("tx_hash", receipt.TxHash.Hex()).Msg("delegation transaction reverted")
		return fmt.Errorf("delegation transaction %s reverted", receipt.TxHash.Hex())
	}

	s.metrics.SubmissionsSucceeded.Inc()
	log.Info().Str("tx_hash", receipt.TxHash.Hex()).Msg("delegation transaction succeeded")
	return nil
}

func (s *Sender) buildTransaction(ctx context.Context, rec DelegationRecord) (*types.Transaction, error) {
	calldata, err := s.contract.BuildDelegateCalldata(
		rec.HostChainID,
		rec.Delegator,
		rec.Delegate,
		rec.ContractAddress,
		rec.ExpiryDate,
		rec.DelegationCounter,
	)
	if err != nil {
		return nil, err
	}

	to := s.contract.Address()

	gasLimit := s.cfg.GasLimit
	if gasLimit == 0 {
		estimate, err := s.gateway.EstimateGas(ctx, ethereum.CallMsg{
			From: s.signer.Address(),
			To:   &to,
			Data: calldata,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = overprovisionGas(estimate, s.cfg.GasLimitOverprovisionPct)
	}

	tipCap, err := s.gateway.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	head, err := s.gateway.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch gateway head: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	nonce, err := s.nonces.Next(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(s.cfg.GatewayChainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      calldata,
	})

	signed, err := s.signer.SignTx(tx)
	if err != nil {
		return nil, &SignerError{Err: err}
	}
	return signed, nil
}

// waitReceipt polls for the transaction receipt under the configured timeout,
// then requires the configured confirmation count on top of inclusion.
func (s *Sender) waitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for {
		if receipt == nil {
			r, err := s.gateway.TransactionReceipt(ctx, txHash)
			switch {
			case err == nil:
				receipt = r
			case errors.Is(err, ethereum.NotFound):
				// not mined yet
			default:
				return nil, err
			}
		}

		if receipt != nil {
			confirmed, err := s.hasConfirmations(ctx, receipt)
			if err != nil {
				return nil, err
			}
			if confirmed {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sender) hasConfirmations(ctx context.Context, receipt *types.Receipt) (bool, error) {
	if s.cfg.RequiredConfirmations <= 1 {
		return true, nil
	}
	head, err := s.gateway.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	inclusion := receipt.BlockNumber.Uint64()
	return head >= inclusion+s.cfg.RequiredConfirmations-1, nil
}

// overprovisionGas adds the configured percentage on top of a gas estimate.
func overprovisionGas(estimate, pct uint64) uint64 {
	return estimate + estimate*pct/100
}
