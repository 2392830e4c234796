package relay

import (
	"fmt"
	"time"
)

// DefaultNotifyChannel is the queue-database NOTIFY channel the host-chain
// indexer publishes new block heights on.
const DefaultNotifyChannel = "new_host_block"

// Config holds the relay pipeline settings.
type Config struct {
	// GatewayChainID is the chain id delegation transactions are signed for.
	GatewayChainID uint64 `mapstructure:"gateway_chain_id" yaml:"gateway_chain_id"`

	// NotifyChannel is the LISTEN/NOTIFY channel carrying new host heights.
	NotifyChannel string `mapstructure:"notify_channel" yaml:"notify_channel"`

	// FinalityDelay is the number of host blocks to wait past observation
	// before a record becomes eligible for submission.
	FinalityDelay uint64 `mapstructure:"finality_delay" yaml:"finality_delay"`

	// NotifyTimeout bounds the wait for a height notification before falling
	// back to a direct host-chain height query.
	NotifyTimeout time.Duration `mapstructure:"notify_timeout" yaml:"notify_timeout"`

	// ReceiptTimeout bounds the wait for a submitted transaction's receipt.
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout" yaml:"receipt_timeout"`

	// ReceiptPollInterval is the receipt polling cadence.
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval" yaml:"receipt_poll_interval"`

	// RequiredConfirmations is the number of gateway blocks, counting the
	// inclusion block, before a transaction is treated as settled.
	RequiredConfirmations uint64 `mapstructure:"required_confirmations" yaml:"required_confirmations"`

	// GasLimitOverprovisionPct is added on top of the gas estimate.
	GasLimitOverprovisionPct uint64 `mapstructure:"gas_limit_overprovision_pct" yaml:"gas_limit_overprovision_pct"`

	// GasLimit, when non-zero, skips estimation and uses a fixed limit.
	GasLimit uint64 `mapstructure:"gas_limit" yaml:"gas_limit"`

	// MaxConcurrentSubmissions caps the per-pass submission fan-out.
	MaxConcurrentSubmissions int `mapstructure:"max_concurrent_submissions" yaml:"max_concurrent_submissions"`
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:            DefaultNotifyChannel,
		FinalityDelay:            5,
		NotifyTimeout:            30 * time.Second,
		ReceiptTimeout:           2 * time.Minute,
		ReceiptPollInterval:      2 * time.Second,
		RequiredConfirmations:    1,
		GasLimitOverprovisionPct: 15,
		MaxConcurrentSubmissions: 8,
	}
}

func (c *Config) Validate() error {
	if c.GatewayChainID == 0 {
		return fmt.Errorf("relay: gateway_chain_id is required")
	}
	if c.NotifyChannel == "" {
		return fmt.Errorf("relay: notify_channel is required")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("relay: notify_timeout must be positive")
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("relay: receipt_timeout must be positive")
	}
	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("relay: receipt_poll_interval must be positive")
	}
	if c.MaxConcurrentSubmissions <= 0 {
		return fmt.Errorf("relay: max_concurrent_submissions must be positive")
	}
	return nil
}
