package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	logcfg "github.com/ciphernode/delegation-relayer/log"
	apisrv "github.com/ciphernode/delegation-relayer/server/api"
	"github.com/ciphernode/delegation-relayer/x/relay"
)

// Config holds the complete application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"   yaml:"database"`
	HostChain HostChainConfig `mapstructure:"host_chain" yaml:"host_chain"`
	Gateway   GatewayConfig   `mapstructure:"gateway"    yaml:"gateway"`
	Relay     relay.Config    `mapstructure:"relay"      yaml:"relay"`
	API       apisrv.Config   `mapstructure:"api"        yaml:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"    yaml:"metrics"`
	Log       logcfg.Config   `mapstructure:"log"        yaml:"log"`
}

// DatabaseConfig holds the delegation queue database configuration
type DatabaseConfig struct {
	URL      string `mapstructure:"url"       yaml:"url"       env:"DATABASE_URL"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// HostChainConfig holds the source-chain read configuration
type HostChainConfig struct {
	RPCEndpoint string `mapstructure:"rpc_endpoint" yaml:"rpc_endpoint" env:"HOST_RPC_ENDPOINT"`
}

// GatewayConfig holds the destination-chain write configuration
type GatewayConfig struct {
	RPCEndpoint      string `mapstructure:"rpc_endpoint"      yaml:"rpc_endpoint"      env:"GATEWAY_RPC_ENDPOINT"`
	AccessController string `mapstructure:"access_controller" yaml:"access_controller"`
	PrivateKeyHex    string `mapstructure:"private_key_hex"   yaml:"private_key_hex"   env:"GATEWAY_PRIVATE_KEY_HEX"`
}

// MetricsConfig holds metrics exposition configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fallback env aliases for secrets and endpoints
	if strings.TrimSpace(cfg.Database.URL) == "" {
		if ev := strings.TrimSpace(os.Getenv("DATABASE_URL")); ev != "" {
			cfg.Database.URL = ev
		}
	}
	if strings.TrimSpace(cfg.Gateway.PrivateKeyHex) == "" {
		if ev := strings.TrimSpace(os.Getenv("GATEWAY_PRIVATE_KEY_HEX")); ev != "" {
			cfg.Gateway.PrivateKeyHex = ev
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_conns", 8)

	relayDefaults := relay.DefaultConfig()
	v.SetDefault("relay.notify_channel", relayDefaults.NotifyChannel)
	v.SetDefault("relay.finality_delay", relayDefaults.FinalityDelay)
	v.SetDefault("relay.notify_timeout", relayDefaults.NotifyTimeout)
	v.SetDefault("relay.receipt_timeout", relayDefaults.ReceiptTimeout)
	v.SetDefault("relay.receipt_poll_interval", relayDefaults.ReceiptPollInterval)
	v.SetDefault("relay.required_confirmations", relayDefaults.RequiredConfirmations)
	v.SetDefault("relay.gas_limit_overprovision_pct", relayDefaults.GasLimitOverprovisionPct)
	v.SetDefault("relay.max_concurrent_submissions", relayDefaults.MaxConcurrentSubmissions)

	apiDefaults := apisrv.DefaultConfig()
	v.SetDefault("api.listen_addr", apiDefaults.ListenAddr)
	v.SetDefault("api.read_header_timeout", apiDefaults.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", apiDefaults.ReadTimeout)
	v.SetDefault("api.write_timeout", apiDefaults.WriteTimeout)
	v.SetDefault("api.idle_timeout", apiDefaults.IdleTimeout)
	v.SetDefault("api.max_header_bytes", apiDefaults.MaxHeaderBytes)

	logDefaults := logcfg.DefaultConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.output", logDefaults.Output)

	v.SetDefault("metrics.enabled", true)
}

// Validate checks the configuration for completeness
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("database.url is required")
	}
	if strings.TrimSpace(c.HostChain.RPCEndpoint) == "" {
		return fmt.Errorf("host_chain.rpc_endpoint is required")
	}
	if strings.TrimSpace(c.Gateway.RPCEndpoint) == "" {
		return fmt.Errorf("gateway.rpc_endpoint is required")
	}
	if strings.TrimSpace(c.Gateway.AccessController) == "" {
		return fmt.Errorf("gateway.access_controller is required")
	}
	if strings.TrimSpace(c.Gateway.PrivateKeyHex) == "" {
		return fmt.Errorf("gateway.private_key_hex is required")
	}
	if err := c.Relay.Validate(); err != nil {
		return err
	}
	return nil
}

// Redacted returns a copy safe for printing, with secrets masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Gateway.PrivateKeyHex != "" {
		out.Gateway.PrivateKeyHex = "<redacted>"
	}
	if out.Database.URL != "" {
		out.Database.URL = redactDSN(out.Database.URL)
	}
	return out
}

func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "<redacted>" + dsn[at:]
}
