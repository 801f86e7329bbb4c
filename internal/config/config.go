package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Chain    ChainConfig    `mapstructure:"chain"`
	Names    NamesConfig    `mapstructure:"names"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Party    PartyConfig    `mapstructure:"party"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	NFC      NFCConfig      `mapstructure:"nfc"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ChainConfig holds the purchase chain connection
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	Confirmations  uint64        `mapstructure:"confirmations"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// NamesConfig holds the name registry chain, distinct from the purchase chain
type NamesConfig struct {
	RPCURL   string `mapstructure:"rpc_url"`
	ChainID  uint64 `mapstructure:"chain_id"`
	Registry string `mapstructure:"registry"`
}

// WalletConfig holds the signing key; empty means read-only
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// PartyConfig identifies the party contract
type PartyConfig struct {
	Address   string `mapstructure:"address"`
	Allowance int64  `mapstructure:"allowance"` // stablecoin base units
}

// IndexerConfig holds the purchase indexer endpoint
type IndexerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Limit   int           `mapstructure:"limit"`
}

// NFCConfig holds the wristband reader bridge
type NFCConfig struct {
	BridgeURL string        `mapstructure:"bridge_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds the transaction journal configuration
type StorageConfig struct {
	DBPath          string `mapstructure:"db_path"`
	MaxTransactions int    `mapstructure:"max_transactions"`
}

// WatchConfig holds price watcher configuration
type WatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// PARTYTAP_WALLET_PRIVATE_KEY overrides wallet.private_key
	v.SetEnvPrefix("PARTYTAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Keys without a meaningful default are registered empty so that
// environment overrides reach them.
func setDefaults(v *viper.Viper) {
	// Purchase chain: Polygon Amoy
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.chain_id", 80002)
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("chain.receipt_timeout", "2m")
	v.SetDefault("chain.poll_interval", "2s")

	// Name registry: Sepolia
	v.SetDefault("names.rpc_url", "")
	v.SetDefault("names.chain_id", 11155111)
	v.SetDefault("names.registry", "0x927fB1414F83905620F460B024bcFf2dD1dA430c")

	v.SetDefault("wallet.private_key", "")

	v.SetDefault("party.address", "")
	v.SetDefault("party.allowance", 10_000_000)

	v.SetDefault("indexer.url", "")
	v.SetDefault("indexer.timeout", "15s")
	v.SetDefault("indexer.limit", 1000)

	v.SetDefault("nfc.bridge_url", "http://127.0.0.1:32868")
	v.SetDefault("nfc.timeout", "30s")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.max_transactions", 500)

	v.SetDefault("watch.poll_interval", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Chain config
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id is required")
	}
	if c.Chain.Confirmations < 1 {
		return fmt.Errorf("chain.confirmations must be at least 1")
	}
	if c.Chain.ReceiptTimeout < time.Second {
		return fmt.Errorf("chain.receipt_timeout must be at least 1 second")
	}
	if c.Chain.PollInterval <= 0 || c.Chain.PollInterval > c.Chain.ReceiptTimeout {
		return fmt.Errorf("chain.poll_interval must be positive and not exceed chain.receipt_timeout")
	}

	// Validate Names config
	if c.Names.RPCURL == "" {
		return fmt.Errorf("names.rpc_url is required")
	}
	if c.Names.ChainID == 0 {
		return fmt.Errorf("names.chain_id is required")
	}
	if c.Names.ChainID == c.Chain.ChainID {
		return fmt.Errorf("names.chain_id must differ from chain.chain_id")
	}
	if !common.IsHexAddress(c.Names.Registry) {
		return fmt.Errorf("names.registry must be a hex address")
	}

	// Validate Wallet config
	if c.Wallet.PrivateKey != "" {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.Wallet.PrivateKey, "0x")); err != nil {
			return fmt.Errorf("wallet.private_key is invalid: %w", err)
		}
	}

	// Validate Party config
	if !common.IsHexAddress(c.Party.Address) || common.HexToAddress(c.Party.Address) == (common.Address{}) {
		return fmt.Errorf("party.address must be a non-zero hex address")
	}
	if c.Party.Allowance < 1 {
		return fmt.Errorf("party.allowance must be at least 1")
	}

	// Validate Indexer config
	if c.Indexer.URL == "" {
		return fmt.Errorf("indexer.url is required")
	}
	if c.Indexer.Timeout <= 0 {
		return fmt.Errorf("indexer.timeout must be positive")
	}
	if c.Indexer.Limit < 1 || c.Indexer.Limit > 1000 {
		return fmt.Errorf("indexer.limit must be between 1 and 1000")
	}

	// Validate NFC config
	if c.NFC.BridgeURL == "" {
		return fmt.Errorf("nfc.bridge_url is required")
	}
	if c.NFC.Timeout <= 0 {
		return fmt.Errorf("nfc.timeout must be positive")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxTransactions < 1 {
		return fmt.Errorf("storage.max_transactions must be at least 1")
	}

	// Validate Watch config
	if c.Watch.PollInterval < 5*time.Second {
		return fmt.Errorf("watch.poll_interval must be at least 5 seconds")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// PartyAddress returns the configured party contract address.
func (c *Config) PartyAddress() common.Address {
	return common.HexToAddress(c.Party.Address)
}

// RegistryAddress returns the configured name registry address.
func (c *Config) RegistryAddress() common.Address {
	return common.HexToAddress(c.Names.Registry)
}

// AllowanceAmount returns the approval amount in stablecoin base units.
func (c *Config) AllowanceAmount() *big.Int {
	return big.NewInt(c.Party.Allowance)
}

// CanSign reports whether a signing key is configured.
func (c *Config) CanSign() bool {
	return c.Wallet.PrivateKey != ""
}
