package config

import (
	"fmt"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

type Config struct {
	BitcoinNetwork    string `mapstructure:"BITCOIN_NETWORK"`
	BitcoinMasterZprv string `mapstructure:"BITCOIN_MASTER_ZPRV"`
	BitcoinMasterVprv string `mapstructure:"BITCOIN_MASTER_VPRV"`
	DBURL             string `mapstructure:"DB_URL"`
	SiteURL           string `mapstructure:"SITE_URL"`
	ListenAddr        string `mapstructure:"LISTEN_ADDR"`
	TelegramBotToken  string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID       int64  `mapstructure:"ADMIN_CHAT_ID"`
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	viper.AddConfigPath(filepath.Dir(absPath))
	viper.SetConfigName(filepath.Base(absPath))
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	switch c.BitcoinNetwork {
	case NetworkMainnet:
		if c.BitcoinMasterZprv == "" {
			return fmt.Errorf("BITCOIN_MASTER_ZPRV is required on mainnet")
		}
	case NetworkTestnet:
		if c.BitcoinMasterVprv == "" {
			return fmt.Errorf("BITCOIN_MASTER_VPRV is required on testnet")
		}
	default:
		return fmt.Errorf("BITCOIN_NETWORK must be %q or %q, got %q", NetworkMainnet, NetworkTestnet, c.BitcoinNetwork)
	}

	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}

	return nil
}

func (c *Config) IsTestnet() bool {
	return c.BitcoinNetwork == NetworkTestnet
}

// MasterKey returns the extended private key for the configured network.
// The key must never be logged.
func (c *Config) MasterKey() string {
	if c.IsTestnet() {
		return c.BitcoinMasterVprv
	}
	return c.BitcoinMasterZprv
}

func (c *Config) NetParams() *chaincfg.Params {
	if c.IsTestnet() {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}
