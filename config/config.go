package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/dopepandaorg/dp-marketplace-contracts/native/market"
)

// Config carries the deployment settings and the protocol parameters behind
// the custody minimum-balance rules. The reserved-transfer counts are
// configuration rather than literals because they track how many payout
// legs each contract's entry points perform.
type Config struct {
	DataDir        string `toml:"DataDir"`
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`

	AccountFloor        uint64 `toml:"AccountFloor"`
	AssetOptInReserve   uint64 `toml:"AssetOptInReserve"`
	TxnReserve          uint64 `toml:"TxnReserve"`
	EscrowReservedTxns  uint64 `toml:"EscrowReservedTxns"`
	AuctionReservedTxns uint64 `toml:"AuctionReservedTxns"`
}

// Load reads the configuration from the given path, writing a default file
// first when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the contracts cannot run on.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if c.AccountFloor == 0 {
		return fmt.Errorf("config: AccountFloor must be positive")
	}
	return nil
}

// Params maps the configuration onto the protocol parameters the contract
// engines consume.
func (c *Config) Params() market.Params {
	return market.Params{
		AccountFloor:        c.AccountFloor,
		AssetOptInReserve:   c.AssetOptInReserve,
		TxnReserve:          c.TxnReserve,
		EscrowReservedTxns:  c.EscrowReservedTxns,
		AuctionReservedTxns: c.AuctionReservedTxns,
	}
}

// Default returns the configuration matching the production protocol
// constants.
func Default() *Config {
	params := market.DefaultParams()
	return &Config{
		DataDir:             "./data",
		RPCAddress:          ":8645",
		MetricsAddress:      ":9464",
		AccountFloor:        params.AccountFloor,
		AssetOptInReserve:   params.AssetOptInReserve,
		TxnReserve:          params.TxnReserve,
		EscrowReservedTxns:  params.EscrowReservedTxns,
		AuctionReservedTxns: params.AuctionReservedTxns,
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
