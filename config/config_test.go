package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dopepandaorg/dp-marketplace-contracts/native/market"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should have been written")

	// A second load reads the written file back.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	raw := `
DataDir = "/var/lib/marketplace"
AccountFloor = 200000
AssetOptInReserve = 150000
TxnReserve = 2000
EscrowReservedTxns = 5
AuctionReservedTxns = 4
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/marketplace", cfg.DataDir)
	require.Equal(t, uint64(200_000), cfg.AccountFloor)
	require.Equal(t, uint64(150_000), cfg.AssetOptInReserve)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.DataDir = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.AccountFloor = 0
	require.Error(t, cfg.Validate())
}

func TestParamsMapping(t *testing.T) {
	require.Equal(t, market.DefaultParams(), Default().Params())
}
