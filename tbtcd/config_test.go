package tbtcd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newValidConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Network = "regtest"
	cfg.Ethereum.Contract = test20ByteHex
	cfg.Ethereum.KeyFile = filepath.Join(cfg.DataDir, "operator.key")

	return cfg
}

const test20ByteHex = "0x00000000000000000000000000000000000c0de5"

func TestValidate(t *testing.T) {
	cfg := newValidConfig(t)
	base := cfg.DataDir

	require.NoError(t, Validate(&cfg))

	// Data and log dir are namespaced per network and the sqlite file
	// defaults to the data dir.
	require.Equal(t, filepath.Join(base, "regtest"), cfg.DataDir)
	require.Equal(t, filepath.Join(base, "logs", "regtest"), cfg.LogDir)
	require.Equal(
		t, filepath.Join(base, "regtest", defaultSqliteFilename),
		cfg.Sqlite.DatabaseFileName,
	)
	require.DirExists(t, cfg.DataDir)
	require.DirExists(t, cfg.LogDir)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{
			name: "log dir with data dir",
			mutate: func(cfg *Config) {
				cfg.LogDir = filepath.Join(cfg.DataDir, "x")
			},
		},
		{
			name: "unknown backend",
			mutate: func(cfg *Config) {
				cfg.DatabaseBackend = "etcd"
			},
		},
		{
			name: "unknown network",
			mutate: func(cfg *Config) {
				cfg.Network = "litecoin"
			},
		},
		{
			name: "invalid contract",
			mutate: func(cfg *Config) {
				cfg.Ethereum.Contract = "0x1234"
			},
		},
		{
			name: "no key file",
			mutate: func(cfg *Config) {
				cfg.Ethereum.KeyFile = ""
			},
		},
		{
			name: "zero scale",
			mutate: func(cfg *Config) {
				cfg.Policy.LedgerUnitsPerSat = 0
			},
		},
		{
			name: "zero timeout multiplier",
			mutate: func(cfg *Config) {
				cfg.Policy.Timeout.Multiplier = 0
			},
		},
		{
			name: "negative fee override",
			mutate: func(cfg *Config) {
				cfg.Policy.OverrideFees = true
				cfg.Policy.ConstantFee = -1
			},
		},
		{
			name: "retry intervals",
			mutate: func(cfg *Config) {
				cfg.Policy.Retry.MaxInterval = 0
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newValidConfig(t)
			tc.mutate(&cfg)

			require.Error(t, Validate(&cfg))
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network = "testnet"

	require.Equal(
		t, filepath.Join(DataDirBase, "testnet", defaultConfigFilename),
		getConfigPath(cfg, DataDirBase),
	)

	require.Equal(
		t, filepath.Join("/custom", defaultConfigFilename),
		getConfigPath(cfg, "/custom"),
	)

	cfg.ConfigFile = "/etc/tbtcswapd.conf"
	require.Equal(t, "/etc/tbtcswapd.conf", getConfigPath(cfg, "/custom"))
}
