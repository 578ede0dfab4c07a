package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
pools_file: pools.json
filter_paths: true
workers: 3
disabled_tokens:
  - "0xba100000625a3754423978a60c9317c58a424e3d"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "pools.json", cfg.PoolsFile)
	assert.True(t, cfg.FilterPaths)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, DefaultMaxPools, cfg.MaxPools)
	assert.Equal(t, DefaultCompactionThreshold, cfg.CompactionThreshold)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, []common.Address{common.HexToAddress("0xba100000625a3754423978a60c9317c58a424e3d")}, cfg.DisabledTokens)
}

func TestLoadConfigInvalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "ZeroMaxPools", body: "max_pools: 0\n"},
		{name: "NegativeWorkers", body: "workers: -1\n"},
		{name: "UnknownLogLevel", body: "log_level: loud\n"},
		{name: "BadAddress", body: "disabled_tokens: [\"0x12\"]\n"},
		{name: "NotYAML", body: "max_pools: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
