package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const contract = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CERTIFY_CHAIN_CONTRACT_ADDRESS", contract)
	t.Setenv("CERTIFY_CHAIN_RPC_URL", "http://localhost:8545")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendRPC, cfg.Ledger.Backend)
	assert.Equal(t, 15*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 10000, cfg.Ledger.MaxCourses)
	assert.Equal(t, 5*time.Minute, cfg.Challenge.TTL)
	assert.False(t, cfg.Challenge.SingleUse)
	assert.True(t, cfg.Proof.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, contract, cfg.Chain.ContractAddress)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
chain:
  contract_address: "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
ledger:
  backend: memory
  max_parallel: 2
  seed:
    - code: REACT-101
      name: React Developer Certification
      image_uri: ipfs://react-101
      validity_duration: 31536000
      holders:
        - "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
challenge:
  ttl: 0s
  single_use: true
`)
	t.Setenv("CERTIFY_SERVER_PORT", "9191")
	t.Setenv("CERTIFY_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 2, cfg.Ledger.MaxParallel)
	assert.Zero(t, cfg.Challenge.TTL)
	assert.True(t, cfg.Challenge.SingleUse)
	require.Len(t, cfg.Ledger.Seed, 1)
	assert.Equal(t, "REACT-101", cfg.Ledger.Seed[0].Code)
	assert.Equal(t, uint64(31536000), cfg.Ledger.Seed[0].ValidityDuration)
	assert.Equal(t, []string{"0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"}, cfg.Ledger.Seed[0].Holders)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing contract": "ledger:\n  backend: memory\n",
		"bad contract":     "chain:\n  contract_address: 0x12\nledger:\n  backend: memory\n",
		"rpc without url":  "chain:\n  contract_address: \"" + contract + "\"\n",
		"unknown backend":  "chain:\n  contract_address: \"" + contract + "\"\nledger:\n  backend: sql\n",
		"negative max courses": "chain:\n  contract_address: \"" + contract + "\"\nledger:\n  backend: memory\n  max_courses: -1\n",
		"bad seed holder":  "chain:\n  contract_address: \"" + contract + "\"\nledger:\n  backend: memory\n  seed:\n    - code: GO-101\n      holders: [\"nope\"]\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidArgument))
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogConfig_NewLogger(t *testing.T) {
	logger, err := LogConfig{Level: "warn"}.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = LogConfig{Level: "loud"}.NewLogger()
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))
}
