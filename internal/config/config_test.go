package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: 9090
state:
  backend: postgres
protocol:
  chainId: 31337
  ownerAddress: "0x00000000000000000000000000000000000000a1"
  networkFee:
    rate: 10000
    receiver: "0x00000000000000000000000000000000000000fe"
genesis:
  balances:
    "0x00000000000000000000000000000000000000b0": "1000"
tokens:
  - name: Test USD
    symbol: TUSD
    decimals: 6
`

func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.State.Backend)
	require.Equal(t, int64(31337), cfg.Protocol.ChainID)
	require.Equal(t, int64(10000), cfg.Protocol.NetworkFee.Rate)
	require.Equal(t, "agreements", cfg.NATS.SubjectPrefix)
	require.Equal(t, "AGREEMENTS_EVENTS", cfg.NATS.Stream)
	require.Equal(t, 24, cfg.Auth.TokenTTL)
	require.Len(t, cfg.Tokens, 1)
	require.Equal(t, uint8(6), cfg.Tokens[0].Decimals)
	require.Equal(t, "1000", cfg.Genesis.Balances["0x00000000000000000000000000000000000000b0"])
}

func TestOverrideFromEnv(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("STATE_BACKEND", "memory")
	t.Setenv("PROTOCOL_CHAIN_ID", "5")
	t.Setenv("PROTOCOL_GOVERNOR", "0x00000000000000000000000000000000000000c1")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	overrideFromEnv(cfg)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "memory", cfg.State.Backend)
	require.Equal(t, int64(5), cfg.Protocol.ChainID)
	require.Equal(t, "0x00000000000000000000000000000000000000c1", cfg.Protocol.GovernorAddress)
	require.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestDeploymentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments", "1337.yaml")
	d := NewDeployment(1337)
	d.Contracts["AccessGate"] = "0x01"
	d.Tokens["TUSD"] = "0x02"
	require.NoError(t, WriteDeployment(path, d))

	got, err := LoadDeployment(path)
	require.NoError(t, err)
	require.Equal(t, int64(1337), got.ChainID)
	addr, err := got.ContractAddress("AccessGate")
	require.NoError(t, err)
	require.Equal(t, "0x01", addr)
	_, err = got.ContractAddress("Missing")
	require.Error(t, err)
}
