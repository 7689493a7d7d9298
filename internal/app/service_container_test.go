package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testConfig = `
protocol:
  chainId: 4242
  ownerAddress: "0x1000000000000000000000000000000000000001"
  governorAddress: "0x1000000000000000000000000000000000000002"
  networkFee:
    rate: 10000
    receiver: "0x1000000000000000000000000000000000000003"
  fiatOracles:
    - "0x1000000000000000000000000000000000000004"
  burners:
    - "0x1000000000000000000000000000000000000005"
genesis:
  balances:
    "0x1000000000000000000000000000000000000001": "5000"
tokens:
  - name: USD Coin
    symbol: USDC
    decimals: 6
`

// inTempDir runs the test from an empty directory so the manifest lands there
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func newTestContainer(t *testing.T, raw string) *ServiceContainer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c, err := NewServiceContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(c.Cleanup)
	return c
}

func TestServiceContainerBootstrapsProtocol(t *testing.T) {
	dir := inTempDir(t)
	c := newTestContainer(t, testConfig)
	ctx := context.Background()

	require.Nil(t, c.DB)
	require.Nil(t, c.EventLogRepo)
	require.NotNil(t, c.WebSocketHandler)

	bal, err := c.Runtime.Balance(ctx, common.HexToAddress("0x1000000000000000000000000000000000000001"))
	require.NoError(t, err)
	require.Equal(t, int64(5000), bal.Int64())

	require.NoError(t, c.Runtime.View(ctx, common.Address{}, func(tx *chain.Tx) error {
		ok, err := c.Protocol.Gate.Initialized(tx)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = c.Protocol.Gate.HasRole(tx, common.HexToAddress("0x1000000000000000000000000000000000000004"), access.FiatSettlementRole)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = c.Protocol.Gate.HasRole(tx, common.HexToAddress("0x1000000000000000000000000000000000000005"), access.CreditsBurnerRole)
		require.NoError(t, err)
		require.True(t, ok)

		fees, err := c.Protocol.Gate.NetworkFees(tx)
		require.NoError(t, err)
		require.Equal(t, int64(10000), fees.Rate.Int64())
		return nil
	}))

	require.Len(t, c.Protocol.Tokens.All(), 1)

	d, err := config.LoadDeployment(filepath.Join(dir, config.DeploymentPath(4242)))
	require.NoError(t, err)
	require.Equal(t, int64(4242), d.ChainID)
	require.Contains(t, d.Tokens, "USDC")
	addr, err := d.ContractAddress(access.ContractName)
	require.NoError(t, err)
	require.Equal(t, c.Protocol.Gate.Address().Hex(), addr)

	w := httptest.NewRecorder()
	c.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServiceContainerRejectsBadConfig(t *testing.T) {
	inTempDir(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg, err := config.Parse([]byte(`protocol: {ownerAddress: "nope", governorAddress: "0x1000000000000000000000000000000000000002"}`))
	require.NoError(t, err)
	_, err = NewServiceContainer(context.Background(), cfg, logger)
	require.Error(t, err)

	cfg, err = config.Parse([]byte(testConfig + "\nstate:\n  backend: postgres\n"))
	require.NoError(t, err)
	_, err = NewServiceContainer(context.Background(), cfg, logger)
	require.ErrorContains(t, err, "requires database.dsn")
}
