package router

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-agreements/internal/chain"
	"go-agreements/internal/dto"
	"go-agreements/internal/handlers"
	"go-agreements/internal/protocol"
	"go-agreements/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	governor    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	feeReceiver = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob         = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type apiFixture struct {
	t      *testing.T
	p      *protocol.Protocol
	engine *gin.Engine
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	rt := chain.NewRuntime(state.NewMemoryStore(), chain.NewManualClock(time.Unix(1_700_000_000, 0)), logger)
	p := protocol.Deploy(rt, big.NewInt(1337), logger)
	require.NoError(t, p.Bootstrap(ctx, protocol.Settings{
		Owner:       owner,
		Governor:    governor,
		FeeRate:     big.NewInt(10_000),
		FeeReceiver: feeReceiver,
	}))
	_, err := rt.Fund(ctx, bob, big.NewInt(1_000))
	require.NoError(t, err)

	engine := SetupRouter(Handlers{
		Protocol:  handlers.NewProtocolHandler(p, nil, handlers.Operators{Owner: owner, Governor: governor}, logger),
		Auth:      handlers.NewAuthHandler(logger),
		AdminAuth: handlers.NewAdminAuthHandler(handlers.AdminCredentials{Username: "admin"}, logger),
	}, logger)
	return &apiFixture{t: t, p: p, engine: engine}
}

func (f *apiFixture) userToken(addr common.Address) string {
	f.t.Helper()
	token, err := handlers.GenerateJWTToken(addr, time.Hour)
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) adminToken() string {
	f.t.Helper()
	token, err := handlers.GenerateAdminJWTToken("admin", time.Hour)
	require.NoError(f.t, err)
	return token
}

type call struct {
	method string
	path   string
	token  string
	body   interface{}
	remote string
}

func (f *apiFixture) do(c call) (int, map[string]interface{}) {
	f.t.Helper()
	var reader *bytes.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.remote != "" {
		req.RemoteAddr = c.remote
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func result(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	res, ok := body["result"].(map[string]interface{})
	require.True(t, ok, "missing result in %v", body)
	return res
}

// registerPlan registers an asset owned by alice with one native plan of price 100
func (f *apiFixture) registerPlan(seed string) (string, string) {
	f.t.Helper()
	status, body := f.do(call{method: http.MethodPost, path: "/api/assets/with-plan", token: f.userToken(alice), body: dto.RegisterAssetAndPlanRequest{
		Seed: seed,
		URL:  "ipfs://asset",
		Price: dto.PriceConfigRequest{
			Amounts:     []string{"100"},
			Receivers:   []string{alice.Hex()},
			IncludeFees: true,
		},
		Credits: dto.CreditsConfigRequest{
			CreditsType:    1, // FIXED
			RedemptionType: 1, // OWNER
			Amount:         "100",
		},
		NFTAddress: f.p.Fixed.Address().Hex(),
		Nonce:      "1",
	}})
	require.Equal(f.t, http.StatusOK, status, body)
	res := result(f.t, body)
	return res["did"].(string), res["plan_id"].(string)
}

func TestPurchaseOverHTTP(t *testing.T) {
	f := setupAPI(t)
	did, planID := f.registerPlan("0x01")

	status, body := f.do(call{method: http.MethodGet, path: "/api/plans/" + planID})
	require.Equal(t, http.StatusOK, status)
	plan := body["plan"].(map[string]interface{})
	require.Equal(t, "101", plan["total"])
	require.Equal(t, "FIXED_CRYPTO", plan["price_type"])

	buy := dto.CreateAgreementRequest{Seed: "0xabc", DID: did, PlanID: planID, Value: "100"}
	status, body = f.do(call{method: http.MethodPost, path: "/api/agreements", token: f.userToken(bob), body: buy})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "InvalidTransactionAmount", body["error"])

	buy.Value = "101"
	status, body = f.do(call{method: http.MethodPost, path: "/api/agreements", token: f.userToken(bob), body: buy})
	require.Equal(t, http.StatusOK, status, body)
	agreementID := result(t, body)["agreement_id"].(string)
	require.NotEmpty(t, body["events"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/agreements/" + agreementID})
	require.Equal(t, http.StatusOK, status)
	conds := body["agreement"].(map[string]interface{})["conditions"].([]interface{})
	require.Len(t, conds, 3)
	for _, c := range conds {
		require.Equal(t, "FULFILLED", c.(map[string]interface{})["state"])
	}

	status, body = f.do(call{method: http.MethodGet, path: "/api/agreements/" + agreementID + "/conditions/lock"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = f.do(call{method: http.MethodGet, path: "/api/credits/fixed/balance?holder=" + bob.Hex() + "&plan_id=" + planID})
	require.Equal(t, http.StatusOK, status, body)
	balances := body["balances"].([]interface{})
	require.Equal(t, "100", balances[0].(map[string]interface{})["balance"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/balances/" + alice.Hex()})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "100", body["balance"])

	status, body = f.do(call{method: http.MethodPost, path: "/api/agreements", token: f.userToken(bob), body: buy})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "AgreementAlreadyRegistered", body["error"])
}

func TestErrorResponses(t *testing.T) {
	f := setupAPI(t)

	status, body := f.do(call{method: http.MethodPost, path: "/api/plans", body: dto.CreatePlanRequest{}})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "MISSING_AUTH_HEADER", body["code"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/plans/0x1234"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "PlanNotFound", body["error"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/plans/not-hex"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "InvalidEncoding", body["error"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/credits/nope/domain"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "InvalidCreditsLedger", body["error"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/events"})
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "EventLogDisabled", body["error"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/nowhere"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NotFound", body["error"])

	// the vault only accepts deposits from DEPOSITOR_ROLE holders
	status, body = f.do(call{method: http.MethodPost, path: "/api/vault/deposit", token: f.userToken(bob), body: dto.VaultDepositRequest{Amount: "5"}})
	require.Equal(t, http.StatusForbidden, status, body)
}

func TestAdminRoutes(t *testing.T) {
	f := setupAPI(t)
	local := "127.0.0.1:5555"
	fees := dto.NetworkFeesRequest{Rate: "20000", Receiver: feeReceiver.Hex()}

	status, body := f.do(call{method: http.MethodPut, path: "/api/admin/fees", token: f.adminToken(), body: fees, remote: "203.0.113.9:5555"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "IP_NOT_ALLOWED", body["code"])

	status, body = f.do(call{method: http.MethodPut, path: "/api/admin/fees", token: f.userToken(alice), body: fees, remote: local})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "INSUFFICIENT_PERMISSIONS", body["code"])

	status, body = f.do(call{method: http.MethodPut, path: "/api/admin/fees", token: f.adminToken(), body: fees, remote: local})
	require.Equal(t, http.StatusOK, status, body)

	status, body = f.do(call{method: http.MethodGet, path: "/api/fees"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "20000", body["rate"])
	require.Equal(t, "1000000", body["denominator"])

	status, body = f.do(call{method: http.MethodPost, path: "/api/admin/roles/grant", token: f.adminToken(), remote: local,
		body: dto.RoleRequest{Role: "CREDITS_BURNER_ROLE", Address: bob.Hex()}})
	require.Equal(t, http.StatusOK, status, body)

	status, body = f.do(call{method: http.MethodGet, path: "/api/admin/roles/CREDITS_BURNER_ROLE/members", token: f.adminToken(), remote: local})
	require.Equal(t, http.StatusOK, status, body)
	require.Contains(t, body["members"], bob.Hex())

	status, body = f.do(call{method: http.MethodPost, path: "/api/admin/faucet", token: f.adminToken(), remote: local,
		body: dto.FundRequest{Address: alice.Hex(), Amount: "42"}})
	require.Equal(t, http.StatusOK, status, body)
	_, body = f.do(call{method: http.MethodGet, path: "/api/balances/" + alice.Hex()})
	require.Equal(t, "42", body["balance"])

	status, body = f.do(call{method: http.MethodGet, path: "/api/admin/changes", token: f.adminToken(), remote: local})
	require.Equal(t, http.StatusOK, status)
	require.NotZero(t, body["total"])
}

func TestHealthAndCORS(t *testing.T) {
	f := setupAPI(t)

	status, body := f.do(call{method: http.MethodGet, path: "/ping"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "pong", body["message"])

	status, _ = f.do(call{method: http.MethodGet, path: "/api/ready"})
	require.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodOptions, "/api/plans", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
