package services

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"go-agreements/internal/chain"
	"go-agreements/internal/metrics"
	"go-agreements/internal/models"
	"go-agreements/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	buyer  = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	seller = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func sampleReceipt() *chain.Receipt {
	return &chain.Receipt{
		TxHash:    common.HexToHash("0x1234"),
		Sequence:  9,
		Timestamp: 1_700_000_000,
		Value:     new(big.Int),
		Events: []chain.Event{
			{Index: 0, ContractName: "NFT1155Credits", Name: "TransferSingle", Fields: chain.Fields{
				"from": common.Address{}.Hex(), "to": buyer.Hex(), "value": "100",
			}},
			{Index: 1, ContractName: "AgreementsStore", Name: "ConditionUpdated", Fields: chain.Fields{
				"agreementId": common.HexToHash("0xaa").Hex(), "state": "FULFILLED",
			}},
			{Index: 2, ContractName: "PaymentsVault", Name: "WithdrawNativeToken", Fields: chain.Fields{
				"receiver": seller.Hex(), "amount": "100",
			}},
		},
	}
}

func recv(t *testing.T, ch chan []byte) PushMessage {
	t.Helper()
	select {
	case data := <-ch:
		var m PushMessage
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no push message")
		return PushMessage{}
	}
}

func noMessage(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case data := <-ch:
		t.Fatalf("unexpected push: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPushRoutesEventsToNamedAddresses(t *testing.T) {
	svc := NewWebSocketPushService()
	defer svc.Close()

	buyerConn := &Connection{ID: "b", UserAddress: buyer.Hex(), Send: make(chan []byte, 8)}
	sellerConn := &Connection{ID: "s", UserAddress: seller.Hex(), Send: make(chan []byte, 8)}
	watcher := &Connection{ID: "w", UserAddress: "admin", WatchAll: true, Send: make(chan []byte, 8)}
	svc.RegisterConnectionMapping(buyerConn)
	svc.RegisterConnectionMapping(sellerConn)
	svc.RegisterConnectionMapping(watcher)
	require.Equal(t, 3, svc.GetActiveConnections())
	require.Equal(t, 1, svc.GetUserConnections(strings.ToLower(buyer.Hex())))

	require.NoError(t, svc.HandleReceipt(context.Background(), sampleReceipt()))

	m := recv(t, buyerConn.Send)
	require.Equal(t, "event", m.Type)
	data := m.Data.(map[string]interface{})
	require.Equal(t, "TransferSingle", data["event"])
	noMessage(t, buyerConn.Send)

	m = recv(t, sellerConn.Send)
	require.Equal(t, "WithdrawNativeToken", m.Data.(map[string]interface{})["event"])

	for i := 0; i < 3; i++ {
		recv(t, watcher.Send)
	}

	svc.UnregisterConnectionMapping(buyerConn)
	require.Equal(t, 0, svc.GetUserConnections(buyer.Hex()))
}

func TestPushRespectsEventFilter(t *testing.T) {
	svc := NewWebSocketPushService()
	defer svc.Close()

	watcher := &Connection{ID: "w", WatchAll: true, Send: make(chan []byte, 8)}
	watcher.SetFilter([]string{"ConditionUpdated"})
	svc.RegisterConnectionMapping(watcher)

	require.NoError(t, svc.HandleReceipt(context.Background(), sampleReceipt()))
	m := recv(t, watcher.Send)
	require.Equal(t, "ConditionUpdated", m.Data.(map[string]interface{})["event"])
	noMessage(t, watcher.Send)
}

func TestAddressesIn(t *testing.T) {
	got := AddressesIn(map[string]interface{}{
		"to":      buyer.Hex(),
		"id":      common.HexToHash("0x01").Hex(),
		"value":   "42",
		"members": []string{seller.Hex(), buyer.Hex()},
	})
	require.ElementsMatch(t, []string{strings.ToLower(buyer.Hex()), strings.ToLower(seller.Hex())}, got)
}

type memoryEventLog struct {
	rows []*models.EventLog
}

func (m *memoryEventLog) CreateBatch(_ context.Context, events []*models.EventLog) error {
	m.rows = append(m.rows, events...)
	return nil
}
func (m *memoryEventLog) FindByTxHash(context.Context, string) ([]*models.EventLog, error) {
	return m.rows, nil
}
func (m *memoryEventLog) FindByAgreement(context.Context, string) ([]*models.EventLog, error) {
	return m.rows, nil
}
func (m *memoryEventLog) FindEvents(context.Context, repository.EventLogFilter, int, int) ([]*models.EventLog, int64, error) {
	return m.rows, int64(len(m.rows)), nil
}
func (m *memoryEventLog) LatestSequence(context.Context) (uint64, bool, error) {
	return 0, false, nil
}

func TestEventRecorderWritesRows(t *testing.T) {
	repo := &memoryEventLog{}
	rec := NewEventRecorder(repo, logrus.New())
	require.NoError(t, rec.HandleReceipt(context.Background(), sampleReceipt()))

	require.Len(t, repo.rows, 3)
	row := repo.rows[1]
	require.Equal(t, common.HexToHash("0x1234").Hex(), row.TxHash)
	require.Equal(t, uint64(9), row.Sequence)
	require.Equal(t, 1, row.LogIndex)
	require.Equal(t, "ConditionUpdated", row.EventName)
	require.Equal(t, common.HexToHash("0xaa").Hex(), row.AgreementID)
	require.JSONEq(t, `{"agreementId":"`+common.HexToHash("0xaa").Hex()+`","state":"FULFILLED"}`, row.Data)
	require.Empty(t, repo.rows[0].AgreementID)
}

func TestMetricsSinkCountsMints(t *testing.T) {
	before := testutil.ToFloat64(metrics.CreditsMinted.WithLabelValues("NFT1155Credits"))
	require.NoError(t, MetricsSink{}.HandleReceipt(context.Background(), sampleReceipt()))
	after := testutil.ToFloat64(metrics.CreditsMinted.WithLabelValues("NFT1155Credits"))
	require.Equal(t, 100.0, after-before)
}
