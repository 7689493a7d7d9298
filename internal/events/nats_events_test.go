package events

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"go-agreements/internal/chain"
	"go-agreements/internal/clients"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	fail     map[string]bool
}

func (f *fakePublisher) Subject(contractName, eventName string) string {
	return clients.EventSubject("agreements", contractName, eventName)
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.fail[subject] {
		return errors.New("nats down")
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func receipt() *chain.Receipt {
	return &chain.Receipt{
		TxHash:    common.HexToHash("0xabc"),
		Sequence:  4,
		Timestamp: 1_700_000_000,
		Value:     new(big.Int),
		Events: []chain.Event{
			{Index: 0, Contract: common.HexToAddress("0x01"), ContractName: "AgreementsStore", Name: "AgreementRegistered", Fields: chain.Fields{"agreementId": "0x01"}},
			{Index: 1, Contract: common.HexToAddress("0x02"), ContractName: "LockPaymentCondition", Name: "Fulfilled", Fields: chain.Fields{"amount": "100"}},
		},
	}
}

func TestNATSPublisherPublishesEveryEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSPublisher(pub, logrus.New())

	require.NoError(t, sink.HandleReceipt(context.Background(), receipt()))
	require.Equal(t, []string{
		"agreements.AgreementsStore.AgreementRegistered",
		"agreements.LockPaymentCondition.Fulfilled",
	}, pub.subjects)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.payloads[1], &msg))
	require.Equal(t, uint64(4), msg.Sequence)
	require.Equal(t, 1, msg.LogIndex)
	require.Equal(t, "Fulfilled", msg.Event)
	require.Equal(t, "100", msg.Fields["amount"])
	require.Equal(t, common.HexToHash("0xabc").Hex(), msg.TxHash)
}

func TestNATSPublisherContinuesAfterFailure(t *testing.T) {
	pub := &fakePublisher{fail: map[string]bool{"agreements.AgreementsStore.AgreementRegistered": true}}
	sink := NewNATSPublisher(pub, logrus.New())

	err := sink.HandleReceipt(context.Background(), receipt())
	require.Error(t, err)
	require.Equal(t, []string{"agreements.LockPaymentCondition.Fulfilled"}, pub.subjects)
}
