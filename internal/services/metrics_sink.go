package services

import (
	"context"
	"math/big"

	"go-agreements/internal/chain"
	"go-agreements/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
)

var zeroAddress = common.Address{}.Hex()

// MetricsSink counts protocol activity from committed receipts only, so
// reverted transactions never show up.
type MetricsSink struct{}

var _ chain.EventSink = MetricsSink{}

func (MetricsSink) HandleReceipt(_ context.Context, r *chain.Receipt) error {
	for _, e := range r.Events {
		switch e.Name {
		case "AgreementCreated":
			metrics.AgreementsCreated.WithLabelValues(e.ContractName).Inc()
		case "Fulfilled":
			metrics.ConditionsFulfilled.WithLabelValues(e.ContractName).Inc()
		case "TransferSingle":
			value, ok := amountField(e.Fields, "value")
			if !ok {
				continue
			}
			if e.Fields["from"] == zeroAddress {
				metrics.CreditsMinted.WithLabelValues(e.ContractName).Add(value)
			} else if e.Fields["to"] == zeroAddress {
				metrics.CreditsBurned.WithLabelValues(e.ContractName).Add(value)
			}
		}
	}
	return nil
}

func amountField(fields chain.Fields, key string) (float64, bool) {
	s, ok := fields[key].(string)
	if !ok {
		return 0, false
	}
	n, ok := new(big.Float).SetString(s)
	if !ok {
		return 0, false
	}
	f, _ := n.Float64()
	return f, true
}
