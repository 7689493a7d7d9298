package registry

import (
	"math/big"

	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// ExpectedFee is floor(base * rate / denominator), where base is the sum of
// every amount not paid to the fee receiver.
func ExpectedFee(fees models.FeeConfig, amounts []*big.Int, receivers []common.Address) *big.Int {
	if fees.Rate == nil || fees.Rate.Sign() == 0 || fees.Denominator == nil || fees.Denominator.Sign() == 0 {
		return new(big.Int)
	}
	base := new(big.Int)
	for i, a := range amounts {
		if a == nil || i >= len(receivers) || receivers[i] == fees.Receiver {
			continue
		}
		base.Add(base, a)
	}
	fee := new(big.Int).Mul(base, fees.Rate)
	return fee.Quo(fee, fees.Denominator)
}

// AreFeesIncluded reports whether the fee receiver is paid at least the
// expected fee. It never mutates its inputs.
func AreFeesIncluded(fees models.FeeConfig, amounts []*big.Int, receivers []common.Address) bool {
	expected := ExpectedFee(fees, amounts, receivers)
	if expected.Sign() == 0 {
		return true
	}
	return paidTo(fees.Receiver, amounts, receivers).Cmp(expected) >= 0
}

// AddFeesToPaymentsDistribution returns copies of amounts and receivers with
// whatever is missing of the protocol fee appended for the fee receiver.
func AddFeesToPaymentsDistribution(fees models.FeeConfig, amounts []*big.Int, receivers []common.Address) ([]*big.Int, []common.Address) {
	outAmounts := make([]*big.Int, 0, len(amounts)+1)
	for _, a := range amounts {
		if a == nil {
			a = new(big.Int)
		}
		outAmounts = append(outAmounts, new(big.Int).Set(a))
	}
	outReceivers := append(make([]common.Address, 0, len(receivers)+1), receivers...)

	if AreFeesIncluded(fees, outAmounts, outReceivers) {
		return outAmounts, outReceivers
	}
	expected := ExpectedFee(fees, outAmounts, outReceivers)
	missing := expected.Sub(expected, paidTo(fees.Receiver, outAmounts, outReceivers))
	return append(outAmounts, missing), append(outReceivers, fees.Receiver)
}

func paidTo(who common.Address, amounts []*big.Int, receivers []common.Address) *big.Int {
	paid := new(big.Int)
	for i, r := range receivers {
		if r == who && i < len(amounts) && amounts[i] != nil {
			paid.Add(paid, amounts[i])
		}
	}
	return paid
}
