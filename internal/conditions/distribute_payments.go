package conditions

import (
	"math/big"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"
	"go-agreements/internal/vault"

	"github.com/ethereum/go-ethereum/common"
)

// DistributePayments releases escrow once the credits were delivered, or
// refunds the buyer when delivery was aborted.
type DistributePayments struct {
	base
	vault *vault.Vault
}

func NewDistributePayments(rt *chain.Runtime, deps Deps, v *vault.Vault) *DistributePayments {
	return &DistributePayments{base: newBase(rt, DistributePaymentsName, deps), vault: v}
}

// Fulfill requires the lock to be FULFILLED. With the release condition
// FULFILLED the plan receivers are paid and this condition becomes FULFILLED;
// with it ABORTED the buyer is refunded and this condition becomes ABORTED.
func (c *DistributePayments) Fulfill(tx *chain.Tx, conditionID, agreementID common.Hash) error {
	if err := c.requireRole(tx, errs.ErrOnlyTemplate, access.TemplateRole); err != nil {
		return err
	}
	agreement, _, err := c.open(tx, conditionID, agreementID)
	if err != nil {
		return err
	}
	plan, err := c.plan(tx, agreement, models.PriceTypeFixedCrypto)
	if err != nil {
		return err
	}
	if st := c.stateOf(agreement, LockPaymentName); st != models.ConditionFulfilled {
		return errs.ErrConditionNotFulfilled.With("lock payment is %s", st)
	}

	var amounts []*big.Int
	var receivers []common.Address
	var outcome models.ConditionState
	switch st := c.stateOf(agreement, TransferCreditsName); st {
	case models.ConditionFulfilled:
		amounts, receivers = plan.Price.Amounts, plan.Price.Receivers
		outcome = models.ConditionFulfilled
	case models.ConditionAborted:
		amounts, receivers = []*big.Int{plan.Price.Total()}, []common.Address{agreement.Creator}
		outcome = models.ConditionAborted
	default:
		return errs.ErrConditionNotFulfilled.With("credits transfer is %s", st)
	}

	if err := c.settle(tx, agreementID, conditionID, outcome); err != nil {
		return err
	}

	v := c.vault
	token := plan.Price.TokenAddress
	for i, amount := range amounts {
		if amount.Sign() == 0 {
			continue
		}
		receiver := receivers[i]
		err := tx.Call(v.Address(), nil, func() error {
			if plan.Price.IsNative() {
				return v.WithdrawNative(tx, amount, receiver)
			}
			return v.WithdrawERC20(tx, token, amount, receiver)
		})
		if err != nil {
			return err
		}
	}
	name := "Fulfilled"
	if outcome == models.ConditionAborted {
		name = "Refunded"
	}
	tx.Emit(name, chain.Fields{
		"agreementId": agreementID,
		"conditionId": conditionID,
		"planId":      plan.ID,
		"buyer":       agreement.Creator,
		"receivers":   receivers,
		"amounts":     amounts,
	})
	c.logFulfilled(agreementID, outcome)
	return nil
}
