package conditions

import (
	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// FiatSettlement is fulfilled by an oracle attesting an off-chain payment.
type FiatSettlement struct {
	base
}

func NewFiatSettlement(rt *chain.Runtime, deps Deps) *FiatSettlement {
	return &FiatSettlement{base: newBase(rt, FiatSettlementName, deps)}
}

// Fulfill marks the fiat payment as settled. Callable by a template or a
// holder of FIAT_SETTLEMENT_ROLE; no value may be attached.
func (c *FiatSettlement) Fulfill(tx *chain.Tx, conditionID, agreementID common.Hash, params []byte) error {
	if err := c.requireRole(tx, errs.ErrInvalidRole, access.TemplateRole, access.FiatSettlementRole); err != nil {
		return err
	}
	if tx.Value().Sign() != 0 {
		return errs.ErrInvalidTransactionAmount.With("fiat settlement takes no value")
	}
	agreement, _, err := c.open(tx, conditionID, agreementID)
	if err != nil {
		return err
	}
	plan, err := c.plan(tx, agreement, models.PriceTypeFixedFiat)
	if err != nil {
		return err
	}
	if err := c.settle(tx, agreementID, conditionID, models.ConditionFulfilled); err != nil {
		return err
	}
	tx.Emit("Fulfilled", chain.Fields{
		"agreementId": agreementID,
		"conditionId": conditionID,
		"planId":      plan.ID,
		"buyer":       agreement.Creator,
		"settledBy":   tx.Sender(),
		"params":      len(params),
	})
	c.logFulfilled(agreementID, models.ConditionFulfilled)
	return nil
}
