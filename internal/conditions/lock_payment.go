package conditions

import (
	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"
	"go-agreements/internal/vault"

	"github.com/ethereum/go-ethereum/common"
)

// LockPayment escrows the plan price in the vault.
type LockPayment struct {
	base
	vault  *vault.Vault
	tokens vault.TokenLookup
}

func NewLockPayment(rt *chain.Runtime, deps Deps, v *vault.Vault, tokens vault.TokenLookup) *LockPayment {
	return &LockPayment{base: newBase(rt, LockPaymentName, deps), vault: v, tokens: tokens}
}

// Fulfill locks the price of the agreement's plan. Template only. Native
// plans must attach exactly the price; ERC20 plans attach nothing and are
// pulled from the buyer, who must have approved this condition.
func (c *LockPayment) Fulfill(tx *chain.Tx, conditionID, agreementID common.Hash) error {
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
	total := plan.Price.Total()
	value := tx.Value()

	var token common.Address
	if plan.Price.IsNative() {
		if value.Cmp(total) != 0 {
			return errs.ErrInvalidTransactionAmount.With("sent %s, price is %s", value, total)
		}
	} else {
		if value.Sign() != 0 {
			return errs.ErrInvalidTransactionAmount.With("native value %s sent for an ERC20 plan", value)
		}
		token = plan.Price.TokenAddress
	}

	if err := c.settle(tx, agreementID, conditionID, models.ConditionFulfilled); err != nil {
		return err
	}

	v := c.vault
	if plan.Price.IsNative() {
		if err := tx.Call(v.Address(), total, func() error { return v.DepositNative(tx) }); err != nil {
			return err
		}
	} else {
		erc20, ok := c.tokens.Lookup(token)
		if !ok {
			return errs.ErrInvalidAddress.With("unknown token %s", token.Hex())
		}
		if err := tx.Call(erc20.Address(), nil, func() error {
			return erc20.TransferFrom(tx, agreement.Creator, v.Address(), total)
		}); err != nil {
			return err
		}
		if err := tx.Call(v.Address(), nil, func() error {
			return v.DepositERC20(tx, token, total, agreement.Creator)
		}); err != nil {
			return err
		}
	}
	tx.Emit("Fulfilled", chain.Fields{
		"agreementId": agreementID,
		"conditionId": conditionID,
		"planId":      plan.ID,
		"buyer":       agreement.Creator,
		"token":       token,
		"amount":      total,
	})
	c.logFulfilled(agreementID, models.ConditionFulfilled)
	return nil
}
