package conditions

import (
	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/credits"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerLookup resolves a plan's nftAddress to its credits ledger.
type LedgerLookup interface {
	At(addr common.Address) (*credits.Ledger, bool)
}

// TransferCredits mints the plan's credits to the buyer once the preceding
// condition of the agreement is FULFILLED.
type TransferCredits struct {
	base
	ledgers LedgerLookup
}

func NewTransferCredits(rt *chain.Runtime, deps Deps, ledgers LedgerLookup) *TransferCredits {
	return &TransferCredits{base: newBase(rt, TransferCreditsName, deps), ledgers: ledgers}
}

// Fulfill mints plan.credits.amount to the buyer. Template only.
func (c *TransferCredits) Fulfill(tx *chain.Tx, conditionID, agreementID common.Hash) error {
	if err := c.requireRole(tx, errs.ErrOnlyTemplate, access.TemplateRole); err != nil {
		return err
	}
	agreement, idx, err := c.open(tx, conditionID, agreementID)
	if err != nil {
		return err
	}
	if idx == 0 || agreement.ConditionStates[idx-1] != models.ConditionFulfilled {
		return errs.ErrConditionNotFulfilled.With("credits transfer waits for the previous condition")
	}
	plan, err := c.plan(tx, agreement, models.PriceTypeFixedCrypto, models.PriceTypeFixedFiat)
	if err != nil {
		return err
	}
	ledger, ok := c.ledgers.At(plan.NFTAddress)
	if !ok {
		return errs.ErrInvalidCreditsLedger.With("no ledger at %s", plan.NFTAddress.Hex())
	}
	if !ledger.Supports(plan.Credits.CreditsType) {
		return errs.ErrInvalidCreditsType.With("%s does not issue %s credits", ledger.Name(), plan.Credits.CreditsType)
	}

	if err := c.settle(tx, agreementID, conditionID, models.ConditionFulfilled); err != nil {
		return err
	}
	if err := tx.Call(ledger.Address(), nil, func() error {
		return ledger.Mint(tx, agreement.Creator, plan.ID, plan.Credits.Amount, plan.Credits.DurationSecs, agreement.Params)
	}); err != nil {
		return err
	}
	tx.Emit("Fulfilled", chain.Fields{
		"agreementId": agreementID,
		"conditionId": conditionID,
		"planId":      plan.ID,
		"receiver":    agreement.Creator,
		"ledger":      ledger.Address(),
		"amount":      plan.Credits.Amount,
	})
	c.logFulfilled(agreementID, models.ConditionFulfilled)
	return nil
}

// Abort gives up on delivering credits, which lets the payment be refunded.
// Template only, and only after the preceding condition is FULFILLED.
func (c *TransferCredits) Abort(tx *chain.Tx, conditionID, agreementID common.Hash) error {
	if err := c.requireRole(tx, errs.ErrOnlyTemplate, access.TemplateRole); err != nil {
		return err
	}
	agreement, idx, err := c.open(tx, conditionID, agreementID)
	if err != nil {
		return err
	}
	if idx == 0 || agreement.ConditionStates[idx-1] != models.ConditionFulfilled {
		return errs.ErrConditionNotFulfilled.With("nothing to abort before the previous condition")
	}
	if err := c.settle(tx, agreementID, conditionID, models.ConditionAborted); err != nil {
		return err
	}
	tx.Emit("Aborted", chain.Fields{"agreementId": agreementID, "conditionId": conditionID})
	c.logFulfilled(agreementID, models.ConditionAborted)
	return nil
}
