// Package conditions holds the condition contracts. Each fulfill re-validates
// the agreement, the condition id and the plan, then records the new state in
// the Agreement Store before moving any value.
package conditions

import (
	"go-agreements/internal/access"
	"go-agreements/internal/agreements"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/identifiers"
	"go-agreements/internal/models"
	"go-agreements/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	LockPaymentName        = "LockPaymentCondition"
	DistributePaymentsName = "DistributePaymentsCondition"
	TransferCreditsName    = "TransferCreditsCondition"
	FiatSettlementName     = "FiatSettlementCondition"
)

// Deps are the collaborators every condition is wired with.
type Deps struct {
	Roles      access.RoleChecker
	Agreements *agreements.Store
	Plans      registry.PlanReader
	Logger     *logrus.Logger
}

type base struct {
	name    string
	address common.Address
	deps    Deps
}

func newBase(rt *chain.Runtime, name string, deps Deps) base {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return base{name: name, address: rt.Deploy(name), deps: deps}
}

func (b *base) Name() string            { return b.name }
func (b *base) Address() common.Address { return b.address }

// ConditionID is the id this condition has inside agreementID.
func (b *base) ConditionID(agreementID common.Hash) common.Hash {
	return identifiers.HashConditionID(agreementID, b.name)
}

func (b *base) requireRole(tx *chain.Tx, denied *errs.Error, roles ...access.Role) error {
	for _, role := range roles {
		ok, err := b.deps.Roles.HasRole(tx, tx.Sender(), role)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return denied.With("%s may not call %s", tx.Sender().Hex(), b.name)
}

// open loads the agreement and checks that conditionID is this condition's
// slot in it and is still UNFULFILLED. It returns the slot index.
func (b *base) open(tx *chain.Tx, conditionID, agreementID common.Hash) (*models.Agreement, int, error) {
	agreement, err := b.deps.Agreements.GetAgreement(tx, agreementID)
	if err != nil {
		return nil, 0, err
	}
	idx := agreement.ConditionIndex(conditionID)
	if idx < 0 || conditionID != b.ConditionID(agreementID) {
		return nil, 0, errs.ErrConditionIDNotFound.With("%s is not a %s of %s", conditionID.Hex(), b.name, agreementID.Hex())
	}
	if st := agreement.ConditionStates[idx]; st.Terminal() {
		return nil, 0, errs.ErrInvalidConditionState.With("%s already %s", conditionID.Hex(), st)
	}
	return agreement, idx, nil
}

func (b *base) plan(tx *chain.Tx, agreement *models.Agreement, accepted ...models.PriceType) (*models.Plan, error) {
	plan, err := b.deps.Plans.GetPlan(tx, agreement.PlanID)
	if err != nil {
		return nil, err
	}
	for _, pt := range accepted {
		if plan.Price.PriceType == pt {
			return plan, nil
		}
	}
	return nil, errs.ErrUnsupportedPriceTypeOption.With("%s does not support %s", b.name, plan.Price.PriceType)
}

func (b *base) stateOf(agreement *models.Agreement, conditionName string) models.ConditionState {
	idx := agreement.ConditionIndex(identifiers.HashConditionID(agreement.ID, conditionName))
	if idx < 0 {
		return models.ConditionUninitialized
	}
	return agreement.ConditionStates[idx]
}

// settle records next for the condition through the Agreement Store.
func (b *base) settle(tx *chain.Tx, agreementID, conditionID common.Hash, next models.ConditionState) error {
	store := b.deps.Agreements
	return tx.Call(store.Address(), nil, func() error {
		return store.UpdateConditionStatus(tx, agreementID, conditionID, next)
	})
}

func (b *base) logFulfilled(agreementID common.Hash, state models.ConditionState) {
	b.deps.Logger.WithFields(logrus.Fields{
		"condition":    b.name,
		"agreement_id": agreementID.Hex(),
		"state":        state.String(),
	}).Debug("Condition settled")
}
