// Package templates are the buyer-facing entry points. A template derives the
// agreement id, registers the agreement and drives its conditions in one
// transaction.
package templates

import (
	"go-agreements/internal/agreements"
	"go-agreements/internal/chain"
	"go-agreements/internal/conditions"
	"go-agreements/internal/errs"
	"go-agreements/internal/identifiers"
	"go-agreements/internal/models"
	"go-agreements/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	FixedPaymentName = "FixedPaymentTemplate"
	FiatPaymentName  = "FiatPaymentTemplate"
)

// Catalog is the registry view templates need.
type Catalog interface {
	registry.PlanReader
	GetAsset(tx *chain.Tx, did common.Hash) (*models.Asset, error)
}

// FixedPayment sells a crypto-priced plan: lock, transfer credits, distribute.
type FixedPayment struct {
	address    common.Address
	catalog    Catalog
	agreements *agreements.Store
	lock       *conditions.LockPayment
	transfer   *conditions.TransferCredits
	distribute *conditions.DistributePayments
	logger     *logrus.Logger
}

func NewFixedPayment(rt *chain.Runtime, catalog Catalog, store *agreements.Store, lock *conditions.LockPayment, transfer *conditions.TransferCredits, distribute *conditions.DistributePayments, logger *logrus.Logger) *FixedPayment {
	return &FixedPayment{
		address:    rt.Deploy(FixedPaymentName),
		catalog:    catalog,
		agreements: store,
		lock:       lock,
		transfer:   transfer,
		distribute: distribute,
		logger:     logger,
	}
}

func (t *FixedPayment) Address() common.Address { return t.address }

// CreateAgreement buys planID of asset did for the caller. Native plans must
// attach exactly the plan's total price.
func (t *FixedPayment) CreateAgreement(tx *chain.Tx, seed, did, planID common.Hash, params []byte) (common.Hash, error) {
	asset, err := t.catalog.GetAsset(tx, did)
	if err != nil {
		return common.Hash{}, err
	}
	plan, err := t.catalog.GetPlan(tx, planID)
	if err != nil {
		return common.Hash{}, err
	}
	if !asset.HasPlan(planID) {
		return common.Hash{}, errs.ErrPlanNotInAsset.With("%s not in %s", planID.Hex(), did.Hex())
	}
	if plan.Price.PriceType != models.PriceTypeFixedCrypto {
		return common.Hash{}, errs.ErrUnsupportedPriceTypeOption.With("%s sells %s plans only", FixedPaymentName, models.PriceTypeFixedCrypto)
	}

	buyer := tx.Sender()
	agreementID := identifiers.HashAgreementID(seed, buyer)
	lockID := t.lock.ConditionID(agreementID)
	transferID := t.transfer.ConditionID(agreementID)
	distributeID := t.distribute.ConditionID(agreementID)

	if err := register(tx, t.agreements, agreementID, buyer, planID, []common.Hash{lockID, transferID, distributeID}, params); err != nil {
		return common.Hash{}, err
	}
	if err := tx.Call(t.lock.Address(), tx.Value(), func() error {
		return t.lock.Fulfill(tx, lockID, agreementID)
	}); err != nil {
		return common.Hash{}, err
	}
	if err := tx.Call(t.transfer.Address(), nil, func() error {
		return t.transfer.Fulfill(tx, transferID, agreementID)
	}); err != nil {
		return common.Hash{}, err
	}
	if err := tx.Call(t.distribute.Address(), nil, func() error {
		return t.distribute.Fulfill(tx, distributeID, agreementID)
	}); err != nil {
		return common.Hash{}, err
	}

	tx.Emit("AgreementCreated", chain.Fields{
		"agreementId": agreementID,
		"buyer":       buyer,
		"did":         did,
		"planId":      planID,
	})
	t.logger.WithFields(logrus.Fields{
		"agreement_id": agreementID.Hex(),
		"buyer":        buyer.Hex(),
		"plan_id":      planID.Hex(),
	}).Info("🤝 Agreement created")
	return agreementID, nil
}

func register(tx *chain.Tx, store *agreements.Store, agreementID common.Hash, buyer common.Address, planID common.Hash, conditionIDs []common.Hash, params []byte) error {
	return tx.Call(store.Address(), nil, func() error {
		return store.Register(tx, agreementID, buyer, planID, conditionIDs, nil, params)
	})
}
