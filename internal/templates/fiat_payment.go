package templates

import (
	"go-agreements/internal/access"
	"go-agreements/internal/agreements"
	"go-agreements/internal/chain"
	"go-agreements/internal/conditions"
	"go-agreements/internal/errs"
	"go-agreements/internal/identifiers"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// FiatPayment issues credits for a plan paid off-chain. The caller is the
// settlement oracle, not the buyer.
type FiatPayment struct {
	address    common.Address
	roles      access.RoleChecker
	catalog    Catalog
	agreements *agreements.Store
	fiat       *conditions.FiatSettlement
	transfer   *conditions.TransferCredits
	logger     *logrus.Logger
}

func NewFiatPayment(rt *chain.Runtime, roles access.RoleChecker, catalog Catalog, store *agreements.Store, fiat *conditions.FiatSettlement, transfer *conditions.TransferCredits, logger *logrus.Logger) *FiatPayment {
	return &FiatPayment{
		address:    rt.Deploy(FiatPaymentName),
		roles:      roles,
		catalog:    catalog,
		agreements: store,
		fiat:       fiat,
		transfer:   transfer,
		logger:     logger,
	}
}

func (t *FiatPayment) Address() common.Address { return t.address }

// CreateAgreement records a settled fiat purchase of planID by buyer and
// mints the credits. FIAT_SETTLEMENT_ROLE only.
func (t *FiatPayment) CreateAgreement(tx *chain.Tx, seed, planID common.Hash, buyer common.Address, params []byte) (common.Hash, error) {
	ok, err := t.roles.HasRole(tx, tx.Sender(), access.FiatSettlementRole)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, errs.ErrInvalidRole.With("%s lacks %s", tx.Sender().Hex(), access.RoleName(access.FiatSettlementRole))
	}
	if tx.Value().Sign() != 0 {
		return common.Hash{}, errs.ErrInvalidTransactionAmount.With("fiat agreements take no value")
	}
	if buyer == (common.Address{}) {
		return common.Hash{}, errs.ErrInvalidAddress.With("buyer is the zero address")
	}
	plan, err := t.catalog.GetPlan(tx, planID)
	if err != nil {
		return common.Hash{}, err
	}
	if plan.Price.PriceType != models.PriceTypeFixedFiat {
		return common.Hash{}, errs.ErrUnsupportedPriceTypeOption.With("%s sells %s plans only", FiatPaymentName, models.PriceTypeFixedFiat)
	}

	agreementID := identifiers.HashAgreementID(seed, buyer)
	fiatID := t.fiat.ConditionID(agreementID)
	transferID := t.transfer.ConditionID(agreementID)
	if err := register(tx, t.agreements, agreementID, buyer, planID, []common.Hash{fiatID, transferID}, params); err != nil {
		return common.Hash{}, err
	}
	if err := tx.Call(t.fiat.Address(), nil, func() error {
		return t.fiat.Fulfill(tx, fiatID, agreementID, params)
	}); err != nil {
		return common.Hash{}, err
	}
	if err := tx.Call(t.transfer.Address(), nil, func() error {
		return t.transfer.Fulfill(tx, transferID, agreementID)
	}); err != nil {
		return common.Hash{}, err
	}

	tx.Emit("AgreementCreated", chain.Fields{
		"agreementId": agreementID,
		"buyer":       buyer,
		"planId":      planID,
		"settledBy":   tx.Sender(),
	})
	t.logger.WithFields(logrus.Fields{
		"agreement_id": agreementID.Hex(),
		"buyer":        buyer.Hex(),
		"oracle":       tx.Sender().Hex(),
	}).Info("💵 Fiat agreement created")
	return agreementID, nil
}
