package templates_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/identifiers"
	"go-agreements/internal/models"
	"go-agreements/internal/protocol"
	"go-agreements/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	governor    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	feeReceiver = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	creator     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyer       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	oracle      = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	p     *protocol.Protocol
	nonce int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	rt := chain.NewRuntime(state.NewMemoryStore(), chain.NewManualClock(time.Unix(1_700_000_000, 0)), logger)
	p := protocol.Deploy(rt, big.NewInt(1337), logger)
	require.NoError(t, p.Bootstrap(ctx, protocol.Settings{
		Owner:       owner,
		Governor:    governor,
		FeeRate:     big.NewInt(10_000),
		FeeReceiver: feeReceiver,
		Grants:      []protocol.Grant{{Role: access.FiatSettlementRole, Account: oracle}},
	}))
	for _, who := range []common.Address{buyer, oracle} {
		_, err := rt.Fund(ctx, who, big.NewInt(1_000))
		require.NoError(t, err)
	}
	return &fixture{t: t, ctx: ctx, p: p}
}

func (f *fixture) exec(from, to common.Address, value int64, fn func(tx *chain.Tx) error) error {
	_, err := f.p.Runtime.Execute(f.ctx, chain.Message{From: from, To: to, Value: big.NewInt(value)}, fn)
	return err
}

// asset registers an asset of creator with one plan priced 100 plus fees
func (f *fixture) asset(priceType models.PriceType) (common.Hash, common.Hash) {
	f.t.Helper()
	f.nonce++
	var did, planID common.Hash
	require.NoError(f.t, f.exec(creator, f.p.Registry.Address(), 0, func(tx *chain.Tx) error {
		amounts, receivers, err := f.p.Registry.AddFeesToPaymentsDistribution(tx, []*big.Int{big.NewInt(100)}, []common.Address{creator})
		if err != nil {
			return err
		}
		price := models.PriceConfig{PriceType: priceType, Amounts: amounts, Receivers: receivers}
		credits := models.CreditsConfig{CreditsType: models.CreditsTypeFixed, RedemptionType: models.RedemptionOwner, Amount: big.NewInt(100)}
		did, planID, err = f.p.Registry.RegisterAssetAndPlan(tx, common.BigToHash(big.NewInt(f.nonce)), "ipfs://asset", price, credits, f.p.Fixed.Address(), big.NewInt(f.nonce))
		return err
	}))
	return did, planID
}

func (f *fixture) buy(value int64, seed, did, planID common.Hash) (common.Hash, error) {
	var id common.Hash
	err := f.exec(buyer, f.p.FixedPayment.Address(), value, func(tx *chain.Tx) error {
		var err error
		id, err = f.p.FixedPayment.CreateAgreement(tx, seed, did, planID, nil)
		return err
	})
	return id, err
}

func (f *fixture) settleFiat(from common.Address, value int64, seed, planID common.Hash, to common.Address) (common.Hash, error) {
	var id common.Hash
	err := f.exec(from, f.p.FiatPayment.Address(), value, func(tx *chain.Tx) error {
		var err error
		id, err = f.p.FiatPayment.CreateAgreement(tx, seed, planID, to, []byte("invoice-7"))
		return err
	})
	return id, err
}

func (f *fixture) agreement(id common.Hash) (*models.Agreement, error) {
	var a *models.Agreement
	err := f.p.Runtime.View(f.ctx, owner, func(tx *chain.Tx) error {
		var err error
		a, err = f.p.Agreements.GetAgreement(tx, id)
		return err
	})
	return a, err
}

func (f *fixture) credits(planID common.Hash) int64 {
	f.t.Helper()
	var bal *big.Int
	require.NoError(f.t, f.p.Runtime.View(f.ctx, buyer, func(tx *chain.Tx) error {
		var err error
		bal, err = f.p.Fixed.BalanceOf(tx, buyer, planID)
		return err
	}))
	return bal.Int64()
}

func TestFixedPaymentValidatesPurchase(t *testing.T) {
	f := setup(t)
	did, planID := f.asset(models.PriceTypeFixedCrypto)
	otherDID, _ := f.asset(models.PriceTypeFixedCrypto)
	fiatDID, fiatPlan := f.asset(models.PriceTypeFixedFiat)
	seed := common.HexToHash("0x5eed")

	_, err := f.buy(101, seed, otherDID, planID)
	require.ErrorIs(t, err, errs.ErrPlanNotInAsset)

	_, err = f.buy(101, seed, fiatDID, fiatPlan)
	require.ErrorIs(t, err, errs.ErrUnsupportedPriceTypeOption)

	_, err = f.buy(101, seed, common.HexToHash("0x0bad"), planID)
	require.ErrorIs(t, err, errs.ErrAssetNotFound)

	// a failed lock discards the registration too
	_, err = f.buy(50, seed, did, planID)
	require.ErrorIs(t, err, errs.ErrInvalidTransactionAmount)
	_, err = f.agreement(identifiers.HashAgreementID(seed, buyer))
	require.ErrorIs(t, err, errs.ErrAgreementNotFound)

	id, err := f.buy(101, seed, did, planID)
	require.NoError(t, err)
	require.Equal(t, identifiers.HashAgreementID(seed, buyer), id)
	a, err := f.agreement(id)
	require.NoError(t, err)
	require.Equal(t, []models.ConditionState{models.ConditionFulfilled, models.ConditionFulfilled, models.ConditionFulfilled}, a.ConditionStates)
	require.Equal(t, int64(100), f.credits(planID))

	bal, err := f.p.Runtime.Balance(f.ctx, buyer)
	require.NoError(t, err)
	require.Equal(t, int64(899), bal.Int64())
}

func TestFiatPaymentRequiresOracle(t *testing.T) {
	f := setup(t)
	_, planID := f.asset(models.PriceTypeFixedFiat)
	_, cryptoPlan := f.asset(models.PriceTypeFixedCrypto)
	seed := common.HexToHash("0xf1a7")

	_, err := f.settleFiat(buyer, 0, seed, planID, buyer)
	require.ErrorIs(t, err, errs.ErrInvalidRole)

	_, err = f.settleFiat(oracle, 5, seed, planID, buyer)
	require.ErrorIs(t, err, errs.ErrInvalidTransactionAmount)

	_, err = f.settleFiat(oracle, 0, seed, planID, common.Address{})
	require.ErrorIs(t, err, errs.ErrInvalidAddress)

	_, err = f.settleFiat(oracle, 0, seed, cryptoPlan, buyer)
	require.ErrorIs(t, err, errs.ErrUnsupportedPriceTypeOption)

	id, err := f.settleFiat(oracle, 0, seed, planID, buyer)
	require.NoError(t, err)
	require.Equal(t, identifiers.HashAgreementID(seed, buyer), id)
	a, err := f.agreement(id)
	require.NoError(t, err)
	require.Equal(t, buyer, a.Creator)
	require.Equal(t, []models.ConditionState{models.ConditionFulfilled, models.ConditionFulfilled}, a.ConditionStates)
	require.Equal(t, int64(100), f.credits(planID))

	_, err = f.settleFiat(oracle, 0, seed, planID, buyer)
	require.ErrorIs(t, err, errs.ErrAgreementAlreadyRegistered)
}
