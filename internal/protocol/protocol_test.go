package protocol

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
	"go-agreements/internal/state"
	"go-agreements/internal/tokens"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000001")
	governor    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	feeReceiver = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob         = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	oracle      = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	operator    = common.HexToAddress("0x00000000000000000000000000000000000000d4")
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock *chain.ManualClock
	p     *Protocol
	nonce int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	clock := chain.NewManualClock(time.Unix(1_700_000_000, 0))
	rt := chain.NewRuntime(state.NewMemoryStore(), clock, logger)
	p := Deploy(rt, big.NewInt(1337), logger)
	require.NoError(t, p.Bootstrap(ctx, Settings{
		Owner:       owner,
		Governor:    governor,
		FeeRate:     big.NewInt(10_000),
		FeeReceiver: feeReceiver,
	}))
	for _, who := range []common.Address{alice, bob, operator} {
		_, err := rt.Fund(ctx, who, big.NewInt(1_000))
		require.NoError(t, err)
	}
	return &fixture{t: t, ctx: ctx, clock: clock, p: p}
}

func (f *fixture) exec(from, to common.Address, value int64, fn func(tx *chain.Tx) error) error {
	_, err := f.p.Runtime.Execute(f.ctx, chain.Message{From: from, To: to, Value: big.NewInt(value)}, fn)
	return err
}

func (f *fixture) balance(addr common.Address) int64 {
	f.t.Helper()
	bal, err := f.p.Runtime.Balance(f.ctx, addr)
	require.NoError(f.t, err)
	return bal.Int64()
}

func (f *fixture) view(fn func(tx *chain.Tx) error) {
	f.t.Helper()
	require.NoError(f.t, f.p.Runtime.View(f.ctx, owner, fn))
}

func (f *fixture) credits(ledger common.Address, holder common.Address, planID common.Hash) int64 {
	f.t.Helper()
	l, ok := f.p.Ledgers.At(ledger)
	require.True(f.t, ok)
	var bal *big.Int
	f.view(func(tx *chain.Tx) error {
		var err error
		bal, err = l.BalanceOf(tx, holder, planID)
		return err
	})
	return bal.Int64()
}

type planParams struct {
	priceType models.PriceType
	token     common.Address
	price     int64
	credits   models.CreditsConfig
	ledger    common.Address
}

func fixedCredits() models.CreditsConfig {
	return models.CreditsConfig{CreditsType: models.CreditsTypeFixed, RedemptionType: models.RedemptionOwner, Amount: big.NewInt(100)}
}

// register creates an asset owned by alice with one plan and returns (did, planId).
func (f *fixture) register(pp planParams) (common.Hash, common.Hash) {
	f.t.Helper()
	f.nonce++
	if pp.ledger == (common.Address{}) {
		pp.ledger = f.p.Fixed.Address()
	}
	var did, planID common.Hash
	require.NoError(f.t, f.exec(alice, f.p.Registry.Address(), 0, func(tx *chain.Tx) error {
		amounts, receivers, err := f.p.Registry.AddFeesToPaymentsDistribution(tx, []*big.Int{big.NewInt(pp.price)}, []common.Address{alice})
		if err != nil {
			return err
		}
		price := models.PriceConfig{PriceType: pp.priceType, TokenAddress: pp.token, Amounts: amounts, Receivers: receivers}
		did, planID, err = f.p.Registry.RegisterAssetAndPlan(tx, common.BigToHash(big.NewInt(f.nonce)), "ipfs://asset", price, pp.credits, pp.ledger, big.NewInt(f.nonce))
		return err
	}))
	return did, planID
}

func (f *fixture) buy(buyer common.Address, value int64, seed, did, planID common.Hash) (common.Hash, error) {
	var id common.Hash
	err := f.exec(buyer, f.p.FixedPayment.Address(), value, func(tx *chain.Tx) error {
		var err error
		id, err = f.p.FixedPayment.CreateAgreement(tx, seed, did, planID, nil)
		return err
	})
	return id, err
}

func (f *fixture) agreement(id common.Hash) *models.Agreement {
	f.t.Helper()
	var a *models.Agreement
	f.view(func(tx *chain.Tx) error {
		var err error
		a, err = f.p.Agreements.GetAgreement(tx, id)
		return err
	})
	return a
}

func TestNativeFixedPaymentFlow(t *testing.T) {
	f := setup(t)
	did, planID := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 100, credits: fixedCredits()})
	seed := common.HexToHash("0xabc")

	_, err := f.buy(bob, 100, seed, did, planID)
	require.ErrorIs(t, err, errs.ErrInvalidTransactionAmount)
	_, err = f.buy(bob, 102, seed, did, planID)
	require.ErrorIs(t, err, errs.ErrInvalidTransactionAmount)
	require.Equal(t, int64(1_000), f.balance(bob))

	vaultBefore := f.balance(f.p.Vault.Address())
	id, err := f.buy(bob, 101, seed, did, planID)
	require.NoError(t, err)
	require.Equal(t, identifiers.HashAgreementID(seed, bob), id)

	require.Equal(t, int64(1_100), f.balance(alice))
	require.Equal(t, int64(1), f.balance(feeReceiver))
	require.Equal(t, int64(899), f.balance(bob))
	require.Equal(t, vaultBefore, f.balance(f.p.Vault.Address()))
	require.Equal(t, int64(100), f.credits(f.p.Fixed.Address(), bob, planID))

	a := f.agreement(id)
	require.Equal(t, []common.Hash{
		identifiers.HashConditionID(id, "LockPaymentCondition"),
		identifiers.HashConditionID(id, "TransferCreditsCondition"),
		identifiers.HashConditionID(id, "DistributePaymentsCondition"),
	}, a.ConditionIDs)
	for _, st := range a.ConditionStates {
		require.Equal(t, models.ConditionFulfilled, st)
	}

	_, err = f.buy(bob, 101, seed, did, planID)
	require.ErrorIs(t, err, errs.ErrAgreementAlreadyRegistered)
	require.Equal(t, int64(899), f.balance(bob))
}

func TestCreateAgreementValidation(t *testing.T) {
	f := setup(t)
	did, planID := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 100, credits: fixedCredits()})
	_, otherPlan := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 10, credits: fixedCredits()})
	smartDID, smartPlan := f.register(planParams{priceType: models.PriceTypeSmartContract, price: 10, credits: fixedCredits()})
	fiatDID, fiatPlan := f.register(planParams{priceType: models.PriceTypeFixedFiat, price: 10, credits: fixedCredits()})

	_, err := f.buy(bob, 101, common.HexToHash("0x01"), common.HexToHash("0xdead"), planID)
	require.ErrorIs(t, err, errs.ErrAssetNotFound)
	_, err = f.buy(bob, 101, common.HexToHash("0x01"), did, common.HexToHash("0xdead"))
	require.ErrorIs(t, err, errs.ErrPlanNotFound)
	_, err = f.buy(bob, 11, common.HexToHash("0x01"), did, otherPlan)
	require.ErrorIs(t, err, errs.ErrPlanNotInAsset)
	_, err = f.buy(bob, 11, common.HexToHash("0x01"), smartDID, smartPlan)
	require.ErrorIs(t, err, errs.ErrUnsupportedPriceTypeOption)
	_, err = f.buy(bob, 11, common.HexToHash("0x01"), fiatDID, fiatPlan)
	require.ErrorIs(t, err, errs.ErrUnsupportedPriceTypeOption)

	wrongType := fixedCredits()
	wrongType.CreditsType = models.CreditsTypeExpirable
	mismatchDID, mismatchPlan := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 100, credits: wrongType})
	_, err = f.buy(bob, 101, common.HexToHash("0x02"), mismatchDID, mismatchPlan)
	require.ErrorIs(t, err, errs.ErrInvalidCreditsType)

	noLedgerDID, noLedgerPlan := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 100, credits: fixedCredits(), ledger: common.HexToAddress("0x77")})
	_, err = f.buy(bob, 101, common.HexToHash("0x03"), noLedgerDID, noLedgerPlan)
	require.ErrorIs(t, err, errs.ErrInvalidCreditsLedger)

	require.Equal(t, int64(1_000), f.balance(bob))
}

func TestERC20FixedPaymentFlow(t *testing.T) {
	f := setup(t)
	usdc := f.p.DeployToken("USD Coin", "USDC", 6, owner)
	require.NoError(t, f.exec(owner, usdc.Address(), 0, func(tx *chain.Tx) error {
		return usdc.Mint(tx, bob, big.NewInt(5_000))
	}))
	did, planID := f.register(planParams{priceType: models.PriceTypeFixedCrypto, token: usdc.Address(), price: 1_000, credits: fixedCredits()})

	_, err := f.buy(bob, 0, common.HexToHash("0x01"), did, planID)
	require.ErrorIs(t, err, errs.ErrInsufficientAllowance)
	_, err = f.buy(bob, 5, common.HexToHash("0x01"), did, planID)
	require.ErrorIs(t, err, errs.ErrInvalidTransactionAmount)

	require.NoError(t, f.exec(bob, usdc.Address(), 0, func(tx *chain.Tx) error {
		return usdc.Approve(tx, f.p.Lock.Address(), big.NewInt(1_010))
	}))
	_, err = f.buy(bob, 0, common.HexToHash("0x01"), did, planID)
	require.NoError(t, err)

	tokenBalance := func(tok *tokens.ERC20, who common.Address) int64 {
		var bal *big.Int
		f.view(func(tx *chain.Tx) error {
			var err error
			bal, err = tok.BalanceOf(tx, who)
			return err
		})
		return bal.Int64()
	}
	require.Equal(t, int64(1_000), tokenBalance(usdc, alice))
	require.Equal(t, int64(10), tokenBalance(usdc, feeReceiver))
	require.Equal(t, int64(3_990), tokenBalance(usdc, bob))
	require.Equal(t, int64(0), tokenBalance(usdc, f.p.Vault.Address()))
	require.Equal(t, int64(100), f.credits(f.p.Fixed.Address(), bob, planID))
}

func TestExpirableCreditsFlow(t *testing.T) {
	f := setup(t)
	cfg := models.CreditsConfig{CreditsType: models.CreditsTypeExpirable, RedemptionType: models.RedemptionOwner, DurationSecs: 60, Amount: big.NewInt(10)}
	did, planID := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 100, credits: cfg, ledger: f.p.Expirable.Address()})

	_, err := f.buy(bob, 101, common.HexToHash("0x01"), did, planID)
	require.NoError(t, err)
	require.Equal(t, int64(10), f.credits(f.p.Expirable.Address(), bob, planID))

	f.clock.Advance(59 * time.Second)
	require.Equal(t, int64(10), f.credits(f.p.Expirable.Address(), bob, planID))
	f.clock.Advance(time.Second)
	require.Equal(t, int64(0), f.credits(f.p.Expirable.Address(), bob, planID))
}

func TestFiatPaymentFlow(t *testing.T) {
	f := setup(t)
	_, planID := f.register(planParams{priceType: models.PriceTypeFixedFiat, price: 20, credits: fixedCredits()})
	_, cryptoPlan := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 20, credits: fixedCredits()})

	settle := func(plan common.Hash, seed common.Hash) (common.Hash, error) {
		var id common.Hash
		err := f.exec(oracle, f.p.FiatPayment.Address(), 0, func(tx *chain.Tx) error {
			var err error
			id, err = f.p.FiatPayment.CreateAgreement(tx, seed, plan, bob, []byte("receipt-42"))
			return err
		})
		return id, err
	}

	_, err := settle(planID, common.HexToHash("0x01"))
	require.ErrorIs(t, err, errs.ErrInvalidRole)

	require.NoError(t, f.exec(owner, f.p.Gate.Address(), 0, func(tx *chain.Tx) error {
		return f.p.Gate.GrantRole(tx, access.FiatSettlementRole, oracle)
	}))

	_, err = settle(cryptoPlan, common.HexToHash("0x01"))
	require.ErrorIs(t, err, errs.ErrUnsupportedPriceTypeOption)

	id, err := settle(planID, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, identifiers.HashAgreementID(common.HexToHash("0x01"), bob), id)
	require.Equal(t, int64(100), f.credits(f.p.Fixed.Address(), bob, planID))

	a := f.agreement(id)
	require.Equal(t, bob, a.Creator)
	require.Equal(t, []models.ConditionState{models.ConditionFulfilled, models.ConditionFulfilled}, a.ConditionStates)
	require.Equal(t, int64(1_000), f.balance(bob))
}

func TestReentrantDistributeIsRejected(t *testing.T) {
	f := setup(t)
	did, planID := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 100, credits: fixedCredits()})
	require.NoError(t, f.exec(governor, f.p.Gate.Address(), 0, func(tx *chain.Tx) error {
		return f.p.Gate.GrantTemplate(tx, alice)
	}))

	seed := common.HexToHash("0x5eed")
	agreementID := identifiers.HashAgreementID(seed, bob)
	distributeID := f.p.Distribute.ConditionID(agreementID)

	var reentry []error
	f.p.Runtime.RegisterReceiver(alice, func(tx *chain.Tx) error {
		reentry = append(reentry, tx.Call(f.p.Distribute.Address(), nil, func() error {
			return f.p.Distribute.Fulfill(tx, distributeID, agreementID)
		}))
		return nil
	})
	defer f.p.Runtime.RegisterReceiver(alice, nil)

	_, err := f.buy(bob, 101, seed, did, planID)
	require.NoError(t, err)
	require.Len(t, reentry, 1)
	require.ErrorIs(t, reentry[0], errs.ErrInvalidConditionState)
	require.Equal(t, int64(1_100), f.balance(alice))
	require.Equal(t, int64(0), f.balance(f.p.Vault.Address()))
}

func TestDistributeRefundsWhenDeliveryAborted(t *testing.T) {
	f := setup(t)
	_, planID := f.register(planParams{priceType: models.PriceTypeFixedCrypto, price: 100, credits: fixedCredits()})
	require.NoError(t, f.exec(governor, f.p.Gate.Address(), 0, func(tx *chain.Tx) error {
		return f.p.Gate.GrantTemplate(tx, operator)
	}))

	agreementID := identifiers.HashAgreementID(common.HexToHash("0x77"), bob)
	lockID := f.p.Lock.ConditionID(agreementID)
	transferID := f.p.Transfer.ConditionID(agreementID)
	distributeID := f.p.Distribute.ConditionID(agreementID)

	require.NoError(t, f.exec(operator, f.p.Agreements.Address(), 0, func(tx *chain.Tx) error {
		return f.p.Agreements.Register(tx, agreementID, bob, planID, []common.Hash{lockID, transferID, distributeID}, nil, nil)
	}))

	distribute := func() error {
		return f.exec(operator, f.p.Distribute.Address(), 0, func(tx *chain.Tx) error {
			return f.p.Distribute.Fulfill(tx, distributeID, agreementID)
		})
	}
	require.ErrorIs(t, distribute(), errs.ErrConditionNotFulfilled)

	require.NoError(t, f.exec(operator, f.p.Lock.Address(), 101, func(tx *chain.Tx) error {
		return f.p.Lock.Fulfill(tx, lockID, agreementID)
	}))
	require.Equal(t, int64(101), f.balance(f.p.Vault.Address()))
	require.ErrorIs(t, distribute(), errs.ErrConditionNotFulfilled)

	require.NoError(t, f.exec(operator, f.p.Transfer.Address(), 0, func(tx *chain.Tx) error {
		return f.p.Transfer.Abort(tx, transferID, agreementID)
	}))
	require.NoError(t, distribute())

	require.Equal(t, int64(1_101), f.balance(bob))
	require.Equal(t, int64(1_000), f.balance(alice))
	require.Equal(t, int64(0), f.balance(f.p.Vault.Address()))
	require.Equal(t, []models.ConditionState{models.ConditionFulfilled, models.ConditionAborted, models.ConditionAborted}, f.agreement(agreementID).ConditionStates)

	require.ErrorIs(t, distribute(), errs.ErrInvalidConditionState)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.p.Bootstrap(f.ctx, Settings{Owner: owner, Governor: governor}))

	f.view(func(tx *chain.Tx) error {
		for _, c := range f.p.Contracts() {
			entry, err := f.p.Gate.ResolveContract(tx, identifiers.ContractNameHash(c.Name))
			require.NoError(t, err)
			require.Equal(t, c.Address, entry.Address)
		}
		fees, err := f.p.Gate.NetworkFees(tx)
		require.NoError(t, err)
		require.Equal(t, int64(10_000), fees.Rate.Int64())
		return nil
	})
}

func TestBootstrapRejectsFeeWithoutReceiver(t *testing.T) {
	rt := chain.NewRuntime(state.NewMemoryStore(), chain.NewManualClock(time.Unix(1_700_000_000, 0)), nil)
	p := Deploy(rt, big.NewInt(1337), nil)
	ctx := context.Background()

	err := p.Bootstrap(ctx, Settings{Owner: owner, Governor: governor, FeeRate: big.NewInt(10_000)})
	require.ErrorIs(t, err, errs.ErrInvalidFeeReceiver)

	require.NoError(t, rt.View(ctx, owner, func(tx *chain.Tx) error {
		ok, err := p.Gate.Initialized(tx)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))

	require.NoError(t, p.Bootstrap(ctx, Settings{Owner: owner, Governor: governor, FeeRate: big.NewInt(10_000), FeeReceiver: feeReceiver}))
	require.NoError(t, rt.View(ctx, owner, func(tx *chain.Tx) error {
		ok, err := p.Gate.IsTemplate(tx, p.FixedPayment.Address())
		require.NoError(t, err)
		require.True(t, ok)
		fees, err := p.Gate.NetworkFees(tx)
		require.NoError(t, err)
		require.Equal(t, int64(10_000), fees.Rate.Int64())
		return nil
	}))
}

func TestBootstrapResumesAfterGateInitialization(t *testing.T) {
	rt := chain.NewRuntime(state.NewMemoryStore(), chain.NewManualClock(time.Unix(1_700_000_000, 0)), nil)
	p := Deploy(rt, big.NewInt(1337), nil)
	ctx := context.Background()
	s := Settings{
		Owner:       owner,
		Governor:    governor,
		FeeRate:     big.NewInt(10_000),
		FeeReceiver: feeReceiver,
		Grants:      []Grant{{Role: access.FiatSettlementRole, Account: oracle}},
	}

	// only the owner stage commits, as if the process died before governance ran
	require.NoError(t, p.initializeGate(ctx, s))
	initialized, configured, err := p.bootstrapStatus(ctx)
	require.NoError(t, err)
	require.True(t, initialized)
	require.False(t, configured)

	require.NoError(t, p.Bootstrap(ctx, s))
	initialized, configured, err = p.bootstrapStatus(ctx)
	require.NoError(t, err)
	require.True(t, initialized)
	require.True(t, configured)

	require.NoError(t, rt.View(ctx, owner, func(tx *chain.Tx) error {
		for _, addr := range []common.Address{p.FixedPayment.Address(), p.FiatPayment.Address()} {
			ok, err := p.Gate.IsTemplate(tx, addr)
			require.NoError(t, err)
			require.True(t, ok)
		}
		ok, err := p.Gate.IsCondition(tx, p.Lock.Address())
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = p.Gate.HasRole(tx, oracle, access.FiatSettlementRole)
		require.NoError(t, err)
		require.True(t, ok)
		fees, err := p.Gate.NetworkFees(tx)
		require.NoError(t, err)
		require.Equal(t, feeReceiver, fees.Receiver)
		return nil
	}))

	// a third run is a no-op
	require.NoError(t, p.Bootstrap(ctx, s))
}
