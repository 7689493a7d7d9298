package access

import (
	"context"
	"math/big"
	"testing"
	"time"

	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	governor = common.HexToAddress("0x0000000000000000000000000000000000000002")
	another  = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

type fixture struct {
	ctx  context.Context
	rt   *chain.Runtime
	gate *Gate
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	rt := chain.NewRuntime(state.NewMemoryStore(), chain.NewManualClock(time.Unix(1_700_000_000, 0)), logger)
	f := &fixture{ctx: context.Background(), rt: rt, gate: NewGate(rt, logger)}
	_, err := f.as(owner, func(tx *chain.Tx) error { return f.gate.Initialize(tx, owner, governor) })
	require.NoError(t, err)
	return f
}

func (f *fixture) as(from common.Address, fn func(tx *chain.Tx) error) (*chain.Receipt, error) {
	return f.rt.Execute(f.ctx, chain.Message{From: from, To: f.gate.Address()}, fn)
}

func (f *fixture) hasRole(t *testing.T, account common.Address, role Role) bool {
	t.Helper()
	var has bool
	require.NoError(t, f.rt.View(f.ctx, account, func(tx *chain.Tx) error {
		var err error
		has, err = f.gate.HasRole(tx, account, role)
		return err
	}))
	return has
}

func TestInitializeOnce(t *testing.T) {
	f := setup(t)
	require.True(t, f.hasRole(t, owner, OwnerRole))
	require.True(t, f.hasRole(t, governor, GovernorRole))

	_, err := f.as(another, func(tx *chain.Tx) error { return f.gate.Initialize(tx, another, another) })
	require.ErrorIs(t, err, errs.ErrAlreadyInitialized)
}

func TestSetNetworkFees(t *testing.T) {
	f := setup(t)

	receipt, err := f.as(governor, func(tx *chain.Tx) error {
		return f.gate.SetNetworkFees(tx, big.NewInt(100), governor)
	})
	require.NoError(t, err)
	require.Len(t, receipt.EventsNamed("ConfigChanged"), 1)

	require.NoError(t, f.rt.View(f.ctx, another, func(tx *chain.Tx) error {
		fees, err := f.gate.NetworkFees(tx)
		require.NoError(t, err)
		require.Equal(t, int64(100), fees.Rate.Int64())
		require.Equal(t, governor, fees.Receiver)
		require.Equal(t, int64(FeeDenominator), fees.Denominator.Int64())
		return nil
	}))

	_, err = f.as(another, func(tx *chain.Tx) error {
		return f.gate.SetNetworkFees(tx, big.NewInt(100), another)
	})
	require.ErrorIs(t, err, errs.ErrOnlyGovernor)

	_, err = f.as(governor, func(tx *chain.Tx) error {
		return f.gate.SetNetworkFees(tx, big.NewInt(9_900_000), governor)
	})
	require.ErrorIs(t, err, errs.ErrInvalidNetworkFee)

	_, err = f.as(governor, func(tx *chain.Tx) error {
		return f.gate.SetNetworkFees(tx, big.NewInt(100), common.Address{})
	})
	require.ErrorIs(t, err, errs.ErrInvalidFeeReceiver)
}

func TestGovernorManagement(t *testing.T) {
	f := setup(t)

	_, err := f.as(governor, func(tx *chain.Tx) error { return f.gate.GrantGovernor(tx, another) })
	require.ErrorIs(t, err, errs.ErrOnlyOwner)

	receipt, err := f.as(owner, func(tx *chain.Tx) error { return f.gate.GrantGovernor(tx, another) })
	require.NoError(t, err)
	events := receipt.EventsNamed("PermissionsChanged")
	require.Len(t, events, 1)
	require.Equal(t, true, events[0].Fields["granted"])
	require.True(t, f.hasRole(t, another, GovernorRole))

	_, err = f.as(owner, func(tx *chain.Tx) error { return f.gate.RevokeGovernor(tx, another) })
	require.NoError(t, err)
	require.False(t, f.hasRole(t, another, GovernorRole))
}

func TestTemplateAndConditionAreGovernorOnly(t *testing.T) {
	f := setup(t)

	_, err := f.as(owner, func(tx *chain.Tx) error { return f.gate.GrantTemplate(tx, another) })
	require.ErrorIs(t, err, errs.ErrOnlyGovernor)

	_, err = f.as(governor, func(tx *chain.Tx) error {
		if err := f.gate.GrantTemplate(tx, another); err != nil {
			return err
		}
		return f.gate.GrantCondition(tx, another)
	})
	require.NoError(t, err)
	require.True(t, f.hasRole(t, another, TemplateRole))
	require.True(t, f.hasRole(t, another, ConditionRole))

	_, err = f.as(governor, func(tx *chain.Tx) error { return f.gate.RevokeCondition(tx, another) })
	require.NoError(t, err)
	require.False(t, f.hasRole(t, another, ConditionRole))
	require.True(t, f.hasRole(t, another, TemplateRole))
}

func TestNamedRoles(t *testing.T) {
	f := setup(t)
	custom := RoleFromName("CUSTOM_AUDITOR_ROLE")

	_, err := f.as(governor, func(tx *chain.Tx) error { return f.gate.GrantRole(tx, CreditsMinterRole, another) })
	require.ErrorIs(t, err, errs.ErrOnlyOwner)

	_, err = f.as(owner, func(tx *chain.Tx) error { return f.gate.GrantRole(tx, TemplateRole, another) })
	require.ErrorIs(t, err, errs.ErrInvalidRole)

	_, err = f.as(owner, func(tx *chain.Tx) error {
		if err := f.gate.GrantRole(tx, CreditsMinterRole, another); err != nil {
			return err
		}
		return f.gate.GrantRole(tx, custom, another)
	})
	require.NoError(t, err)
	require.True(t, f.hasRole(t, another, CreditsMinterRole))
	require.True(t, f.hasRole(t, another, custom))
	require.Equal(t, custom, ParseRole("CUSTOM_AUDITOR_ROLE"))
	require.Equal(t, custom, ParseRole(custom.Hex()))

	require.NoError(t, f.rt.View(f.ctx, owner, func(tx *chain.Tx) error {
		members, err := f.gate.Members(tx, CreditsMinterRole)
		require.NoError(t, err)
		require.Equal(t, []common.Address{another}, members)
		return nil
	}))
}

func TestChangeRecordsAreAudited(t *testing.T) {
	f := setup(t)
	_, err := f.as(governor, func(tx *chain.Tx) error {
		return f.gate.SetNetworkFees(tx, big.NewInt(250), governor)
	})
	require.NoError(t, err)

	require.NoError(t, f.rt.View(f.ctx, owner, func(tx *chain.Tx) error {
		changes, err := f.gate.Changes(tx)
		require.NoError(t, err)
		last := changes[len(changes)-2]
		require.Equal(t, "networkFee", last.Parameter)
		require.Equal(t, "0", last.OldValue)
		require.Equal(t, "250", last.NewValue)
		require.Equal(t, governor, last.Actor)
		require.Equal(t, uint64(1_700_000_000), last.Timestamp)
		return nil
	}))
}

func TestContractRegistry(t *testing.T) {
	f := setup(t)
	name := RoleFromName("PaymentsVault")
	addr := chain.ContractAddress("PaymentsVault")

	_, err := f.as(another, func(tx *chain.Tx) error { return f.gate.RegisterContract(tx, name, addr, 1) })
	require.ErrorIs(t, err, errs.ErrOnlyGovernor)

	receipt, err := f.as(governor, func(tx *chain.Tx) error { return f.gate.RegisterContract(tx, name, addr, 1) })
	require.NoError(t, err)
	require.Len(t, receipt.EventsNamed("ContractRegistered"), 1)

	require.NoError(t, f.rt.View(f.ctx, another, func(tx *chain.Tx) error {
		entry, err := f.gate.ResolveContract(tx, name)
		require.NoError(t, err)
		require.Equal(t, addr, entry.Address)
		require.Equal(t, uint64(1), entry.Version)

		_, err = f.gate.ResolveContract(tx, RoleFromName("Missing"))
		require.ErrorIs(t, err, errs.ErrContractNotFound)
		return nil
	}))
}

func TestTransferOwnership(t *testing.T) {
	f := setup(t)
	_, err := f.as(owner, func(tx *chain.Tx) error { return f.gate.TransferOwnership(tx, another) })
	require.NoError(t, err)
	require.False(t, f.hasRole(t, owner, OwnerRole))
	require.True(t, f.hasRole(t, another, OwnerRole))

	_, err = f.as(owner, func(tx *chain.Tx) error { return f.gate.GrantGovernor(tx, owner) })
	require.ErrorIs(t, err, errs.ErrOnlyOwner)
}
