package vault

import (
	"context"
	"math/big"
	"testing"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/state"
	"go-agreements/internal/tokens"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	governor  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	depositor = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	withdrawr = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type fixture struct {
	ctx   context.Context
	rt    *chain.Runtime
	vault *Vault
	usdc  *tokens.ERC20
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	rt := chain.NewRuntime(state.NewMemoryStore(), nil, logger)
	gate := access.NewGate(rt, logger)
	_, err := rt.Execute(ctx, chain.Message{From: owner, To: gate.Address()}, func(tx *chain.Tx) error {
		if err := gate.Initialize(tx, owner, governor); err != nil {
			return err
		}
		if err := gate.GrantRole(tx, access.DepositorRole, depositor); err != nil {
			return err
		}
		return gate.GrantRole(tx, access.WithdrawRole, withdrawr)
	})
	require.NoError(t, err)

	reg := tokens.NewRegistry()
	usdc := tokens.NewERC20(rt, "USD Coin", "USDC", 6, owner)
	reg.Add(usdc)

	_, err = rt.Fund(ctx, depositor, big.NewInt(1_000))
	require.NoError(t, err)
	return &fixture{ctx: ctx, rt: rt, vault: NewVault(rt, gate, reg, logger), usdc: usdc}
}

func (f *fixture) balance(t *testing.T, addr common.Address) int64 {
	t.Helper()
	bal, err := f.rt.Balance(f.ctx, addr)
	require.NoError(t, err)
	return bal.Int64()
}

func TestNativeDepositAndWithdraw(t *testing.T) {
	f := setup(t)

	_, err := f.rt.Fund(f.ctx, alice, big.NewInt(50))
	require.NoError(t, err)
	_, err = f.rt.Execute(f.ctx, chain.Message{From: alice, To: f.vault.Address(), Value: big.NewInt(10)}, f.vault.DepositNative)
	require.ErrorIs(t, err, errs.ErrInvalidRole)
	require.Equal(t, int64(50), f.balance(t, alice))

	receipt, err := f.rt.Execute(f.ctx, chain.Message{From: depositor, To: f.vault.Address(), Value: big.NewInt(300)}, f.vault.DepositNative)
	require.NoError(t, err)
	require.Len(t, receipt.EventsNamed("ReceivedNativeToken"), 1)
	require.Equal(t, int64(300), f.balance(t, f.vault.Address()))

	_, err = f.rt.Execute(f.ctx, chain.Message{From: depositor, To: f.vault.Address()}, func(tx *chain.Tx) error {
		return f.vault.WithdrawNative(tx, big.NewInt(100), alice)
	})
	require.ErrorIs(t, err, errs.ErrInvalidRole)

	_, err = f.rt.Execute(f.ctx, chain.Message{From: withdrawr, To: f.vault.Address()}, func(tx *chain.Tx) error {
		return f.vault.WithdrawNative(tx, big.NewInt(301), alice)
	})
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)

	_, err = f.rt.Execute(f.ctx, chain.Message{From: withdrawr, To: f.vault.Address()}, func(tx *chain.Tx) error {
		return f.vault.WithdrawNative(tx, big.NewInt(120), alice)
	})
	require.NoError(t, err)
	require.Equal(t, int64(170), f.balance(t, alice))
	require.Equal(t, int64(180), f.balance(t, f.vault.Address()))
}

func TestERC20DepositAndWithdraw(t *testing.T) {
	f := setup(t)

	_, err := f.rt.Execute(f.ctx, chain.Message{From: owner, To: f.usdc.Address()}, func(tx *chain.Tx) error {
		return f.usdc.Mint(tx, f.vault.Address(), big.NewInt(500))
	})
	require.NoError(t, err)

	receipt, err := f.rt.Execute(f.ctx, chain.Message{From: depositor, To: f.vault.Address()}, func(tx *chain.Tx) error {
		return f.vault.DepositERC20(tx, f.usdc.Address(), big.NewInt(500), alice)
	})
	require.NoError(t, err)
	require.Len(t, receipt.EventsNamed("ReceivedERC20"), 1)

	_, err = f.rt.Execute(f.ctx, chain.Message{From: depositor, To: f.vault.Address()}, func(tx *chain.Tx) error {
		return f.vault.DepositERC20(tx, common.HexToAddress("0x99"), big.NewInt(1), alice)
	})
	require.ErrorIs(t, err, errs.ErrInvalidAddress)

	_, err = f.rt.Execute(f.ctx, chain.Message{From: withdrawr, To: f.vault.Address()}, func(tx *chain.Tx) error {
		return f.vault.WithdrawERC20(tx, f.usdc.Address(), big.NewInt(200), alice)
	})
	require.NoError(t, err)

	require.NoError(t, f.rt.View(f.ctx, alice, func(tx *chain.Tx) error {
		held, err := f.vault.BalanceERC20(tx, f.usdc.Address())
		require.NoError(t, err)
		require.Equal(t, int64(300), held.Int64())
		got, err := f.usdc.BalanceOf(tx, alice)
		require.NoError(t, err)
		require.Equal(t, int64(200), got.Int64())
		return nil
	}))
}
