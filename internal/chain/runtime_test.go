package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"go-agreements/internal/errs"
	"go-agreements/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newRuntime(t *testing.T) (*Runtime, *state.MemoryStore, *ManualClock) {
	t.Helper()
	store := state.NewMemoryStore()
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewRuntime(store, clock, logger), store, clock
}

func TestExecuteMovesValueAndCommits(t *testing.T) {
	ctx := context.Background()
	rt, _, _ := newRuntime(t)
	contract := rt.Deploy("Counter")

	_, err := rt.Fund(ctx, alice, big.NewInt(1000))
	require.NoError(t, err)

	receipt, err := rt.Execute(ctx, Message{From: alice, To: contract, Value: big.NewInt(300)}, func(tx *Tx) error {
		require.Equal(t, alice, tx.Sender())
		require.Equal(t, contract, tx.Self())
		require.Equal(t, int64(300), tx.Value().Int64())
		tx.Emit("Touched", Fields{"by": tx.Sender(), "amount": tx.Value()})
		return tx.Save("counter/value", uint64(7))
	})
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, "Counter", receipt.Events[0].ContractName)
	require.Equal(t, alice.Hex(), receipt.Events[0].Fields["by"])
	require.Equal(t, "300", receipt.Events[0].Fields["amount"])

	bal, err := rt.Balance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, int64(700), bal.Int64())
	bal, err = rt.Balance(ctx, contract)
	require.NoError(t, err)
	require.Equal(t, int64(300), bal.Int64())
}

func TestExecuteRevertDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	rt, store, _ := newRuntime(t)
	contract := rt.Deploy("Counter")
	_, err := rt.Fund(ctx, alice, big.NewInt(1000))
	require.NoError(t, err)
	before := store.Len()

	boom := errors.New("boom")
	_, err = rt.Execute(ctx, Message{From: alice, To: contract, Value: big.NewInt(500)}, func(tx *Tx) error {
		require.NoError(t, tx.Save("counter/value", uint64(1)))
		tx.Emit("Touched", nil)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, before, store.Len())

	bal, err := rt.Balance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal.Int64())
}

func TestExecuteInsufficientValue(t *testing.T) {
	rt, _, _ := newRuntime(t)
	_, err := rt.Execute(context.Background(), Message{From: bob, To: alice, Value: big.NewInt(1)}, func(tx *Tx) error {
		return nil
	})
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)
}

func TestNestedCallRollsBackOnlyCallee(t *testing.T) {
	ctx := context.Background()
	rt, _, _ := newRuntime(t)
	outer := rt.Deploy("Outer")
	inner := rt.Deploy("Inner")
	_, err := rt.Fund(ctx, alice, big.NewInt(100))
	require.NoError(t, err)

	var innerErr error
	receipt, err := rt.Execute(ctx, Message{From: alice, To: outer, Value: big.NewInt(100)}, func(tx *Tx) error {
		require.NoError(t, tx.Save("outer/x", uint64(1)))
		innerErr = tx.Call(inner, big.NewInt(40), func() error {
			require.Equal(t, outer, tx.Sender())
			require.Equal(t, inner, tx.Self())
			require.NoError(t, tx.Save("inner/y", uint64(2)))
			tx.Emit("InnerTouched", nil)
			return errs.ErrInvalidRole
		})
		require.Equal(t, alice, tx.Sender())
		tx.Emit("OuterTouched", nil)
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, errs.ErrInvalidRole)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, "OuterTouched", receipt.Events[0].Name)

	require.NoError(t, rt.View(ctx, alice, func(tx *Tx) error {
		var x, y uint64
		ok, err := tx.Load("outer/x", &x)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = tx.Load("inner/y", &y)
		require.NoError(t, err)
		require.False(t, ok)
		innerBal, err := tx.Balance(inner)
		require.NoError(t, err)
		require.Zero(t, innerBal.Sign())
		outerBal, err := tx.Balance(outer)
		require.NoError(t, err)
		require.Equal(t, int64(100), outerBal.Int64())
		return nil
	}))
}

func TestTransferRunsReceiveHook(t *testing.T) {
	ctx := context.Background()
	rt, _, _ := newRuntime(t)
	payer := rt.Deploy("Payer")
	_, err := rt.Fund(ctx, payer, big.NewInt(50))
	require.NoError(t, err)

	var seenSender common.Address
	var seenValue int64
	rt.RegisterReceiver(bob, func(tx *Tx) error {
		seenSender = tx.Sender()
		seenValue = tx.Value().Int64()
		return nil
	})

	_, err = rt.Execute(ctx, Message{From: alice, To: payer}, func(tx *Tx) error {
		return tx.Transfer(bob, big.NewInt(20))
	})
	require.NoError(t, err)
	require.Equal(t, payer, seenSender)
	require.Equal(t, int64(20), seenValue)

	rt.RegisterReceiver(bob, func(tx *Tx) error { return errors.New("rejecting payments") })
	_, err = rt.Execute(ctx, Message{From: alice, To: payer}, func(tx *Tx) error {
		return tx.Transfer(bob, big.NewInt(20))
	})
	require.Error(t, err)

	bal, err := rt.Balance(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, int64(20), bal.Int64())
}

func TestViewIsReadOnly(t *testing.T) {
	rt, _, _ := newRuntime(t)
	err := rt.View(context.Background(), alice, func(tx *Tx) error {
		return tx.Save("anything", uint64(1))
	})
	require.Error(t, err)
}

func TestSinksReceiveCommittedReceipts(t *testing.T) {
	ctx := context.Background()
	rt, _, clock := newRuntime(t)
	contract := rt.Deploy("Emitter")

	var got []*Receipt
	rt.AddSink(SinkFunc(func(_ context.Context, r *Receipt) error {
		got = append(got, r)
		return errors.New("sink failures are logged, not fatal")
	}))

	clock.Advance(10 * time.Second)
	r1, err := rt.Execute(ctx, Message{From: alice, To: contract}, func(tx *Tx) error {
		tx.Emit("Ping", nil)
		return nil
	})
	require.NoError(t, err)
	_, err = rt.Execute(ctx, Message{From: alice, To: contract}, func(tx *Tx) error {
		return errors.New("reverted")
	})
	require.Error(t, err)
	r2, err := rt.Execute(ctx, Message{From: alice, To: contract}, func(tx *Tx) error { return nil })
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.Equal(t, uint64(clock.Now().Unix()), r1.Timestamp)
	require.Equal(t, r1.Sequence+1, r2.Sequence)
	require.NotEqual(t, r1.TxHash, r2.TxHash)
	require.Len(t, r1.EventsNamed("Ping"), 1)
}
