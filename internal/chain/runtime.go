// Package chain is the execution environment the protocol contracts run in:
// serialized transactions over a key-value state with authenticated callers,
// nested calls with per-call rollback, native value transfers and event logs.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go-agreements/internal/errs"
	"go-agreements/internal/metrics"
	"go-agreements/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"
)

const sequenceKey = "runtime/sequence"

// Message is an externally submitted transaction.
type Message struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// ReceiveHook runs when native value arrives at an address. Inside the hook
// Sender is the payer and Self is the receiving address.
type ReceiveHook func(tx *Tx) error

// Runtime executes transactions one at a time against a Store.
type Runtime struct {
	mu     sync.Mutex
	store  state.Store
	clock  Clock
	logger *logrus.Logger

	regMu sync.RWMutex
	sinks []EventSink
	hooks map[common.Address]ReceiveHook
	names map[common.Address]string
}

// NewRuntime creates a Runtime
func NewRuntime(store state.Store, clock Clock, logger *logrus.Logger) *Runtime {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runtime{
		store:  store,
		clock:  clock,
		logger: logger,
		hooks:  make(map[common.Address]ReceiveHook),
		names:  make(map[common.Address]string),
	}
}

// ContractAddress derives the deterministic address of a named contract.
func ContractAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("go-agreements/contract/" + name))[12:])
}

// Deploy labels the named contract's address so its events carry the name.
func (r *Runtime) Deploy(name string) common.Address {
	addr := ContractAddress(name)
	r.regMu.Lock()
	r.names[addr] = name
	r.regMu.Unlock()
	return addr
}

// NameOf returns the deployed contract name for addr, if any.
func (r *Runtime) NameOf(addr common.Address) string {
	r.regMu.RLock()
	defer r.regMu.RUnlock()
	return r.names[addr]
}

// AddSink registers an EventSink for committed receipts.
func (r *Runtime) AddSink(sink EventSink) {
	r.regMu.Lock()
	r.sinks = append(r.sinks, sink)
	r.regMu.Unlock()
}

// RegisterReceiver installs a hook invoked on native transfers to addr.
func (r *Runtime) RegisterReceiver(addr common.Address, hook ReceiveHook) {
	r.regMu.Lock()
	if hook == nil {
		delete(r.hooks, addr)
	} else {
		r.hooks[addr] = hook
	}
	r.regMu.Unlock()
}

func (r *Runtime) hook(addr common.Address) ReceiveHook {
	r.regMu.RLock()
	defer r.regMu.RUnlock()
	return r.hooks[addr]
}

// Clock returns the runtime clock.
func (r *Runtime) Clock() Clock { return r.clock }

// Execute runs fn as one atomic transaction. Msg.Value moves from From to To
// before fn runs. On any error nothing is committed.
func (r *Runtime) Execute(ctx context.Context, msg Message, fn func(tx *Tx) error) (*Receipt, error) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, errs.ErrInvalidTransactionAmount.With("negative value")
	}

	tx := r.newTx(ctx, msg.From, false)
	receipt, err := r.run(tx, msg, value, fn)
	if err != nil {
		metrics.TransactionsReverted.WithLabelValues(errs.NameOf(err)).Inc()
		r.logger.WithFields(logrus.Fields{
			"from":  msg.From.Hex(),
			"to":    msg.To.Hex(),
			"value": value.String(),
			"error": err.Error(),
		}).Info("↩️ Transaction reverted")
		return nil, err
	}

	metrics.TransactionsCommitted.Inc()
	metrics.TransactionDuration.Observe(time.Since(start).Seconds())
	r.logger.WithFields(logrus.Fields{
		"tx_hash":  receipt.TxHash.Hex(),
		"sequence": receipt.Sequence,
		"from":     msg.From.Hex(),
		"to":       msg.To.Hex(),
		"events":   len(receipt.Events),
	}).Debug("Transaction committed")

	r.regMu.RLock()
	sinks := append([]EventSink(nil), r.sinks...)
	r.regMu.RUnlock()
	for _, sink := range sinks {
		if err := sink.HandleReceipt(ctx, receipt); err != nil {
			r.logger.WithFields(logrus.Fields{
				"tx_hash": receipt.TxHash.Hex(),
				"error":   err.Error(),
			}).Warn("⚠️ Event sink failed")
		}
	}
	return receipt, nil
}

func (r *Runtime) run(tx *Tx, msg Message, value *big.Int, fn func(tx *Tx) error) (*Receipt, error) {
	var seq uint64
	if _, err := tx.Load(sequenceKey, &seq); err != nil {
		return nil, err
	}
	tx.seq = seq

	if err := tx.moveValue(msg.From, msg.To, value); err != nil {
		return nil, err
	}
	tx.frames = append(tx.frames, frame{self: msg.To, sender: msg.From, value: new(big.Int).Set(value)})
	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := tx.Save(sequenceKey, seq+1); err != nil {
		return nil, err
	}

	if err := r.store.Apply(tx.ctx, tx.writes()); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	hash, err := txHash(msg.From, msg.To, value, seq)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		TxHash:    hash,
		Sequence:  seq,
		From:      msg.From,
		To:        msg.To,
		Value:     new(big.Int).Set(value),
		Timestamp: tx.now,
		Events:    tx.events,
	}, nil
}

// View runs fn against current state and discards all writes.
func (r *Runtime) View(ctx context.Context, from common.Address, fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.newTx(ctx, from, true)
	tx.frames = append(tx.frames, frame{self: from, sender: from, value: new(big.Int)})
	return fn(tx)
}

// Balance returns the native balance of addr.
func (r *Runtime) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var bal *big.Int
	err := r.View(ctx, addr, func(tx *Tx) error {
		var err error
		bal, err = tx.Balance(addr)
		return err
	})
	return bal, err
}

// Fund credits addr with freshly issued native value. Used for genesis
// allocations and development faucets.
func (r *Runtime) Fund(ctx context.Context, addr common.Address, amount *big.Int) (*Receipt, error) {
	return r.Execute(ctx, Message{To: addr}, func(tx *Tx) error {
		if amount == nil || amount.Sign() <= 0 {
			return errs.ErrInvalidTransactionAmount.With("fund amount must be positive")
		}
		bal, err := tx.Balance(addr)
		if err != nil {
			return err
		}
		if err := tx.setBalance(addr, bal.Add(bal, amount)); err != nil {
			return err
		}
		tx.Emit("NativeFunded", Fields{"receiver": addr, "amount": amount})
		return nil
	})
}

func (r *Runtime) newTx(ctx context.Context, origin common.Address, readOnly bool) *Tx {
	return &Tx{
		ctx:      ctx,
		rt:       r,
		readOnly: readOnly,
		origin:   origin,
		now:      uint64(r.clock.Now().Unix()),
		overlay:  make(map[string]*entry),
	}
}

func txHash(from, to common.Address, value *big.Int, seq uint64) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes([]interface{}{from, to, value, seq})
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode tx hash: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}
