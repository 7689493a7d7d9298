package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"go-agreements/internal/errs"
	"go-agreements/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

const maxCallDepth = 256

var errReadOnly = errors.New("write attempted in read-only call")

type frame struct {
	self   common.Address
	sender common.Address
	value  *big.Int
}

type entry struct {
	value   []byte
	deleted bool
}

// journalEntry restores a key's overlay slot; prev == nil means the key had
// no pending write before.
type journalEntry struct {
	key  string
	prev *entry
}

type snapshot struct {
	journal int
	events  int
}

// Tx is the handle a contract uses during one transaction.
type Tx struct {
	ctx      context.Context
	rt       *Runtime
	readOnly bool
	origin   common.Address
	now      uint64
	seq      uint64

	overlay map[string]*entry
	journal []journalEntry
	events  []Event
	frames  []frame
}

// Context returns the context the transaction was submitted with.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Sender is the authenticated caller of the current frame.
func (tx *Tx) Sender() common.Address { return tx.current().sender }

// Self is the address of the contract executing the current frame.
func (tx *Tx) Self() common.Address { return tx.current().self }

// Origin is the externally owned account that submitted the transaction.
func (tx *Tx) Origin() common.Address { return tx.origin }

// Value is the native value attached to the current frame.
func (tx *Tx) Value() *big.Int { return new(big.Int).Set(tx.current().value) }

// Now is the block timestamp in unix seconds.
func (tx *Tx) Now() uint64 { return tx.now }

// Sequence is the ordinal of this transaction.
func (tx *Tx) Sequence() uint64 { return tx.seq }

func (tx *Tx) current() frame {
	if len(tx.frames) == 0 {
		return frame{value: new(big.Int)}
	}
	return tx.frames[len(tx.frames)-1]
}

// Get reads a raw value, seeing this transaction's pending writes first.
func (tx *Tx) Get(key string) ([]byte, bool, error) {
	if e, ok := tx.overlay[key]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	return tx.rt.store.Get(tx.ctx, key)
}

// Set buffers a raw write.
func (tx *Tx) Set(key string, value []byte) error {
	return tx.put(key, &entry{value: value})
}

// Delete buffers a removal.
func (tx *Tx) Delete(key string) error {
	return tx.put(key, &entry{deleted: true})
}

func (tx *Tx) put(key string, e *entry) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.journal = append(tx.journal, journalEntry{key: key, prev: tx.overlay[key]})
	tx.overlay[key] = e
	return nil
}

// Load decodes the RLP record at key into out. It reports false when absent.
func (tx *Tx) Load(key string, out interface{}) (bool, error) {
	raw, ok, err := tx.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Save RLP-encodes v under key.
func (tx *Tx) Save(key string, v interface{}) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(key, raw)
}

// Emit appends an event attributed to the current contract.
func (tx *Tx) Emit(name string, fields Fields) {
	self := tx.Self()
	tx.events = append(tx.events, Event{
		Index:        len(tx.events),
		Contract:     self,
		ContractName: tx.rt.NameOf(self),
		Name:         name,
		Fields:       normalizeFields(fields),
	})
}

// Call runs fn as a call from the current contract to target with value
// attached. A failing call rolls back its own writes and events before the
// error is returned to the caller.
func (tx *Tx) Call(target common.Address, value *big.Int, fn func() error) error {
	if len(tx.frames) >= maxCallDepth {
		return fmt.Errorf("call depth %d exceeded", maxCallDepth)
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return errs.ErrInvalidTransactionAmount.With("negative value")
	}
	snap := tx.snapshot()
	caller := tx.Self()
	if err := tx.moveValue(caller, target, value); err != nil {
		tx.revert(snap)
		return err
	}
	tx.frames = append(tx.frames, frame{self: target, sender: caller, value: new(big.Int).Set(value)})
	var err error
	if fn != nil {
		err = fn()
	}
	tx.frames = tx.frames[:len(tx.frames)-1]
	if err != nil {
		tx.revert(snap)
	}
	return err
}

// Transfer sends native value from the current contract to addr, running the
// receiver's hook if one is registered.
func (tx *Tx) Transfer(to common.Address, amount *big.Int) error {
	hook := tx.rt.hook(to)
	var fn func() error
	if hook != nil {
		fn = func() error { return hook(tx) }
	}
	return tx.Call(to, amount, fn)
}

// Balance returns the native balance of addr.
func (tx *Tx) Balance(addr common.Address) (*big.Int, error) {
	bal := new(big.Int)
	if _, err := tx.Load(balanceKey(addr), bal); err != nil {
		return nil, err
	}
	return bal, nil
}

func (tx *Tx) setBalance(addr common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return tx.Delete(balanceKey(addr))
	}
	return tx.Save(balanceKey(addr), amount)
}

func (tx *Tx) moveValue(from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := tx.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return errs.ErrInsufficientBalance.With("%s has %s, needs %s", from.Hex(), fromBal, amount)
	}
	toBal, err := tx.Balance(to)
	if err != nil {
		return err
	}
	if err := tx.setBalance(from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return tx.setBalance(to, toBal.Add(toBal, amount))
}

func (tx *Tx) snapshot() snapshot {
	return snapshot{journal: len(tx.journal), events: len(tx.events)}
}

func (tx *Tx) revert(s snapshot) {
	for i := len(tx.journal) - 1; i >= s.journal; i-- {
		j := tx.journal[i]
		if j.prev == nil {
			delete(tx.overlay, j.key)
		} else {
			tx.overlay[j.key] = j.prev
		}
	}
	tx.journal = tx.journal[:s.journal]
	tx.events = tx.events[:s.events]
}

func (tx *Tx) writes() []state.Write {
	keys := make([]string, 0, len(tx.overlay))
	for k := range tx.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]state.Write, 0, len(keys))
	for _, k := range keys {
		e := tx.overlay[k]
		out = append(out, state.Write{Key: k, Value: e.value, Delete: e.deleted})
	}
	return out
}

func balanceKey(addr common.Address) string {
	return "native/balance/" + addr.Hex()
}
