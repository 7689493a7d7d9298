// Package tokens implements fungible token contracts that plans may be priced in.
package tokens

import (
	"fmt"
	"math/big"
	"sync"

	"go-agreements/internal/chain"
	"go-agreements/internal/errs"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20 is a fungible token deployed on the runtime.
type ERC20 struct {
	address  common.Address
	name     string
	symbol   string
	decimals uint8
	minter   common.Address
}

// NewERC20 deploys a token; minter may mint new supply.
func NewERC20(rt *chain.Runtime, name, symbol string, decimals uint8, minter common.Address) *ERC20 {
	return &ERC20{
		address:  rt.Deploy("ERC20:" + symbol),
		name:     name,
		symbol:   symbol,
		decimals: decimals,
		minter:   minter,
	}
}

func (t *ERC20) Address() common.Address { return t.address }
func (t *ERC20) Name() string            { return t.name }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }

// BalanceOf returns the token balance of owner
func (t *ERC20) BalanceOf(tx *chain.Tx, owner common.Address) (*big.Int, error) {
	return t.load(tx, t.balanceKey(owner))
}

// Allowance returns how much spender may move on behalf of owner
func (t *ERC20) Allowance(tx *chain.Tx, owner, spender common.Address) (*big.Int, error) {
	return t.load(tx, t.allowanceKey(owner, spender))
}

// TotalSupply returns the minted supply
func (t *ERC20) TotalSupply(tx *chain.Tx) (*big.Int, error) {
	return t.load(tx, t.supplyKey())
}

// Transfer moves amount from the caller to `to`.
func (t *ERC20) Transfer(tx *chain.Tx, to common.Address, amount *big.Int) error {
	return t.move(tx, tx.Sender(), to, amount)
}

// Approve sets the caller's allowance for spender.
func (t *ERC20) Approve(tx *chain.Tx, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errs.ErrInvalidTransactionAmount.With("negative allowance")
	}
	if err := tx.Save(t.allowanceKey(tx.Sender(), spender), amount); err != nil {
		return err
	}
	tx.Emit("Approval", chain.Fields{"owner": tx.Sender(), "spender": spender, "value": amount})
	return nil
}

// TransferFrom moves amount from `from` to `to`, spending the caller's allowance.
func (t *ERC20) TransferFrom(tx *chain.Tx, from, to common.Address, amount *big.Int) error {
	spender := tx.Sender()
	allowed, err := t.Allowance(tx, from, spender)
	if err != nil {
		return err
	}
	if amount == nil || allowed.Cmp(amount) < 0 {
		return errs.ErrInsufficientAllowance.With("%s allows %s %s, needs %v", from.Hex(), spender.Hex(), allowed, amount)
	}
	if err := tx.Save(t.allowanceKey(from, spender), allowed.Sub(allowed, amount)); err != nil {
		return err
	}
	return t.move(tx, from, to, amount)
}

// Mint creates new supply. Minter only.
func (t *ERC20) Mint(tx *chain.Tx, to common.Address, amount *big.Int) error {
	if tx.Sender() != t.minter {
		return errs.ErrInvalidRole.With("%s is not the %s minter", tx.Sender().Hex(), t.symbol)
	}
	if amount == nil || amount.Sign() <= 0 {
		return errs.ErrInvalidTransactionAmount.With("mint amount must be positive")
	}
	supply, err := t.TotalSupply(tx)
	if err != nil {
		return err
	}
	bal, err := t.BalanceOf(tx, to)
	if err != nil {
		return err
	}
	if err := tx.Save(t.supplyKey(), supply.Add(supply, amount)); err != nil {
		return err
	}
	if err := tx.Save(t.balanceKey(to), bal.Add(bal, amount)); err != nil {
		return err
	}
	tx.Emit("Transfer", chain.Fields{"from": common.Address{}, "to": to, "value": amount})
	return nil
}

func (t *ERC20) move(tx *chain.Tx, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errs.ErrInvalidTransactionAmount.With("negative transfer")
	}
	if to == (common.Address{}) {
		return errs.ErrInvalidAddress.With("transfer to the zero address")
	}
	fromBal, err := t.BalanceOf(tx, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return errs.ErrInsufficientBalance.With("%s holds %s %s, needs %s", from.Hex(), fromBal, t.symbol, amount)
	}
	if from != to {
		toBal, err := t.BalanceOf(tx, to)
		if err != nil {
			return err
		}
		if err := tx.Save(t.balanceKey(from), fromBal.Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := tx.Save(t.balanceKey(to), toBal.Add(toBal, amount)); err != nil {
			return err
		}
	}
	tx.Emit("Transfer", chain.Fields{"from": from, "to": to, "value": amount})
	return nil
}

func (t *ERC20) load(tx *chain.Tx, key string) (*big.Int, error) {
	n := new(big.Int)
	if _, err := tx.Load(key, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *ERC20) balanceKey(owner common.Address) string {
	return fmt.Sprintf("erc20/%s/balance/%s", t.address.Hex(), owner.Hex())
}

func (t *ERC20) allowanceKey(owner, spender common.Address) string {
	return fmt.Sprintf("erc20/%s/allowance/%s/%s", t.address.Hex(), owner.Hex(), spender.Hex())
}

func (t *ERC20) supplyKey() string {
	return fmt.Sprintf("erc20/%s/supply", t.address.Hex())
}

// Registry resolves token contracts by address.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]*ERC20
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]*ERC20)}
}

// Add registers a token
func (r *Registry) Add(t *ERC20) {
	r.mu.Lock()
	r.tokens[t.Address()] = t
	r.mu.Unlock()
}

// Lookup returns the token deployed at addr
func (r *Registry) Lookup(addr common.Address) (*ERC20, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

// All returns every registered token
func (r *Registry) All() []*ERC20 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ERC20, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	return out
}
