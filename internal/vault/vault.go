// Package vault is the role-gated custody of escrowed payments. Conditions
// never hold funds; they deposit into and withdraw from the vault.
package vault

import (
	"math/big"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/tokens"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const ContractName = "PaymentsVault"

// TokenLookup resolves ERC20 contracts by address.
type TokenLookup interface {
	Lookup(addr common.Address) (*tokens.ERC20, bool)
}

type Vault struct {
	address common.Address
	roles   access.RoleChecker
	tokens  TokenLookup
	logger  *logrus.Logger
}

func NewVault(rt *chain.Runtime, roles access.RoleChecker, tokens TokenLookup, logger *logrus.Logger) *Vault {
	return &Vault{address: rt.Deploy(ContractName), roles: roles, tokens: tokens, logger: logger}
}

func (v *Vault) Address() common.Address { return v.address }

// DepositNative accepts the value attached to the current call.
func (v *Vault) DepositNative(tx *chain.Tx) error {
	if err := v.require(tx, access.DepositorRole); err != nil {
		return err
	}
	tx.Emit("ReceivedNativeToken", chain.Fields{"from": tx.Sender(), "value": tx.Value()})
	return nil
}

// DepositERC20 records tokens that were already moved into the vault by `from`.
func (v *Vault) DepositERC20(tx *chain.Tx, token common.Address, amount *big.Int, from common.Address) error {
	if err := v.require(tx, access.DepositorRole); err != nil {
		return err
	}
	if _, err := v.token(token); err != nil {
		return err
	}
	tx.Emit("ReceivedERC20", chain.Fields{"erc20TokenAddress": token, "from": from, "amount": amount})
	return nil
}

// WithdrawNative sends amount of the vault's native balance to receiver.
func (v *Vault) WithdrawNative(tx *chain.Tx, amount *big.Int, receiver common.Address) error {
	if err := v.require(tx, access.WithdrawRole); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errs.ErrInvalidTransactionAmount.With("withdraw amount %v", amount)
	}
	tx.Emit("WithdrawNativeToken", chain.Fields{"from": tx.Sender(), "receiver": receiver, "amount": amount})
	if err := tx.Transfer(receiver, amount); err != nil {
		return err
	}
	v.logger.WithFields(logrus.Fields{
		"receiver": receiver.Hex(),
		"amount":   amount.String(),
	}).Debug("Native withdrawal")
	return nil
}

// WithdrawERC20 sends amount of token held by the vault to receiver.
func (v *Vault) WithdrawERC20(tx *chain.Tx, token common.Address, amount *big.Int, receiver common.Address) error {
	if err := v.require(tx, access.WithdrawRole); err != nil {
		return err
	}
	erc20, err := v.token(token)
	if err != nil {
		return err
	}
	tx.Emit("WithdrawERC20", chain.Fields{"erc20TokenAddress": token, "from": tx.Sender(), "receiver": receiver, "amount": amount})
	return tx.Call(erc20.Address(), nil, func() error {
		return erc20.Transfer(tx, receiver, amount)
	})
}

// BalanceNative returns the vault's native holdings
func (v *Vault) BalanceNative(tx *chain.Tx) (*big.Int, error) {
	return tx.Balance(v.address)
}

// BalanceERC20 returns the vault's holdings of token
func (v *Vault) BalanceERC20(tx *chain.Tx, token common.Address) (*big.Int, error) {
	erc20, err := v.token(token)
	if err != nil {
		return nil, err
	}
	return erc20.BalanceOf(tx, v.address)
}

func (v *Vault) require(tx *chain.Tx, role access.Role) error {
	ok, err := v.roles.HasRole(tx, tx.Sender(), role)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrInvalidRole.With("%s lacks %s", tx.Sender().Hex(), access.RoleName(role))
	}
	return nil
}

func (v *Vault) token(addr common.Address) (*tokens.ERC20, error) {
	if v.tokens == nil {
		return nil, errs.ErrInvalidAddress.With("unknown token %s", addr.Hex())
	}
	t, ok := v.tokens.Lookup(addr)
	if !ok {
		return nil, errs.ErrInvalidAddress.With("unknown token %s", addr.Hex())
	}
	return t, nil
}
