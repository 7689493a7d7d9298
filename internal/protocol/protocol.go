// Package protocol deploys and wires the full contract set on a runtime and
// performs the one-time role bootstrap.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go-agreements/internal/access"
	"go-agreements/internal/agreements"
	"go-agreements/internal/chain"
	"go-agreements/internal/conditions"
	"go-agreements/internal/credits"
	"go-agreements/internal/errs"
	"go-agreements/internal/identifiers"
	"go-agreements/internal/registry"
	"go-agreements/internal/templates"
	"go-agreements/internal/tokens"
	"go-agreements/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Settings for Bootstrap
type Settings struct {
	Owner       common.Address
	Governor    common.Address
	FeeRate     *big.Int
	FeeReceiver common.Address
	// Grants are extra named roles handed out together with gate initialization
	Grants []Grant
}

// Grant is one named role for one account
type Grant struct {
	Role    access.Role
	Account common.Address
}

func (s Settings) validate() error {
	if s.Owner == (common.Address{}) || s.Governor == (common.Address{}) {
		return errs.ErrInvalidAddress.With("owner and governor are required")
	}
	if s.FeeRate == nil || s.FeeRate.Sign() == 0 {
		return nil
	}
	if s.FeeRate.Sign() < 0 || s.FeeRate.Cmp(big.NewInt(access.FeeDenominator)) >= 0 {
		return errs.ErrInvalidNetworkFee.With("rate %v outside [0, %d)", s.FeeRate, access.FeeDenominator)
	}
	if s.FeeReceiver == (common.Address{}) {
		return errs.ErrInvalidFeeReceiver
	}
	return nil
}

// Contract is a deployed contract and its registry name
type Contract struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
}

// Protocol holds every deployed component.
type Protocol struct {
	Runtime *chain.Runtime
	ChainID *big.Int

	Gate       *access.Gate
	Registry   *registry.Registry
	Tokens     *tokens.Registry
	Vault      *vault.Vault
	Fixed      *credits.Ledger
	Expirable  *credits.Ledger
	Ledgers    credits.Set
	Agreements *agreements.Store

	Lock       *conditions.LockPayment
	Distribute *conditions.DistributePayments
	Transfer   *conditions.TransferCredits
	Fiat       *conditions.FiatSettlement

	FixedPayment *templates.FixedPayment
	FiatPayment  *templates.FiatPayment

	logger *logrus.Logger
}

// Deploy constructs every component on rt. No state is written.
func Deploy(rt *chain.Runtime, chainID *big.Int, logger *logrus.Logger) *Protocol {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Protocol{Runtime: rt, ChainID: chainID, logger: logger}

	p.Gate = access.NewGate(rt, logger)
	p.Registry = registry.NewRegistry(rt, p.Gate, logger)
	p.Tokens = tokens.NewRegistry()
	p.Vault = vault.NewVault(rt, p.Gate, p.Tokens, logger)
	p.Fixed = credits.NewFixedLedger(rt, p.Gate, p.Registry, chainID, logger)
	p.Expirable = credits.NewExpirableLedger(rt, p.Gate, p.Registry, chainID, logger)
	p.Ledgers = credits.Set{p.Fixed, p.Expirable}
	p.Agreements = agreements.NewStore(rt, p.Gate, logger)

	deps := conditions.Deps{Roles: p.Gate, Agreements: p.Agreements, Plans: p.Registry, Logger: logger}
	p.Lock = conditions.NewLockPayment(rt, deps, p.Vault, p.Tokens)
	p.Distribute = conditions.NewDistributePayments(rt, deps, p.Vault)
	p.Transfer = conditions.NewTransferCredits(rt, deps, p.Ledgers)
	p.Fiat = conditions.NewFiatSettlement(rt, deps)

	p.FixedPayment = templates.NewFixedPayment(rt, p.Registry, p.Agreements, p.Lock, p.Transfer, p.Distribute, logger)
	p.FiatPayment = templates.NewFiatPayment(rt, p.Gate, p.Registry, p.Agreements, p.Fiat, p.Transfer, logger)
	return p
}

// Contracts lists the deployed contracts, tokens excluded.
func (p *Protocol) Contracts() []Contract {
	return []Contract{
		{access.ContractName, p.Gate.Address()},
		{registry.ContractName, p.Registry.Address()},
		{vault.ContractName, p.Vault.Address()},
		{p.Fixed.Name(), p.Fixed.Address()},
		{p.Expirable.Name(), p.Expirable.Address()},
		{agreements.ContractName, p.Agreements.Address()},
		{p.Lock.Name(), p.Lock.Address()},
		{p.Distribute.Name(), p.Distribute.Address()},
		{p.Transfer.Name(), p.Transfer.Address()},
		{p.Fiat.Name(), p.Fiat.Address()},
		{templates.FixedPaymentName, p.FixedPayment.Address()},
		{templates.FiatPaymentName, p.FiatPayment.Address()},
	}
}

// DeployToken adds an ERC20 the plans may be priced in.
func (p *Protocol) DeployToken(name, symbol string, decimals uint8, minter common.Address) *tokens.ERC20 {
	t := tokens.NewERC20(p.Runtime, name, symbol, decimals, minter)
	p.Tokens.Add(t)
	return t
}

// Bootstrap initializes the gate and grants every component the roles it
// needs. It runs as two transactions: gate initialization by the owner, then
// governance configuration by the governor. A completed stage is skipped, so a
// retry after a failed governance step finishes the job.
func (p *Protocol) Bootstrap(ctx context.Context, s Settings) error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("bootstrap settings: %w", err)
	}

	initialized, configured, err := p.bootstrapStatus(ctx)
	if err != nil {
		return err
	}
	if configured {
		p.logger.Info("🔁 Protocol already bootstrapped, skipping")
		return nil
	}

	if initialized {
		p.logger.Warn("⚠️ Access gate initialized but governance not configured, resuming bootstrap")
	} else if err := p.initializeGate(ctx, s); err != nil {
		return err
	}

	gate := p.Gate.Address()
	if _, err := p.Runtime.Execute(ctx, chain.Message{From: s.Governor, To: gate}, func(tx *chain.Tx) error {
		for _, addr := range []common.Address{p.FixedPayment.Address(), p.FiatPayment.Address()} {
			if err := p.Gate.GrantTemplate(tx, addr); err != nil {
				return err
			}
		}
		for _, addr := range []common.Address{p.Lock.Address(), p.Distribute.Address(), p.Transfer.Address(), p.Fiat.Address()} {
			if err := p.Gate.GrantCondition(tx, addr); err != nil {
				return err
			}
		}
		for _, c := range p.Contracts() {
			if err := p.Gate.RegisterContract(tx, identifiers.ContractNameHash(c.Name), c.Address, 1); err != nil {
				return err
			}
		}
		if s.FeeRate != nil && s.FeeRate.Sign() > 0 {
			return p.Gate.SetNetworkFees(tx, s.FeeRate, s.FeeReceiver)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("configure governance: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"owner":     s.Owner.Hex(),
		"governor":  s.Governor.Hex(),
		"contracts": len(p.Contracts()),
	}).Info("✅ Protocol bootstrapped")
	return nil
}

// bootstrapStatus reports whether each bootstrap stage has committed. The
// governance stage registers the contracts last, so the final registry entry
// marks it complete.
func (p *Protocol) bootstrapStatus(ctx context.Context) (initialized, configured bool, err error) {
	contracts := p.Contracts()
	last := contracts[len(contracts)-1]
	err = p.Runtime.View(ctx, common.Address{}, func(tx *chain.Tx) error {
		var err error
		if initialized, err = p.Gate.Initialized(tx); err != nil || !initialized {
			return err
		}
		entry, err := p.Gate.ResolveContract(tx, identifiers.ContractNameHash(last.Name))
		if errors.Is(err, errs.ErrContractNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		configured = entry.Address == last.Address
		return nil
	})
	return initialized, configured, err
}

func (p *Protocol) initializeGate(ctx context.Context, s Settings) error {
	grants := []Grant{
		{access.DepositorRole, p.Lock.Address()},
		{access.WithdrawRole, p.Distribute.Address()},
		{access.CreditsMinterRole, p.Transfer.Address()},
	}
	grants = append(grants, s.Grants...)

	if _, err := p.Runtime.Execute(ctx, chain.Message{From: s.Owner, To: p.Gate.Address()}, func(tx *chain.Tx) error {
		if err := p.Gate.Initialize(tx, s.Owner, s.Governor); err != nil {
			return err
		}
		for _, g := range grants {
			if err := p.Gate.GrantRole(tx, g.Role, g.Account); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("initialize access gate: %w", err)
	}
	return nil
}
