// Package access is the Access Gate: the capability table every mutating
// entry point consults, plus the network fee configuration and the registry
// of protocol contract addresses.
package access

import (
	"fmt"
	"math/big"
	"strconv"

	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ContractName is the name the gate is deployed under.
const ContractName = "AccessGate"

// FeeDenominator is the fixed denominator of the network fee rate.
const FeeDenominator = 1_000_000

const (
	keyInitialized  = "access/initialized"
	keyFees         = "access/fees"
	keyChangeCount  = "access/changes/count"
	keyChangePrefix = "access/changes/"
)

// RoleChecker answers capability queries.
type RoleChecker interface {
	HasRole(tx *chain.Tx, account common.Address, role Role) (bool, error)
}

// FeeSource returns the network fee configuration.
type FeeSource interface {
	NetworkFees(tx *chain.Tx) (models.FeeConfig, error)
}

// Authority is the view of the gate that other components depend on.
type Authority interface {
	RoleChecker
	FeeSource
}

// Gate implements Authority
type Gate struct {
	address common.Address
	logger  *logrus.Logger
}

var _ Authority = (*Gate)(nil)

// NewGate deploys the gate on rt
func NewGate(rt *chain.Runtime, logger *logrus.Logger) *Gate {
	return &Gate{address: rt.Deploy(ContractName), logger: logger}
}

// Address of the gate contract
func (g *Gate) Address() common.Address { return g.address }

// Initialize sets the first owner and governor. It can run once.
func (g *Gate) Initialize(tx *chain.Tx, owner, governor common.Address) error {
	done, err := g.Initialized(tx)
	if err != nil {
		return err
	}
	if done {
		return errs.ErrAlreadyInitialized
	}
	if owner == (common.Address{}) || governor == (common.Address{}) {
		return errs.ErrInvalidAddress.With("owner and governor must be set")
	}
	if err := tx.Save(keyInitialized, true); err != nil {
		return err
	}
	if err := g.setRole(tx, OwnerRole, owner, true); err != nil {
		return err
	}
	if err := g.setRole(tx, GovernorRole, governor, true); err != nil {
		return err
	}
	if err := tx.Save(keyFees, models.FeeConfig{Rate: new(big.Int), Denominator: big.NewInt(FeeDenominator)}); err != nil {
		return err
	}
	g.logger.WithFields(logrus.Fields{
		"owner":    owner.Hex(),
		"governor": governor.Hex(),
	}).Info("🔐 Access gate initialized")
	return nil
}

// Initialized reports whether Initialize has run
func (g *Gate) Initialized(tx *chain.Tx) (bool, error) {
	var done bool
	if _, err := tx.Load(keyInitialized, &done); err != nil {
		return false, err
	}
	return done, nil
}

// HasRole reports whether account holds role
func (g *Gate) HasRole(tx *chain.Tx, account common.Address, role Role) (bool, error) {
	var has bool
	if _, err := tx.Load(roleKey(role, account), &has); err != nil {
		return false, err
	}
	return has, nil
}

func (g *Gate) IsOwner(tx *chain.Tx, account common.Address) (bool, error) {
	return g.HasRole(tx, account, OwnerRole)
}

func (g *Gate) IsGovernor(tx *chain.Tx, account common.Address) (bool, error) {
	return g.HasRole(tx, account, GovernorRole)
}

func (g *Gate) IsTemplate(tx *chain.Tx, account common.Address) (bool, error) {
	return g.HasRole(tx, account, TemplateRole)
}

func (g *Gate) IsCondition(tx *chain.Tx, account common.Address) (bool, error) {
	return g.HasRole(tx, account, ConditionRole)
}

// Members lists the accounts currently holding role, in grant order.
func (g *Gate) Members(tx *chain.Tx, role Role) ([]common.Address, error) {
	var members []common.Address
	if _, err := tx.Load(membersKey(role), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// GrantGovernor Owner only
func (g *Gate) GrantGovernor(tx *chain.Tx, account common.Address) error {
	if err := g.require(tx, OwnerRole, errs.ErrOnlyOwner); err != nil {
		return err
	}
	return g.changeRole(tx, GovernorRole, account, true)
}

// RevokeGovernor Owner only
func (g *Gate) RevokeGovernor(tx *chain.Tx, account common.Address) error {
	if err := g.require(tx, OwnerRole, errs.ErrOnlyOwner); err != nil {
		return err
	}
	return g.changeRole(tx, GovernorRole, account, false)
}

// GrantTemplate Governor only
func (g *Gate) GrantTemplate(tx *chain.Tx, account common.Address) error {
	if err := g.require(tx, GovernorRole, errs.ErrOnlyGovernor); err != nil {
		return err
	}
	return g.changeRole(tx, TemplateRole, account, true)
}

// RevokeTemplate Governor only
func (g *Gate) RevokeTemplate(tx *chain.Tx, account common.Address) error {
	if err := g.require(tx, GovernorRole, errs.ErrOnlyGovernor); err != nil {
		return err
	}
	return g.changeRole(tx, TemplateRole, account, false)
}

// GrantCondition Governor only
func (g *Gate) GrantCondition(tx *chain.Tx, account common.Address) error {
	if err := g.require(tx, GovernorRole, errs.ErrOnlyGovernor); err != nil {
		return err
	}
	return g.changeRole(tx, ConditionRole, account, true)
}

// RevokeCondition Governor only
func (g *Gate) RevokeCondition(tx *chain.Tx, account common.Address) error {
	if err := g.require(tx, GovernorRole, errs.ErrOnlyGovernor); err != nil {
		return err
	}
	return g.changeRole(tx, ConditionRole, account, false)
}

// GrantRole grants a named role (minter, burner, depositor, ...). Owner only.
// Owner, Governor, Template and Condition have dedicated entry points.
func (g *Gate) GrantRole(tx *chain.Tx, role Role, account common.Address) error {
	if err := g.requireNamedRole(tx, role); err != nil {
		return err
	}
	return g.changeRole(tx, role, account, true)
}

// RevokeRole revokes a named role. Owner only.
func (g *Gate) RevokeRole(tx *chain.Tx, role Role, account common.Address) error {
	if err := g.requireNamedRole(tx, role); err != nil {
		return err
	}
	return g.changeRole(tx, role, account, false)
}

// TransferOwnership hands the Owner role to newOwner. Owner only.
func (g *Gate) TransferOwnership(tx *chain.Tx, newOwner common.Address) error {
	if err := g.require(tx, OwnerRole, errs.ErrOnlyOwner); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return errs.ErrInvalidAddress.With("new owner is the zero address")
	}
	if err := g.changeRole(tx, OwnerRole, tx.Sender(), false); err != nil {
		return err
	}
	return g.changeRole(tx, OwnerRole, newOwner, true)
}

// NetworkFees returns (rate, receiver, denominator).
func (g *Gate) NetworkFees(tx *chain.Tx) (models.FeeConfig, error) {
	fees := models.FeeConfig{}
	if _, err := tx.Load(keyFees, &fees); err != nil {
		return models.FeeConfig{}, err
	}
	if fees.Rate == nil {
		fees.Rate = new(big.Int)
	}
	fees.Denominator = big.NewInt(FeeDenominator)
	return fees, nil
}

// SetNetworkFees Governor only. The rate must be below the denominator and
// the receiver must be set.
func (g *Gate) SetNetworkFees(tx *chain.Tx, rate *big.Int, receiver common.Address) error {
	if err := g.require(tx, GovernorRole, errs.ErrOnlyGovernor); err != nil {
		return err
	}
	if rate == nil || rate.Sign() < 0 || rate.Cmp(big.NewInt(FeeDenominator)) >= 0 {
		return errs.ErrInvalidNetworkFee.With("rate %v outside [0, %d)", rate, FeeDenominator)
	}
	if receiver == (common.Address{}) {
		return errs.ErrInvalidFeeReceiver
	}
	old, err := g.NetworkFees(tx)
	if err != nil {
		return err
	}
	next := models.FeeConfig{Rate: new(big.Int).Set(rate), Receiver: receiver, Denominator: big.NewInt(FeeDenominator)}
	if err := tx.Save(keyFees, next); err != nil {
		return err
	}
	if err := g.record(tx, "networkFee", old.Rate.String(), rate.String()); err != nil {
		return err
	}
	if err := g.record(tx, "feeReceiver", old.Receiver.Hex(), receiver.Hex()); err != nil {
		return err
	}
	tx.Emit("ConfigChanged", chain.Fields{
		"who_changed": tx.Sender(),
		"parameter":   "networkFees",
		"rate":        rate,
		"receiver":    receiver,
	})
	return nil
}

// RegisterContract records where a named contract lives. Governor only.
func (g *Gate) RegisterContract(tx *chain.Tx, nameHash common.Hash, address common.Address, version uint64) error {
	if err := g.require(tx, GovernorRole, errs.ErrOnlyGovernor); err != nil {
		return err
	}
	if address == (common.Address{}) {
		return errs.ErrInvalidAddress.With("contract address is the zero address")
	}
	var old models.ContractEntry
	if _, err := tx.Load(contractKey(nameHash), &old); err != nil {
		return err
	}
	entry := models.ContractEntry{NameHash: nameHash, Address: address, Version: version}
	if err := tx.Save(contractKey(nameHash), entry); err != nil {
		return err
	}
	if err := g.record(tx, "contract:"+nameHash.Hex(), old.Address.Hex(), address.Hex()); err != nil {
		return err
	}
	tx.Emit("ContractRegistered", chain.Fields{
		"registered_by": tx.Sender(),
		"name":          nameHash,
		"address":       address,
		"version":       version,
	})
	return nil
}

// ResolveContract looks up a registered contract.
func (g *Gate) ResolveContract(tx *chain.Tx, nameHash common.Hash) (models.ContractEntry, error) {
	var entry models.ContractEntry
	ok, err := tx.Load(contractKey(nameHash), &entry)
	if err != nil {
		return models.ContractEntry{}, err
	}
	if !ok {
		return models.ContractEntry{}, errs.ErrContractNotFound.With("%s", nameHash.Hex())
	}
	return entry, nil
}

// Changes returns the audit trail of gate mutations, oldest first.
func (g *Gate) Changes(tx *chain.Tx) ([]models.ChangeRecord, error) {
	var count uint64
	if _, err := tx.Load(keyChangeCount, &count); err != nil {
		return nil, err
	}
	out := make([]models.ChangeRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		var rec models.ChangeRecord
		if _, err := tx.Load(changeKey(i), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *Gate) require(tx *chain.Tx, role Role, denied *errs.Error) error {
	ok, err := g.HasRole(tx, tx.Sender(), role)
	if err != nil {
		return err
	}
	if !ok {
		return denied.With("%s lacks %s", tx.Sender().Hex(), RoleName(role))
	}
	return nil
}

func (g *Gate) requireNamedRole(tx *chain.Tx, role Role) error {
	if err := g.require(tx, OwnerRole, errs.ErrOnlyOwner); err != nil {
		return err
	}
	switch role {
	case OwnerRole, GovernorRole, TemplateRole, ConditionRole:
		return errs.ErrInvalidRole.With("%s has a dedicated entry point", RoleName(role))
	}
	return nil
}

func (g *Gate) changeRole(tx *chain.Tx, role Role, account common.Address, grant bool) error {
	if account == (common.Address{}) {
		return errs.ErrInvalidAddress.With("cannot change role of the zero address")
	}
	had, err := g.HasRole(tx, account, role)
	if err != nil {
		return err
	}
	if err := g.setRole(tx, role, account, grant); err != nil {
		return err
	}
	if err := g.record(tx, "role:"+RoleName(role)+":"+account.Hex(), strconv.FormatBool(had), strconv.FormatBool(grant)); err != nil {
		return err
	}
	tx.Emit("PermissionsChanged", chain.Fields{
		"account": account,
		"role":    role,
		"name":    RoleName(role),
		"granted": grant,
		"actor":   tx.Sender(),
	})
	g.logger.WithFields(logrus.Fields{
		"role":    RoleName(role),
		"account": account.Hex(),
		"granted": grant,
		"actor":   tx.Sender().Hex(),
	}).Debug("Role changed")
	return nil
}

func (g *Gate) setRole(tx *chain.Tx, role Role, account common.Address, grant bool) error {
	members, err := g.Members(tx, role)
	if err != nil {
		return err
	}
	idx := -1
	for i, m := range members {
		if m == account {
			idx = i
			break
		}
	}
	switch {
	case grant && idx < 0:
		members = append(members, account)
	case !grant && idx >= 0:
		members = append(members[:idx], members[idx+1:]...)
	}
	if err := tx.Save(membersKey(role), members); err != nil {
		return err
	}
	if !grant {
		return tx.Delete(roleKey(role, account))
	}
	return tx.Save(roleKey(role, account), true)
}

func (g *Gate) record(tx *chain.Tx, parameter, oldValue, newValue string) error {
	var count uint64
	if _, err := tx.Load(keyChangeCount, &count); err != nil {
		return err
	}
	rec := models.ChangeRecord{
		Parameter: parameter,
		Actor:     tx.Sender(),
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: tx.Now(),
	}
	if err := tx.Save(changeKey(count), rec); err != nil {
		return err
	}
	return tx.Save(keyChangeCount, count+1)
}

func roleKey(role Role, account common.Address) string {
	return "access/role/" + role.Hex() + "/" + account.Hex()
}

func membersKey(role Role) string {
	return "access/members/" + role.Hex()
}

func contractKey(nameHash common.Hash) string {
	return "access/contract/" + nameHash.Hex()
}

func changeKey(i uint64) string {
	return fmt.Sprintf("%s%d", keyChangePrefix, i)
}
