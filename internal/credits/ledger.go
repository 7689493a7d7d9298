// Package credits implements the plan-scoped credits ledgers: a permanent
// ledger for FIXED and DYNAMIC plans and an expirable ledger whose balances
// are made of time-limited batches.
package credits

import (
	"fmt"
	"math/big"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"
	"go-agreements/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	FixedContractName     = "NFT1155Credits"
	ExpirableContractName = "NFT1155ExpirableCredits"
)

// Ledger is a credits contract. Both variants share the authorization and
// burn rules; only the balance book differs.
type Ledger struct {
	name    string
	address common.Address
	chainID *big.Int
	types   []models.CreditsType
	book    book
	roles   access.RoleChecker
	plans   registry.PlanReader
	logger  *logrus.Logger
}

// NewFixedLedger deploys the ledger for FIXED and DYNAMIC plans.
func NewFixedLedger(rt *chain.Runtime, roles access.RoleChecker, plans registry.PlanReader, chainID *big.Int, logger *logrus.Logger) *Ledger {
	return newLedger(rt, FixedContractName, roles, plans, chainID, logger,
		func(prefix string) book { return counterBook{prefix: prefix} },
		models.CreditsTypeFixed, models.CreditsTypeDynamic)
}

// NewExpirableLedger deploys the ledger for EXPIRABLE plans.
func NewExpirableLedger(rt *chain.Runtime, roles access.RoleChecker, plans registry.PlanReader, chainID *big.Int, logger *logrus.Logger) *Ledger {
	return newLedger(rt, ExpirableContractName, roles, plans, chainID, logger,
		func(prefix string) book { return batchBook{prefix: prefix} },
		models.CreditsTypeExpirable)
}

func newLedger(rt *chain.Runtime, name string, roles access.RoleChecker, plans registry.PlanReader, chainID *big.Int, logger *logrus.Logger, mk func(string) book, types ...models.CreditsType) *Ledger {
	addr := rt.Deploy(name)
	if chainID == nil {
		chainID = new(big.Int)
	}
	return &Ledger{
		name:    name,
		address: addr,
		chainID: new(big.Int).Set(chainID),
		types:   types,
		book:    mk("credits/" + addr.Hex()),
		roles:   roles,
		plans:   plans,
		logger:  logger,
	}
}

func (l *Ledger) Name() string            { return l.name }
func (l *Ledger) Address() common.Address { return l.address }

// Domain is the EIP-712 domain burn proofs for this ledger are signed under.
func (l *Ledger) Domain() ProofDomain {
	return ProofDomain{Name: l.name, ChainID: new(big.Int).Set(l.chainID), Verifier: l.address}
}

// Supports reports whether plans of type ct are issued on this ledger.
func (l *Ledger) Supports(ct models.CreditsType) bool {
	for _, t := range l.types {
		if t == ct {
			return true
		}
	}
	return false
}

// Mint issues amount credits of planID to `to`. durationSecs only applies to
// the expirable ledger; zero means the batch never expires. Minter only.
func (l *Ledger) Mint(tx *chain.Tx, to common.Address, planID common.Hash, amount *big.Int, durationSecs uint64, data []byte) error {
	if err := l.requireRole(tx, access.CreditsMinterRole); err != nil {
		return err
	}
	return l.mint(tx, to, planID, amount, durationSecs)
}

// MintBatch is Mint over parallel lists. durations may be empty.
func (l *Ledger) MintBatch(tx *chain.Tx, to common.Address, planIDs []common.Hash, amounts []*big.Int, durations []uint64, data []byte) error {
	if len(planIDs) != len(amounts) || (len(durations) != 0 && len(durations) != len(planIDs)) {
		return errs.ErrInvalidBatchLength.With("%d ids, %d amounts, %d durations", len(planIDs), len(amounts), len(durations))
	}
	if err := l.requireRole(tx, access.CreditsMinterRole); err != nil {
		return err
	}
	for i, id := range planIDs {
		var d uint64
		if len(durations) > 0 {
			d = durations[i]
		}
		if err := l.mint(tx, to, id, amounts[i], d); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) mint(tx *chain.Tx, to common.Address, planID common.Hash, amount *big.Int, durationSecs uint64) error {
	if to == (common.Address{}) {
		return errs.ErrInvalidAddress.With("mint to the zero address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errs.ErrInvalidTransactionAmount.With("mint amount must be positive")
	}
	expiresAt, err := l.book.add(tx, to, planID, amount, durationSecs)
	if err != nil {
		return err
	}
	tx.Emit("TransferSingle", chain.Fields{
		"operator":  tx.Sender(),
		"from":      common.Address{},
		"to":        to,
		"id":        planID,
		"value":     amount,
		"expiresAt": expiresAt,
	})
	l.logger.WithFields(logrus.Fields{
		"ledger":  l.name,
		"to":      to.Hex(),
		"plan_id": planID.Hex(),
		"amount":  amount.String(),
	}).Debug("Credits minted")
	return nil
}

// Burn redeems credits of planID held by `from`. signature may be empty, in
// which case the caller must be authorized by role or be the holder.
func (l *Ledger) Burn(tx *chain.Tx, from common.Address, planID common.Hash, amount *big.Int, keyspace *big.Int, signature []byte) error {
	return l.BurnBatch(tx, from, []common.Hash{planID}, []*big.Int{amount}, keyspace, signature)
}

// BurnBatch is Burn over parallel lists. A signature covers every plan id.
func (l *Ledger) BurnBatch(tx *chain.Tx, from common.Address, planIDs []common.Hash, amounts []*big.Int, keyspace *big.Int, signature []byte) error {
	if len(planIDs) == 0 || len(planIDs) != len(amounts) {
		return errs.ErrInvalidBatchLength.With("%d ids, %d amounts", len(planIDs), len(amounts))
	}
	plans := make([]*models.Plan, len(planIDs))
	for i, id := range planIDs {
		plan, err := l.plans.GetPlan(tx, id)
		if err != nil {
			return err
		}
		plans[i] = plan
	}

	proofUsed := false
	for _, plan := range plans {
		used, err := l.authorizeBurn(tx, from, plan, planIDs, keyspace, signature, proofUsed)
		if err != nil {
			return err
		}
		proofUsed = proofUsed || used
	}

	for i, plan := range plans {
		amount, err := burnAmount(plan.Credits, amounts[i])
		if err != nil {
			return err
		}
		if err := l.book.consume(tx, from, plan.ID, amount); err != nil {
			return err
		}
		tx.Emit("TransferSingle", chain.Fields{
			"operator": tx.Sender(),
			"from":     from,
			"to":       common.Address{},
			"id":       plan.ID,
			"value":    amount,
		})
	}
	return nil
}

// authorizeBurn checks one plan's redemption rules. A proof, once verified,
// authorizes every plan id it lists; it reports whether it consumed the proof.
func (l *Ledger) authorizeBurn(tx *chain.Tx, from common.Address, plan *models.Plan, planIDs []common.Hash, keyspace *big.Int, signature []byte, proofVerified bool) (bool, error) {
	redemption := plan.Credits.RedemptionType
	burner, err := l.roles.HasRole(tx, tx.Sender(), access.CreditsBurnerRole)
	if err != nil {
		return false, err
	}
	roleOK := burner && redemption != models.RedemptionOwner

	if len(signature) == 0 {
		if plan.Credits.ProofRequired {
			return false, errs.ErrInvalidCreditsBurnProof.With("plan %s requires a burn proof", plan.ID.Hex())
		}
		if len(planIDs) > 1 && !burner {
			return false, errs.ErrInvalidRole.With("%s lacks %s", tx.Sender().Hex(), access.RoleName(access.CreditsBurnerRole))
		}
		holderOK := tx.Sender() == from && redemption != models.RedemptionGlobalRole
		if !roleOK && !holderOK {
			return false, errs.ErrInvalidRedemptionPermission.With("%s may not burn %s credits of %s", tx.Sender().Hex(), redemption, from.Hex())
		}
		return false, nil
	}

	if redemption == models.RedemptionGlobalRole && !plan.Credits.ProofRequired {
		return false, errs.ErrInvalidRedemptionPermission.With("plan %s does not accept owner burn proofs", plan.ID.Hex())
	}
	consumed := false
	if !proofVerified {
		if err := l.consumeProof(tx, from, planIDs, keyspace, signature); err != nil {
			return false, err
		}
		consumed = true
	}
	if redemption == models.RedemptionGlobalRole && !roleOK {
		return false, errs.ErrInvalidRedemptionPermission.With("%s lacks %s", tx.Sender().Hex(), access.RoleName(access.CreditsBurnerRole))
	}
	return consumed, nil
}

func (l *Ledger) consumeProof(tx *chain.Tx, from common.Address, planIDs []common.Hash, keyspace *big.Int, signature []byte) error {
	keyspace = orZero(keyspace)
	nonce, err := l.NextNonce(tx, from, keyspace)
	if err != nil {
		return err
	}
	proof := models.BurnProof{Keyspace: keyspace, Nonce: nonce, PlanIDs: planIDs}
	signer, err := RecoverBurnProofSigner(l.Domain(), proof, signature)
	if err != nil {
		return errs.ErrInvalidCreditsBurnProof.With("%v", err)
	}
	if signer != from {
		return errs.ErrInvalidCreditsBurnProof.With("signed by %s, not %s", signer.Hex(), from.Hex())
	}
	return tx.Save(l.nonceKey(from, keyspace), new(big.Int).Add(nonce, big.NewInt(1)))
}

// burnAmount applies the plan's redemption bounds to the requested amount.
// Out of range requests burn minAmount, so a zero minAmount rejects them.
func burnAmount(c models.CreditsConfig, requested *big.Int) (*big.Int, error) {
	if requested == nil || requested.Sign() <= 0 {
		return nil, errs.ErrInvalidTransactionAmount.With("burn amount must be positive")
	}
	lo, hi := orZero(c.MinAmount), orZero(c.MaxAmount)
	if lo.Sign() == 0 && hi.Sign() == 0 {
		return requested, nil
	}
	inRange := requested.Cmp(lo) >= 0 && requested.Cmp(hi) <= 0
	if c.CreditsType == models.CreditsTypeDynamic {
		if !inRange {
			return nil, errs.ErrInvalidCreditsConfig.With("burn %s outside [%s, %s]", requested, lo, hi)
		}
		return requested, nil
	}
	if inRange {
		return requested, nil
	}
	if lo.Sign() == 0 {
		return nil, errs.ErrInvalidCreditsConfig.With("burn %s above max %s", requested, hi)
	}
	return lo, nil
}

// BalanceOf returns the live credits of planID held by holder
func (l *Ledger) BalanceOf(tx *chain.Tx, holder common.Address, planID common.Hash) (*big.Int, error) {
	return l.book.balance(tx, holder, planID)
}

// BalanceOfBatch is BalanceOf over parallel holder and plan lists.
func (l *Ledger) BalanceOfBatch(tx *chain.Tx, holders []common.Address, planIDs []common.Hash) ([]*big.Int, error) {
	if len(holders) != len(planIDs) {
		return nil, errs.ErrInvalidBatchLength.With("%d holders, %d ids", len(holders), len(planIDs))
	}
	out := make([]*big.Int, len(holders))
	for i := range holders {
		bal, err := l.book.balance(tx, holders[i], planIDs[i])
		if err != nil {
			return nil, err
		}
		out[i] = bal
	}
	return out, nil
}

// Batches exposes the stored batches, expired ones included.
func (l *Ledger) Batches(tx *chain.Tx, holder common.Address, planID common.Hash) ([]models.CreditBatch, error) {
	return l.book.batches(tx, holder, planID)
}

// NextNonce is the nonce the next burn proof of owner in keyspace must carry.
func (l *Ledger) NextNonce(tx *chain.Tx, owner common.Address, keyspace *big.Int) (*big.Int, error) {
	n := new(big.Int)
	if _, err := tx.Load(l.nonceKey(owner, orZero(keyspace)), n); err != nil {
		return nil, err
	}
	return n, nil
}

// NextNonces is NextNonce over several keyspaces.
func (l *Ledger) NextNonces(tx *chain.Tx, owner common.Address, keyspaces []*big.Int) ([]*big.Int, error) {
	out := make([]*big.Int, len(keyspaces))
	for i, ks := range keyspaces {
		n, err := l.NextNonce(tx, owner, ks)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (l *Ledger) requireRole(tx *chain.Tx, role access.Role) error {
	ok, err := l.roles.HasRole(tx, tx.Sender(), role)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrInvalidRole.With("%s lacks %s", tx.Sender().Hex(), access.RoleName(role))
	}
	return nil
}

func (l *Ledger) nonceKey(owner common.Address, keyspace *big.Int) string {
	return fmt.Sprintf("credits/%s/nonce/%s/%s", l.address.Hex(), owner.Hex(), keyspace.Text(16))
}

// Set resolves ledgers by contract address.
type Set []*Ledger

// At returns the ledger deployed at addr
func (s Set) At(addr common.Address) (*Ledger, bool) {
	for _, l := range s {
		if l.address == addr {
			return l, true
		}
	}
	return nil, false
}
