// Package registry owns plan and asset records.
package registry

import (
	"math/big"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/errs"
	"go-agreements/internal/identifiers"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const ContractName = "AssetsRegistry"

const (
	keyPlanIndex  = "registry/plans"
	keyAssetIndex = "registry/assets"
)

// PlanReader is what conditions and ledgers need from the registry.
type PlanReader interface {
	GetPlan(tx *chain.Tx, planID common.Hash) (*models.Plan, error)
}

// Registry implements plan and asset registration
type Registry struct {
	address common.Address
	fees    access.FeeSource
	logger  *logrus.Logger
}

var _ PlanReader = (*Registry)(nil)

func NewRegistry(rt *chain.Runtime, fees access.FeeSource, logger *logrus.Logger) *Registry {
	return &Registry{address: rt.Deploy(ContractName), fees: fees, logger: logger}
}

func (r *Registry) Address() common.Address { return r.address }

// AreFeesIncluded checks amounts/receivers against the current network fee.
func (r *Registry) AreFeesIncluded(tx *chain.Tx, amounts []*big.Int, receivers []common.Address) (bool, error) {
	fees, err := r.fees.NetworkFees(tx)
	if err != nil {
		return false, err
	}
	return AreFeesIncluded(fees, amounts, receivers), nil
}

// AddFeesToPaymentsDistribution appends the current network fee.
func (r *Registry) AddFeesToPaymentsDistribution(tx *chain.Tx, amounts []*big.Int, receivers []common.Address) ([]*big.Int, []common.Address, error) {
	fees, err := r.fees.NetworkFees(tx)
	if err != nil {
		return nil, nil, err
	}
	a, rc := AddFeesToPaymentsDistribution(fees, amounts, receivers)
	return a, rc, nil
}

// CreatePlan registers a plan owned by the caller and returns its id.
func (r *Registry) CreatePlan(tx *chain.Tx, price models.PriceConfig, credits models.CreditsConfig, nftAddress common.Address, nonce *big.Int) (common.Hash, error) {
	switch price.PriceType {
	case models.PriceTypeFixedCrypto, models.PriceTypeFixedFiat, models.PriceTypeSmartContract:
	default:
		return common.Hash{}, errs.ErrUnsupportedPriceTypeOption.With("price type %d", price.PriceType)
	}
	if len(price.Amounts) != len(price.Receivers) {
		return common.Hash{}, errs.ErrInvalidAmountsOrReceivers.With("%d amounts, %d receivers", len(price.Amounts), len(price.Receivers))
	}
	for _, a := range price.Amounts {
		if a == nil || a.Sign() < 0 {
			return common.Hash{}, errs.ErrInvalidAmountsOrReceivers.With("amounts must be non-negative")
		}
	}
	if err := validateCredits(credits); err != nil {
		return common.Hash{}, err
	}
	included, err := r.AreFeesIncluded(tx, price.Amounts, price.Receivers)
	if err != nil {
		return common.Hash{}, err
	}
	if !included {
		return common.Hash{}, errs.ErrFeesNotIncluded
	}

	creator := tx.Sender()
	id, err := identifiers.HashPlanID(price, credits, nftAddress, creator, nonce)
	if err != nil {
		return common.Hash{}, errs.ErrInvalidAmountsOrReceivers.With("%v", err)
	}
	existing, err := r.loadPlan(tx, id)
	if err != nil {
		return common.Hash{}, err
	}
	if existing != nil {
		return common.Hash{}, errs.ErrPlanAlreadyRegistered.With("%s", id.Hex())
	}

	plan := models.Plan{
		ID:          id,
		Price:       price,
		Credits:     credits,
		NFTAddress:  nftAddress,
		Creator:     creator,
		LastUpdated: tx.Now(),
	}
	if err := tx.Save(planKey(id), &plan); err != nil {
		return common.Hash{}, err
	}
	if err := appendIndex(tx, keyPlanIndex, id); err != nil {
		return common.Hash{}, err
	}
	tx.Emit("PlanRegistered", chain.Fields{
		"planId":      id,
		"creator":     creator,
		"priceType":   price.PriceType.String(),
		"creditsType": credits.CreditsType.String(),
		"nftAddress":  nftAddress,
	})
	r.logger.WithFields(logrus.Fields{
		"plan_id": id.Hex(),
		"creator": creator.Hex(),
	}).Debug("Plan registered")
	return id, nil
}

// Register creates an asset owned by the caller with the given plans.
func (r *Registry) Register(tx *chain.Tx, seed common.Hash, url string, planIDs []common.Hash) (common.Hash, error) {
	if len(planIDs) == 0 {
		return common.Hash{}, errs.ErrNotPlansAttached
	}
	seen := make(map[common.Hash]bool, len(planIDs))
	plans := make([]common.Hash, 0, len(planIDs))
	for _, id := range planIDs {
		plan, err := r.loadPlan(tx, id)
		if err != nil {
			return common.Hash{}, err
		}
		if plan == nil {
			return common.Hash{}, errs.ErrPlanNotFound.With("%s", id.Hex())
		}
		if !seen[id] {
			seen[id] = true
			plans = append(plans, id)
		}
	}

	owner := tx.Sender()
	did := identifiers.HashDID(seed, owner)
	existing, err := r.loadAsset(tx, did)
	if err != nil {
		return common.Hash{}, err
	}
	if existing != nil {
		return common.Hash{}, errs.ErrAssetAlreadyRegistered.With("%s", did.Hex())
	}
	asset := models.Asset{ID: did, URL: url, Owner: owner, PlanIDs: plans, LastUpdated: tx.Now()}
	if err := tx.Save(assetKey(did), &asset); err != nil {
		return common.Hash{}, err
	}
	if err := appendIndex(tx, keyAssetIndex, did); err != nil {
		return common.Hash{}, err
	}
	tx.Emit("AssetRegistered", chain.Fields{"did": did, "owner": owner, "url": url, "planIds": plans})
	return did, nil
}

// RegisterAssetAndPlan creates a plan and an asset holding it.
func (r *Registry) RegisterAssetAndPlan(tx *chain.Tx, seed common.Hash, url string, price models.PriceConfig, credits models.CreditsConfig, nftAddress common.Address, nonce *big.Int) (common.Hash, common.Hash, error) {
	planID, err := r.CreatePlan(tx, price, credits, nftAddress, nonce)
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	did, err := r.Register(tx, seed, url, []common.Hash{planID})
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	return did, planID, nil
}

// AddPlanToAsset attaches another existing plan. Asset owner only.
func (r *Registry) AddPlanToAsset(tx *chain.Tx, did, planID common.Hash) error {
	asset, err := r.GetAsset(tx, did)
	if err != nil {
		return err
	}
	if asset.Owner != tx.Sender() {
		return errs.ErrNotOwner.With("%s does not own %s", tx.Sender().Hex(), did.Hex())
	}
	if _, err := r.GetPlan(tx, planID); err != nil {
		return err
	}
	if asset.HasPlan(planID) {
		return nil
	}
	asset.PlanIDs = append(asset.PlanIDs, planID)
	asset.LastUpdated = tx.Now()
	if err := tx.Save(assetKey(did), asset); err != nil {
		return err
	}
	tx.Emit("PlanAddedToAsset", chain.Fields{"did": did, "planId": planID, "owner": asset.Owner})
	return nil
}

// GetPlan fails with PlanNotFound for unknown ids
func (r *Registry) GetPlan(tx *chain.Tx, planID common.Hash) (*models.Plan, error) {
	plan, err := r.loadPlan(tx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, errs.ErrPlanNotFound.With("%s", planID.Hex())
	}
	return plan, nil
}

// GetAsset fails with AssetNotFound for unknown ids
func (r *Registry) GetAsset(tx *chain.Tx, did common.Hash) (*models.Asset, error) {
	asset, err := r.loadAsset(tx, did)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, errs.ErrAssetNotFound.With("%s", did.Hex())
	}
	return asset, nil
}

// PlanIDs lists every registered plan in registration order.
func (r *Registry) PlanIDs(tx *chain.Tx) ([]common.Hash, error) {
	return loadIndex(tx, keyPlanIndex)
}

// AssetIDs lists every registered asset in registration order.
func (r *Registry) AssetIDs(tx *chain.Tx) ([]common.Hash, error) {
	return loadIndex(tx, keyAssetIndex)
}

func (r *Registry) loadPlan(tx *chain.Tx, id common.Hash) (*models.Plan, error) {
	var plan models.Plan
	ok, err := tx.Load(planKey(id), &plan)
	if err != nil || !ok || plan.LastUpdated == 0 {
		return nil, err
	}
	return &plan, nil
}

func (r *Registry) loadAsset(tx *chain.Tx, id common.Hash) (*models.Asset, error) {
	var asset models.Asset
	ok, err := tx.Load(assetKey(id), &asset)
	if err != nil || !ok || asset.LastUpdated == 0 {
		return nil, err
	}
	return &asset, nil
}

func validateCredits(c models.CreditsConfig) error {
	switch c.CreditsType {
	case models.CreditsTypeExpirable, models.CreditsTypeFixed, models.CreditsTypeDynamic:
	default:
		return errs.ErrInvalidCreditsType.With("%d", c.CreditsType)
	}
	switch c.RedemptionType {
	case models.RedemptionGlobalRole, models.RedemptionOwner, models.RedemptionBoth:
	default:
		return errs.ErrInvalidCreditsConfig.With("unknown redemption type %d", c.RedemptionType)
	}
	if c.Amount == nil || c.Amount.Sign() <= 0 {
		return errs.ErrInvalidCreditsConfig.With("credits amount must be positive")
	}
	for _, n := range []*big.Int{c.MinAmount, c.MaxAmount} {
		if n != nil && n.Sign() < 0 {
			return errs.ErrInvalidCreditsConfig.With("credit amounts must be non-negative")
		}
	}
	if c.MinAmount != nil && c.MaxAmount != nil && c.MinAmount.Cmp(c.MaxAmount) > 0 {
		return errs.ErrInvalidCreditsConfig.With("minAmount %s > maxAmount %s", c.MinAmount, c.MaxAmount)
	}
	return nil
}

func appendIndex(tx *chain.Tx, key string, id common.Hash) error {
	ids, err := loadIndex(tx, key)
	if err != nil {
		return err
	}
	return tx.Save(key, append(ids, id))
}

func loadIndex(tx *chain.Tx, key string) ([]common.Hash, error) {
	var ids []common.Hash
	if _, err := tx.Load(key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func planKey(id common.Hash) string  { return "registry/plan/" + id.Hex() }
func assetKey(id common.Hash) string { return "registry/asset/" + id.Hex() }
