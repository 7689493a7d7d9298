package handlers

import (
	"math/big"
	"net/http"

	"go-agreements/internal/chain"
	"go-agreements/internal/dto"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// withFees appends the network fee pair when the request asks for it
func (h *ProtocolHandler) withFees(tx *chain.Tx, include bool, price models.PriceConfig) (models.PriceConfig, error) {
	if !include {
		return price, nil
	}
	amounts, receivers, err := h.proto.Registry.AddFeesToPaymentsDistribution(tx, price.Amounts, price.Receivers)
	if err != nil {
		return price, err
	}
	price.Amounts, price.Receivers = amounts, receivers
	return price, nil
}

func parsePlanTerms(price dto.PriceConfigRequest, credits dto.CreditsConfigRequest, nftAddress, nonce string) (models.PriceConfig, models.CreditsConfig, common.Address, *big.Int, error) {
	p, err := parsePrice(price)
	if err != nil {
		return models.PriceConfig{}, models.CreditsConfig{}, common.Address{}, nil, err
	}
	cr, err := parseCredits(credits)
	if err != nil {
		return models.PriceConfig{}, models.CreditsConfig{}, common.Address{}, nil, err
	}
	nft, err := parseAddress("nft_address", nftAddress)
	if err != nil {
		return models.PriceConfig{}, models.CreditsConfig{}, common.Address{}, nil, err
	}
	n, err := parseRequiredAmount("nonce", nonce)
	if err != nil {
		return models.PriceConfig{}, models.CreditsConfig{}, common.Address{}, nil, err
	}
	return p, cr, nft, n, nil
}

// CreatePlanHandler POST /api/plans
func (h *ProtocolHandler) CreatePlanHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.CreatePlanRequest
	if !bindJSON(c, &req) {
		return
	}
	price, credits, nft, nonce, err := parsePlanTerms(req.Price, req.Credits, req.NFTAddress, req.Nonce)
	if fail(c, err) {
		return
	}

	var planID common.Hash
	h.execute(c, chain.Message{From: caller, To: h.proto.Registry.Address()}, func(tx *chain.Tx) error {
		price, err := h.withFees(tx, req.Price.IncludeFees, price)
		if err != nil {
			return err
		}
		planID, err = h.proto.Registry.CreatePlan(tx, price, credits, nft, nonce)
		return err
	}, func() interface{} {
		return gin.H{"plan_id": planID.Hex()}
	})
}

// RegisterAssetHandler POST /api/assets
func (h *ProtocolHandler) RegisterAssetHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.RegisterAssetRequest
	if !bindJSON(c, &req) {
		return
	}
	seed, err := parseHash("seed", req.Seed)
	if fail(c, err) {
		return
	}
	planIDs, err := parseHashes("plan_ids", req.PlanIDs)
	if fail(c, err) {
		return
	}

	var did common.Hash
	h.execute(c, chain.Message{From: caller, To: h.proto.Registry.Address()}, func(tx *chain.Tx) error {
		var err error
		did, err = h.proto.Registry.Register(tx, seed, req.URL, planIDs)
		return err
	}, func() interface{} {
		return gin.H{"did": did.Hex()}
	})
}

// RegisterAssetAndPlanHandler POST /api/assets/with-plan
func (h *ProtocolHandler) RegisterAssetAndPlanHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.RegisterAssetAndPlanRequest
	if !bindJSON(c, &req) {
		return
	}
	seed, err := parseHash("seed", req.Seed)
	if fail(c, err) {
		return
	}
	price, credits, nft, nonce, err := parsePlanTerms(req.Price, req.Credits, req.NFTAddress, req.Nonce)
	if fail(c, err) {
		return
	}

	var did, planID common.Hash
	h.execute(c, chain.Message{From: caller, To: h.proto.Registry.Address()}, func(tx *chain.Tx) error {
		price, err := h.withFees(tx, req.Price.IncludeFees, price)
		if err != nil {
			return err
		}
		did, planID, err = h.proto.Registry.RegisterAssetAndPlan(tx, seed, req.URL, price, credits, nft, nonce)
		return err
	}, func() interface{} {
		return gin.H{"did": did.Hex(), "plan_id": planID.Hex()}
	})
}

// AddPlanToAssetHandler POST /api/assets/:did/plans
func (h *ProtocolHandler) AddPlanToAssetHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	did, err := parseHash("did", c.Param("did"))
	if fail(c, err) {
		return
	}
	var req dto.AddPlanRequest
	if !bindJSON(c, &req) {
		return
	}
	planID, err := parseHash("plan_id", req.PlanID)
	if fail(c, err) {
		return
	}
	h.execute(c, chain.Message{From: caller, To: h.proto.Registry.Address()}, func(tx *chain.Tx) error {
		return h.proto.Registry.AddPlanToAsset(tx, did, planID)
	}, nil)
}

// GetPlanHandler GET /api/plans/:id
func (h *ProtocolHandler) GetPlanHandler(c *gin.Context) {
	planID, err := parseHash("id", c.Param("id"))
	if fail(c, err) {
		return
	}
	var plan *models.Plan
	if !h.view(c, func(tx *chain.Tx) error {
		plan, err = h.proto.Registry.GetPlan(tx, planID)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "plan": dto.NewPlanView(plan)})
}

// ListPlansHandler GET /api/plans
func (h *ProtocolHandler) ListPlansHandler(c *gin.Context) {
	var ids []common.Hash
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		ids, err = h.proto.Registry.PlanIDs(tx)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "plan_ids": dto.Hashes(ids), "total": len(ids)})
}

// GetAssetHandler GET /api/assets/:did
func (h *ProtocolHandler) GetAssetHandler(c *gin.Context) {
	did, err := parseHash("did", c.Param("did"))
	if fail(c, err) {
		return
	}
	var asset *models.Asset
	if !h.view(c, func(tx *chain.Tx) error {
		asset, err = h.proto.Registry.GetAsset(tx, did)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "asset": dto.NewAssetView(asset)})
}

// ListAssetsHandler GET /api/assets
func (h *ProtocolHandler) ListAssetsHandler(c *gin.Context) {
	var ids []common.Hash
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		ids, err = h.proto.Registry.AssetIDs(tx)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "dids": dto.Hashes(ids), "total": len(ids)})
}

// NetworkFeesHandler GET /api/fees
func (h *ProtocolHandler) NetworkFeesHandler(c *gin.Context) {
	var fees models.FeeConfig
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		fees, err = h.proto.Gate.NetworkFees(tx)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"rate":        dto.Amount(fees.Rate),
		"denominator": dto.Amount(fees.Denominator),
		"receiver":    fees.Receiver.Hex(),
	})
}

// FeeDistributionHandler POST /api/fees/distribution reports whether a
// distribution includes the fee and returns it with the fee added.
func (h *ProtocolHandler) FeeDistributionHandler(c *gin.Context) {
	var req dto.FeeDistributionRequest
	if !bindJSON(c, &req) {
		return
	}
	amounts, err := parseAmounts("amounts", req.Amounts)
	if fail(c, err) {
		return
	}
	receivers, err := parseAddresses("receivers", req.Receivers)
	if fail(c, err) {
		return
	}

	var included bool
	var outAmounts []*big.Int
	var outReceivers []common.Address
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		if included, err = h.proto.Registry.AreFeesIncluded(tx, amounts, receivers); err != nil {
			return err
		}
		outAmounts, outReceivers, err = h.proto.Registry.AddFeesToPaymentsDistribution(tx, amounts, receivers)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, dto.FeeDistributionResponse{
		Success:   true,
		Included:  included,
		Amounts:   dto.Amounts(outAmounts),
		Receivers: dto.Addresses(outReceivers),
	})
}
