package handlers

import (
	"net/http"
	"strings"

	"go-agreements/internal/chain"
	"go-agreements/internal/conditions"
	"go-agreements/internal/dto"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// CreateAgreementHandler POST /api/agreements buys a plan through the
// fixed-payment template with the caller as buyer.
func (h *ProtocolHandler) CreateAgreementHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.CreateAgreementRequest
	if !bindJSON(c, &req) {
		return
	}
	seed, err := parseHash("seed", req.Seed)
	if fail(c, err) {
		return
	}
	did, err := parseHash("did", req.DID)
	if fail(c, err) {
		return
	}
	planID, err := parseHash("plan_id", req.PlanID)
	if fail(c, err) {
		return
	}
	value, err := parseAmount("value", req.Value)
	if fail(c, err) {
		return
	}
	params, err := parseBytes("params", req.Params)
	if fail(c, err) {
		return
	}

	var agreementID common.Hash
	msg := chain.Message{From: caller, To: h.proto.FixedPayment.Address(), Value: value}
	h.execute(c, msg, func(tx *chain.Tx) error {
		var err error
		agreementID, err = h.proto.FixedPayment.CreateAgreement(tx, seed, did, planID, params)
		return err
	}, func() interface{} {
		return gin.H{"agreement_id": agreementID.Hex()}
	})
}

// CreateFiatAgreementHandler POST /api/agreements/fiat records an off-chain
// settlement. The caller must hold FIAT_SETTLEMENT_ROLE.
func (h *ProtocolHandler) CreateFiatAgreementHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.FiatAgreementRequest
	if !bindJSON(c, &req) {
		return
	}
	seed, err := parseHash("seed", req.Seed)
	if fail(c, err) {
		return
	}
	planID, err := parseHash("plan_id", req.PlanID)
	if fail(c, err) {
		return
	}
	buyer, err := parseAddress("buyer", req.Buyer)
	if fail(c, err) {
		return
	}
	params, err := parseBytes("params", req.Params)
	if fail(c, err) {
		return
	}

	var agreementID common.Hash
	h.execute(c, chain.Message{From: caller, To: h.proto.FiatPayment.Address()}, func(tx *chain.Tx) error {
		var err error
		agreementID, err = h.proto.FiatPayment.CreateAgreement(tx, seed, planID, buyer, params)
		return err
	}, func() interface{} {
		return gin.H{"agreement_id": agreementID.Hex()}
	})
}

// GetAgreementHandler GET /api/agreements/:id
func (h *ProtocolHandler) GetAgreementHandler(c *gin.Context) {
	id, err := parseHash("id", c.Param("id"))
	if fail(c, err) {
		return
	}
	var agreement *models.Agreement
	if !h.view(c, func(tx *chain.Tx) error {
		agreement, err = h.proto.Agreements.GetAgreement(tx, id)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "agreement": dto.NewAgreementView(agreement)})
}

// ListAgreementsHandler GET /api/agreements
func (h *ProtocolHandler) ListAgreementsHandler(c *gin.Context) {
	var ids []common.Hash
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		ids, err = h.proto.Agreements.IDs(tx)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "agreement_ids": dto.Hashes(ids), "total": len(ids)})
}

// GetConditionStateHandler GET /api/agreements/:id/conditions/:condition
// accepts a condition id or a condition name.
func (h *ProtocolHandler) GetConditionStateHandler(c *gin.Context) {
	agreementID, err := parseHash("id", c.Param("id"))
	if fail(c, err) {
		return
	}
	ref := c.Param("condition")
	var conditionID common.Hash
	if cond, ok := h.condition(ref); ok {
		conditionID = cond.ConditionID(agreementID)
	} else if conditionID, err = parseHash("condition", ref); fail(c, err) {
		return
	}

	var st models.ConditionState
	if !h.view(c, func(tx *chain.Tx) error {
		st, err = h.proto.Agreements.GetConditionState(tx, agreementID, conditionID)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"agreement_id": agreementID.Hex(),
		"condition_id": conditionID.Hex(),
		"state":        st.String(),
	})
}

type conditionRef interface {
	Name() string
	Address() common.Address
	ConditionID(agreementID common.Hash) common.Hash
}

func (h *ProtocolHandler) condition(ref string) (conditionRef, bool) {
	switch strings.ToLower(ref) {
	case "lock", strings.ToLower(conditions.LockPaymentName):
		return h.proto.Lock, true
	case "transfer", strings.ToLower(conditions.TransferCreditsName):
		return h.proto.Transfer, true
	case "distribute", strings.ToLower(conditions.DistributePaymentsName):
		return h.proto.Distribute, true
	case "fiat", strings.ToLower(conditions.FiatSettlementName):
		return h.proto.Fiat, true
	}
	return nil, false
}

// FulfillConditionHandler POST /api/conditions/:condition/fulfill. The
// condition itself decides whether the caller may fulfill it.
func (h *ProtocolHandler) FulfillConditionHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	cond, ok := h.condition(c.Param("condition"))
	if !ok {
		fail(c, errs.ErrContractNotFound.With("unknown condition %q", c.Param("condition")))
		return
	}
	var req dto.ConditionRequest
	if !bindJSON(c, &req) {
		return
	}
	agreementID, err := parseHash("agreement_id", req.AgreementID)
	if fail(c, err) {
		return
	}
	value, err := parseAmount("value", req.Value)
	if fail(c, err) {
		return
	}
	params, err := parseBytes("params", req.Params)
	if fail(c, err) {
		return
	}

	conditionID := cond.ConditionID(agreementID)
	h.execute(c, chain.Message{From: caller, To: cond.Address(), Value: value}, func(tx *chain.Tx) error {
		switch cond {
		case h.proto.Lock:
			return h.proto.Lock.Fulfill(tx, conditionID, agreementID)
		case h.proto.Transfer:
			return h.proto.Transfer.Fulfill(tx, conditionID, agreementID)
		case h.proto.Distribute:
			return h.proto.Distribute.Fulfill(tx, conditionID, agreementID)
		default:
			return h.proto.Fiat.Fulfill(tx, conditionID, agreementID, params)
		}
	}, func() interface{} {
		return gin.H{"condition_id": conditionID.Hex()}
	})
}

// AbortConditionHandler POST /api/conditions/transfer/abort marks credit
// delivery as failed so the distribution refunds the buyer.
func (h *ProtocolHandler) AbortConditionHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	cond, ok := h.condition(c.Param("condition"))
	if !ok || cond != conditionRef(h.proto.Transfer) {
		fail(c, errs.ErrInvalidConditionState.With("only %s can be aborted", conditions.TransferCreditsName))
		return
	}
	var req dto.ConditionRequest
	if !bindJSON(c, &req) {
		return
	}
	agreementID, err := parseHash("agreement_id", req.AgreementID)
	if fail(c, err) {
		return
	}
	conditionID := h.proto.Transfer.ConditionID(agreementID)
	h.execute(c, chain.Message{From: caller, To: h.proto.Transfer.Address()}, func(tx *chain.Tx) error {
		return h.proto.Transfer.Abort(tx, conditionID, agreementID)
	}, func() interface{} {
		return gin.H{"condition_id": conditionID.Hex()}
	})
}
