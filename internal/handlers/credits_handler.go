package handlers

import (
	"math/big"
	"net/http"

	"go-agreements/internal/chain"
	"go-agreements/internal/dto"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/gin-gonic/gin"
)

// MintCreditsHandler POST /api/credits/:ledger/mint. CREDITS_MINTER_ROLE only.
func (h *ProtocolHandler) MintCreditsHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	ledger, err := h.ledger(c.Param("ledger"))
	if fail(c, err) {
		return
	}
	var req dto.MintRequest
	if !bindJSON(c, &req) {
		return
	}
	to, err := parseAddress("to", req.To)
	if fail(c, err) {
		return
	}
	planIDs, err := parseHashes("plan_ids", req.PlanIDs)
	if fail(c, err) {
		return
	}
	amounts, err := parseAmounts("amounts", req.Amounts)
	if fail(c, err) {
		return
	}
	data, err := parseBytes("data", req.Data)
	if fail(c, err) {
		return
	}
	durations := req.DurationSecs
	if len(durations) == 0 {
		durations = make([]uint64, len(planIDs))
	}

	h.execute(c, chain.Message{From: caller, To: ledger.Address()}, func(tx *chain.Tx) error {
		if len(planIDs) == 1 && len(amounts) == 1 && len(durations) == 1 {
			return ledger.Mint(tx, to, planIDs[0], amounts[0], durations[0], data)
		}
		return ledger.MintBatch(tx, to, planIDs, amounts, durations, data)
	}, nil)
}

// BurnCreditsHandler POST /api/credits/:ledger/burn. With a signature the
// caller executes a burn the holder authorized off-chain.
func (h *ProtocolHandler) BurnCreditsHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	ledger, err := h.ledger(c.Param("ledger"))
	if fail(c, err) {
		return
	}
	var req dto.BurnRequest
	if !bindJSON(c, &req) {
		return
	}
	from, err := parseAddress("from", req.From)
	if fail(c, err) {
		return
	}
	planIDs, err := parseHashes("plan_ids", req.PlanIDs)
	if fail(c, err) {
		return
	}
	amounts, err := parseAmounts("amounts", req.Amounts)
	if fail(c, err) {
		return
	}
	keyspace, err := parseRequiredAmount("keyspace", req.Keyspace)
	if fail(c, err) {
		return
	}
	signature, err := parseBytes("signature", req.Signature)
	if fail(c, err) {
		return
	}

	h.execute(c, chain.Message{From: caller, To: ledger.Address()}, func(tx *chain.Tx) error {
		if len(planIDs) == 1 && len(amounts) == 1 {
			return ledger.Burn(tx, from, planIDs[0], amounts[0], keyspace, signature)
		}
		return ledger.BurnBatch(tx, from, planIDs, amounts, keyspace, signature)
	}, nil)
}

// CreditsBalanceHandler GET /api/credits/:ledger/balance?holder=&plan_id=
// Repeat holder and plan_id for a batch query.
func (h *ProtocolHandler) CreditsBalanceHandler(c *gin.Context) {
	ledger, err := h.ledger(c.Param("ledger"))
	if fail(c, err) {
		return
	}
	holders, err := parseAddresses("holder", c.QueryArray("holder"))
	if fail(c, err) {
		return
	}
	planIDs, err := parseHashes("plan_id", c.QueryArray("plan_id"))
	if fail(c, err) {
		return
	}
	if len(holders) == 0 || len(holders) != len(planIDs) {
		fail(c, errs.ErrInvalidBatchLength.With("holder and plan_id must be given in pairs"))
		return
	}

	var balances []*big.Int
	if !h.view(c, func(tx *chain.Tx) error {
		balances, err = ledger.BalanceOfBatch(tx, holders, planIDs)
		return err
	}) {
		return
	}
	entries := make([]gin.H, len(balances))
	for i, b := range balances {
		entries[i] = gin.H{"holder": holders[i].Hex(), "plan_id": planIDs[i].Hex(), "balance": b.String()}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ledger": ledger.Name(), "balances": entries})
}

// CreditsBatchesHandler GET /api/credits/:ledger/batches?holder=&plan_id=
func (h *ProtocolHandler) CreditsBatchesHandler(c *gin.Context) {
	ledger, err := h.ledger(c.Param("ledger"))
	if fail(c, err) {
		return
	}
	holder, err := parseAddress("holder", c.Query("holder"))
	if fail(c, err) {
		return
	}
	planID, err := parseHash("plan_id", c.Query("plan_id"))
	if fail(c, err) {
		return
	}

	var batches []models.CreditBatch
	var now uint64
	if !h.view(c, func(tx *chain.Tx) error {
		now = tx.Now()
		batches, err = ledger.Batches(tx, holder, planID)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ledger": ledger.Name(), "batches": dto.NewBatchViews(batches, now)})
}

// CreditsNoncesHandler GET /api/credits/:ledger/nonces?owner=&keyspace=
func (h *ProtocolHandler) CreditsNoncesHandler(c *gin.Context) {
	ledger, err := h.ledger(c.Param("ledger"))
	if fail(c, err) {
		return
	}
	owner, err := parseAddress("owner", c.Query("owner"))
	if fail(c, err) {
		return
	}
	raw := c.QueryArray("keyspace")
	if len(raw) == 0 {
		raw = []string{"0"}
	}
	keyspaces, err := parseAmounts("keyspace", raw)
	if fail(c, err) {
		return
	}

	var nonces []*big.Int
	if !h.view(c, func(tx *chain.Tx) error {
		nonces, err = ledger.NextNonces(tx, owner, keyspaces)
		return err
	}) {
		return
	}
	entries := make([]gin.H, len(nonces))
	for i, n := range nonces {
		entries[i] = gin.H{"keyspace": keyspaces[i].String(), "nonce": n.String()}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "owner": owner.Hex(), "nonces": entries})
}

// CreditsDomainHandler GET /api/credits/:ledger/domain returns the EIP-712
// domain burn proofs are signed under.
func (h *ProtocolHandler) CreditsDomainHandler(c *gin.Context) {
	ledger, err := h.ledger(c.Param("ledger"))
	if fail(c, err) {
		return
	}
	d := ledger.Domain()
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"name":              d.Name,
		"version":           "1",
		"chainId":           dto.Amount(d.ChainID),
		"verifyingContract": d.Verifier.Hex(),
	})
}
