package dto

import (
	"encoding/hex"
	"math/big"

	"go-agreements/internal/chain"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Amounts, hashes and addresses travel as strings: decimal for amounts,
// 0x-prefixed hex for everything else.

// ==================== Registry ====================

// PriceConfigRequest price terms of a new plan
type PriceConfigRequest struct {
	PriceType       uint8    `json:"price_type"`
	TokenAddress    string   `json:"token_address"` // empty = native token
	Amounts         []string `json:"amounts" binding:"required"`
	Receivers       []string `json:"receivers" binding:"required"`
	ContractAddress string   `json:"contract_address"`
	// IncludeFees appends the network fee to the distribution before registering
	IncludeFees bool `json:"include_fees"`
}

// CreditsConfigRequest credit terms of a new plan
type CreditsConfigRequest struct {
	CreditsType    uint8  `json:"credits_type"`
	RedemptionType uint8  `json:"redemption_type"`
	ProofRequired  bool   `json:"proof_required"`
	DurationSecs   uint64 `json:"duration_secs"`
	Amount         string `json:"amount"`
	MinAmount      string `json:"min_amount"`
	MaxAmount      string `json:"max_amount"`
}

// CreatePlanRequest POST /api/plans
type CreatePlanRequest struct {
	Price      PriceConfigRequest   `json:"price" binding:"required"`
	Credits    CreditsConfigRequest `json:"credits"`
	NFTAddress string               `json:"nft_address" binding:"required"`
	Nonce      string               `json:"nonce"`
}

// RegisterAssetRequest POST /api/assets
type RegisterAssetRequest struct {
	Seed    string   `json:"seed" binding:"required"`
	URL     string   `json:"url"`
	PlanIDs []string `json:"plan_ids" binding:"required"`
}

// RegisterAssetAndPlanRequest POST /api/assets/with-plan
type RegisterAssetAndPlanRequest struct {
	Seed       string               `json:"seed" binding:"required"`
	URL        string               `json:"url"`
	Price      PriceConfigRequest   `json:"price" binding:"required"`
	Credits    CreditsConfigRequest `json:"credits"`
	NFTAddress string               `json:"nft_address" binding:"required"`
	Nonce      string               `json:"nonce"`
}

// AddPlanRequest POST /api/assets/:did/plans
type AddPlanRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// FeeDistributionRequest POST /api/fees/distribution
type FeeDistributionRequest struct {
	Amounts   []string `json:"amounts" binding:"required"`
	Receivers []string `json:"receivers" binding:"required"`
}

// FeeDistributionResponse distribution with the fee pair appended when missing
type FeeDistributionResponse struct {
	Success   bool     `json:"success"`
	Included  bool     `json:"included"`
	Amounts   []string `json:"amounts"`
	Receivers []string `json:"receivers"`
}

// PlanView plan as served by the API
type PlanView struct {
	ID          string      `json:"id"`
	PriceType   string      `json:"price_type"`
	Token       string      `json:"token_address"`
	Amounts     []string    `json:"amounts"`
	Receivers   []string    `json:"receivers"`
	Total       string      `json:"total"`
	Contract    string      `json:"contract_address"`
	Credits     CreditsView `json:"credits"`
	NFTAddress  string      `json:"nft_address"`
	Creator     string      `json:"creator"`
	LastUpdated uint64      `json:"last_updated"`
}

// CreditsView credit terms as served by the API
type CreditsView struct {
	CreditsType    string `json:"credits_type"`
	RedemptionType string `json:"redemption_type"`
	ProofRequired  bool   `json:"proof_required"`
	DurationSecs   uint64 `json:"duration_secs"`
	Amount         string `json:"amount"`
	MinAmount      string `json:"min_amount"`
	MaxAmount      string `json:"max_amount"`
}

// NewPlanView maps a stored plan
func NewPlanView(p *models.Plan) PlanView {
	return PlanView{
		ID:        p.ID.Hex(),
		PriceType: p.Price.PriceType.String(),
		Token:     p.Price.TokenAddress.Hex(),
		Amounts:   Amounts(p.Price.Amounts),
		Receivers: Addresses(p.Price.Receivers),
		Total:     p.Price.Total().String(),
		Contract:  p.Price.ContractAddress.Hex(),
		Credits: CreditsView{
			CreditsType:    p.Credits.CreditsType.String(),
			RedemptionType: p.Credits.RedemptionType.String(),
			ProofRequired:  p.Credits.ProofRequired,
			DurationSecs:   p.Credits.DurationSecs,
			Amount:         Amount(p.Credits.Amount),
			MinAmount:      Amount(p.Credits.MinAmount),
			MaxAmount:      Amount(p.Credits.MaxAmount),
		},
		NFTAddress:  p.NFTAddress.Hex(),
		Creator:     p.Creator.Hex(),
		LastUpdated: p.LastUpdated,
	}
}

// AssetView asset as served by the API
type AssetView struct {
	DID         string   `json:"did"`
	URL         string   `json:"url"`
	Owner       string   `json:"owner"`
	PlanIDs     []string `json:"plan_ids"`
	LastUpdated uint64   `json:"last_updated"`
}

// NewAssetView maps a stored asset
func NewAssetView(a *models.Asset) AssetView {
	return AssetView{
		DID:         a.ID.Hex(),
		URL:         a.URL,
		Owner:       a.Owner.Hex(),
		PlanIDs:     Hashes(a.PlanIDs),
		LastUpdated: a.LastUpdated,
	}
}

// ==================== Agreements ====================

// CreateAgreementRequest POST /api/agreements
type CreateAgreementRequest struct {
	Seed   string `json:"seed" binding:"required"`
	DID    string `json:"did" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
	Value  string `json:"value"`  // native value attached, decimal
	Params string `json:"params"` // hex
}

// FiatAgreementRequest POST /api/agreements/fiat
type FiatAgreementRequest struct {
	Seed   string `json:"seed" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
	Buyer  string `json:"buyer" binding:"required"`
	Params string `json:"params"`
}

// ConditionRequest POST /api/conditions/:condition/{fulfill,abort}
type ConditionRequest struct {
	AgreementID string `json:"agreement_id" binding:"required"`
	Value       string `json:"value"`
	Params      string `json:"params"`
}

// ConditionView one condition of an agreement
type ConditionView struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// AgreementView agreement as served by the API
type AgreementView struct {
	ID          string          `json:"id"`
	Creator     string          `json:"creator"`
	PlanID      string          `json:"plan_id"`
	Conditions  []ConditionView `json:"conditions"`
	Params      string          `json:"params,omitempty"`
	LastUpdated uint64          `json:"last_updated"`
}

// NewAgreementView maps a stored agreement
func NewAgreementView(a *models.Agreement) AgreementView {
	conds := make([]ConditionView, len(a.ConditionIDs))
	for i, id := range a.ConditionIDs {
		conds[i] = ConditionView{ID: id.Hex()}
		if i < len(a.ConditionStates) {
			conds[i].State = a.ConditionStates[i].String()
		}
	}
	view := AgreementView{
		ID:          a.ID.Hex(),
		Creator:     a.Creator.Hex(),
		PlanID:      a.PlanID.Hex(),
		Conditions:  conds,
		LastUpdated: a.LastUpdated,
	}
	if len(a.Params) > 0 {
		view.Params = "0x" + hex.EncodeToString(a.Params)
	}
	return view
}

// ==================== Credits ====================

// MintRequest POST /api/credits/:ledger/mint
type MintRequest struct {
	To           string   `json:"to" binding:"required"`
	PlanIDs      []string `json:"plan_ids" binding:"required"`
	Amounts      []string `json:"amounts" binding:"required"`
	DurationSecs []uint64 `json:"duration_secs"`
	Data         string   `json:"data"`
}

// BurnRequest POST /api/credits/:ledger/burn. Without a signature the caller
// burns on their own authority.
type BurnRequest struct {
	From      string   `json:"from" binding:"required"`
	PlanIDs   []string `json:"plan_ids" binding:"required"`
	Amounts   []string `json:"amounts" binding:"required"`
	Keyspace  string   `json:"keyspace"`
	Signature string   `json:"signature"`
}

// BatchView one expirable credits batch
type BatchView struct {
	Amount    string `json:"amount"`
	ExpiresAt uint64 `json:"expires_at"`
	Live      bool   `json:"live"`
}

// NewBatchViews maps stored batches, flagging liveness at now
func NewBatchViews(batches []models.CreditBatch, now uint64) []BatchView {
	out := make([]BatchView, len(batches))
	for i, b := range batches {
		out[i] = BatchView{Amount: Amount(b.Amount), ExpiresAt: b.ExpiresAt, Live: b.Live(now)}
	}
	return out
}

// ==================== Vault & tokens ====================

// VaultDepositRequest POST /api/vault/deposit
type VaultDepositRequest struct {
	Token  string `json:"token"` // empty = native
	Amount string `json:"amount" binding:"required"`
	From   string `json:"from"`
}

// VaultWithdrawRequest POST /api/vault/withdraw
type VaultWithdrawRequest struct {
	Token    string `json:"token"`
	Amount   string `json:"amount" binding:"required"`
	Receiver string `json:"receiver" binding:"required"`
}

// TokenTransferRequest POST /api/tokens/:token/transfer and /mint
type TokenTransferRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// TokenApproveRequest POST /api/tokens/:token/approve
type TokenApproveRequest struct {
	Spender string `json:"spender" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// TokenView ERC20 metadata
type TokenView struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

// ==================== Admin ====================

// NetworkFeesRequest PUT /api/admin/fees
type NetworkFeesRequest struct {
	Rate     string `json:"rate" binding:"required"`
	Receiver string `json:"receiver"`
}

// RoleRequest POST /api/admin/roles/{grant,revoke}
type RoleRequest struct {
	Role    string `json:"role" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// AccountRequest single-address admin action
type AccountRequest struct {
	Address string `json:"address" binding:"required"`
}

// ContractRequest POST /api/admin/contracts
type ContractRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address" binding:"required"`
	Version uint64 `json:"version"`
}

// FundRequest POST /api/admin/faucet
type FundRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// ==================== Transactions ====================

// EventView one event of a committed transaction
type EventView struct {
	Index    int                    `json:"index"`
	Contract string                 `json:"contract"`
	Name     string                 `json:"contract_name"`
	Event    string                 `json:"event"`
	Fields   map[string]interface{} `json:"fields"`
}

// TxResponse result of a committed transaction
type TxResponse struct {
	Success   bool        `json:"success"`
	TxHash    string      `json:"tx_hash"`
	Sequence  uint64      `json:"sequence"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Value     string      `json:"value"`
	Timestamp uint64      `json:"timestamp"`
	Events    []EventView `json:"events"`
	Result    interface{} `json:"result,omitempty"`
}

// NewTxResponse maps a receipt
func NewTxResponse(r *chain.Receipt, result interface{}) TxResponse {
	evs := make([]EventView, len(r.Events))
	for i, e := range r.Events {
		evs[i] = EventView{
			Index:    e.Index,
			Contract: e.Contract.Hex(),
			Name:     e.ContractName,
			Event:    e.Name,
			Fields:   e.Fields,
		}
	}
	return TxResponse{
		Success:   true,
		TxHash:    r.TxHash.Hex(),
		Sequence:  r.Sequence,
		From:      r.From.Hex(),
		To:        r.To.Hex(),
		Value:     Amount(r.Value),
		Timestamp: r.Timestamp,
		Events:    evs,
		Result:    result,
	}
}

// ==================== helpers ====================

// Amount renders a nil-safe decimal
func Amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func Amounts(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = Amount(v)
	}
	return out
}

func Addresses(as []common.Address) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Hex()
	}
	return out
}

func Hashes(hs []common.Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Hex()
	}
	return out
}
