package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceType selects how a plan is paid for
type PriceType uint8

const (
	PriceTypeFixedCrypto   PriceType = 0
	PriceTypeFixedFiat     PriceType = 1
	PriceTypeSmartContract PriceType = 2
)

func (p PriceType) String() string {
	switch p {
	case PriceTypeFixedCrypto:
		return "FIXED_CRYPTO"
	case PriceTypeFixedFiat:
		return "FIXED_FIAT"
	case PriceTypeSmartContract:
		return "SMART_CONTRACT"
	default:
		return "UNKNOWN"
	}
}

// CreditsType selects the ledger semantics of a plan's credits
type CreditsType uint8

const (
	CreditsTypeExpirable CreditsType = 0
	CreditsTypeFixed     CreditsType = 1
	CreditsTypeDynamic   CreditsType = 2
)

func (c CreditsType) String() string {
	switch c {
	case CreditsTypeExpirable:
		return "EXPIRABLE"
	case CreditsTypeFixed:
		return "FIXED"
	case CreditsTypeDynamic:
		return "DYNAMIC"
	default:
		return "UNKNOWN"
	}
}

// RedemptionType selects who may authorize a burn
type RedemptionType uint8

const (
	RedemptionGlobalRole RedemptionType = 0
	RedemptionOwner      RedemptionType = 1
	RedemptionBoth       RedemptionType = 2
)

func (r RedemptionType) String() string {
	switch r {
	case RedemptionGlobalRole:
		return "GLOBAL_ROLE"
	case RedemptionOwner:
		return "OWNER"
	case RedemptionBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// PriceConfig price terms. Amounts and Receivers are parallel.
type PriceConfig struct {
	PriceType       PriceType        `json:"price_type"`
	TokenAddress    common.Address   `json:"token_address"` // zero address = native token
	Amounts         []*big.Int       `json:"amounts"`
	Receivers       []common.Address `json:"receivers"`
	ContractAddress common.Address   `json:"contract_address"`
}

// Total returns the sum of all amounts.
func (p PriceConfig) Total() *big.Int {
	total := new(big.Int)
	for _, a := range p.Amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}

// IsNative reports whether the plan is paid in the native token
func (p PriceConfig) IsNative() bool {
	return p.TokenAddress == (common.Address{})
}

// CreditsConfig credit issuance and redemption terms
type CreditsConfig struct {
	CreditsType    CreditsType    `json:"credits_type"`
	RedemptionType RedemptionType `json:"redemption_type"`
	ProofRequired  bool           `json:"proof_required"`
	DurationSecs   uint64         `json:"duration_secs"`
	Amount         *big.Int       `json:"amount"`
	MinAmount      *big.Int       `json:"min_amount"`
	MaxAmount      *big.Int       `json:"max_amount"`
}

// Plan is immutable once LastUpdated != 0.
type Plan struct {
	ID          common.Hash    `json:"id"`
	Price       PriceConfig    `json:"price"`
	Credits     CreditsConfig  `json:"credits"`
	NFTAddress  common.Address `json:"nft_address"`
	Creator     common.Address `json:"creator"`
	LastUpdated uint64         `json:"last_updated"`
}

// Asset groups plans under one DID. Plan ids are only ever appended.
type Asset struct {
	ID          common.Hash    `json:"id"`
	URL         string         `json:"url"`
	Owner       common.Address `json:"owner"`
	PlanIDs     []common.Hash  `json:"plan_ids"`
	LastUpdated uint64         `json:"last_updated"`
}

// HasPlan reports whether planID is attached to the asset
func (a *Asset) HasPlan(planID common.Hash) bool {
	for _, id := range a.PlanIDs {
		if id == planID {
			return true
		}
	}
	return false
}

// ConditionState lifecycle state of one agreement condition
type ConditionState uint8

const (
	ConditionUninitialized ConditionState = 0
	ConditionUnfulfilled   ConditionState = 1
	ConditionFulfilled     ConditionState = 2
	ConditionAborted       ConditionState = 3
)

func (s ConditionState) String() string {
	switch s {
	case ConditionUninitialized:
		return "UNINITIALIZED"
	case ConditionUnfulfilled:
		return "UNFULFILLED"
	case ConditionFulfilled:
		return "FULFILLED"
	case ConditionAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is allowed
func (s ConditionState) Terminal() bool {
	return s == ConditionFulfilled || s == ConditionAborted
}

// Agreement buyer commitment to a plan. ConditionStates is parallel to ConditionIDs.
type Agreement struct {
	ID              common.Hash      `json:"id"`
	Creator         common.Address   `json:"creator"`
	PlanID          common.Hash      `json:"plan_id"`
	ConditionIDs    []common.Hash    `json:"condition_ids"`
	ConditionStates []ConditionState `json:"condition_states"`
	Params          []byte           `json:"params"`
	LastUpdated     uint64           `json:"last_updated"`
}

// ConditionIndex returns the position of conditionID, or -1.
func (a *Agreement) ConditionIndex(conditionID common.Hash) int {
	for i, id := range a.ConditionIDs {
		if id == conditionID {
			return i
		}
	}
	return -1
}

// CreditBatch one mint into an expirable balance. ExpiresAt 0 = never.
type CreditBatch struct {
	Amount    *big.Int `json:"amount"`
	ExpiresAt uint64   `json:"expires_at"`
}

// Live reports whether the batch counts towards the balance at now
func (b CreditBatch) Live(now uint64) bool {
	return b.ExpiresAt == 0 || b.ExpiresAt > now
}

// BurnProof is the message a credit owner signs to authorize a burn.
type BurnProof struct {
	Keyspace *big.Int      `json:"keyspace"`
	Nonce    *big.Int      `json:"nonce"`
	PlanIDs  []common.Hash `json:"plan_ids"`
}

// FeeConfig network fee configuration. Fee = amount * Rate / Denominator.
type FeeConfig struct {
	Rate        *big.Int       `json:"rate"`
	Receiver    common.Address `json:"receiver"`
	Denominator *big.Int       `json:"denominator"`
}

// ChangeRecord audit entry for an access-gate mutation
type ChangeRecord struct {
	Parameter string         `json:"parameter"`
	Actor     common.Address `json:"actor"`
	OldValue  string         `json:"old_value"`
	NewValue  string         `json:"new_value"`
	Timestamp uint64         `json:"timestamp"`
}

// ContractEntry registry record for a named protocol contract
type ContractEntry struct {
	NameHash common.Hash    `json:"name_hash"`
	Address  common.Address `json:"address"`
	Version  uint64         `json:"version"`
}
