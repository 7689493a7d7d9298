package access

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role identifies a permission; it is the keccak256 of the role name.
type Role = common.Hash

// RoleFromName derives the role id for a name such as "CREDITS_MINTER_ROLE".
func RoleFromName(name string) Role {
	return crypto.Keccak256Hash([]byte(name))
}

var (
	OwnerRole          = RoleFromName("OWNER_ROLE")
	GovernorRole       = RoleFromName("GOVERNOR_ROLE")
	TemplateRole       = RoleFromName("CONTRACT_TEMPLATE_ROLE")
	ConditionRole      = RoleFromName("CONTRACT_CONDITION_ROLE")
	DepositorRole      = RoleFromName("DEPOSITOR_ROLE")
	WithdrawRole       = RoleFromName("WITHDRAW_ROLE")
	CreditsMinterRole  = RoleFromName("CREDITS_MINTER_ROLE")
	CreditsBurnerRole  = RoleFromName("CREDITS_BURNER_ROLE")
	FiatSettlementRole = RoleFromName("FIAT_SETTLEMENT_ROLE")
)

var roleNames = map[Role]string{
	OwnerRole:          "OWNER_ROLE",
	GovernorRole:       "GOVERNOR_ROLE",
	TemplateRole:       "CONTRACT_TEMPLATE_ROLE",
	ConditionRole:      "CONTRACT_CONDITION_ROLE",
	DepositorRole:      "DEPOSITOR_ROLE",
	WithdrawRole:       "WITHDRAW_ROLE",
	CreditsMinterRole:  "CREDITS_MINTER_ROLE",
	CreditsBurnerRole:  "CREDITS_BURNER_ROLE",
	FiatSettlementRole: "FIAT_SETTLEMENT_ROLE",
}

// RoleName returns the well-known name of role, or its hex id.
func RoleName(role Role) string {
	if name, ok := roleNames[role]; ok {
		return name
	}
	return role.Hex()
}

// ParseRole accepts a well-known role name, any other name, or a 0x-prefixed
// 32-byte role id.
func ParseRole(s string) Role {
	if len(s) == 66 && (s[:2] == "0x" || s[:2] == "0X") {
		return common.HexToHash(s)
	}
	return RoleFromName(s)
}
