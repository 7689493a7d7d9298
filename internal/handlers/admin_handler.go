package handlers

import (
	"net/http"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/dto"
	"go-agreements/internal/identifiers"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// asOwner runs fn as the configured protocol owner
func (h *ProtocolHandler) asOwner(c *gin.Context, action string, fn func(tx *chain.Tx) error) {
	h.auditAdmin(c, action, h.operators.Owner)
	h.execute(c, chain.Message{From: h.operators.Owner, To: h.proto.Gate.Address()}, fn, nil)
}

// asGovernor runs fn as the configured governor
func (h *ProtocolHandler) asGovernor(c *gin.Context, action string, fn func(tx *chain.Tx) error) {
	h.auditAdmin(c, action, h.operators.Governor)
	h.execute(c, chain.Message{From: h.operators.Governor, To: h.proto.Gate.Address()}, fn, nil)
}

func (h *ProtocolHandler) auditAdmin(c *gin.Context, action string, actor common.Address) {
	h.logger.WithFields(logrus.Fields{
		"admin":  c.GetString("admin_username"),
		"action": action,
		"actor":  actor.Hex(),
	}).Info("🛠️ Admin action")
}

// SetNetworkFeesHandler PUT /api/admin/fees
func (h *ProtocolHandler) SetNetworkFeesHandler(c *gin.Context) {
	var req dto.NetworkFeesRequest
	if !bindJSON(c, &req) {
		return
	}
	rate, err := parseRequiredAmount("rate", req.Rate)
	if fail(c, err) {
		return
	}
	receiver, err := parseOptionalAddress("receiver", req.Receiver)
	if fail(c, err) {
		return
	}
	h.asGovernor(c, "set_network_fees", func(tx *chain.Tx) error {
		return h.proto.Gate.SetNetworkFees(tx, rate, receiver)
	})
}

func (h *ProtocolHandler) bindRole(c *gin.Context) (access.Role, common.Address, bool) {
	var req dto.RoleRequest
	if !bindJSON(c, &req) {
		return access.Role{}, common.Address{}, false
	}
	addr, err := parseAddress("address", req.Address)
	if fail(c, err) {
		return access.Role{}, common.Address{}, false
	}
	return access.ParseRole(req.Role), addr, true
}

// GrantRoleHandler POST /api/admin/roles/grant
func (h *ProtocolHandler) GrantRoleHandler(c *gin.Context) {
	role, addr, ok := h.bindRole(c)
	if !ok {
		return
	}
	h.asOwner(c, "grant_role", func(tx *chain.Tx) error {
		return h.proto.Gate.GrantRole(tx, role, addr)
	})
}

// RevokeRoleHandler POST /api/admin/roles/revoke
func (h *ProtocolHandler) RevokeRoleHandler(c *gin.Context) {
	role, addr, ok := h.bindRole(c)
	if !ok {
		return
	}
	h.asOwner(c, "revoke_role", func(tx *chain.Tx) error {
		return h.proto.Gate.RevokeRole(tx, role, addr)
	})
}

// RoleMembersHandler GET /api/admin/roles/:role/members
func (h *ProtocolHandler) RoleMembersHandler(c *gin.Context) {
	role := access.ParseRole(c.Param("role"))
	var members []common.Address
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		members, err = h.proto.Gate.Members(tx, role)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"role":    access.RoleName(role),
		"members": dto.Addresses(members),
	})
}

// accountAction binds {address} and runs op through run
func (h *ProtocolHandler) accountAction(c *gin.Context, action string, run func(*gin.Context, string, func(tx *chain.Tx) error), op func(tx *chain.Tx, addr common.Address) error) {
	var req dto.AccountRequest
	if !bindJSON(c, &req) {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if fail(c, err) {
		return
	}
	run(c, action, func(tx *chain.Tx) error { return op(tx, addr) })
}

// GrantGovernorHandler POST /api/admin/governors/grant
func (h *ProtocolHandler) GrantGovernorHandler(c *gin.Context) {
	h.accountAction(c, "grant_governor", h.asOwner, h.proto.Gate.GrantGovernor)
}

// RevokeGovernorHandler POST /api/admin/governors/revoke
func (h *ProtocolHandler) RevokeGovernorHandler(c *gin.Context) {
	h.accountAction(c, "revoke_governor", h.asOwner, h.proto.Gate.RevokeGovernor)
}

// GrantTemplateHandler POST /api/admin/templates/grant
func (h *ProtocolHandler) GrantTemplateHandler(c *gin.Context) {
	h.accountAction(c, "grant_template", h.asGovernor, h.proto.Gate.GrantTemplate)
}

// RevokeTemplateHandler POST /api/admin/templates/revoke
func (h *ProtocolHandler) RevokeTemplateHandler(c *gin.Context) {
	h.accountAction(c, "revoke_template", h.asGovernor, h.proto.Gate.RevokeTemplate)
}

// GrantConditionHandler POST /api/admin/conditions/grant
func (h *ProtocolHandler) GrantConditionHandler(c *gin.Context) {
	h.accountAction(c, "grant_condition", h.asGovernor, h.proto.Gate.GrantCondition)
}

// RevokeConditionHandler POST /api/admin/conditions/revoke
func (h *ProtocolHandler) RevokeConditionHandler(c *gin.Context) {
	h.accountAction(c, "revoke_condition", h.asGovernor, h.proto.Gate.RevokeCondition)
}

// TransferOwnershipHandler POST /api/admin/ownership. The server keeps acting
// as the configured owner, so admin owner actions fail afterwards until the
// configuration is updated.
func (h *ProtocolHandler) TransferOwnershipHandler(c *gin.Context) {
	h.accountAction(c, "transfer_ownership", h.asOwner, h.proto.Gate.TransferOwnership)
}

// RegisterContractHandler POST /api/admin/contracts
func (h *ProtocolHandler) RegisterContractHandler(c *gin.Context) {
	var req dto.ContractRequest
	if !bindJSON(c, &req) {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if fail(c, err) {
		return
	}
	version := req.Version
	if version == 0 {
		version = 1
	}
	h.asGovernor(c, "register_contract", func(tx *chain.Tx) error {
		return h.proto.Gate.RegisterContract(tx, identifiers.ContractNameHash(req.Name), addr, version)
	})
}

// ResolveContractHandler GET /api/admin/contracts/:name
func (h *ProtocolHandler) ResolveContractHandler(c *gin.Context) {
	name := c.Param("name")
	var entry models.ContractEntry
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		entry, err = h.proto.Gate.ResolveContract(tx, identifiers.ContractNameHash(name))
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"name":      name,
		"name_hash": entry.NameHash.Hex(),
		"address":   entry.Address.Hex(),
		"version":   entry.Version,
	})
}

// ChangesHandler GET /api/admin/changes returns the gate's audit trail
func (h *ProtocolHandler) ChangesHandler(c *gin.Context) {
	var changes []models.ChangeRecord
	if !h.view(c, func(tx *chain.Tx) error {
		var err error
		changes, err = h.proto.Gate.Changes(tx)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "changes": changes, "total": len(changes)})
}

// FaucetHandler POST /api/admin/faucet credits native balance out of thin air
func (h *ProtocolHandler) FaucetHandler(c *gin.Context) {
	var req dto.FundRequest
	if !bindJSON(c, &req) {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if fail(c, err) {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if fail(c, err) {
		return
	}
	h.auditAdmin(c, "faucet", addr)
	receipt, err := h.proto.Runtime.Fund(c.Request.Context(), addr, amount)
	if fail(c, err) {
		return
	}
	c.JSON(http.StatusOK, dto.NewTxResponse(receipt, nil))
}
