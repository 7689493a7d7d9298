package handlers

import (
	"math/big"
	"net/http"

	"go-agreements/internal/chain"
	"go-agreements/internal/dto"
	"go-agreements/internal/tokens"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// VaultDepositHandler POST /api/vault/deposit. DEPOSITOR_ROLE only. A native
// deposit attaches amount as value.
func (h *ProtocolHandler) VaultDepositHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.VaultDepositRequest
	if !bindJSON(c, &req) {
		return
	}
	token, err := parseOptionalAddress("token", req.Token)
	if fail(c, err) {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if fail(c, err) {
		return
	}
	from, err := parseOptionalAddress("from", req.From)
	if fail(c, err) {
		return
	}
	if from == (common.Address{}) {
		from = caller
	}

	vault := h.proto.Vault
	if token == (common.Address{}) {
		h.execute(c, chain.Message{From: caller, To: vault.Address(), Value: amount}, vault.DepositNative, nil)
		return
	}
	h.execute(c, chain.Message{From: caller, To: vault.Address()}, func(tx *chain.Tx) error {
		return vault.DepositERC20(tx, token, amount, from)
	}, nil)
}

// VaultWithdrawHandler POST /api/vault/withdraw. WITHDRAW_ROLE only.
func (h *ProtocolHandler) VaultWithdrawHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.VaultWithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	token, err := parseOptionalAddress("token", req.Token)
	if fail(c, err) {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if fail(c, err) {
		return
	}
	receiver, err := parseAddress("receiver", req.Receiver)
	if fail(c, err) {
		return
	}

	vault := h.proto.Vault
	h.execute(c, chain.Message{From: caller, To: vault.Address()}, func(tx *chain.Tx) error {
		if token == (common.Address{}) {
			return vault.WithdrawNative(tx, amount, receiver)
		}
		return vault.WithdrawERC20(tx, token, amount, receiver)
	}, nil)
}

// VaultBalanceHandler GET /api/vault/balance?token=
func (h *ProtocolHandler) VaultBalanceHandler(c *gin.Context) {
	token, err := parseOptionalAddress("token", c.Query("token"))
	if fail(c, err) {
		return
	}
	var bal *big.Int
	if !h.view(c, func(tx *chain.Tx) error {
		if token == (common.Address{}) {
			bal, err = h.proto.Vault.BalanceNative(tx)
		} else {
			bal, err = h.proto.Vault.BalanceERC20(tx, token)
		}
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"vault":   h.proto.Vault.Address().Hex(),
		"token":   token.Hex(),
		"balance": bal.String(),
	})
}

// ListTokensHandler GET /api/tokens
func (h *ProtocolHandler) ListTokensHandler(c *gin.Context) {
	all := h.proto.Tokens.All()
	views := make([]dto.TokenView, 0, len(all))
	if !h.view(c, func(tx *chain.Tx) error {
		for _, t := range all {
			supply, err := t.TotalSupply(tx)
			if err != nil {
				return err
			}
			views = append(views, tokenView(t, supply))
		}
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": views})
}

func tokenView(t *tokens.ERC20, supply *big.Int) dto.TokenView {
	return dto.TokenView{
		Address:     t.Address().Hex(),
		Name:        t.Name(),
		Symbol:      t.Symbol(),
		Decimals:    t.Decimals(),
		TotalSupply: dto.Amount(supply),
	}
}

// TokenBalanceHandler GET /api/tokens/:token/balance?owner=&spender=
// Adds the allowance when spender is given.
func (h *ProtocolHandler) TokenBalanceHandler(c *gin.Context) {
	t, err := h.token(c.Param("token"))
	if fail(c, err) {
		return
	}
	owner, err := parseAddress("owner", c.Query("owner"))
	if fail(c, err) {
		return
	}
	spender, err := parseOptionalAddress("spender", c.Query("spender"))
	if fail(c, err) {
		return
	}

	var bal, allowance *big.Int
	if !h.view(c, func(tx *chain.Tx) error {
		if bal, err = t.BalanceOf(tx, owner); err != nil {
			return err
		}
		if spender != (common.Address{}) {
			allowance, err = t.Allowance(tx, owner, spender)
		}
		return err
	}) {
		return
	}
	resp := gin.H{"success": true, "token": t.Address().Hex(), "owner": owner.Hex(), "balance": bal.String()}
	if allowance != nil {
		resp["spender"] = spender.Hex()
		resp["allowance"] = allowance.String()
	}
	c.JSON(http.StatusOK, resp)
}

// TokenTransferHandler POST /api/tokens/:token/transfer
func (h *ProtocolHandler) TokenTransferHandler(c *gin.Context) {
	h.tokenWrite(c, func(tx *chain.Tx, t *tokens.ERC20, to common.Address, amount *big.Int) error {
		return t.Transfer(tx, to, amount)
	})
}

// TokenMintHandler POST /api/tokens/:token/mint. Token minter only.
func (h *ProtocolHandler) TokenMintHandler(c *gin.Context) {
	h.tokenWrite(c, func(tx *chain.Tx, t *tokens.ERC20, to common.Address, amount *big.Int) error {
		return t.Mint(tx, to, amount)
	})
}

func (h *ProtocolHandler) tokenWrite(c *gin.Context, op func(tx *chain.Tx, t *tokens.ERC20, to common.Address, amount *big.Int) error) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	t, err := h.token(c.Param("token"))
	if fail(c, err) {
		return
	}
	var req dto.TokenTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	to, err := parseAddress("to", req.To)
	if fail(c, err) {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if fail(c, err) {
		return
	}
	h.execute(c, chain.Message{From: caller, To: t.Address()}, func(tx *chain.Tx) error {
		return op(tx, t, to, amount)
	}, nil)
}

// TokenApproveHandler POST /api/tokens/:token/approve
func (h *ProtocolHandler) TokenApproveHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	t, err := h.token(c.Param("token"))
	if fail(c, err) {
		return
	}
	var req dto.TokenApproveRequest
	if !bindJSON(c, &req) {
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if fail(c, err) {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if fail(c, err) {
		return
	}
	h.execute(c, chain.Message{From: caller, To: t.Address()}, func(tx *chain.Tx) error {
		return t.Approve(tx, spender, amount)
	}, nil)
}
