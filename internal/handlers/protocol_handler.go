package handlers

import (
	"net/http"
	"strings"

	"go-agreements/internal/chain"
	"go-agreements/internal/credits"
	"go-agreements/internal/dto"
	"go-agreements/internal/errs"
	"go-agreements/internal/protocol"
	"go-agreements/internal/repository"
	"go-agreements/internal/tokens"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Operators are the accounts admin endpoints act as
type Operators struct {
	Owner    common.Address
	Governor common.Address
}

// ProtocolHandler exposes the protocol entry points over HTTP. Writes run as
// the authenticated wallet; admin writes run as the configured operators.
type ProtocolHandler struct {
	proto     *protocol.Protocol
	eventLogs repository.EventLogRepository // nil when no database is configured
	operators Operators
	logger    *logrus.Logger
}

// NewProtocolHandler creates a ProtocolHandler
func NewProtocolHandler(proto *protocol.Protocol, eventLogs repository.EventLogRepository, operators Operators, logger *logrus.Logger) *ProtocolHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProtocolHandler{proto: proto, eventLogs: eventLogs, operators: operators, logger: logger}
}

// execute submits one transaction and writes its receipt. result is read
// after commit so it can capture values assigned inside fn.
func (h *ProtocolHandler) execute(c *gin.Context, msg chain.Message, fn func(tx *chain.Tx) error, result func() interface{}) {
	receipt, err := h.proto.Runtime.Execute(c.Request.Context(), msg, fn)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"from":  msg.From.Hex(),
			"error": errs.NameOf(err),
		}).Debug("Request reverted")
		respondProtocolError(c, err)
		return
	}
	var res interface{}
	if result != nil {
		res = result()
	}
	c.JSON(http.StatusOK, dto.NewTxResponse(receipt, res))
}

// view runs a read-only call as the caller (or the zero address)
func (h *ProtocolHandler) view(c *gin.Context, fn func(tx *chain.Tx) error) bool {
	from, _ := callerAddress(c)
	if err := h.proto.Runtime.View(c.Request.Context(), from, fn); err != nil {
		respondProtocolError(c, err)
		return false
	}
	return true
}

// fail writes err unless it is nil
func fail(c *gin.Context, err error) bool {
	if err != nil {
		respondProtocolError(c, err)
		return true
	}
	return false
}

// ledger resolves "fixed", "expirable", a contract name or an address
func (h *ProtocolHandler) ledger(ref string) (*credits.Ledger, error) {
	switch strings.ToLower(ref) {
	case "fixed", strings.ToLower(credits.FixedContractName):
		return h.proto.Fixed, nil
	case "expirable", strings.ToLower(credits.ExpirableContractName):
		return h.proto.Expirable, nil
	}
	if common.IsHexAddress(ref) {
		if l, ok := h.proto.Ledgers.At(common.HexToAddress(ref)); ok {
			return l, nil
		}
	}
	return nil, errs.ErrInvalidCreditsLedger.With("unknown credits ledger %q", ref)
}

func (h *ProtocolHandler) token(ref string) (*tokens.ERC20, error) {
	addr, err := parseAddress("token", ref)
	if err != nil {
		return nil, err
	}
	t, ok := h.proto.Tokens.Lookup(addr)
	if !ok {
		return nil, errs.ErrContractNotFound.With("no token at %s", addr.Hex())
	}
	return t, nil
}

// ListContractsHandler GET /api/contracts
func (h *ProtocolHandler) ListContractsHandler(c *gin.Context) {
	contracts := h.proto.Contracts()
	list := make([]gin.H, 0, len(contracts))
	for _, ct := range contracts {
		list = append(list, gin.H{"name": ct.Name, "address": ct.Address.Hex()})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"chain_id":  h.proto.ChainID.String(),
		"contracts": list,
	})
}

// NativeBalanceHandler GET /api/balances/:address
func (h *ProtocolHandler) NativeBalanceHandler(c *gin.Context) {
	addr, err := parseAddress("address", c.Param("address"))
	if fail(c, err) {
		return
	}
	bal, err := h.proto.Runtime.Balance(c.Request.Context(), addr)
	if fail(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "address": addr.Hex(), "balance": bal.String()})
}
