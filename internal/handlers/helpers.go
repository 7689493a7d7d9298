package handlers

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"go-agreements/internal/dto"
	"go-agreements/internal/errs"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// respondWithError unified error response function
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"success": false,
		"error":   errorType,
		"message": message,
		"code":    errorType,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}

// StatusForError maps a protocol error kind to an HTTP status
func StatusForError(err error) int {
	switch errs.KindOf(err) {
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondProtocolError(c *gin.Context, err error) {
	status := StatusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondWithError(c, status, errs.NameOf(err), message, nil)
}

// bindJSON binds the body or writes a 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondWithError(c, http.StatusBadRequest, "InvalidRequest", err.Error(), nil)
		return false
	}
	return true
}

// callerAddress returns the wallet address set by the auth middleware
func callerAddress(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get("user_address")
	if !ok {
		return common.Address{}, false
	}
	s, ok := v.(string)
	if !ok || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func requireCaller(c *gin.Context) (common.Address, bool) {
	addr, ok := callerAddress(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, "Unauthenticated", "a wallet token is required", nil)
	}
	return addr, ok
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errs.ErrInvalidAddress.With("%s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseOptionalAddress treats the empty string as the zero address
func parseOptionalAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, s)
}

func parseAddresses(field string, ss []string) ([]common.Address, error) {
	out := make([]common.Address, len(ss))
	for i, s := range ss {
		a, err := parseAddress(field, s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// parseHash accepts 0x-prefixed hex of at most 32 bytes, left padded
func parseHash(field, s string) (common.Hash, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if raw == "" || len(raw) > 2*common.HashLength {
		return common.Hash{}, errs.ErrInvalidEncoding.With("%s: %q is not a 32-byte hex value", field, s)
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return common.Hash{}, errs.ErrInvalidEncoding.With("%s: %q is not hex", field, s)
	}
	return common.BytesToHash(b), nil
}

func parseHashes(field string, ss []string) ([]common.Hash, error) {
	out := make([]common.Hash, len(ss))
	for i, s := range ss {
		h, err := parseHash(field, s)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

// parseAmount accepts a non-negative decimal or 0x hex integer; empty is nil
func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, errs.ErrInvalidTransactionAmount.With("%s: %q is not a non-negative integer", field, s)
	}
	return v, nil
}

// parseRequiredAmount is parseAmount where empty means zero
func parseRequiredAmount(field, s string) (*big.Int, error) {
	v, err := parseAmount(field, s)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return new(big.Int), nil
	}
	return v, nil
}

func parseAmounts(field string, ss []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		v, err := parseRequiredAmount(field, s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseBytes(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errs.ErrInvalidEncoding.With("%s: not hex", field)
	}
	return b, nil
}

func parsePrice(req dto.PriceConfigRequest) (models.PriceConfig, error) {
	token, err := parseOptionalAddress("token_address", req.TokenAddress)
	if err != nil {
		return models.PriceConfig{}, err
	}
	contract, err := parseOptionalAddress("contract_address", req.ContractAddress)
	if err != nil {
		return models.PriceConfig{}, err
	}
	amounts, err := parseAmounts("amounts", req.Amounts)
	if err != nil {
		return models.PriceConfig{}, err
	}
	receivers, err := parseAddresses("receivers", req.Receivers)
	if err != nil {
		return models.PriceConfig{}, err
	}
	return models.PriceConfig{
		PriceType:       models.PriceType(req.PriceType),
		TokenAddress:    token,
		Amounts:         amounts,
		Receivers:       receivers,
		ContractAddress: contract,
	}, nil
}

func parseCredits(req dto.CreditsConfigRequest) (models.CreditsConfig, error) {
	amount, err := parseRequiredAmount("credits.amount", req.Amount)
	if err != nil {
		return models.CreditsConfig{}, err
	}
	minAmount, err := parseRequiredAmount("credits.min_amount", req.MinAmount)
	if err != nil {
		return models.CreditsConfig{}, err
	}
	maxAmount, err := parseRequiredAmount("credits.max_amount", req.MaxAmount)
	if err != nil {
		return models.CreditsConfig{}, err
	}
	return models.CreditsConfig{
		CreditsType:    models.CreditsType(req.CreditsType),
		RedemptionType: models.RedemptionType(req.RedemptionType),
		ProofRequired:  req.ProofRequired,
		DurationSecs:   req.DurationSecs,
		Amount:         amount,
		MinAmount:      minAmount,
		MaxAmount:      maxAmount,
	}, nil
}
