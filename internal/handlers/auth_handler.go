package handlers

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go-agreements/internal/config"
	"go-agreements/internal/dto"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	nonceTTL  = 5 * time.Minute
	jwtIssuer = "go-agreements"
)

type AuthRequest = dto.AuthRequest
type AuthResponse = dto.AuthResponse
type JWTClaims = dto.JWTClaims

type pendingNonce struct {
	address   common.Address
	message   string
	expiresAt time.Time
}

// AuthHandler issues wallet JWTs after a personal_sign challenge
type AuthHandler struct {
	mu     sync.Mutex
	nonces map[string]pendingNonce
	now    func() time.Time
	logger *logrus.Logger
}

// NewAuthHandler createprocess
func NewAuthHandler(logger *logrus.Logger) *AuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{
		nonces: make(map[string]pendingNonce),
		now:    time.Now,
		logger: logger,
	}
}

// ChallengeMessage is the text a wallet signs to log in
func ChallengeMessage(address common.Address, nonce string, issuedAt int64) string {
	return fmt.Sprintf("go-agreements authentication\nAddress: %s\nNonce: %s\nIssued: %d", address.Hex(), nonce, issuedAt)
}

// GenerateNonceHandler POST /api/auth/nonce
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	var req dto.NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "InvalidRequest", err.Error(), nil)
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondWithError(c, http.StatusBadRequest, "InvalidAddress", "address must be a 20-byte hex address", nil)
		return
	}
	address := common.HexToAddress(req.Address)

	now := h.now()
	nonce := uuid.NewString()
	message := ChallengeMessage(address, nonce, now.Unix())
	expiresAt := now.Add(nonceTTL)

	h.mu.Lock()
	h.pruneLocked(now)
	h.nonces[nonce] = pendingNonce{address: address, message: message, expiresAt: expiresAt}
	h.mu.Unlock()

	c.JSON(http.StatusOK, dto.NonceResponse{
		Success:   true,
		Nonce:     nonce,
		Message:   message,
		ExpiresAt: expiresAt.Unix(),
	})
}

// AuthenticateHandler POST /api/auth/login
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{
			Success: false,
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, AuthResponse{Success: false, Message: "invalid address"})
		return
	}
	address := common.HexToAddress(req.Address)

	// nonces are single use whether or not the signature checks out
	h.mu.Lock()
	pending, ok := h.nonces[req.Nonce]
	delete(h.nonces, req.Nonce)
	h.mu.Unlock()

	if !ok || h.now().After(pending.expiresAt) || pending.address != address {
		c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "unknown or expired nonce"})
		return
	}

	signer, err := RecoverPersonalSigner(pending.message, req.Signature)
	if err != nil || signer != address {
		h.logger.WithFields(logrus.Fields{
			"address": address.Hex(),
			"signer":  signer.Hex(),
		}).Warn("🔐 Login signature rejected")
		c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "signature does not match address"})
		return
	}

	token, err := GenerateJWTToken(address, config.GetTokenTTL())
	if err != nil {
		h.logger.WithError(err).Error("❌ JWT signing failed")
		c.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: "token generation failed"})
		return
	}

	h.logger.WithField("address", address.Hex()).Info("✅ Wallet authenticated")
	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Token:   token,
		Message: "success",
	})
}

func (h *AuthHandler) pruneLocked(now time.Time) {
	for k, v := range h.nonces {
		if now.After(v.expiresAt) {
			delete(h.nonces, k)
		}
	}
}

// RecoverPersonalSigner recovers the address that personal_signed message.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverPersonalSigner(message, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// GenerateJWTToken issues a wallet token for address
func GenerateJWTToken(address common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserAddress: address.Hex(),
		Role:        dto.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   address.Hex(),
		},
	}
	return signClaims(claims)
}

func signClaims(claims JWTClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(config.GetJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWTToken parses and verifies a token issued by this service
func ValidateJWTToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.GetJWTSecret()), nil
	}, jwt.WithIssuer(jwtIssuer))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
