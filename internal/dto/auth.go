package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Auth DTOs ====================

// NonceRequest asks for a login challenge for an address
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NonceResponse carries the challenge message the wallet must personal_sign
type NonceResponse struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthRequest Authentication request structure
type AuthRequest struct {
	Address   string `json:"address" binding:"required"`   // wallet address
	Nonce     string `json:"nonce" binding:"required"`     // nonce from /api/auth/nonce
	Signature string `json:"signature" binding:"required"` // personal_sign over the challenge message
}

// AuthResponse Authentication response structure
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminLoginRequest admin password + TOTP login
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// JWTClaims JWT Claims structure. Admin tokens carry Role "admin" and a
// Username instead of a wallet address.
type JWTClaims struct {
	UserAddress string `json:"user_address,omitempty"`
	Username    string `json:"username,omitempty"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
