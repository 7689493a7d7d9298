package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go-agreements/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenTTL = 8 * time.Hour

// AdminCredentials password + TOTP secret pair guarding /api/admin.
// Password may be plain text or a bcrypt hash ($2a$/$2b$/$2y$).
type AdminCredentials struct {
	Username   string
	Password   string
	TOTPSecret string
}

// AdminCredentialsFromEnv reads ADMIN_USERNAME, ADMIN_PASSWORD and ADMIN_TOTP_SECRET
func AdminCredentialsFromEnv() AdminCredentials {
	creds := AdminCredentials{
		Username:   os.Getenv("ADMIN_USERNAME"),
		Password:   os.Getenv("ADMIN_PASSWORD"),
		TOTPSecret: os.Getenv("ADMIN_TOTP_SECRET"),
	}
	if creds.Username == "" {
		creds.Username = "admin"
	}
	return creds
}

// AdminAuthHandler 管理员认证处理器
type AdminAuthHandler struct {
	creds  AdminCredentials
	now    func() time.Time
	logger *logrus.Logger
}

// NewAdminAuthHandler 创建管理员认证处理器
func NewAdminAuthHandler(creds AdminCredentials, logger *logrus.Logger) *AdminAuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if creds.TOTPSecret == "" || creds.Password == "" {
		logger.Warn("⚠️ ADMIN_TOTP_SECRET or ADMIN_PASSWORD not set, admin login is disabled")
	}
	return &AdminAuthHandler{creds: creds, now: time.Now, logger: logger}
}

// AdminLoginHandler POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.creds.TOTPSecret == "" || h.creds.Password == "" {
		c.JSON(http.StatusServiceUnavailable, AuthResponse{
			Success: false,
			Message: "admin login is not configured",
		})
		return
	}

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{
			Success: false,
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.creds.Username)) == 1
	passOK := checkAdminPassword(h.creds.Password, req.Password)
	if !userOK || !passOK {
		h.logger.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Warn("🔐 Admin login rejected")
		c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "invalid credentials"})
		return
	}

	valid, err := totp.ValidateCustom(req.TOTPCode, h.creds.TOTPSecret, h.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "invalid TOTP code"})
		return
	}

	token, err := GenerateAdminJWTToken(req.Username, adminTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: "token generation failed"})
		return
	}

	h.logger.WithField("username", req.Username).Info("✅ Admin authenticated")
	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler POST /api/admin/totp. Only served while no
// secret is configured, to bootstrap an authenticator app.
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if h.creds.TOTPSecret != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "TOTP secret already configured",
		})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "go-agreements",
		AccountName: h.creds.Username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Store this secret in ADMIN_TOTP_SECRET and restart",
	})
}

// GenerateAdminJWTToken issues an admin token
func GenerateAdminJWTToken(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	return signClaims(JWTClaims{
		Username: username,
		Role:     dto.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   username,
		},
	})
}

func checkAdminPassword(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(stored)) == 1
}
