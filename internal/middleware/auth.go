package middleware

import (
	"net/http"
	"strings"

	"go-agreements/internal/dto"
	"go-agreements/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware JWT authentication for wallet callers
type AuthMiddleware struct {
	logger *logrus.Logger
}

// NewAuthMiddleware createJWT
func NewAuthMiddleware(logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		logger: logger,
	}
}

func abortUnauthorized(c *gin.Context, errorText, message, code string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   errorText,
		"message": message,
		"code":    code,
	})
	c.Abort()
}

// bearerToken extracts the token, or returns the failure code
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "MISSING_AUTH_HEADER"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "INVALID_AUTH_FORMAT"
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return "", "EMPTY_TOKEN"
	}
	return tokenString, ""
}

// RequireAuth requires a wallet JWT and stores the caller address
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}

		tokenString, code := bearerToken(c)
		switch code {
		case "MISSING_AUTH_HEADER":
			a.logger.WithFields(fields).Warn("JWT auth failed - missing Authorization header")
			abortUnauthorized(c, "Authentication required", "Missing Authorization header. Please provide a valid JWT token.", code)
			return
		case "INVALID_AUTH_FORMAT":
			a.logger.WithFields(fields).Warn("JWT auth failed - invalid Authorization format")
			abortUnauthorized(c, "Invalid authorization format", "Authorization header must be in format: Bearer <token>", code)
			return
		case "EMPTY_TOKEN":
			a.logger.WithFields(fields).Warn("JWT auth failed - empty token")
			abortUnauthorized(c, "Empty token", "Token cannot be empty", code)
			return
		}

		claims, err := handlers.ValidateJWTToken(tokenString)
		if err != nil {
			fields["error"] = err.Error()
			a.logger.WithFields(fields).Warn("JWT auth failed - token verification failed")
			abortUnauthorized(c, "Invalid or expired token", err.Error(), "INVALID_TOKEN")
			return
		}
		if claims.Role != dto.RoleUser || claims.UserAddress == "" {
			a.logger.WithFields(fields).Warn("JWT auth failed - not a wallet token")
			abortUnauthorized(c, "Wallet token required", "This endpoint acts on behalf of a wallet address", "WALLET_TOKEN_REQUIRED")
			return
		}

		c.Set("user_address", claims.UserAddress)
		c.Set("role", claims.Role)

		fields["user_address"] = claims.UserAddress
		a.logger.WithFields(fields).Debug("JWT auth succeeded")

		c.Next()
	}
}

// OptionalAuth sets the caller address when a valid wallet token is present
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := bearerToken(c)
		if code != "" {
			c.Next()
			return
		}

		claims, err := handlers.ValidateJWTToken(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Debug("Optional JWT auth ignored invalid token")
			c.Next()
			return
		}

		c.Set("role", claims.Role)
		if claims.Role == dto.RoleUser {
			c.Set("user_address", claims.UserAddress)
		}
		c.Next()
	}
}
