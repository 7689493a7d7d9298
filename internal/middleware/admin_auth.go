package middleware

import (
	"net/http"

	"go-agreements/internal/dto"
	"go-agreements/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware 管理员认证中间件
type AdminAuthMiddleware struct {
	logger *logrus.Logger
}

// NewAdminAuthMiddleware 创建管理员认证中间件
func NewAdminAuthMiddleware(logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		logger: logger,
	}
}

// RequireAdminAuth 要求管理员认证
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}

		tokenString, code := bearerToken(c)
		if code != "" {
			a.logger.WithFields(fields).Warn("Admin auth failed - " + code)
			abortUnauthorized(c, "Authentication required", "Admin endpoints need a Bearer admin token", code)
			return
		}

		claims, err := handlers.ValidateJWTToken(tokenString)
		if err != nil {
			fields["error"] = err.Error()
			a.logger.WithFields(fields).Warn("Admin auth failed - invalid token")
			abortUnauthorized(c, "Invalid or expired token", err.Error(), "INVALID_TOKEN")
			return
		}

		if claims.Role != dto.RoleAdmin {
			fields["role"] = claims.Role
			a.logger.WithFields(fields).Warn("Admin auth failed - insufficient permissions")

			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Insufficient permissions",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)

		c.Next()
	}
}
