package handlers

import (
	"log"
	"net/http"
	"strings"

	"go-agreements/internal/dto"
	"go-agreements/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler authenticates /ws upgrades and hands them to the push hub
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// HandleWebSocket GET /ws?token=... Wallet tokens receive events naming their
// address; admin tokens receive every event.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	claims := h.extractClaims(c.Request)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized",
			"code":    "INVALID_TOKEN",
		})
		return
	}

	identity, watchAll := claims.UserAddress, false
	if claims.Role == dto.RoleAdmin {
		identity, watchAll = "admin:"+claims.Username, true
	}
	log.Printf("📡 WebSocket upgrade requested by %s", identity)
	h.pushService.HandleWebSocket(c.Writer, c.Request, identity, watchAll)
}

// ConnectionStatusHandler GET /api/ws/status
func (h *WebSocketHandler) ConnectionStatusHandler(c *gin.Context) {
	resp := gin.H{
		"success":            true,
		"active_connections": h.pushService.GetActiveConnections(),
	}
	if addr, ok := callerAddress(c); ok {
		resp["user_connections"] = h.pushService.GetUserConnections(strings.ToLower(addr.Hex()))
	}
	c.JSON(http.StatusOK, resp)
}

// extractClaims reads the token from the query string or the Authorization header
func (h *WebSocketHandler) extractClaims(r *http.Request) *JWTClaims {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		return nil
	}

	claims, err := ValidateJWTToken(token)
	if err != nil {
		log.Printf("❌ WebSocket JWT validation failed: %v", err)
		return nil
	}
	return claims
}
