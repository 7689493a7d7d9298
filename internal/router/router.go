package router

import (
	"net/http"
	"strconv"
	"strings"

	"go-agreements/internal/config"
	"go-agreements/internal/handlers"
	"go-agreements/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers are the HTTP handlers the router mounts
type Handlers struct {
	Protocol  *handlers.ProtocolHandler
	Auth      *handlers.AuthHandler
	AdminAuth *handlers.AdminAuthHandler
	WebSocket *handlers.WebSocketHandler
	// Readiness checks served on /api/ready
	Readiness map[string]func() error
}

// corsMiddleware CORS middleware
// Priority: Environment Variable (applied to AppConfig at load) > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	allowedOrigins := []string{"*"}
	allowCredentials := false
	maxAge := 3600
	if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
		allowedOrigins = config.AppConfig.CORS.AllowedOrigins
		allowCredentials = config.AppConfig.CORS.AllowCredentials
		if config.AppConfig.CORS.MaxAge > 0 {
			maxAge = config.AppConfig.CORS.MaxAge
		}
	}
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			} else {
				logrus.WithFields(logrus.Fields{
					"request_origin":  origin,
					"allowed_origins": allowedOrigins,
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Next()
	}
}

// SetupRouter builds the gin engine with every route
func SetupRouter(h Handlers, logger *logrus.Logger) *gin.Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware())

	var allowedIPs []string
	if config.AppConfig != nil && len(config.AppConfig.Admin.AllowedIPs) > 0 {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
		logger.WithFields(logrus.Fields{
			"allowed_ips": allowedIPs,
			"count":       len(allowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)
	auth := middleware.NewAuthMiddleware(logger)
	adminAuth := middleware.NewAdminAuthMiddleware(logger)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", handlers.HealthCheckHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.WebSocket != nil {
		r.GET("/ws", h.WebSocket.HandleWebSocket)
	}

	api := r.Group("/api")
	api.GET("/health", handlers.HealthCheckHandler)
	api.GET("/ready", handlers.ReadinessHandler(h.Readiness))

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/nonce", h.Auth.GenerateNonceHandler)
		authGroup.POST("/login", h.Auth.AuthenticateHandler)
	}

	p := h.Protocol
	public := api.Group("", auth.OptionalAuth())
	{
		public.GET("/contracts", p.ListContractsHandler)
		public.GET("/balances/:address", p.NativeBalanceHandler)

		public.GET("/fees", p.NetworkFeesHandler)
		public.POST("/fees/distribution", p.FeeDistributionHandler)

		public.GET("/plans", p.ListPlansHandler)
		public.GET("/plans/:id", p.GetPlanHandler)
		public.GET("/assets", p.ListAssetsHandler)
		public.GET("/assets/:did", p.GetAssetHandler)

		public.GET("/agreements", p.ListAgreementsHandler)
		public.GET("/agreements/:id", p.GetAgreementHandler)
		public.GET("/agreements/:id/conditions/:condition", p.GetConditionStateHandler)
		public.GET("/agreements/:id/events", p.AgreementEventsHandler)

		public.GET("/credits/:ledger/balance", p.CreditsBalanceHandler)
		public.GET("/credits/:ledger/batches", p.CreditsBatchesHandler)
		public.GET("/credits/:ledger/nonces", p.CreditsNoncesHandler)
		public.GET("/credits/:ledger/domain", p.CreditsDomainHandler)

		public.GET("/vault/balance", p.VaultBalanceHandler)
		public.GET("/tokens", p.ListTokensHandler)
		public.GET("/tokens/:token/balance", p.TokenBalanceHandler)

		public.GET("/events", p.ListEventsHandler)
		public.GET("/events/tx/:hash", p.TransactionEventsHandler)

		if h.WebSocket != nil {
			public.GET("/ws/status", h.WebSocket.ConnectionStatusHandler)
		}
	}

	wallet := api.Group("", auth.RequireAuth())
	{
		wallet.POST("/plans", p.CreatePlanHandler)
		wallet.POST("/assets", p.RegisterAssetHandler)
		wallet.POST("/assets/with-plan", p.RegisterAssetAndPlanHandler)
		wallet.POST("/assets/:did/plans", p.AddPlanToAssetHandler)

		wallet.POST("/agreements", p.CreateAgreementHandler)
		wallet.POST("/agreements/fiat", p.CreateFiatAgreementHandler)
		wallet.POST("/conditions/:condition/fulfill", p.FulfillConditionHandler)
		wallet.POST("/conditions/:condition/abort", p.AbortConditionHandler)

		wallet.POST("/credits/:ledger/mint", p.MintCreditsHandler)
		wallet.POST("/credits/:ledger/burn", p.BurnCreditsHandler)

		wallet.POST("/vault/deposit", p.VaultDepositHandler)
		wallet.POST("/vault/withdraw", p.VaultWithdrawHandler)

		wallet.POST("/tokens/:token/transfer", p.TokenTransferHandler)
		wallet.POST("/tokens/:token/approve", p.TokenApproveHandler)
		wallet.POST("/tokens/:token/mint", p.TokenMintHandler)
	}

	adminLogin := api.Group("/admin", localhostOnly.Restrict())
	{
		adminLogin.POST("/login", h.AdminAuth.AdminLoginHandler)
		adminLogin.POST("/totp", h.AdminAuth.GenerateTOTPSecretHandler)
	}

	admin := api.Group("/admin", localhostOnly.Restrict(), adminAuth.RequireAdminAuth())
	{
		admin.PUT("/fees", p.SetNetworkFeesHandler)
		admin.POST("/roles/grant", p.GrantRoleHandler)
		admin.POST("/roles/revoke", p.RevokeRoleHandler)
		admin.GET("/roles/:role/members", p.RoleMembersHandler)
		admin.POST("/governors/grant", p.GrantGovernorHandler)
		admin.POST("/governors/revoke", p.RevokeGovernorHandler)
		admin.POST("/templates/grant", p.GrantTemplateHandler)
		admin.POST("/templates/revoke", p.RevokeTemplateHandler)
		admin.POST("/conditions/grant", p.GrantConditionHandler)
		admin.POST("/conditions/revoke", p.RevokeConditionHandler)
		admin.POST("/ownership", p.TransferOwnershipHandler)
		admin.POST("/contracts", p.RegisterContractHandler)
		admin.GET("/contracts/:name", p.ResolveContractHandler)
		admin.GET("/changes", p.ChangesHandler)
		admin.POST("/faucet", p.FaucetHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success":    false,
			"error":      "NotFound",
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api endpoints for available APIs",
		})
	})

	return r
}
