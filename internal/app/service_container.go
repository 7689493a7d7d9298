package app

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"sync"

	"go-agreements/internal/access"
	"go-agreements/internal/chain"
	"go-agreements/internal/clients"
	"go-agreements/internal/config"
	"go-agreements/internal/db"
	"go-agreements/internal/events"
	"go-agreements/internal/handlers"
	"go-agreements/internal/protocol"
	"go-agreements/internal/repository"
	"go-agreements/internal/router"
	"go-agreements/internal/services"
	"go-agreements/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer holds every long-lived component of the server
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database (nil without a DSN)
	DB *gorm.DB

	// Repositories
	StateStore   state.Store
	EventLogRepo repository.EventLogRepository

	// Protocol
	Runtime  *chain.Runtime
	Protocol *protocol.Protocol
	Settings protocol.Settings

	// Event sinks
	NATSClient           *clients.NATSClient
	WebSocketPushService *services.WebSocketPushService

	// Monitoring Service
	MonitoringService *services.MonitoringService

	// HTTP handlers
	ProtocolHandler  *handlers.ProtocolHandler
	AuthHandler      *handlers.AuthHandler
	AdminAuthHandler *handlers.AdminAuthHandler
	WebSocketHandler *handlers.WebSocketHandler
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the global container from config.AppConfig
func InitializeContainer(ctx context.Context) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		if config.AppConfig == nil {
			initErr = fmt.Errorf("configuration not loaded")
			return
		}
		container, err := NewServiceContainer(ctx, config.AppConfig, logrus.StandardLogger())
		if err != nil {
			initErr = err
			return
		}
		Container = container
	})

	return Container, initErr
}

// NewServiceContainer deploys the protocol described by cfg and wires its
// storage, sinks and handlers.
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	log.Println("🚀 Initializing Service Container...")

	c := &ServiceContainer{Config: cfg, Logger: logger}

	// 1. Initialize Repositories
	if err := c.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// 2. Deploy and bootstrap the protocol
	if err := c.initProtocol(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize protocol: %w", err)
	}

	// 3. Initialize Event Services (optional, based on config)
	if err := c.initEventServices(); err != nil {
		// Event services are optional, log but don't fail
		log.Printf("⚠️ Event services initialization skipped or failed: %v", err)
	}

	c.initHandlers()

	c.MonitoringService = services.NewMonitoringService(c.DB, c.NATSClient, c.Protocol)
	c.MonitoringService.Start()

	if err := c.writeDeployment(); err != nil {
		log.Printf("⚠️ Failed to write deployment manifest: %v", err)
	}

	log.Println("✅ Service Container initialized successfully")
	return c, nil
}

// initRepositories opens the database when configured and picks the state backend
func (c *ServiceContainer) initRepositories() error {
	log.Println("📦 Initializing Repositories...")

	if c.Config.Database.DSN != "" {
		if db.DB == nil {
			if err := db.InitDB(); err != nil {
				return err
			}
		}
		c.DB = db.DB
		c.EventLogRepo = repository.NewEventLogRepository(c.DB)
	}

	switch strings.ToLower(c.Config.State.Backend) {
	case "", "memory":
		c.StateStore = state.NewMemoryStore()
		log.Println("✅ State backend: memory")
	case "postgres":
		if c.DB == nil {
			return fmt.Errorf("state backend postgres requires database.dsn")
		}
		c.StateStore = repository.NewStateRepository(c.DB)
		log.Println("✅ State backend: postgres")
	default:
		return fmt.Errorf("unknown state backend %q", c.Config.State.Backend)
	}
	return nil
}

func (c *ServiceContainer) initProtocol(ctx context.Context) error {
	log.Println("📦 Deploying protocol contracts...")

	pc := c.Config.Protocol
	owner, err := requiredAddress("protocol.ownerAddress", pc.OwnerAddress)
	if err != nil {
		return err
	}
	governor, err := requiredAddress("protocol.governorAddress", pc.GovernorAddress)
	if err != nil {
		return err
	}
	feeReceiver := common.Address{}
	if pc.NetworkFee.Receiver != "" {
		if feeReceiver, err = requiredAddress("protocol.networkFee.receiver", pc.NetworkFee.Receiver); err != nil {
			return err
		}
	}
	grants, err := c.operatorGrants()
	if err != nil {
		return err
	}
	c.Settings = protocol.Settings{
		Owner:       owner,
		Governor:    governor,
		FeeRate:     big.NewInt(pc.NetworkFee.Rate),
		FeeReceiver: feeReceiver,
		Grants:      grants,
	}

	c.Runtime = chain.NewRuntime(c.StateStore, chain.SystemClock{}, c.Logger)
	c.Protocol = protocol.Deploy(c.Runtime, big.NewInt(pc.ChainID), c.Logger)

	for _, t := range c.Config.Tokens {
		minter := owner
		if t.Minter != "" {
			if minter, err = requiredAddress("tokens.minter", t.Minter); err != nil {
				return err
			}
		}
		token := c.Protocol.DeployToken(t.Name, t.Symbol, t.Decimals, minter)
		c.Logger.WithFields(logrus.Fields{
			"symbol":  t.Symbol,
			"address": token.Address().Hex(),
			"minter":  minter.Hex(),
		}).Info("🪙 Token deployed")
	}

	var initialized bool
	if err := c.Runtime.View(ctx, owner, func(tx *chain.Tx) error {
		var err error
		initialized, err = c.Protocol.Gate.Initialized(tx)
		return err
	}); err != nil {
		return err
	}
	if !initialized {
		if err := c.fundGenesis(ctx); err != nil {
			return err
		}
	}

	return c.Protocol.Bootstrap(ctx, c.Settings)
}

// fundGenesis credits the configured native balances on a fresh state
func (c *ServiceContainer) fundGenesis(ctx context.Context) error {
	addrs := make([]string, 0, len(c.Config.Genesis.Balances))
	for addr := range c.Config.Genesis.Balances {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, raw := range addrs {
		addr, err := requiredAddress("genesis.balances", raw)
		if err != nil {
			return err
		}
		amount, ok := new(big.Int).SetString(c.Config.Genesis.Balances[raw], 0)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("genesis balance for %s is not a non-negative integer", raw)
		}
		if _, err := c.Runtime.Fund(ctx, addr, amount); err != nil {
			return fmt.Errorf("fund %s: %w", addr.Hex(), err)
		}
		c.Logger.WithFields(logrus.Fields{"address": addr.Hex(), "amount": amount.String()}).Info("💰 Genesis balance funded")
	}
	return nil
}

// operatorGrants lists the roles for the configured oracles and burners. They
// are granted in the gate initialization transaction.
func (c *ServiceContainer) operatorGrants() ([]protocol.Grant, error) {
	sources := []struct {
		role  access.Role
		field string
		addrs []string
	}{
		{access.FiatSettlementRole, "protocol.fiatOracles", c.Config.Protocol.FiatOracles},
		{access.CreditsBurnerRole, "protocol.burners", c.Config.Protocol.Burners},
	}

	var grants []protocol.Grant
	for _, src := range sources {
		for _, raw := range src.addrs {
			addr, err := requiredAddress(src.field, raw)
			if err != nil {
				return nil, err
			}
			grants = append(grants, protocol.Grant{Role: src.role, Account: addr})
		}
	}
	return grants, nil
}

// initEventServices attaches the receipt sinks. Metrics and WebSocket push are
// always on, the event log needs the database and NATS needs a URL.
func (c *ServiceContainer) initEventServices() error {
	c.Runtime.AddSink(services.MetricsSink{})

	c.WebSocketPushService = services.NewWebSocketPushService()
	c.Runtime.AddSink(c.WebSocketPushService)

	if c.EventLogRepo != nil {
		c.Runtime.AddSink(services.NewEventRecorder(c.EventLogRepo, c.Logger))
		log.Println("✅ Event log recorder attached")
	}

	if c.Config.NATS.URL != "" {
		natsClient, err := events.InitNATSServices()
		if err != nil {
			return err
		}
		if natsClient != nil {
			c.NATSClient = natsClient
			c.Runtime.AddSink(events.NewNATSPublisher(natsClient, c.Logger))
		}
	}
	return nil
}

func (c *ServiceContainer) initHandlers() {
	c.ProtocolHandler = handlers.NewProtocolHandler(c.Protocol, c.EventLogRepo, handlers.Operators{
		Owner:    c.Settings.Owner,
		Governor: c.Settings.Governor,
	}, c.Logger)
	c.AuthHandler = handlers.NewAuthHandler(c.Logger)
	c.AdminAuthHandler = handlers.NewAdminAuthHandler(handlers.AdminCredentialsFromEnv(), c.Logger)
	if c.WebSocketPushService != nil {
		c.WebSocketHandler = handlers.NewWebSocketHandler(c.WebSocketPushService)
	}
}

// Router builds the HTTP engine over the container's handlers
func (c *ServiceContainer) Router() *gin.Engine {
	return router.SetupRouter(router.Handlers{
		Protocol:  c.ProtocolHandler,
		Auth:      c.AuthHandler,
		AdminAuth: c.AdminAuthHandler,
		WebSocket: c.WebSocketHandler,
		Readiness: c.readinessChecks(),
	}, c.Logger)
}

func (c *ServiceContainer) readinessChecks() map[string]func() error {
	checks := map[string]func() error{
		"protocol": func() error {
			return c.Runtime.View(context.Background(), c.Settings.Owner, func(tx *chain.Tx) error {
				ok, err := c.Protocol.Gate.Initialized(tx)
				if err == nil && !ok {
					err = fmt.Errorf("access gate not initialized")
				}
				return err
			})
		},
	}
	if c.DB != nil {
		checks["database"] = db.Ping
	}
	if c.NATSClient != nil {
		checks["nats"] = func() error {
			if !c.NATSClient.GetConnection().IsConnected() {
				return fmt.Errorf("nats disconnected")
			}
			return nil
		}
	}
	return checks
}

// writeDeployment records contract and token addresses for the CLI tools
func (c *ServiceContainer) writeDeployment() error {
	d := config.NewDeployment(c.Config.Protocol.ChainID)
	for _, ct := range c.Protocol.Contracts() {
		d.Contracts[ct.Name] = ct.Address.Hex()
	}
	for _, t := range c.Protocol.Tokens.All() {
		d.Tokens[t.Symbol()] = t.Address().Hex()
	}
	return config.WriteDeployment(config.DeploymentPath(c.Config.Protocol.ChainID), d)
}

// Cleanup
func (c *ServiceContainer) Cleanup() {
	log.Println("🧹 Cleaning up Service Container...")

	if c.MonitoringService != nil {
		c.MonitoringService.Stop()
	}

	if c.WebSocketPushService != nil {
		c.WebSocketPushService.Close()
	}

	if c.NATSClient != nil {
		c.NATSClient.Close()
	}

	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	log.Println("✅ Service Container cleaned up")
}

func requiredAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: %q is not a valid address", field, raw)
	}
	return common.HexToAddress(raw), nil
}
