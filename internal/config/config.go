package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	State    StateConfig    `yaml:"state"`
	NATS     NATSConfig     `yaml:"nats"`
	CORS     CORSConfig     `yaml:"cors"`     // CORS configuration
	Admin    AdminConfig    `yaml:"admin"`    // Admin API access control configuration
	Auth     AuthConfig     `yaml:"auth"`     // JWT issuing
	Protocol ProtocolConfig `yaml:"protocol"` // Bootstrap settings
	Genesis  GenesisConfig  `yaml:"genesis"`
	Tokens   []TokenConfig  `yaml:"tokens"` // ERC20 tokens deployed at startup
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// StateConfig selects where committed protocol state lives
type StateConfig struct {
	Backend string `yaml:"backend"` // memory | postgres
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	SubjectPrefix   string `yaml:"subject_prefix"`
	Stream          string `yaml:"stream"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`   // List of allowed origins
	AllowCredentials bool     `yaml:"allowCredentials"` // Whether to allow credentials
	MaxAge           int      `yaml:"maxAge"`           // Max age for preflight requests (seconds)
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
}

// AuthConfig JWT configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	TokenTTL  int    `yaml:"tokenTTL"` // hours
}

// ProtocolConfig chain identity and the bootstrap actors
type ProtocolConfig struct {
	ChainID         int64            `yaml:"chainId"`
	OwnerAddress    string           `yaml:"ownerAddress"`
	GovernorAddress string           `yaml:"governorAddress"`
	NetworkFee      NetworkFeeConfig `yaml:"networkFee"`
	// FiatOracles are granted FIAT_SETTLEMENT_ROLE at bootstrap
	FiatOracles []string `yaml:"fiatOracles"`
	// Burners are granted CREDITS_BURNER_ROLE at bootstrap
	Burners []string `yaml:"burners"`
}

// NetworkFeeConfig fee rate in parts per million
type NetworkFeeConfig struct {
	Rate     int64  `yaml:"rate"`
	Receiver string `yaml:"receiver"`
}

// GenesisConfig native balances funded on an empty state
type GenesisConfig struct {
	Balances map[string]string `yaml:"balances"` // address -> decimal amount
}

// TokenConfig ERC20 token deployed at startup
type TokenConfig struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Minter   string `yaml:"minter"`
}

var AppConfig *Config

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return err
	}
	fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)

	overrideFromEnv(config)

	fmt.Printf("📋 [Config] Protocol: chainId=%d, owner=%s, governor=%s, feeRate=%d\n",
		config.Protocol.ChainID, config.Protocol.OwnerAddress, config.Protocol.GovernorAddress, config.Protocol.NetworkFee.Rate)
	fmt.Printf("📋 [Config] State backend: %s\n", config.State.Backend)

	if len(config.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(config.Admin.AllowedIPs))
		for i, ip := range config.Admin.AllowedIPs {
			fmt.Printf("   [%d] %s\n", i+1, ip)
		}
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}

	if len(config.CORS.AllowedOrigins) > 0 {
		fmt.Printf("📋 [Config] CORS allowed origins loaded: %d origins configured\n", len(config.CORS.AllowedOrigins))
		for i, origin := range config.CORS.AllowedOrigins {
			fmt.Printf("   [%d] %s\n", i+1, origin)
		}
		fmt.Printf("📋 [Config] CORS allowCredentials: %v, maxAge: %d seconds\n", config.CORS.AllowCredentials, config.CORS.MaxAge)
	} else {
		fmt.Printf("📋 [Config] CORS: not configured (will allow all origins *)\n")
	}

	AppConfig = config
	return nil
}

// Parse decodes yaml and fills defaults. Environment overrides are not applied.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.State.Backend == "" {
		config.State.Backend = "memory"
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "agreements"
	}
	if config.NATS.Stream == "" {
		config.NATS.Stream = "AGREEMENTS_EVENTS"
	}
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2
	}
	if config.NATS.Timeout == 0 {
		config.NATS.Timeout = 10
	}
	if config.Auth.TokenTTL == 0 {
		config.Auth.TokenTTL = 24
	}
	if config.Protocol.ChainID == 0 {
		config.Protocol.ChainID = 1337
	}
}

// overrideFromEnv Override configuration from environment variables
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if backend := os.Getenv("STATE_BACKEND"); backend != "" {
		config.State.Backend = backend
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	if chainID := os.Getenv("PROTOCOL_CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			config.Protocol.ChainID = id
		}
	}
	if owner := os.Getenv("PROTOCOL_OWNER"); owner != "" {
		config.Protocol.OwnerAddress = owner
	}
	if governor := os.Getenv("PROTOCOL_GOVERNOR"); governor != "" {
		config.Protocol.GovernorAddress = governor
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// GetJWTSecret returns the signing secret, falling back to JWT_SECRET.
func GetJWTSecret() string {
	if AppConfig != nil && AppConfig.Auth.JWTSecret != "" {
		return AppConfig.Auth.JWTSecret
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}
	return "dev-secret-change-me"
}

// GetTokenTTL returns the JWT lifetime.
func GetTokenTTL() time.Duration {
	if AppConfig != nil && AppConfig.Auth.TokenTTL > 0 {
		return time.Duration(AppConfig.Auth.TokenTTL) * time.Hour
	}
	return 24 * time.Hour
}
