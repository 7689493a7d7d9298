package services

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"go-agreements/internal/chain"
	"go-agreements/internal/clients"
	"go-agreements/internal/metrics"
	"go-agreements/internal/protocol"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

const nativeTokenLabel = "native"

// MonitoringService 监控服务，负责定期更新 Prometheus metrics
type MonitoringService struct {
	db                   *gorm.DB
	nats                 *clients.NATSClient
	proto                *protocol.Protocol
	stopCh               chan struct{}
	stopOnce             sync.Once
	wg                   sync.WaitGroup
	balanceCheckInterval time.Duration
}

// NewMonitoringService db and nats may be nil
func NewMonitoringService(db *gorm.DB, nats *clients.NATSClient, proto *protocol.Protocol) *MonitoringService {
	return &MonitoringService{
		db:                   db,
		nats:                 nats,
		proto:                proto,
		stopCh:               make(chan struct{}),
		balanceCheckInterval: 60 * time.Second, // 默认60秒检查一次
	}
}

// Start 启动监控服务
func (m *MonitoringService) Start() {
	log.Println("🚀 Starting monitoring service...")

	m.wg.Add(1)
	go m.loop(10*time.Second, m.updateConnectionMetrics)

	m.wg.Add(1)
	go m.loop(m.balanceCheckInterval, m.updateBalances)

	log.Println("✅ Monitoring service started")
}

// Stop 停止监控服务
func (m *MonitoringService) Stop() {
	m.stopOnce.Do(func() {
		log.Println("🛑 Stopping monitoring service...")
		close(m.stopCh)
		m.wg.Wait()
		log.Println("✅ Monitoring service stopped")
	})
}

// loop runs fn immediately and then every interval until Stop
func (m *MonitoringService) loop(interval time.Duration, fn func()) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// updateConnectionMetrics 更新数据库和 NATS 指标
func (m *MonitoringService) updateConnectionMetrics() {
	if m.nats != nil {
		if m.nats.GetConnection().IsConnected() {
			metrics.NATSConnectionStatus.Set(1)
		} else {
			metrics.NATSConnectionStatus.Set(0)
		}
	}

	if m.db == nil {
		return
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}

	stats := sqlDB.Stats()
	metrics.DBConnectionPoolSize.Set(float64(stats.MaxOpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))

	// 检查连接状态
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}
}

// updateBalances 更新金库余额指标
func (m *MonitoringService) updateBalances() {
	if m.proto == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	balances, err := VaultBalances(ctx, m.proto)
	if err != nil {
		log.Printf("⚠️ [Monitor] Failed to read vault balances: %v", err)
		return
	}
	for token, bal := range balances {
		f, _ := new(big.Float).SetInt(bal).Float64()
		metrics.VaultBalance.WithLabelValues(token).Set(f)
	}
}

// VaultBalances reads the vault's native balance and its balance of every
// deployed token, keyed by token symbol.
func VaultBalances(ctx context.Context, proto *protocol.Protocol) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int)
	err := proto.Runtime.View(ctx, common.Address{}, func(tx *chain.Tx) error {
		native, err := proto.Vault.BalanceNative(tx)
		if err != nil {
			return err
		}
		out[nativeTokenLabel] = native
		for _, t := range proto.Tokens.All() {
			bal, err := proto.Vault.BalanceERC20(tx, t.Address())
			if err != nil {
				return err
			}
			out[t.Symbol()] = bal
		}
		return nil
	})
	return out, err
}
