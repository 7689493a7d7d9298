// Package events turns committed receipts into wire messages and publishes
// them on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"go-agreements/internal/chain"
	"go-agreements/internal/clients"
	"go-agreements/internal/config"
	"go-agreements/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Message is one event as published on NATS and pushed over WebSocket.
type Message struct {
	TxHash       string                 `json:"tx_hash"`
	Sequence     uint64                 `json:"sequence"`
	Timestamp    uint64                 `json:"timestamp"`
	LogIndex     int                    `json:"log_index"`
	Contract     string                 `json:"contract"`
	ContractName string                 `json:"contract_name"`
	Event        string                 `json:"event"`
	Fields       map[string]interface{} `json:"fields"`
}

// FromReceipt flattens a receipt into one Message per event.
func FromReceipt(r *chain.Receipt) []Message {
	out := make([]Message, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, Message{
			TxHash:       r.TxHash.Hex(),
			Sequence:     r.Sequence,
			Timestamp:    r.Timestamp,
			LogIndex:     e.Index,
			Contract:     e.Contract.Hex(),
			ContractName: e.ContractName,
			Event:        e.Name,
			Fields:       e.Fields,
		})
	}
	return out
}

// Publisher is the subset of the NATS client the sink needs.
type Publisher interface {
	Subject(contractName, eventName string) string
	Publish(subject string, data []byte) error
}

// NATSPublisher is a chain.EventSink that publishes every event on
// <prefix>.<Contract>.<Event>.
type NATSPublisher struct {
	pub    Publisher
	logger *logrus.Logger
}

var _ chain.EventSink = (*NATSPublisher)(nil)

// NewNATSPublisher creates a NATSPublisher
func NewNATSPublisher(pub Publisher, logger *logrus.Logger) *NATSPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NATSPublisher{pub: pub, logger: logger}
}

func (p *NATSPublisher) HandleReceipt(_ context.Context, r *chain.Receipt) error {
	var firstErr error
	for _, msg := range FromReceipt(r) {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", msg.Event, err)
		}
		subject := p.pub.Subject(msg.ContractName, msg.Event)
		if err := p.pub.Publish(subject, data); err != nil {
			metrics.NATSPublishFailures.WithLabelValues(msg.Event).Inc()
			p.logger.WithFields(logrus.Fields{
				"subject": subject,
				"tx_hash": msg.TxHash,
				"error":   err.Error(),
			}).Warn("⚠️ [NATS] Publish failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.NATSMessagesPublished.WithLabelValues(msg.Event).Inc()
		p.logger.WithField("subject", subject).Debug("📤 [NATS] Event published")
	}
	return firstErr
}

var (
	natsClient *clients.NATSClient
	natsOnce   sync.Once
)

// InitNATSServices connects the shared NATS client once. It returns nil
// without a client when NATS is not configured.
func InitNATSServices() (*clients.NATSClient, error) {
	var initErr error
	natsOnce.Do(func() {
		if config.AppConfig == nil || config.AppConfig.NATS.URL == "" {
			log.Println("NATS not configured, skipping initialization")
			return
		}
		client, err := clients.NewNATSClient(config.AppConfig.NATS)
		if err != nil {
			initErr = fmt.Errorf("failed to create NATS client: %w", err)
			return
		}
		natsClient = client
		log.Printf("✅ NATS client initialized successfully")
	})
	return natsClient, initErr
}

// GetNATSClient returns the shared client, or nil.
func GetNATSClient() *clients.NATSClient {
	return natsClient
}
