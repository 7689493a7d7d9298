package clients

import (
	"fmt"
	"log"
	"strings"
	"time"

	"go-agreements/internal/config"
	"go-agreements/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSClient NATS client
type NATSClient struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	streamName    string
	subjectPrefix string
}

// NewNATSClient connects to cfg.URL. When JetStream is enabled the event
// stream is created if missing.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 2 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}
	log.Printf("🔌 Connecting to NATS %s (timeout %v)", cfg.URL, connectTimeout)

	conn, err := nats.Connect(cfg.URL,
		nats.Name("go-agreements"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected: %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			metrics.NATSConnectionStatus.Set(0)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS failed: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	client := &NATSClient{
		conn:          conn,
		streamName:    cfg.Stream,
		subjectPrefix: cfg.SubjectPrefix,
	}
	if client.subjectPrefix == "" {
		client.subjectPrefix = "agreements"
	}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create JetStream context failed: %w", err)
		}
		client.js = js
		if err := client.ensureStream(); err != nil {
			conn.Close()
			return nil, err
		}
	} else {
		log.Printf("✅ Using core NATS publish, JetStream disabled")
	}
	return client, nil
}

// ensureStream creates the event stream if it does not exist
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		log.Printf("📋 Stream %s already exists", c.streamName)
		return nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  []string{c.subjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s failed: %w", c.streamName, err)
	}
	log.Printf("✅ Stream %s created", c.streamName)
	return nil
}

// Subject builds <prefix>.<Contract>.<Event>.
func (c *NATSClient) Subject(contractName, eventName string) string {
	return EventSubject(c.subjectPrefix, contractName, eventName)
}

// EventSubject builds <prefix>.<Contract>.<Event>, replacing characters NATS
// treats as token separators or wildcards.
func EventSubject(prefix, contractName, eventName string) string {
	clean := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	if contractName == "" {
		contractName = "System"
	}
	return prefix + "." + clean.Replace(contractName) + "." + clean.Replace(eventName)
}

// Publish sends data on subject, through JetStream when it is enabled.
func (c *NATSClient) Publish(subject string, data []byte) error {
	if c.js != nil {
		if _, err := c.js.Publish(subject, data); err != nil {
			return fmt.Errorf("publish %s failed: %w", subject, err)
		}
		return nil
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s failed: %w", subject, err)
	}
	return nil
}

// Subscribe attaches handler to subject. Wildcards are allowed.
func (c *NATSClient) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s failed: %w", subject, err)
	}
	log.Printf("✅ NATS subscription: %s", subject)
	return sub, nil
}

// Prefix returns the subject prefix
func (c *NATSClient) Prefix() string { return c.subjectPrefix }

// Flush waits until published messages reached the server
func (c *NATSClient) Flush() error {
	return c.conn.Flush()
}

func (c *NATSClient) Close() {
	if c.conn != nil {
		_ = c.conn.Flush()
		c.conn.Close()
	}
}

func (c *NATSClient) GetConnection() *nats.Conn {
	return c.conn
}
