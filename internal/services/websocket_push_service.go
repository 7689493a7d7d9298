package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"go-agreements/internal/chain"
	"go-agreements/internal/events"
	"go-agreements/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connection information
type Connection struct {
	ID          string          `json:"id"`
	UserAddress string          `json:"user_address"` // lowercase hex
	WatchAll    bool            `json:"watch_all"`    // receives every event
	Conn        *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	LastPing    time.Time       `json:"last_ping"`

	filterMu sync.RWMutex
	filter   map[string]bool // event names; empty = all
}

// Wants reports whether the connection subscribed to eventName.
func (c *Connection) Wants(eventName string) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return len(c.filter) == 0 || c.filter[eventName]
}

// SetFilter replaces the event-name filter. An empty list clears it.
func (c *Connection) SetFilter(names []string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.filter = make(map[string]bool, len(names))
	for _, n := range names {
		c.filter[n] = true
	}
}

// Push message base structure
type PushMessage struct {
	Type        string      `json:"type"`
	Timestamp   string      `json:"timestamp"`
	MessageID   string      `json:"message_id"`
	UserAddress string      `json:"user_address,omitempty"`
	Data        interface{} `json:"data"`

	// routing only, never serialized
	event *events.Message
}

// ClientCommand is what a client may send over the socket.
type ClientCommand struct {
	Action string   `json:"action"` // subscribe | ping
	Events []string `json:"events"`
}

// WebSocketPushService routes committed protocol events to the connections of
// the addresses they mention.
type WebSocketPushService struct {
	connections map[string]*Connection   // key: connectionID
	userConns   map[string][]*Connection // key: userAddress, value: connections
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
}

var _ chain.EventSink = (*WebSocketPushService)(nil)

// NewWebSocketPushService creates the service and starts its hub loop
func NewWebSocketPushService() *WebSocketPushService {
	service := &WebSocketPushService{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]*Connection),
		hub:         make(chan PushMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}

	go service.run()
	return service
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)
		case conn := <-s.unregister:
			s.handleUnregister(conn)
		case message := <-s.hub:
			s.handleBroadcast(message)
		case <-s.done:
			return
		}
	}
}

// Close stops the hub loop.
func (s *WebSocketPushService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// RegisterConnectionMapping registers a connection whose socket is managed by
// the caller. Only its Send channel is used.
func (s *WebSocketPushService) RegisterConnectionMapping(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.addLocked(conn)
	log.Printf("📱 WebSocket connection mapping registered: user=%s, connID=%s (connection managed externally)", conn.UserAddress, conn.ID)
}

// UnregisterConnectionMapping removes the mapping without closing anything
func (s *WebSocketPushService) UnregisterConnectionMapping(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.removeLocked(conn)
	log.Printf("📱 WebSocket connection mapping unregistered: user=%s, connID=%s", conn.UserAddress, conn.ID)
}

func (s *WebSocketPushService) addLocked(conn *Connection) {
	conn.UserAddress = strings.ToLower(conn.UserAddress)
	s.connections[conn.ID] = conn
	s.userConns[conn.UserAddress] = append(s.userConns[conn.UserAddress], conn)
	metrics.WebSocketConnections.Set(float64(len(s.connections)))
}

func (s *WebSocketPushService) removeLocked(conn *Connection) {
	if _, ok := s.connections[conn.ID]; !ok {
		return
	}
	delete(s.connections, conn.ID)
	if userConns, exists := s.userConns[conn.UserAddress]; exists {
		for i, c := range userConns {
			if c.ID == conn.ID {
				s.userConns[conn.UserAddress] = append(userConns[:i], userConns[i+1:]...)
				break
			}
		}
		if len(s.userConns[conn.UserAddress]) == 0 {
			delete(s.userConns, conn.UserAddress)
		}
	}
	metrics.WebSocketConnections.Set(float64(len(s.connections)))
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	s.addLocked(conn)
	s.mutex.Unlock()

	log.Printf("📱 WebSocket connection registered: user=%s, connID=%s", conn.UserAddress, conn.ID)
	s.sendToConnection(conn, PushMessage{
		Type:        "connection_established",
		Timestamp:   time.Now().Format(time.RFC3339),
		MessageID:   uuid.NewString(),
		UserAddress: conn.UserAddress,
		Data: map[string]interface{}{
			"user_address":  conn.UserAddress,
			"connection_id": conn.ID,
			"watch_all":     conn.WatchAll,
		},
	})
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	_, known := s.connections[conn.ID]
	s.removeLocked(conn)
	s.mutex.Unlock()
	if !known {
		return
	}

	if conn.Send != nil {
		close(conn.Send)
	}
	if conn.Conn != nil {
		conn.Conn.Close()
	}
	log.Printf("📱 WebSocket connection unregistered: user=%s, connID=%s", conn.UserAddress, conn.ID)
}

// HandleReceipt queues every event for the addresses it names. It never
// blocks the runtime: when the hub is full the push is dropped.
func (s *WebSocketPushService) HandleReceipt(_ context.Context, r *chain.Receipt) error {
	for _, msg := range events.FromReceipt(r) {
		m := msg
		push := PushMessage{
			Type:      "event",
			Timestamp: time.Unix(int64(m.Timestamp), 0).UTC().Format(time.RFC3339),
			MessageID: uuid.NewString(),
			Data:      m,
			event:     &m,
		}
		select {
		case s.hub <- push:
		default:
			log.Printf("⚠️ [WebSocketpush] Hub full, dropping %s from %s", m.Event, m.TxHash)
		}
	}
	return nil
}

// handleBroadcast delivers an event to every matching connection
func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	targets := make(map[string]*Connection)
	if message.event != nil {
		for _, addr := range AddressesIn(message.event.Fields) {
			for _, conn := range s.userConns[addr] {
				targets[conn.ID] = conn
			}
		}
		for _, conn := range s.connections {
			if conn.WatchAll {
				targets[conn.ID] = conn
			}
		}
	} else {
		for _, conn := range s.userConns[strings.ToLower(message.UserAddress)] {
			targets[conn.ID] = conn
		}
	}
	if len(targets) == 0 {
		return
	}

	successCount, failedCount := 0, 0
	for _, conn := range targets {
		if message.event != nil && !conn.Wants(message.event.Event) {
			continue
		}
		out := message
		out.UserAddress = conn.UserAddress
		data, err := json.Marshal(out)
		if err != nil {
			log.Printf("❌ Failed to marshal message: %v", err)
			return
		}
		select {
		case conn.Send <- data:
			successCount++
		default:
			failedCount++
			log.Printf("⚠️ [WebSocketpush] Failed to send to connection: %s (channel full or closed)", conn.ID)
		}
	}
	log.Printf("📤 [WebSocketpush] Message delivery summary: sent=%d, failed=%d, type=%s", successCount, failedCount, message.Type)
}

func (s *WebSocketPushService) sendToConnection(conn *Connection, message PushMessage) {
	if conn.Send == nil {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal message: %v", err)
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Printf("⚠️ Failed to send to connection: %s", conn.ID)
	}
}

// HandleWebSocket upgrades the request and serves push messages to userAddress.
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, userAddress string, watchAll bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	connection := &Connection{
		ID:          "conn_" + uuid.NewString(),
		UserAddress: userAddress,
		WatchAll:    watchAll,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		LastPing:    time.Now(),
	}

	s.register <- connection

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ Write message failed: %v", err)
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		select {
		case s.unregister <- conn:
		case <-s.done:
		}
	}()

	conn.Conn.SetReadLimit(4096)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			return
		}
		s.handleCommand(conn, data)
	}
}

func (s *WebSocketPushService) handleCommand(conn *Connection, data []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.sendToConnection(conn, PushMessage{Type: "error", Timestamp: time.Now().Format(time.RFC3339), MessageID: uuid.NewString(), Data: "invalid command"})
		return
	}
	switch cmd.Action {
	case "subscribe":
		conn.SetFilter(cmd.Events)
		s.sendToConnection(conn, PushMessage{Type: "subscribed", Timestamp: time.Now().Format(time.RFC3339), MessageID: uuid.NewString(), Data: cmd.Events})
	case "ping":
		conn.LastPing = time.Now()
		s.sendToConnection(conn, PushMessage{Type: "pong", Timestamp: time.Now().Format(time.RFC3339), MessageID: uuid.NewString()})
	default:
		s.sendToConnection(conn, PushMessage{Type: "error", Timestamp: time.Now().Format(time.RFC3339), MessageID: uuid.NewString(), Data: "unknown action " + cmd.Action})
	}
}

// GetActiveConnections returns the number of open connections
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// GetUserConnections returns the number of connections for userAddress
func (s *WebSocketPushService) GetUserConnections(userAddress string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.userConns[strings.ToLower(userAddress)])
}

// AddressesIn collects the lowercase addresses mentioned in event fields.
func AddressesIn(fields map[string]interface{}) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if len(v) == 42 && common.IsHexAddress(v) {
			a := strings.ToLower(v)
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	for _, v := range fields {
		switch x := v.(type) {
		case string:
			add(x)
		case []string:
			for _, s := range x {
				add(s)
			}
		case []interface{}:
			for _, e := range x {
				if s, ok := e.(string); ok {
					add(s)
				}
			}
		}
	}
	return out
}
