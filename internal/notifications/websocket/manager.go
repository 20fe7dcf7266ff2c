package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MessageTypeNotification = "notification"
	MessageTypeStatus       = "status"
	MessageTypePing         = "ping"
)

// Message is the JSON frame pushed to browser clients
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Target    string                 `json:"target,omitempty"`
}

// Manager handles WebSocket connections and message routing
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	UserID       string
	Conn         *websocket.Conn
	Send         chan Message
	ConnectedAt  time.Time
	LastActivity time.Time
	UserAgent    string
	IPAddress    string
	mu           sync.Mutex
}

// Hub owns the registered connection set; only run touches it
type Hub struct {
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	logger      *zap.Logger
}

func NewManager(allowedOrigins []string, logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

// HandleConnection upgrades the request and registers it for userID
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:           uuid.New().String(),
		UserID:       userID,
		Conn:         conn,
		Send:         make(chan Message, 64),
		ConnectedAt:  now,
		LastActivity: now,
		UserAgent:    r.Header.Get("User-Agent"),
		IPAddress:    r.RemoteAddr,
	}

	connection.Send <- Message{
		Type:      MessageTypeStatus,
		Data:      map[string]interface{}{"status": "connected", "connection_id": connection.ID},
		Timestamp: now,
		Target:    userID,
	}

	m.hub.register <- connection

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// readPump keeps the connection alive; clients only send ping frames
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stop:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}

		if msg.Type != MessageTypePing {
			m.logger.Debug("Ignoring client message",
				zap.String("connection_id", conn.ID),
				zap.String("type", msg.Type))
			continue
		}
		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (m *Manager) writePump(conn *Connection) {
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
			if err := conn.Conn.WriteJSON(message); err != nil {
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

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.logger.Debug("Connection registered",
				zap.String("connection_id", conn.ID),
				zap.String("user_id", conn.UserID))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
				h.logger.Debug("Connection unregistered",
					zap.String("connection_id", conn.ID),
					zap.String("user_id", conn.UserID))
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

// SendToUser delivers message to every open connection of userID
func (m *Manager) SendToUser(userID string, message Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	message.Target = userID
	sent := 0
	for _, conn := range m.connections {
		if conn.UserID != userID {
			continue
		}
		select {
		case conn.Send <- message:
			sent++
		default:
		}
	}
	if sent == 0 {
		return fmt.Errorf("user %s not connected", userID)
	}
	return nil
}

// IsConnected reports whether userID has at least one open connection
func (m *Manager) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		if conn.UserID == userID {
			return true
		}
	}
	return false
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// ConnectionInfo represents connection information for monitoring
type ConnectionInfo struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
}

// GetConnectionInfo lists the open sessions of userID
func (m *Manager) GetConnectionInfo(userID string) []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make([]ConnectionInfo, 0)
	for _, conn := range m.connections {
		if conn.UserID != userID {
			continue
		}
		conn.mu.Lock()
		info = append(info, ConnectionInfo{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			ConnectedAt:  conn.ConnectedAt,
			LastActivity: conn.LastActivity,
			UserAgent:    conn.UserAgent,
			IPAddress:    conn.IPAddress,
		})
		conn.mu.Unlock()
	}
	return info
}

// Close stops the hub; the pumps exit once their sockets close
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		for _, conn := range m.connections {
			conn.Conn.Close()
		}
		m.connections = make(map[string]*Connection)
		m.mu.Unlock()

		close(m.hub.stop)
	})
}
