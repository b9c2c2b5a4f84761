// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Corphon/DialogueEngine/internal/services"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	wsSendBuffer   = 64
	wsPingTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 表示一个订阅会话的 WebSocket 连接
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	clientID  string
	send      chan []byte
	done      chan struct{}
	closed    int32 // 0=开启，1=关闭
	lastPing  int64 // unix nano
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, sessionID, clientID string) *WebSocketClient {
	now := time.Now()
	return &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		clientID:  clientID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		lastPing:  now.UnixNano(),
		createdAt: now,
	}
}

// Close 安全关闭客户端连接，可重复调用
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后ping时间
func (client *WebSocketClient) UpdatePing() {
	atomic.StoreInt64(&client.lastPing, time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	last := time.Unix(0, atomic.LoadInt64(&client.lastPing))
	return time.Since(last) > timeout
}

// enqueue 非阻塞地放入发送队列，队列满时返回 false
func (client *WebSocketClient) enqueue(message []byte) bool {
	if client.IsClosed() {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// SendMessage 安全发送消息到客户端
func (client *WebSocketClient) SendMessage(message interface{}) error {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	client.enqueue(msgBytes)
	return nil
}

// SendError 发送错误消息到客户端
func (client *WebSocketClient) SendError(errorMsg string) {
	client.SendMessage(map[string]interface{}{
		"type":       "error",
		"session_id": client.sessionID,
		"error":      errorMsg,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// WebSocketManager 按会话ID管理 WebSocket 连接，并作为事件发布器推送会话事件
type WebSocketManager struct {
	connections map[string]map[*WebSocketClient]struct{} // sessionID -> clients
	mutex       sync.RWMutex
	pingTimeout time.Duration
	logger      *utils.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketManager 创建管理器，调用 Start 启动过期连接清理
func NewWebSocketManager(logger *utils.Logger) *WebSocketManager {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &WebSocketManager{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		pingTimeout: wsPingTimeout,
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop.
func (manager *WebSocketManager) Start() {
	go manager.run()
}

// Stop closes every connection and ends the cleanup loop.
func (manager *WebSocketManager) Stop() {
	manager.stopOnce.Do(func() {
		close(manager.stop)
		manager.shutdown()
	})
}

// Close implements io.Closer.
func (manager *WebSocketManager) Close() error {
	manager.Stop()
	return nil
}

// run 定期清理过期连接
func (manager *WebSocketManager) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			manager.cleanupExpiredConnections()
		case <-manager.stop:
			return
		}
	}
}

// Register 注册新客户端
func (manager *WebSocketManager) Register(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	if manager.connections[client.sessionID] == nil {
		manager.connections[client.sessionID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.sessionID][client] = struct{}{}
	manager.mutex.Unlock()

	client.UpdatePing()
	manager.logger.Info("WebSocket client connected", map[string]interface{}{
		"session_id": client.sessionID,
		"client_id":  client.clientID,
	})
}

// Unregister 注销并关闭客户端
func (manager *WebSocketManager) Unregister(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	if connections, exists := manager.connections[client.sessionID]; exists {
		delete(connections, client)
		if len(connections) == 0 {
			delete(manager.connections, client.sessionID)
		}
	}
	manager.mutex.Unlock()

	client.Close()
	manager.logger.Info("WebSocket client disconnected", map[string]interface{}{
		"session_id": client.sessionID,
		"client_id":  client.clientID,
	})
}

// cleanupExpiredConnections 清理过期和死连接
func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for sessionID, connections := range manager.connections {
		for client := range connections {
			if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
				delete(connections, client)
				client.Close()
			}
		}
		if len(connections) == 0 {
			delete(manager.connections, sessionID)
		}
	}
}

// processBatch 发送消息，队列已满的客户端被断开
func (manager *WebSocketManager) processBatch(clients []*WebSocketClient, message []byte) {
	for _, client := range clients {
		if !client.enqueue(message) && !client.IsClosed() {
			manager.logger.Warn("WebSocket send queue full, dropping client", map[string]interface{}{
				"session_id": client.sessionID,
				"client_id":  client.clientID,
			})
			client.Close()
		}
	}
}

// shutdown 关闭所有连接
func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for _, connections := range manager.connections {
		for client := range connections {
			client.Close()
		}
	}
	manager.connections = make(map[string]map[*WebSocketClient]struct{})
}

// Publish implements services.Publisher.
func (manager *WebSocketManager) Publish(event services.SessionEvent) {
	manager.BroadcastToSession(event.SessionID, event)
}

// BroadcastToSession 向订阅指定会话的客户端广播消息
func (manager *WebSocketManager) BroadcastToSession(sessionID string, message interface{}) {
	manager.mutex.RLock()
	connections, exists := manager.connections[sessionID]
	if !exists {
		manager.mutex.RUnlock()
		return
	}
	clients := make([]*WebSocketClient, 0, len(connections))
	for client := range connections {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	manager.mutex.RUnlock()

	if len(clients) == 0 {
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		manager.logger.Error("Failed to encode WebSocket message", map[string]interface{}{"error": err.Error()})
		return
	}
	manager.processBatch(clients, msgBytes)
}

// ClientCount returns the number of open connections for a session.
func (manager *WebSocketManager) ClientCount(sessionID string) int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.connections[sessionID])
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	sessions := make(map[string]interface{})
	totalConnections := 0

	for sessionID, connections := range manager.connections {
		clients := make([]interface{}, 0, len(connections))
		for client := range connections {
			if client.IsClosed() {
				continue
			}
			clients = append(clients, map[string]interface{}{
				"client_id":    client.clientID,
				"connected_at": client.createdAt.Format(time.RFC3339),
				"last_ping":    time.Unix(0, atomic.LoadInt64(&client.lastPing)).Format(time.RFC3339),
			})
		}
		sessions[sessionID] = map[string]interface{}{
			"client_count": len(clients),
			"clients":      clients,
		}
		totalConnections += len(clients)
	}

	return map[string]interface{}{
		"total_sessions":    len(manager.connections),
		"total_connections": totalConnections,
		"sessions":          sessions,
	}
}
