// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Corphon/DialogueEngine/internal/services"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// Client message types
const (
	wsMessageFinishedSubtitle = "finished_subtitle"
	wsMessageSelectResponse   = "select_response"
	wsMessageGoto             = "goto"
	wsMessageHighlight        = "highlight"
	wsMessageClose            = "close"
	wsMessagePing             = "ping"
)

// wsClientMessage 客户端发来的消息
type wsClientMessage struct {
	Type   string `json:"type"`
	Index  *int   `json:"index,omitempty"`
	Target string `json:"target,omitempty"`
}

// WebSocketHandler 处理会话 WebSocket 连接
type WebSocketHandler struct {
	manager       *WebSocketManager
	conversations *services.ConversationService
	logger        *utils.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(manager *WebSocketManager, conversations *services.ConversationService, logger *utils.Logger) *WebSocketHandler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &WebSocketHandler{
		manager:       manager,
		conversations: conversations,
		logger:        logger,
	}
}

// ConversationWebSocket 订阅一个会话：服务端推送字幕和回应菜单，客户端回报字幕结束和选择
func (wh *WebSocketHandler) ConversationWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := wh.conversations.Get(sessionID); err != nil {
		NewResponseHelper().NotFound(c, ErrorSessionNotFound, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wh.logger.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	clientID, authenticated := GetClientFromContext(c)
	if !authenticated {
		clientID = c.Query("client_id")
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}
	client := newWebSocketClient(conn, sessionID, clientID)
	wh.manager.Register(client)
	defer wh.manager.Unregister(client)

	go wh.handleWebSocketWrites(client)

	// 注册之后再取快照，避免漏掉中间的事件
	wh.sendWelcomeMessage(client)
	wh.handleWebSocketReads(client)
}

// handleWebSocketReads 读取客户端消息直到连接关闭
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient) {
	client.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))
		return nil
	})

	for !client.IsClosed() {
		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wh.logger.Debug("WebSocket read ended", map[string]interface{}{
					"session_id": client.sessionID,
					"error":      err.Error(),
				})
			}
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))
		client.UpdatePing()

		var message wsClientMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			client.SendError("invalid message: " + err.Error())
			continue
		}
		wh.handleMessage(client, message)
	}
}

// handleWebSocketWrites 将发送队列写入连接并定期 ping
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage 处理收到的 WebSocket 消息。状态变化通过事件推送，这里只回报错误
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, message wsClientMessage) {
	var err error
	switch message.Type {
	case wsMessageFinishedSubtitle:
		_, err = wh.conversations.Continue(client.sessionID)
	case wsMessageSelectResponse, wsMessageHighlight:
		if message.Index == nil {
			client.SendError("index is required")
			return
		}
		if message.Type == wsMessageSelectResponse {
			_, err = wh.conversations.Choose(client.sessionID, *message.Index)
		} else {
			var snap *services.SessionSnapshot
			snap, err = wh.conversations.Highlight(client.sessionID, *message.Index)
			if err == nil {
				client.SendMessage(map[string]interface{}{"type": "state", "data": snap})
			}
		}
	case wsMessageGoto:
		_, err = wh.conversations.Goto(client.sessionID, message.Target)
	case wsMessageClose:
		_, err = wh.conversations.Close(client.sessionID)
	case wsMessagePing:
		client.SendMessage(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	default:
		client.SendError("unknown message type: " + message.Type)
	}

	if err != nil {
		client.SendError(err.Error())
	}
}

// sendWelcomeMessage 发送连接确认和会话当前状态
func (wh *WebSocketHandler) sendWelcomeMessage(client *WebSocketClient) {
	snap, err := wh.conversations.Get(client.sessionID)
	if err != nil {
		client.SendError(err.Error())
		return
	}
	client.SendMessage(map[string]interface{}{
		"type":       "connected",
		"session_id": client.sessionID,
		"client_id":  client.clientID,
		"data":       snap,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// StatusHandler 返回 WebSocket 连接状态
func (wh *WebSocketHandler) StatusHandler(c *gin.Context) {
	NewResponseHelper().Success(c, wh.manager.GetStatus())
}
