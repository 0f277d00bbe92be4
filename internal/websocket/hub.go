package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNewMail     MessageType = "new_mail"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Address   string          `json:"address,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID        string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	addresses map[string]bool // 订阅的收件地址
	mu        sync.RWMutex
	log       *zap.Logger
}

// Hub 管理所有WebSocket连接。
// 订阅以收件地址为键：一次性收件箱没有账号体系，
// 知道地址即可读取，与 HTTP 轮询接口的访问模型一致。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	addresses      map[string]map[string]*Client // address -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	Address string
	Message *Message
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:        make(map[string]*Client),
		addresses:      make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for address := range client.addresses {
					if clients, exists := h.addresses[address]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.addresses, address)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToAddress(msg.Address, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NewMailData 新邮件通知数据
type NewMailData struct {
	EmailID    int64  `json:"emailId"`
	Recipient  string `json:"recipient"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Preview    string `json:"preview,omitempty"`
	Truncated  bool   `json:"truncated"`
	ReceivedAt string `json:"receivedAt"`
}

// NotifyNewMail 通知新邮件到达
func (h *Hub) NotifyNewMail(recipient string, message *domain.Message) {
	preview := message.BodyText
	if len(preview) > 100 {
		preview = preview[:100]
	}

	newMailData := NewMailData{
		EmailID:    message.ID,
		Recipient:  message.Recipient,
		Sender:     message.Sender,
		Subject:    message.Subject,
		Preview:    preview,
		Truncated:  message.Truncated,
		ReceivedAt: message.ReceivedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(newMailData)
	if err != nil {
		h.log.Error("failed to marshal new mail data", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeNewMail,
		Address:   recipient,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- &BroadcastMessage{Address: recipient, Message: msg}:
	default:
		// Hub 未运行或广播积压时丢弃通知，前端还有轮询兜底
		h.log.Warn("notification dropped", zap.String("address", recipient))
	}
}

// broadcastToAddress 向订阅指定地址的客户端广播消息
func (h *Hub) broadcastToAddress(address string, msg *Message) {
	// 订阅表可能被并发修改，持锁拷贝出快照后再投递。
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.addresses[address]))
	for _, client := range h.addresses[address] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range subscribers {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.addresses = make(map[string]map[string]*Client)
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:        uuid.NewString(),
			conn:      conn,
			send:      make(chan []byte, 256),
			hub:       hub,
			addresses: make(map[string]bool),
			log:       hub.log,
		}

		hub.register <- client

		// 支持通过 URL 参数直接订阅：GET /api/ws?address=x@y.z
		if address := c.Query("address"); address != "" {
			client.subscribeAddress(address)
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeAddress(msg.Address)
	case MessageTypeUnsubscribe:
		c.unsubscribeAddress(msg.Address)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// subscribeAddress 订阅收件地址
func (c *Client) subscribeAddress(address string) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		c.sendError("address is required")
		return
	}

	c.mu.Lock()
	c.addresses[address] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.addresses[address] == nil {
		c.hub.addresses[address] = make(map[string]*Client)
	}
	c.hub.addresses[address][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to address",
		zap.String("clientID", c.ID),
		zap.String("address", address))

	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		Address:   address,
		Timestamp: time.Now(),
	})
}

// unsubscribeAddress 取消订阅收件地址
func (c *Client) unsubscribeAddress(address string) {
	address = strings.ToLower(strings.TrimSpace(address))

	c.mu.Lock()
	delete(c.addresses, address)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.addresses[address]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.addresses, address)
		}
	}
	c.hub.mu.Unlock()
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
