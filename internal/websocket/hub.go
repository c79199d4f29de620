package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/monitoring"
)

// MessageType 定义 WebSocket 消息类型
type MessageType string

const (
	MessageTypeSubscribe MessageType = "subscribe"
	MessageTypeNewEmail  MessageType = "new_email"
)

// Message 定义 WebSocket 消息结构。
// 客户端仅发送 subscribe；服务端仅推送 new_email；其余消息一律忽略。
type Message struct {
	Type      MessageType     `json:"type"`
	MailboxID string          `json:"mailboxId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Client 代表一个 WebSocket 客户端连接。
// 一个连接同一时刻至多订阅一个邮箱，后续 subscribe 静默替换之前的订阅。
type Client struct {
	ID        string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	mu        sync.Mutex
	mailboxID string // 当前订阅的邮箱 ID，未订阅为空
}

// Hub 管理所有 WebSocket 连接与邮箱订阅。
//
// 订阅状态是进程内全局状态，跨实例部署需要外部 pub/sub 通道，
// 当前契约为单进程内投递。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	mailboxes      map[string]map[string]*Client // mailboxID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	done           chan struct{} // Run 退出后关闭，阻止向事件循环的阻塞发送
	mu             sync.RWMutex
	log            *zap.Logger
	metrics        *monitoring.Metrics
	allowedOrigins []string
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	MailboxID string
	Message   *Message
}

// NewHub 创建 WebSocket Hub。
//
// allowedOrigins 用于升级阶段的 Origin 校验，空列表等同于允许所有。
func NewHub(allowedOrigins []string, metrics *monitoring.Metrics, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		mailboxes:      make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		done:           make(chan struct{}),
		log:            log,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
	}
}

// Run 启动 Hub 事件循环。ctx 取消时关闭全部连接。
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			close(h.done)
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WSConnections.Inc()
			}
			h.log.Info("client connected", zap.String("clientID", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.detachLocked(client)
				delete(h.clients, client.ID)
				close(client.send)
				if h.metrics != nil {
					h.metrics.WSConnections.Dec()
				}
				h.log.Info("client disconnected", zap.String("clientID", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToMailbox(msg.MailboxID, msg.Message)
		}
	}
}

// NewEmailData 新邮件事件载荷。仅包含摘要字段，不携带正文。
type NewEmailData struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// NotifyNewEmail 将新邮件事件投递给订阅了该邮箱的连接。
// 实现 service.Notifier。
func (h *Hub) NotifyNewEmail(mailboxID string, email *domain.Email) {
	data, err := json.Marshal(NewEmailData{
		ID:         email.ID,
		From:       email.From,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
	})
	if err != nil {
		h.log.Error("failed to marshal new email event", zap.Error(err))
		return
	}

	h.log.Info("broadcasting new email notification",
		zap.String("mailboxID", mailboxID),
		zap.String("emailID", email.ID),
	)

	msg := &BroadcastMessage{
		MailboxID: mailboxID,
		Message: &Message{
			Type: MessageTypeNewEmail,
			Data: data,
		},
	}

	// Hub 停止后丢弃事件，投递方（SMTP 提交协程）不能被阻塞
	select {
	case h.broadcast <- msg:
	case <-h.done:
		h.log.Debug("hub stopped, dropping new email event",
			zap.String("mailboxID", mailboxID))
	}
}

// broadcastToMailbox 向订阅特定邮箱的客户端广播消息。
// 投递为尽力而为：发送缓冲已满的客户端直接跳过，不排队不重放。
func (h *Hub) broadcastToMailbox(mailboxID string, msg *Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.mailboxes[mailboxID]))
	for _, client := range h.mailboxes[mailboxID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping",
				zap.String("clientID", client.ID))
		}
	}
}

// detachLocked 将客户端从其订阅中移除。调用方持有 h.mu。
func (h *Hub) detachLocked(client *Client) {
	client.mu.Lock()
	mailboxID := client.mailboxID
	client.mailboxID = ""
	client.mu.Unlock()

	if mailboxID == "" {
		return
	}
	if clients, ok := h.mailboxes[mailboxID]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.mailboxes, mailboxID)
		}
	}
	if h.metrics != nil {
		h.metrics.WSSubscriptions.Dec()
	}
}

// closeAllClients 关闭所有客户端连接。
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.mailboxes = make(map[string]map[string]*Client)
}

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
				// 同源或非浏览器客户端
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

// HandleWebSocket 处理 WebSocket 连接升级。
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()),
			)
			return
		}

		client := &Client{
			ID:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, 256),
			hub:  hub,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 读取并处理客户端消息。
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump 向客户端发送消息并维持心跳。
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

// handleMessage 处理收到的客户端消息。未定义的消息类型一律忽略。
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.MailboxID != "" {
			c.hub.subscribe(c, msg.MailboxID)
		}
	default:
		// 协议只定义 subscribe，其余忽略
	}
}

// subscribe 将客户端订阅到指定邮箱，替换之前的订阅。
func (h *Hub) subscribe(client *Client, mailboxID string) {
	h.mu.Lock()
	h.detachLocked(client)

	client.mu.Lock()
	client.mailboxID = mailboxID
	client.mu.Unlock()

	if h.mailboxes[mailboxID] == nil {
		h.mailboxes[mailboxID] = make(map[string]*Client)
	}
	h.mailboxes[mailboxID][client.ID] = client
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSSubscriptions.Inc()
	}
	h.log.Info("client subscribed",
		zap.String("clientID", client.ID),
		zap.String("mailboxID", mailboxID),
	)
}
