package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
)

// MessageType WebSocket 推送消息类型。
type MessageType string

const (
	MessageTypeNewMail MessageType = "new_mail"
	MessageTypePing    MessageType = "ping"
	MessageTypePong    MessageType = "pong"
)

// Message WebSocket 推送消息结构。
type Message struct {
	Type      MessageType     `json:"type"`
	Address   string          `json:"address,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// upgraderFactory 创建带 Origin 验证的升级器。
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

// Client 一个 WebSocket 客户端连接，订阅单个邮箱地址。
type Client struct {
	address string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
}

// Hub 管理订阅连接，按邮箱地址分发新邮件通知。
type Hub struct {
	mu sync.RWMutex
	// address -> 订阅该地址的客户端集合
	subscribers map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub 创建 Hub。
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		subscribers: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		upgrader:    upgraderFactory(allowedOrigins),
		logger:      logger,
	}
}

// Run 运行分发循环，ctx 取消时关闭所有连接。
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.subscribers[client.address] == nil {
				h.subscribers[client.address] = make(map[*Client]struct{})
			}
			h.subscribers[client.address][client] = struct{}{}
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.subscribers[client.address]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
					if len(set) == 0 {
						delete(h.subscribers, client.address)
					}
				}
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for client := range h.subscribers[msg.Address] {
				select {
				case client.send <- payload:
				default:
					// 发送缓冲满，丢弃这条通知
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subscribers {
		for client := range set {
			close(client.send)
			client.conn.Close()
		}
	}
	h.subscribers = make(map[string]map[*Client]struct{})
}

// NotifyNewMessage 向订阅该地址的客户端推送新邮件通知。
func (h *Hub) NotifyNewMessage(address string, msg *domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("序列化通知失败", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &Message{
		Type:      MessageTypeNewMail,
		Address:   address,
		Data:      data,
		Timestamp: time.Now(),
	}:
	default:
		h.logger.Warn("通知队列已满，丢弃新邮件通知", zap.String("address", address))
	}
}

// HandleConnection Gin 处理函数，把 HTTP 请求升级为 WebSocket 订阅。
func (h *Hub) HandleConnection(c *gin.Context) {
	address := c.Param("address")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	client := &Client{
		address: address,
		conn:    conn,
		send:    make(chan []byte, 64),
		hub:     h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump 读取客户端消息，只处理 ping，其余忽略。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == MessageTypePing {
			pong, _ := json.Marshal(Message{Type: MessageTypePong, Timestamp: time.Now()})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

// writePump 向客户端写消息并定期发送协议层 ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
