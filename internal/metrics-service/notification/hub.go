package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// Client 订阅告警推送的WebSocket连接
type Client struct {
	ID     string
	TeamID string // 为空表示接收所有团队
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
}

type hubMessage struct {
	teamID string
	data   []byte
}

// Hub 管理WebSocket连接并推送通知
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan hubMessage
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	running    atomic.Bool
	count      atomic.Int64
}

// NewHub 创建Hub，需调用 Run 后才能推送
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan hubMessage, sendBufferSize),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Run 事件循环，ctx 结束时关闭所有连接，只能调用一次
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
			h.logger.Debug("WebSocket client connected",
				zap.String("client_id", client.ID),
				zap.String("team_id", client.TeamID))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.logger.Debug("WebSocket client disconnected", zap.String("client_id", client.ID))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if client.TeamID != "" && client.TeamID != message.teamID {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					// 发送缓冲已满，断开慢连接
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.count.Add(-1)
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// ServeWS 升级HTTP连接，team_id 查询参数用于过滤推送
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		TeamID: r.URL.Query().Get("team_id"),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// GetType 获取通知器类型
func (h *Hub) GetType() NotificationType {
	return NotificationTypeWebSocket
}

// IsAvailable Hub运行中即可用
func (h *Hub) IsAvailable() bool {
	return h.running.Load()
}

// Send 推送给订阅该团队的连接
func (h *Hub) Send(ctx context.Context, notification *Notification) (*NotificationResult, error) {
	data, err := json.Marshal(notification)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	select {
	case h.broadcast <- hubMessage{teamID: notification.TeamID, data: data}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &NotificationResult{Success: true, Timestamp: time.Now()}, nil
}

// readPump 只处理控制帧，客户端消息被忽略
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
