package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/service/reservation/domain"
	"backoffice/internal/service/reservation/port"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FeedHub 把已提交的预占事件推送给 websocket 订阅者。
// 订阅时可以用 order_id 只关注某个订单；发送缓冲满的连接会被断开。
type FeedHub struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	hub     *FeedHub
	conn    *websocket.Conn
	send    chan []byte
	orderID string
}

func NewFeedHub() *FeedHub {
	return &FeedHub{clients: make(map[*feedClient]struct{})}
}

// Publish 实现 port.EventPublisher；从不阻塞调用方
func (h *FeedHub) Publish(_ context.Context, events ...domain.ReservationEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return nil
	}
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "marshal reservation event")
		}
		for c := range h.clients {
			if c.orderID != "" && c.orderID != e.OrderID {
				continue
			}
			select {
			case c.send <- body:
			default:
				go h.unregister(c)
			}
		}
	}
	return nil
}

// Subscribers 返回当前连接数
func (h *FeedHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *FeedHub) register(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *FeedHub) unregister(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP 把请求升级为 websocket 并注册订阅
func (h *FeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("⚠️ websocket upgrade failed")
		return
	}
	c := &feedClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer), orderID: r.URL.Query().Get("order_id")}
	h.register(c)
	logger.Ctx(r.Context()).Debug().Str("order_id", c.orderID).Msg("reservation feed subscriber connected")

	go c.writePump()
	go c.readPump()
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理心跳与关闭
func (c *feedClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ port.EventPublisher = (*FeedHub)(nil)
