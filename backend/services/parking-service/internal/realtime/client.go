package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit   = 4096
	pongTimeout = 60 * time.Second
)

// client is one dashboard connection. Dashboards only listen; inbound frames are discarded.
type client struct {
	id           uint64
	siteID       int64
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
	onClose      func(c *client)
}

func newClient(id uint64, siteID int64, ws *websocket.Conn, writeTimeout, pingInterval time.Duration, logger *zap.Logger, onClose func(*client)) *client {
	return &client{
		id:           id,
		siteID:       siteID,
		ws:           ws,
		send:         make(chan []byte, 32),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
		onClose:      onClose,
	}
}

func (c *client) start() {
	go c.writePump()
	c.readPump()
}

// wants reports whether the client subscribed to siteID. Zero subscribes to every site.
func (c *client) wants(siteID int64) bool {
	return c.siteID == 0 || c.siteID == siteID
}

// enqueue drops the message when the buffer is full so a slow dashboard never blocks publishers.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("dropping realtime event, buffer full", zap.Uint64("client_id", c.id))
		return false
	}
}

func (c *client) readPump() {
	defer c.close()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.logger.Debug("dashboard read closed", zap.Uint64("client_id", c.id), zap.Error(err))
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose(c)
		}
		// writePump sends the close frame; give it a moment before the socket goes away.
		time.AfterFunc(c.writeTimeout, func() { _ = c.ws.Close() })
	})
}
