package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
)

// Hub fans lane events out to connected dashboards.
type Hub struct {
	mu           sync.RWMutex
	clients      map[uint64]*client
	nextID       atomic.Uint64
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// NewHub builds hub.
func NewHub(pingInterval, writeTimeout time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Hub{
		clients:      make(map[uint64]*client),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger.Named("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWS upgrades a dashboard connection. An optional site_id query narrows the subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var siteID int64
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid site_id", http.StatusBadRequest)
			return
		}
		siteID = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h.nextID.Add(1), siteID, conn, h.writeTimeout, h.pingInterval, h.logger, h.remove)
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go c.start()
	h.logger.Info("dashboard connected", zap.Uint64("client_id", c.id), zap.Int64("site_id", siteID))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// Publish encodes the event once and enqueues it for every subscribed dashboard.
func (h *Hub) Publish(_ context.Context, event models.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("encode realtime event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.wants(event.SiteID) {
			c.enqueue(msg)
		}
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run blocks until ctx ends and then disconnects every dashboard.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}
	return nil
}
