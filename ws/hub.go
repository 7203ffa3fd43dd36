package ws

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-pagechat/types"
)

const (
	defaultMaxMessageSize = 4096
	defaultSendBuffer     = 256
	pongWait              = 2 * time.Minute
	pingPeriod            = time.Minute
	writeWait             = 10 * time.Second
)

// Hub keeps track of all live connections of the process, independent of the room they are in. It implements
// chat.Emitter.
type Hub struct {
	// Registered clients by connection id.
	clients map[string]*Client

	logger hclog.Logger

	// mutex for manipulating the clients and for writing to their Send channels
	sync.RWMutex
}

func NewHub(logger hclog.Logger) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

func (h *Hub) Register(c *Client) {
	h.Lock()
	defer h.Unlock()
	h.clients[c.Id] = c
	h.logger.Debug("registered client", "conn", c.Id, "clients", len(h.clients))
}

// Unregister removes the client and closes its Send channel. Closing happens under the hub lock, so no Emit
// can write to a closed channel.
func (h *Hub) Unregister(c *Client) {
	h.Lock()
	defer h.Unlock()
	if _, ok := h.clients[c.Id]; !ok {
		return
	}
	delete(h.clients, c.Id)
	close(c.Send)
	h.logger.Debug("unregistered client", "conn", c.Id, "clients", len(h.clients))
}

// Emit marshals the event and queues it on the connection's Send channel. A full channel drops the event, a
// slow client never blocks the sender.
func (h *Hub) Emit(connId, event string, payload interface{}) {
	data, err := types.NewWebsocketMessage(event, payload)
	if err != nil {
		h.logger.Error("could not marshal ws message", "event", event, "error", err)
		return
	}
	h.RLock()
	defer h.RUnlock()
	c, ok := h.clients[connId]
	if !ok {
		h.logger.Debug("dropping event for unknown connection", "conn", connId, "event", event)
		return
	}
	select {
	case c.Send <- data:
	default:
		h.logger.Warn("send buffer full, dropping event", "conn", connId, "event", event)
	}
}
