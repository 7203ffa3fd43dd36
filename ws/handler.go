// Package ws is the websocket transport: it upgrades HTTP requests, runs the per-connection read and write
// loops and delivers outbound events through the Hub.
package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

// Options configure the transport of every connection.
type Options struct {
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBuffer      int
	EventsPerSecond float64
	Burst           int
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.EventsPerSecond > 0 && o.Burst <= 0 {
		o.Burst = 1
	}
	return o
}

// SessionHandler is the session layer behind the transport.
type SessionHandler interface {
	MessageHandler
	Connect(connId string)
	Disconnect(connId string)
}

// Handler upgrades incoming requests to websockets and serves them until the connection closes.
type Handler struct {
	hub      *Hub
	sessions SessionHandler
	options  Options
	upgrader websocket.Upgrader
	logger   hclog.Logger
}

func NewHandler(hub *Hub, sessions SessionHandler, options Options, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	options = options.withDefaults()
	origins := newOriginPolicy(options.AllowedOrigins, logger)
	return &Handler{
		hub:      hub,
		sessions: sessions,
		options:  options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		logger: logger,
	}
}

// ServeHTTP handles incoming websockets. It blocks until the read loop of the connection ended.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade error", "error", err)
		return
	}

	connId := uuid.NewString()
	c := NewClient(connId, conn, h.sessions, h.options, h.logger)
	h.hub.Register(c)
	h.sessions.Connect(connId)
	h.logger.Info("connection opened", "conn", connId, "remote", r.RemoteAddr)

	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()

	<-c.DoneChan()
	h.sessions.Disconnect(connId)
	h.hub.Unregister(c)
	c.Wait()
	h.logger.Info("connection closed", "conn", connId)
}
