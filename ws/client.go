package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// MessageHandler consumes raw inbound frames of a connection.
type MessageHandler interface {
	HandleMessage(connId string, raw []byte)
}

// Client is a middleman between the websocket connection and the coordinator. Outbound events reach it via
// the hub.
type Client struct {
	Id string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Only the hub writes to and closes it.
	Send chan []byte

	handler        MessageHandler
	limiter        *rate.Limiter
	maxMessageSize int64
	logger         hclog.Logger

	doneChan chan struct{}

	// WaitGroup which keeps track of the running read/write loops.
	sync.WaitGroup
}

func NewClient(id string, conn *websocket.Conn, handler MessageHandler, options Options, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	options = options.withDefaults()
	var limiter *rate.Limiter
	if options.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(options.EventsPerSecond), options.Burst)
	}
	return &Client{
		Id:             id,
		conn:           conn,
		Send:           make(chan []byte, options.SendBuffer),
		handler:        handler,
		limiter:        limiter,
		maxMessageSize: options.MaxMessageSize,
		logger:         logger.With("conn", id),
		doneChan:       make(chan struct{}),
	}
}

// DoneChan returns a channel that is closed once the read loop ended.
func (c *Client) DoneChan() <-chan struct{} {
	return c.doneChan
}

// ReadLoop pumps messages from the websocket connection to the handler.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(c.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("ws closed unexpected", "error", err)
			} else {
				c.logger.Debug("read loop finished", "error", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded, discarding message")
			continue
		}
		c.handler.HandleMessage(c.Id, raw)
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("could not write to ws connection, exiting write loop", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("could not send ping message, exiting write loop", "error", err)
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
