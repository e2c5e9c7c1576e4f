package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"paircall-backend/pkg/constants"
	"paircall-backend/pkg/logger"
	"paircall-backend/pkg/metrics"
)

// Client is one user's live WebSocket connection
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    int64
	sessionID string
}

// UserID returns the authenticated user behind this connection
func (c *Client) UserID() int64 {
	return c.userID
}

// SessionID returns the identifier assigned to this connection
func (c *Client) SessionID() string {
	return c.sessionID
}

// readPump reads inbound frames and hands them to the dispatcher.
// When it exits, for any reason, the user's state is torn down.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.hub.dispatcher.HandleDisconnect(c)
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageLen)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket connection closed",
					zap.Int64("user_id", c.userID), zap.Error(err))
			}
			break
		}

		metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()
		c.hub.dispatcher.HandleMessage(c, message)
	}
}

// writePump drains the send buffer to the connection and keeps the
// connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
