package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	writeTimeout  = 10 * time.Second
	readTimeout   = 60 * time.Second
	maxReadBytes  = 512 * 1024
	exitCloseCode = websocket.CloseNormalClosure
)

// Client is one connected WebSocket watcher.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan Message

	done     chan struct{}
	sendOnce sync.Once
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		server: s,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue hands msg to the write pump without blocking. A full buffer drops
// the message.
func (c *Client) enqueue(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.server.log.Debug("client send buffer full, dropping message", "type", msg.Type)
	}
}

// closeSend signals the client to shut down exactly once. Only done is
// closed; senders check it before sending.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// writePump sends queued messages and periodic pings. On shutdown it flushes
// whatever is still queued before the close frame, so a terminate notice
// reaches the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(exitCloseCode, "stay-awake exiting"))
			return

		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.server.log.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.server.log.Warn("failed to marshal message", "type", msg.Type, "error", err)
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump handles client requests and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.clients, c)
		remaining := len(c.server.clients)
		c.server.mu.Unlock()

		c.closeSend()
		c.server.log.Info("client disconnected", "clients", remaining)
	}()

	c.conn.SetReadLimit(maxReadBytes)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.server.log.Debug("read error", "error", err)
			}
			return
		}

		var msg Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.log.Debug("failed to parse message", "error", err)
			continue
		}

		switch msg.Type {
		case MessageTypeQuit:
			c.handleQuit()
		default:
			c.server.log.Debug("ignoring message", "type", msg.Type)
		}
	}
}

func (c *Client) handleQuit() {
	if !c.server.limiter.Allow() {
		code, text := rateLimitedCodeAndMessage()
		c.enqueue(NewErrorMessage(code, text))
		return
	}
	canceled := c.server.quit()
	c.server.log.Info("quit requested over websocket", "canceled", canceled)
}
