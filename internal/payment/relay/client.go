package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readLimit     = 64 * 1024
	readDeadline  = 60 * time.Second
	writeDeadline = 5 * time.Second
)

// EventSubscribe is the Pusher-style control event for channel subscription.
const EventSubscribe = "pusher:subscribe"

// PaymentChannel derives the relay channel name for a payment order. The
// naming is a wire contract with the server side.
func PaymentChannel(orderID string) string {
	return "payment_status." + orderID
}

type subscribeFrame struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

type subscribeData struct {
	Channel string `json:"channel"`
}

// Logger provides minimal logging required by the relay client.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ErrNotConnected is returned when sending on a connection that is not open.
var ErrNotConnected = errors.New("relay: not connected")

// Client is a single relay connection. Callbacks must be registered before
// Connect; they are invoked from the read goroutine. Close is safe to call at
// any time, concurrently, and on a never-opened client.
type Client struct {
	logger Logger

	onOpen    func()
	onMessage func(text string)
	onError   func(err error)
	onClose   func(code int)

	mu     sync.Mutex
	wmu    sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient constructs a relay client.
func NewClient(logger Logger) *Client {
	return &Client{logger: logger}
}

// OnOpen registers the connection-opened callback.
func (c *Client) OnOpen(fn func()) { c.onOpen = fn }

// OnMessage registers the inbound text frame callback.
func (c *Client) OnMessage(fn func(text string)) { c.onMessage = fn }

// OnError registers the transport error callback.
func (c *Client) OnError(fn func(err error)) { c.onError = fn }

// OnClose registers the connection-closed callback.
func (c *Client) OnClose(fn func(code int)) { c.onClose = fn }

// Connect dials the relay and starts the read loop. The expected URL shape is
// <scheme>://<host>/app/<appKey>.
func (c *Client) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("relay: client already closed")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("relay: already connected")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("relay: dial %s: %w", url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("relay: client already closed")
	}
	c.conn = conn
	c.mu.Unlock()

	if c.onOpen != nil {
		c.onOpen()
	}
	go c.readLoop(conn)
	return nil
}

// Subscribe sends the subscribe control frame for the named channel.
func (c *Client) Subscribe(channel string) error {
	frame := subscribeFrame{Event: EventSubscribe, Data: subscribeData{Channel: channel}}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.logger.Infof("relay: subscribing to %s", channel)
	return c.send(data)
}

// Send writes a text frame to the relay.
func (c *Client) Send(text string) error {
	return c.send([]byte(text))
}

func (c *Client) send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay: write: %w", err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		c.wmu.Lock()
		defer c.wmu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeDeadline))
	})

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		if mt == websocket.TextMessage && c.onMessage != nil {
			c.onMessage(string(msg))
		}
	}
}

func (c *Client) handleReadError(err error) {
	c.mu.Lock()
	wasClosed := c.closed
	c.mu.Unlock()
	if wasClosed {
		// local Close tore down the connection; not an error
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.logger.Infof("relay: connection closed by peer: %d", closeErr.Code)
		if c.onClose != nil {
			c.onClose(closeErr.Code)
		}
		return
	}
	c.logger.Errorf("relay: read failed: %v", err)
	if c.onError != nil {
		c.onError(err)
	}
	if c.onClose != nil {
		c.onClose(websocket.CloseAbnormalClosure)
	}
}

// Close tears the connection down. It is idempotent and never blocks on the
// peer acknowledging the close handshake.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.wmu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return conn.Close()
}
