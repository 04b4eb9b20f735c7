package teleop

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-picarx/pkg/protocol"
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("teleop: connection closed")

// URL builds the teleop websocket URL for a car's web address, which may
// be host:port or an http(s) URL.
func URL(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("teleop: invalid address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("teleop: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/teleop"
	return u.String(), nil
}

// Client is an operator connection to a car.
type Client struct {
	conn *websocket.Conn

	writeMu  sync.Mutex
	messages chan *protocol.Message

	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
	err       error
}

// Dial connects to the teleop endpoint at rawURL.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("teleop: dial %s: %w", rawURL, err)
	}
	c := &Client{
		conn:     conn,
		messages: make(chan *protocol.Message, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SendKey sends one key press.
func (c *Client) SendKey(r rune) error {
	msg, err := protocol.NewKeyMessage(r)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// SendStop requests an emergency stop.
func (c *Client) SendStop(reason string) error {
	msg, err := protocol.NewStopMessage(reason)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Ping sends a ping; the pong arrives on Messages.
func (c *Client) Ping(id string) error {
	msg, err := protocol.NewPingMessage(id)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Messages delivers messages from the car. It is closed when the
// connection ends.
func (c *Client) Messages() <-chan *protocol.Message {
	return c.messages
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer close(c.messages)
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.err = err
			}
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}
		select {
		case c.messages <- msg:
		case <-c.quit:
			return
		}
	}
}
