// Package wsclient maintains one player connection to the game server,
// reconnecting with backoff when it drops.
package wsclient

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
)

const (
	writeWait = 5 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// loop gives up on it; pings go out at half that so a healthy idle
	// connection always answers in time.
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

type Config struct {
	URL        string
	PlayerName string
	// SpawnPos is reported in the join message on every (re)connect.
	SpawnPos geom.Vec3
}

// Client owns the socket. Incoming frames are handed to the message handler
// on the read goroutine; Send is safe from any goroutine.
type Client struct {
	cfg     Config
	log     *log.Logger
	handler func(raw []byte)

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}

	pingEvery time.Duration

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	lastErr   string

	writeMu sync.Mutex
}

// New prepares a client. handler receives every server frame; it must not
// block for long or it stalls the read loop.
func New(cfg Config, handler func(raw []byte), logger *log.Logger) *Client {
	return &Client{
		cfg:       cfg,
		log:       logger,
		handler:   handler,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		pingEvery: pingInterval,
	}
}

// Start launches the connect/reconnect loop.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run()
	})
}

// Close tears the connection down and stops reconnecting.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		// Ensure any blocking ReadMessage wakes up promptly.
		c.disconnect()
	})
	if c.started.Load() {
		<-c.done
	}
}

func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastError reports the most recent connect or read failure.
func (c *Client) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Send marshals v and writes it as one text frame.
func (c *Client) Send(v any) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()
	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) run() {
	defer close(c.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-c.stop:
			c.disconnect()
			return
		default:
		}

		err := c.connectAndReadLoop()
		c.mu.Lock()
		c.connected = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err == nil {
			// Clean shutdown.
			return
		}

		c.logf("[wsclient] disconnected: %v (retry in %v)", err, backoff)
		select {
		case <-c.stop:
			c.disconnect()
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

func (c *Client) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(c.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	join := protocol.JoinMsg{
		Type:            protocol.TypeJoin,
		ProtocolVersion: protocol.Version,
		PlayerName:      c.cfg.PlayerName,
		Position:        c.cfg.SpawnPos,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastErr = ""
	c.mu.Unlock()
	c.logf("[wsclient] connected to %s", c.cfg.URL)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readerDone := make(chan struct{})
	defer close(readerDone)
	go c.pingLoop(conn, readerDone)

	for {
		select {
		case <-c.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-c.stop:
				return nil
			default:
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// pingLoop keeps an otherwise idle connection alive. WriteControl is safe
// to call concurrently with Send's data writes.
func (c *Client) pingLoop(conn *websocket.Conn, readerDone <-chan struct{}) {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-readerDone:
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}
