// Package transport owns the single websocket connection that carries both
// chat and signaling events. Inbound events are delivered in server order on
// one channel; outbound sends are safe from any goroutine.
package transport

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talkwire/talkwire/internal/proto"
	"github.com/talkwire/talkwire/internal/util"
)

var dialer = &websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: util.DefaultDialTimeout,
}

// ErrNotConnected is returned by Send while the channel is between
// connections. Sends are fire-and-forget; callers log and move on.
var ErrNotConnected = errors.New("transport: not connected")

// reconnectDelay paces the unconditional reconnect loop. The channel retries
// forever; there is no backoff ceiling and no give-up path.
const reconnectDelay = time.Second

type Channel struct {
	url   string
	token string

	mu   sync.Mutex // guards conn for writes and swaps
	conn *websocket.Conn

	events chan *proto.Event
	done   chan struct{}
	once   sync.Once
}

// Dial starts the connection loop for the channel at wsURL. The token is
// presented as a bearer Authorization header on every (re)connect. The
// returned Channel is usable immediately; Send fails with ErrNotConnected
// until the first connect completes.
func Dial(wsURL, token string) *Channel {
	c := &Channel{
		url:    wsURL,
		token:  token,
		events: make(chan *proto.Event, 64),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Events returns the ordered inbound event stream. The channel is closed
// when Close is called.
func (c *Channel) Events() <-chan *proto.Event {
	return c.events
}

// Send writes one event to the server. Safe to call from any goroutine.
func (c *Channel) Send(ev *proto.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(ev)
}

// Close tears the connection down and stops reconnecting. Called on logout.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	})
}

// run dials, reads until the connection drops, and reconnects forever.
func (c *Channel) run() {
	defer close(c.events)

	hdr := http.Header{}
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}

	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := dialer.Dial(c.url, hdr)
		if err != nil {
			log.Printf("WS: dial %s: %v (retrying)", c.url, err)
			select {
			case <-c.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		log.Printf("WS: connected to %s", c.url)

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		select {
		case <-c.done:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// readLoop delivers inbound events in arrival order until the connection
// errors. Malformed frames are skipped; they must not kill the connection.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, r, err := conn.NextReader()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("WS: read: %v (reconnecting)", err)
			}
			return
		}
		var ev proto.Event
		if err := json.NewDecoder(r).Decode(&ev); err != nil {
			log.Printf("WS: skipping malformed frame: %v", err)
			continue
		}
		if ev.Type == "" {
			continue
		}
		select {
		case <-c.done:
			return
		case c.events <- &ev:
		}
	}
}
