package ws

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/lvdund/agent-english-teacher/internal/models"
)

var ErrSendBufferFull = errors.New("connection send buffer full")

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// Client wraps a gorilla websocket connection behind the Sender interface.
// Writes go through a buffered channel drained by a single write pump, so
// the hub never blocks on a slow consumer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan models.Event
	done chan struct{}
	log  zerolog.Logger
}

func NewClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	client := &Client{
		id:   ksuid.New().String(),
		conn: conn,
		send: make(chan models.Event, sendBufferSize),
		done: make(chan struct{}),
		log:  log.With().Str("component", "ws").Logger(),
	}
	go client.writePump()
	return client
}

func (c *Client) ID() string {
	return c.id
}

// Send enqueues the event without blocking. A full buffer means the
// consumer has stalled; the hub treats the error as a dead connection.
func (c *Client) Send(event models.Event) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- event:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	return c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				c.log.Debug().Err(err).Str("conn_id", c.id).Msg("write pump stopped")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
