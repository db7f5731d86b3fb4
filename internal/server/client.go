package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for a batch of SDP offers
)

// client is a wrapper for a single websocket connection.
type client struct {
	id     string
	conn   *websocket.Conn
	codec  codec
	logger *slog.Logger

	// send is a buffered channel for all outbound values.
	// The handler writes to this channel, and writePump
	// reads from it and writes to the websocket. It is never closed.
	send chan any

	// done is closed by finish once the handler is through with the
	// connection.
	done       chan struct{}
	finishOnce sync.Once

	// incoming carries decoded client messages. It is closed when
	// readPump exits.
	incoming chan *Message

	// cancel ends the connection context. Either pump calls it on exit.
	cancel context.CancelFunc
}

func newClient(ctx context.Context, conn *websocket.Conn, c codec, logger *slog.Logger) (*client, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	return &client{
		id:       id,
		conn:     conn,
		codec:    c,
		logger:   logger.With("conn", id),
		send:     make(chan any, 16),
		done:     make(chan struct{}),
		incoming: make(chan *Message, 16),
		cancel:   cancel,
	}, ctx
}

// readPump pumps messages from the websocket connection to incoming.
//
// There is at most one reader on a connection; all reads happen in this
// goroutine.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.cancel()
		close(c.incoming)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}

		var msg Message
		if err := c.codec.decode(data, &msg); err != nil {
			c.logger.Debug("dropping undecodable frame", "error", err)
			msg = Message{Type: TypeError}
		}

		select {
		case c.incoming <- &msg:
		case <-ctx.Done():
			return
		}
	}
}

// writePump pumps values from send to the websocket connection.
//
// There is at most one writer on a connection; all writes happen in this
// goroutine. After finish, writePump flushes what is queued, says goodbye
// and closes the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case v := <-c.send:
			if err := c.writeFrame(v); err != nil {
				return
			}

		case <-c.done:
			if err := c.flush(); err != nil {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (c *client) flush() error {
	for {
		select {
		case v := <-c.send:
			if err := c.writeFrame(v); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *client) writeFrame(v any) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := c.codec.encode(v)
	if err != nil {
		c.logger.Error("encoding message failed", "error", err)
		return err
	}
	if err := c.conn.WriteMessage(c.codec.frameType(), data); err != nil {
		c.logger.Debug("write failed", "error", err)
		return err
	}
	return nil
}

// write queues v for writePump. It reports false once the connection is
// gone or finished. Values queued after finish may be dropped.
func (c *client) write(ctx context.Context, v any) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- v:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

// finish tells writePump that the handler is done with the connection.
// Safe to call more than once and concurrently with write.
func (c *client) finish() {
	c.finishOnce.Do(func() { close(c.done) })
}

// read waits for the next client message. It reports false once the
// connection is gone.
func (c *client) read(ctx context.Context) (*Message, bool) {
	select {
	case msg, ok := <-c.incoming:
		return msg, ok
	case <-ctx.Done():
		return nil, false
	}
}
