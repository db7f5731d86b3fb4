// Package client talks to a bola server for the operator CLI.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/bola/internal/config"
	"github.com/BioHazard786/bola/internal/leaderboard"
	"github.com/BioHazard786/bola/internal/server"
	"github.com/BioHazard786/bola/internal/tournament"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is an HTTP and websocket client for one server.
type Client struct {
	cfg    *config.Client
	http   *http.Client
	dialer *websocket.Dialer
}

// New creates a Client for cfg.
func New(cfg *config.Client) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Stats fetches the server's live counters.
func (c *Client) Stats(ctx context.Context) (*server.Stats, error) {
	var stats server.Stats
	if err := c.getJSON(ctx, "fetch stats", "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Tournament fetches the current tournament week.
func (c *Client) Tournament(ctx context.Context) (*tournament.Week, error) {
	var week tournament.Week
	if err := c.getJSON(ctx, "fetch tournament", "/tournament", &week); err != nil {
		return nil, err
	}
	return &week, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ServerURL+path, nil)
	if err != nil {
		return NewError(op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(op, ErrConnectionFailed, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && path == "/tournament":
		return NewError(op, ErrNotStarted)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return WrapError(op, ErrServer, fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return WrapError(op, ErrServer, "malformed response: "+err.Error())
	}
	return nil
}

// Leaderboard fetches the current board for difficulty.
func (c *Client) Leaderboard(ctx context.Context, difficulty leaderboard.Difficulty) ([]leaderboard.Entry, error) {
	stream, err := c.WatchLeaderboard(ctx, difficulty)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	select {
	case update, ok := <-stream.Updates():
		if !ok {
			return nil, NewError("fetch leaderboard", ErrStreamClosed)
		}
		return update.Entries, nil
	case <-ctx.Done():
		return nil, NewError("fetch leaderboard", ctx.Err())
	}
}

// WatchLeaderboard opens a live stream of a board. The first update is the
// current snapshot.
func (c *Client) WatchLeaderboard(ctx context.Context, difficulty leaderboard.Difficulty) (*Stream, error) {
	u, err := url.Parse(c.cfg.WebSocketURL + "/ws/leaderboard")
	if err != nil {
		return nil, NewError("watch leaderboard", err)
	}
	u.RawQuery = url.Values{"difficulty": {string(difficulty)}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, WrapError("watch leaderboard", ErrServer, resp.Status)
		}
		return nil, WrapError("watch leaderboard", ErrConnectionFailed, err.Error())
	}
	return newStream(conn), nil
}

// Stream is a live leaderboard subscription.
type Stream struct {
	conn      *websocket.Conn
	updates   chan leaderboard.Update
	done      chan struct{}
	closeOnce sync.Once
}

func newStream(conn *websocket.Conn) *Stream {
	s := &Stream{
		conn:    conn,
		updates: make(chan leaderboard.Update, leaderboard.UpdateBufferSize),
		done:    make(chan struct{}),
	}

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readPump()
	go s.writePump()
	return s
}

// readPump reads updates from the WebSocket connection.
func (s *Stream) readPump() {
	defer func() {
		s.conn.Close()
		close(s.updates)
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var update leaderboard.Update
		if err := s.conn.ReadJSON(&update); err != nil {
			return
		}

		select {
		case s.updates <- update:
		case <-s.done:
			return
		}
	}
}

// writePump sends periodic pings and the closing frame.
func (s *Stream) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Updates returns the channel of board updates. It is closed when the
// stream ends.
func (s *Stream) Updates() <-chan leaderboard.Update {
	return s.updates
}

// Close ends the subscription.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
