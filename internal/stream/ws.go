package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// WSSource opens push connections over WebSocket. Each text message is a
// JSON envelope {"event": "...", "data": ...} carrying the same events as
// the SSE stream.
type WSSource struct {
	URL string
	// Jar supplies the session cookie for the upgrade request.
	Jar http.CookieJar
	// IdleTimeout is the read deadline, extended by every message and pong.
	// Zero disables it.
	IdleTimeout time.Duration
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *WSSource) Open(ctx context.Context) (Handle, error) {
	dialer := *websocket.DefaultDialer
	dialer.Jar = s.Jar

	conn, resp, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, &TransportError{Op: "open", Err: err}
	}

	h := &wsHandle{conn: conn, idle: s.IdleTimeout, done: make(chan struct{})}
	if h.idle > 0 {
		conn.SetReadDeadline(time.Now().Add(h.idle))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.idle))
		})
	}
	go h.pingLoop()
	return h, nil
}

type wsHandle struct {
	conn *websocket.Conn
	idle time.Duration

	writeMu sync.Mutex // serialises ping and close frames
	done    chan struct{}
	once    sync.Once
}

func (h *wsHandle) Next() (Frame, error) {
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if h.idle > 0 {
			h.conn.SetReadDeadline(time.Now().Add(h.idle))
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			continue
		}
		return Frame{Event: env.Event, Data: env.Data}, nil
	}
}

// pingLoop sends periodic pings until the handle is closed or a write fails.
func (h *wsHandle) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			err := h.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			h.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *wsHandle) Close() error {
	var err error
	h.once.Do(func() {
		close(h.done)
		h.writeMu.Lock()
		h.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		h.writeMu.Unlock()
		err = h.conn.Close()
	})
	return err
}
