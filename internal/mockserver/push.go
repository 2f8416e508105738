package mockserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

type wsEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// handleEvents serves the push feed as text/event-stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	u := currentUser(r.Context())
	s.log.Info("event stream opened", slog.String("username", u.Username), slog.String("remote", r.RemoteAddr))

	emit := func(event string, data interface{}) error {
		if err := sse.Encode(w, sse.Event{Event: event, Data: data}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	err := s.newFeed(u.IsKeyUser).run(r.Context(), emit)
	s.logClosed("event stream closed", u.Username, err)
}

// handleWS serves the same feed as JSON envelopes over a websocket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade", slog.Any("error", err))
		return
	}
	defer conn.Close()

	u := currentUser(r.Context())
	s.log.Info("websocket opened", slog.String("username", u.Username), slog.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Clients send nothing but control frames; reading keeps pings answered
	// and notices when the peer goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	emit := func(event string, data interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(wsEnvelope{Event: event, Data: data})
	}
	err = s.newFeed(u.IsKeyUser).run(ctx, emit)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.logClosed("websocket closed", u.Username, err)
}

func (s *Server) logClosed(msg, username string, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn(msg, slog.String("username", username), slog.Any("error", err))
		return
	}
	s.log.Info(msg, slog.String("username", username))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	for _, loopback := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == loopback || strings.HasPrefix(host, loopback+":") {
			return true
		}
	}
	return false
}
