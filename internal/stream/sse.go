package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxFrameSize = 1 << 20

// FrameReader parses a text/event-stream body incrementally. Only the event
// and data fields are kept; id, retry and comment lines are skipped.
type FrameReader struct {
	sc *bufio.Scanner
}

// NewFrameReader reads frames from r.
func NewFrameReader(r io.Reader) *FrameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &FrameReader{sc: sc}
}

// Next returns the next complete frame. A frame without data lines is
// discarded, and an unnamed frame is reported as "message". It returns
// io.EOF when the body ends cleanly.
func (r *FrameReader) Next() (Frame, error) {
	var (
		event string
		data  []string
	)
	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "" {
			if data == nil {
				event = ""
				continue
			}
			if event == "" {
				event = "message"
			}
			return Frame{Event: event, Data: []byte(strings.Join(data, "\n"))}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := r.sc.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// SSESource opens Server-Sent Events streams over plain HTTP.
type SSESource struct {
	URL string
	// Client must carry the session jar and must not set Timeout.
	Client *http.Client
	// IdleTimeout fails the connection when nothing, not even a heartbeat,
	// arrives for this long. Zero disables it.
	IdleTimeout time.Duration
}

func (s *SSESource) Open(ctx context.Context) (Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	hc := s.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("unexpected content type %q", mt)}
	}

	h := &sseHandle{body: resp.Body, frames: NewFrameReader(resp.Body), idle: s.IdleTimeout}
	if h.idle > 0 {
		h.watchdog = time.AfterFunc(h.idle, h.expire)
	}
	return h, nil
}

type sseHandle struct {
	body     io.ReadCloser
	frames   *FrameReader
	idle     time.Duration
	watchdog *time.Timer

	mu      sync.Mutex
	expired bool
	once    sync.Once
}

func (h *sseHandle) Next() (Frame, error) {
	f, err := h.frames.Next()
	if err != nil {
		h.mu.Lock()
		expired := h.expired
		h.mu.Unlock()
		if expired {
			return Frame{}, fmt.Errorf("no data for %v", h.idle)
		}
		return Frame{}, err
	}
	if h.watchdog != nil {
		h.watchdog.Reset(h.idle)
	}
	return f, nil
}

// expire closes the body from the watchdog so a blocked Next returns.
func (h *sseHandle) expire() {
	h.mu.Lock()
	h.expired = true
	h.mu.Unlock()
	h.body.Close()
}

func (h *sseHandle) Close() error {
	var err error
	h.once.Do(func() {
		if h.watchdog != nil {
			h.watchdog.Stop()
		}
		err = h.body.Close()
	})
	return err
}
