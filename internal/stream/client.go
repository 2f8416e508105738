package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// ReconnectDelay is the fixed wait between a transport failure and the next
// connection attempt. There is no backoff and no attempt limit.
const ReconnectDelay = 5 * time.Second

// Handle is one open push connection.
type Handle interface {
	// Next blocks until the next frame arrives or the connection fails.
	Next() (Frame, error)
	Close() error
}

// Source opens push connections.
type Source interface {
	// Open returns once the connection is established. Cancelling ctx aborts
	// the attempt.
	Open(ctx context.Context) (Handle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Handle, error)

func (f SourceFunc) Open(ctx context.Context) (Handle, error) { return f(ctx) }

// Signals posted to the owning goroutine. gen ties a signal to the
// connection attempt that produced it; signals from superseded attempts are
// dropped.
type (
	connectSig struct{}
	openedSig  struct {
		gen uint64
		h   Handle
	}
	frameSig struct {
		gen uint64
		f   Frame
	}
	failedSig struct {
		gen uint64
		err error
	}
	retrySig struct{ seq uint64 }
	closeSig struct{}
)

// Client maintains a single live push connection. Every state transition
// happens on the run goroutine, in the order signals arrive, so the fields
// it owns need no locking. Once run has returned, done is closed and every
// late signal (a timer that raced teardown, a read error) is discarded.
type Client struct {
	source     Source
	consumer   Consumer
	privileged bool
	clock      clock.Clock
	log        *slog.Logger

	signals   chan interface{}
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	// owned by run
	ctx      context.Context
	stop     context.CancelFunc
	gen      uint64
	handle   Handle
	cancel   context.CancelFunc
	timer    *clock.Timer
	timerSeq uint64
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithPrivileged enables dispatch of users events. Without it users events
// are dropped unread.
func WithPrivileged(privileged bool) Option {
	return func(cl *Client) { cl.privileged = privileged }
}

// New creates a client in the Idle state. Close must be called to release
// its goroutine.
func New(source Source, consumer Consumer, opts ...Option) *Client {
	c := &Client{
		source:   source,
		consumer: consumer,
		clock:    clock.New(),
		log:      slog.New(slog.DiscardHandler),
		signals:  make(chan interface{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.stop = context.WithCancel(context.Background())
	go c.run()
	return c
}

// Connect opens a new connection, closing the current one first if any.
func (c *Client) Connect() {
	c.post(connectSig{})
}

// Close tears the client down for good: the live handle is closed, any
// pending reconnect is cancelled, and no further transition happens. It
// returns once teardown is complete.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.post(closeSig{})
		<-c.done
	})
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// post hands a signal to the owning goroutine. It reports false once the
// client has been torn down.
func (c *Client) post(s interface{}) bool {
	select {
	case c.signals <- s:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) run() {
	defer close(c.done)
	for s := range c.signals {
		switch s := s.(type) {
		case connectSig:
			c.connect()

		case openedSig:
			if s.gen != c.gen {
				s.h.Close()
				continue
			}
			c.handle = s.h
			c.setState(Connected)
			c.log.Info("stream connected")
			c.consumer.Status(Status{State: Connected, Text: StatusConnected})
			go c.read(s.gen, s.h)

		case frameSig:
			if s.gen != c.gen || c.State() != Connected {
				continue
			}
			c.dispatch(s.f)

		case failedSig:
			if s.gen != c.gen || c.State() == Disconnected {
				continue
			}
			c.disconnect(s.err)

		case retrySig:
			if s.seq != c.timerSeq || c.timer == nil {
				continue
			}
			c.timer = nil
			c.connect()

		case closeSig:
			c.teardown()
			return
		}
	}
}

func (c *Client) connect() {
	c.stopTimer()
	c.release()

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel

	c.setState(Connecting)
	c.consumer.Status(Status{State: Connecting, Text: StatusConnecting})

	go func() {
		h, err := c.source.Open(ctx)
		if err != nil {
			var te *TransportError
			if !errors.As(err, &te) {
				err = &TransportError{Op: "open", Err: err}
			}
			c.post(failedSig{gen: gen, err: err})
			return
		}
		if !c.post(openedSig{gen: gen, h: h}) {
			h.Close()
		}
	}()
}

func (c *Client) read(gen uint64, h Handle) {
	for {
		f, err := h.Next()
		if err != nil {
			c.post(failedSig{gen: gen, err: &TransportError{Op: "read", Err: err}})
			return
		}
		c.post(frameSig{gen: gen, f: f})
	}
}

// dispatch routes one frame. Decode failures are logged and leave the state
// and the connection untouched.
func (c *Client) dispatch(f Frame) {
	if Kind(f.Event) == KindUsers && !c.privileged {
		return
	}
	ev, err := Decode(f)
	if errors.Is(err, ErrUnknownEvent) {
		c.log.Debug("stream: ignoring frame", slog.String("event", f.Event))
		return
	}
	if err != nil {
		c.log.Error("stream: bad payload", slog.String("event", f.Event), slog.Any("error", err))
		return
	}

	switch ev := ev.(type) {
	case DevicesEvent:
		c.consumer.Devices(ev.Devices)
		c.consumer.Updated(c.clock.Now())
	case UsersEvent:
		c.consumer.Users(ev.Users)
		c.consumer.Updated(c.clock.Now())
	case HeartbeatEvent:
		c.consumer.Updated(c.clock.Now())
	case ErrorEvent:
		appErr := &ApplicationError{Message: ev.Message}
		c.log.Warn("stream: server error", slog.Any("error", appErr))
		c.consumer.Status(Status{State: c.State(), Text: "Error: " + ev.Message, Alert: true})
	}
}

func (c *Client) disconnect(err error) {
	c.log.Warn("stream disconnected", slog.Any("error", err), slog.Duration("retry_in", ReconnectDelay))
	c.release()
	c.setState(Disconnected)
	c.schedule()
	c.consumer.Status(Status{State: Disconnected, Text: StatusDisconnected})
}

// schedule arms the reconnect timer unless one is already pending.
func (c *Client) schedule() {
	if c.timer != nil {
		return
	}
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.clock.AfterFunc(ReconnectDelay, func() {
		c.post(retrySig{seq: seq})
	})
}

func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// release closes the live handle and aborts an in-flight open.
func (c *Client) release() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			c.log.Debug("stream: close handle", slog.Any("error", err))
		}
		c.handle = nil
	}
}

func (c *Client) teardown() {
	c.stopTimer()
	c.release()
	c.stop()
	c.setState(Closed)
	c.log.Info("stream closed")
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}
