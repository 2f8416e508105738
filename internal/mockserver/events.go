package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Push event names.
const (
	EventConnected = "connected"
	EventDevices   = "devices"
	EventUsers     = "users"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
)

// emitFunc writes one event to a subscriber.
type emitFunc func(event string, data interface{}) error

// feed produces the event sequence for one subscriber: a connected notice,
// the initial snapshots, then a re-send of each list whenever it changes and
// a heartbeat every heartbeatEvery polls.
type feed struct {
	src            Snapshotter
	keyUser        bool
	poll           time.Duration
	heartbeatEvery int
	clock          clock.Clock
	log            *slog.Logger

	lastDevices []byte
	lastUsers   []byte
}

// run blocks until ctx is done, emit fails, or a snapshot fails. A snapshot
// failure is reported to the subscriber as an error event before returning.
func (f *feed) run(ctx context.Context, emit emitFunc) error {
	ticker := f.clock.Ticker(f.poll)
	defer ticker.Stop()

	if err := emit(EventConnected, "Connection established"); err != nil {
		return err
	}
	if err := f.check(ctx, emit); err != nil {
		return err
	}

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := f.check(ctx, emit); err != nil {
			return err
		}
		polls++
		if polls >= f.heartbeatEvery {
			polls = 0
			ts := float64(f.clock.Now().UnixNano()) / 1e9
			if err := emit(EventHeartbeat, map[string]float64{"timestamp": ts}); err != nil {
				return err
			}
		}
	}
}

// check sends each list if it differs from what the subscriber last saw.
func (f *feed) check(ctx context.Context, emit emitFunc) error {
	if f.keyUser {
		users, err := f.src.Users(ctx)
		if err != nil {
			return f.fail(emit, err)
		}
		if err := f.sendIfChanged(emit, EventUsers, users, &f.lastUsers); err != nil {
			return err
		}
	}

	devices, err := f.src.Devices(ctx)
	if err != nil {
		return f.fail(emit, err)
	}
	return f.sendIfChanged(emit, EventDevices, devices, &f.lastDevices)
}

func (f *feed) sendIfChanged(emit emitFunc, event string, v interface{}, last *[]byte) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return f.fail(emit, err)
	}
	if *last != nil && bytes.Equal(enc, *last) {
		return nil
	}
	*last = enc
	return emit(event, v)
}

func (f *feed) fail(emit emitFunc, err error) error {
	f.log.Error("stream snapshot failed", slog.Any("error", err))
	emit(EventError, map[string]string{"message": err.Error()})
	return err
}
