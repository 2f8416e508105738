package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wsmd/console/internal/client"
)

// Kind names a push event type on the wire.
type Kind string

const (
	KindDevices   Kind = "devices"
	KindUsers     Kind = "users"
	KindHeartbeat Kind = "heartbeat"
	KindError     Kind = "error"
	// KindConnected is the informational frame the backend sends first.
	KindConnected Kind = "connected"
)

// ErrUnknownEvent is returned by Decode for frames with no handler.
var ErrUnknownEvent = errors.New("unknown event")

// Frame is one undecoded event as read off a transport.
type Frame struct {
	Event string
	Data  []byte
}

// Event is one of DevicesEvent, UsersEvent, HeartbeatEvent or ErrorEvent.
type Event interface {
	Kind() Kind
}

// DevicesEvent carries the full ordered device list.
type DevicesEvent struct {
	Devices []client.Device
}

// UsersEvent carries the full ordered user list. Key users only.
type UsersEvent struct {
	Users []client.User
}

// HeartbeatEvent only proves the connection is alive.
type HeartbeatEvent struct{}

// ErrorEvent is an application error pushed by the server.
type ErrorEvent struct {
	Message string
}

func (DevicesEvent) Kind() Kind   { return KindDevices }
func (UsersEvent) Kind() Kind     { return KindUsers }
func (HeartbeatEvent) Kind() Kind { return KindHeartbeat }
func (ErrorEvent) Kind() Kind     { return KindError }

// Decode parses a frame into its Event variant.
func Decode(f Frame) (Event, error) {
	switch Kind(f.Event) {
	case KindDevices:
		var devices []client.Device
		if err := json.Unmarshal(f.Data, &devices); err != nil {
			return nil, fmt.Errorf("decode devices: %w", err)
		}
		return DevicesEvent{Devices: devices}, nil
	case KindUsers:
		var users []client.User
		if err := json.Unmarshal(f.Data, &users); err != nil {
			return nil, fmt.Errorf("decode users: %w", err)
		}
		return UsersEvent{Users: users}, nil
	case KindHeartbeat:
		return HeartbeatEvent{}, nil
	case KindError:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decode error event: %w", err)
		}
		return ErrorEvent{Message: p.Message}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
}
