// Package stream keeps a live push connection to the WSMD backend and
// dispatches its typed events to a single consumer. It reconnects on every
// transport failure after a fixed delay, forever, until closed.
package stream

import (
	"time"

	"github.com/wsmd/console/internal/client"
)

// State is the connection state of a Client.
type State int32

const (
	Idle State = iota
	Connecting
	Connected
	Disconnected
	// Closed is terminal; it is entered only through Client.Close.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Status texts published to the consumer.
const (
	StatusConnecting   = "Connecting..."
	StatusConnected    = "Connected (Live)"
	StatusDisconnected = "Disconnected"
)

// Status is a human-readable connection status line.
type Status struct {
	State State
	Text  string
	// Alert marks a server-pushed error notice. The connection itself is
	// still in State.
	Alert bool
}

// Consumer receives everything the client dispatches. All calls are made
// from the client's own goroutine, one at a time, in arrival order.
type Consumer interface {
	Devices([]client.Device)
	Users([]client.User)
	Status(Status)
	Updated(time.Time)
}
