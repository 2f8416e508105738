package app

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wsmd/console/internal/client"
	"github.com/wsmd/console/internal/stream"
)

// Messages delivered from background components. Epoch identifies the
// dashboard session that produced a stream message; the model drops
// messages from sessions it has already left.
type (
	DevicesMsg struct {
		Epoch   int
		Devices []client.Device
	}
	UsersMsg struct {
		Epoch int
		Users []client.User
	}
	StatusMsg struct {
		Epoch  int
		Status stream.Status
	}
	UpdatedMsg struct {
		Epoch int
		At    time.Time
	}
	SessionExpiredMsg struct {
		Reason error
	}
)

// Bridge turns stream and navigation callbacks into program messages. It
// satisfies client.Navigator; Consumer hands out stream.Consumer values
// bound to one dashboard session.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

var _ client.Navigator = (*Bridge)(nil)

// NewBridge creates a bridge that drops messages until SetSend is called.
func NewBridge() *Bridge {
	return &Bridge{}
}

// SetSend installs the delivery function, normally (*tea.Program).Send.
func (b *Bridge) SetSend(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) emit(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}

// ToLogin reports a session expiry to the program.
func (b *Bridge) ToLogin(reason error) {
	b.emit(SessionExpiredMsg{Reason: reason})
}

// Consumer returns a stream consumer whose messages carry epoch.
func (b *Bridge) Consumer(epoch int) stream.Consumer {
	return &sessionConsumer{bridge: b, epoch: epoch}
}

type sessionConsumer struct {
	bridge *Bridge
	epoch  int
}

func (c *sessionConsumer) Devices(d []client.Device) {
	c.bridge.emit(DevicesMsg{Epoch: c.epoch, Devices: d})
}

func (c *sessionConsumer) Users(u []client.User) {
	c.bridge.emit(UsersMsg{Epoch: c.epoch, Users: u})
}

func (c *sessionConsumer) Status(s stream.Status) {
	c.bridge.emit(StatusMsg{Epoch: c.epoch, Status: s})
}

func (c *sessionConsumer) Updated(at time.Time) {
	c.bridge.emit(UpdatedMsg{Epoch: c.epoch, At: at})
}
