package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/wsmd/console/internal/client"
	"github.com/wsmd/console/internal/stream"
	"github.com/wsmd/console/internal/theme"
	"github.com/wsmd/console/internal/views/debug"
	"github.com/wsmd/console/internal/views/devices"
	"github.com/wsmd/console/internal/views/form"
	"github.com/wsmd/console/internal/views/help"
	"github.com/wsmd/console/internal/views/login"
	"github.com/wsmd/console/internal/views/status"
	"github.com/wsmd/console/internal/views/users"
)

// LoginErrorMessage is shown when the backend cannot be reached at sign-in.
const LoginErrorMessage = "An error occurred. Please try again later."

// Backend is the part of client.HTTPClient the console drives.
type Backend interface {
	Login(ctx context.Context, username, password string) (*client.LoginResponse, error)
	Logout(ctx context.Context) error
	LoadDevices(ctx context.Context) ([]client.Device, error)
	LoadUsers(ctx context.Context) ([]client.User, error)
}

// Forms is the part of client.FormController the console drives.
type Forms interface {
	UpdateDevice(ctx context.Context, u client.DeviceUpdate) client.Outcome
	CreateUser(ctx context.Context, username, password string, keyUser bool) client.Outcome
	UpdatePassword(ctx context.Context, username, password string) client.Outcome
}

// Stream is a live event connection owned by one dashboard session.
type Stream interface {
	Connect()
	Close()
}

// StreamFactory opens the stream for a session. privileged enables users
// events.
type StreamFactory func(consumer stream.Consumer, privileged bool) Stream

// Screen is the top-level page.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenDashboard
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
	OverlayHelp
)

// Pane is the dashboard area holding keyboard focus.
type Pane int

const (
	PaneDevices Pane = iota
	PaneDeviceForm
	PaneUserForm
	PanePasswordForm
)

// Form field names, as posted to the backend.
const (
	fieldMAC      = "mac_address"
	fieldOrder    = "order"
	fieldMaxHits  = "max_hits"
	fieldName     = "name"
	fieldUsername = "username"
	fieldPassword = "password"
	fieldKeyUser  = "is_key_user"
)

type (
	loginResultMsg struct {
		username string
		resp     *client.LoginResponse
		err      error
	}
	loadedDevicesMsg struct {
		epoch   int
		devices []client.Device
		err     error
	}
	loadedUsersMsg struct {
		epoch int
		users []client.User
		err   error
	}
	formResultMsg struct {
		epoch   int
		pane    Pane
		outcome client.Outcome
	}
	loggedOutMsg struct {
		err error
	}
)

// Option configures the model.
type Option func(*Model)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithHelpStyle selects the glamour style of the help overlay.
func WithHelpStyle(style string) Option {
	return func(m *Model) { m.help = help.New(style) }
}

// Model is the root Bubble Tea model.
type Model struct {
	backend Backend
	forms   Forms
	streams StreamFactory
	bridge  *Bridge
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	keys   KeyMap
	width  int
	height int

	screen  Screen
	overlay Overlay
	pane    Pane

	// Dashboard session.
	epoch    int
	stream   Stream
	username string
	keyUser  bool

	// Sub-views.
	login        login.Model
	statusBar    status.Model
	devices      devices.Model
	users        users.Model
	deviceForm   form.Model
	userForm     form.Model
	passwordForm form.Model
	debug        debug.Model
	help         help.Model
}

// New creates the root model on the login screen.
func New(bridge *Bridge, backend Backend, forms Forms, streams StreamFactory, opts ...Option) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		backend:   backend,
		forms:     forms,
		streams:   streams,
		bridge:    bridge,
		log:       slog.New(slog.DiscardHandler),
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		login:     login.New(),
		statusBar: status.New(),
		devices:   devices.New(),
		users:     users.New(),
		debug:     debug.New(),
		help:      help.New("dark"),
	}
	m.resetForms()
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m *Model) resetForms() {
	m.deviceForm = form.New("Update Device",
		form.Field{Name: fieldMAC, Label: "MAC address", Required: true, Placeholder: "select a device"},
		form.Field{Name: fieldOrder, Label: "Order", Kind: form.Number, Required: true},
		form.Field{Name: fieldMaxHits, Label: "Max hits", Kind: form.Number, Required: true},
		form.Field{Name: fieldName, Label: "Name", Placeholder: "auto"},
	)
	m.userForm = form.New("Create User",
		form.Field{Name: fieldUsername, Label: "Username", Required: true},
		form.Field{Name: fieldPassword, Label: "Password", Kind: form.Password, Required: true},
		form.Field{Name: fieldKeyUser, Label: "Key user", Kind: form.Toggle},
	)
	m.passwordForm = form.New("Update Password",
		form.Field{Name: fieldUsername, Label: "Username", Kind: form.Choice, Required: true, Placeholder: "waiting for users"},
		form.Field{Name: fieldPassword, Label: "New password", Kind: form.Password, Required: true},
	)
}

// Init starts on the login screen.
func (m Model) Init() tea.Cmd {
	return m.login.Init()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.login.Width = msg.Width
		m.login.Height = msg.Height
		m.statusBar.Width = msg.Width
		m.devices.Width = msg.Width
		m.users.Width = msg.Width
		m.help.Prepare(msg.Width, m.keys.Bindings())
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQuit) {
			cmd := m.quit()
			return m, cmd
		}
		if m.screen == ScreenLogin {
			var cmd tea.Cmd
			m.login, cmd = m.login.Update(msg)
			return m, cmd
		}
		cmd := m.handleKey(msg)
		return m, cmd

	case login.SubmitMsg:
		return m, m.loginCmd(msg.Username, msg.Password)

	case loginResultMsg:
		if msg.err != nil {
			m.log.Info("login failed", slog.String("username", msg.username), slog.Any("error", msg.err))
			m.login.Fail(loginMessage(msg.err))
			return m, nil
		}
		cmd := m.enterDashboard(msg.username, msg.resp.IsKeyUser)
		return m, cmd

	case DevicesMsg:
		if m.current(msg.Epoch) {
			m.setDevices(msg.Devices)
		}
		return m, nil

	case UsersMsg:
		if m.current(msg.Epoch) && m.keyUser {
			m.setUsers(msg.Users)
		}
		return m, nil

	case StatusMsg:
		if m.current(msg.Epoch) {
			m.statusBar.SetStatus(msg.Status)
			kind := debug.KindStream
			if msg.Status.Alert {
				kind = debug.KindError
			}
			m.debug.Add(kind, msg.Status.Text)
		}
		return m, nil

	case UpdatedMsg:
		if m.current(msg.Epoch) {
			m.statusBar.LastUpdate = msg.At
		}
		return m, nil

	case loadedDevicesMsg:
		if !m.current(msg.epoch) {
			return m, nil
		}
		if msg.err != nil {
			m.loadFailed("devices", msg.err)
			return m, nil
		}
		m.setDevices(msg.devices)
		return m, nil

	case loadedUsersMsg:
		if !m.current(msg.epoch) {
			return m, nil
		}
		if msg.err != nil {
			m.loadFailed("users", msg.err)
			return m, nil
		}
		m.setUsers(msg.users)
		return m, nil

	case formResultMsg:
		if !m.current(msg.epoch) {
			return m, nil
		}
		if f := m.formFor(msg.pane); f != nil {
			f.Finish(msg.outcome)
			m.debug.Addf(debug.KindForm, "%s: %s", f.Title, msg.outcome.Message)
		}
		return m, nil

	case SessionExpiredMsg:
		m.debug.Addf(debug.KindNav, "to login: %v", msg.Reason)
		if m.screen != ScreenDashboard {
			return m, nil
		}
		m.log.Info("session expired, returning to login")
		cmd := m.leaveDashboard(msg.Reason.Error())
		return m, cmd

	case loggedOutMsg:
		if msg.err != nil && !errors.Is(msg.err, client.ErrSessionExpired) {
			m.log.Warn("logout failed", slog.Any("error", msg.err))
			m.debug.Addf(debug.KindError, "logout: %v", msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.statusBar, cmd = m.statusBar.Update(msg)
		return m, cmd
	}

	// Cursor blinks and the like go to whatever holds focus.
	var cmd tea.Cmd
	switch {
	case m.screen == ScreenLogin:
		m.login, cmd = m.login.Update(msg)
	case m.activeForm() != nil:
		f := m.activeForm()
		*f, cmd = f.Update(msg)
	}
	return m, cmd
}

func (m Model) current(epoch int) bool {
	return m.screen == ScreenDashboard && epoch == m.epoch
}

func (m *Model) setDevices(d []client.Device) {
	m.devices.SetDevices(d)
	m.statusBar.OverLimit = m.devices.OverLimit()
}

// setUsers refreshes the user list and the password form's username picker.
func (m *Model) setUsers(u []client.User) {
	m.users.SetUsers(u)
	names := make([]string, len(u))
	for i, user := range u {
		names[i] = user.Username
	}
	m.passwordForm.SetOptions(fieldUsername, names)
}

func (m *Model) loadFailed(what string, err error) {
	if errors.Is(err, client.ErrSessionExpired) {
		return
	}
	m.log.Error("initial load failed", slog.String("what", what), slog.Any("error", err))
	m.debug.Addf(debug.KindLoad, "load %s: %v", what, err)
}

func loginMessage(err error) string {
	var se *client.SubmissionError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	return LoginErrorMessage
}

func (m Model) loginCmd(username, password string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		resp, err := backend.Login(ctx, username, password)
		return loginResultMsg{username: username, resp: resp, err: err}
	}
}

// enterDashboard starts a session: a fresh stream, the initial lists, and
// empty views.
func (m *Model) enterDashboard(username string, keyUser bool) tea.Cmd {
	m.epoch++
	m.screen = ScreenDashboard
	m.overlay = OverlayNone
	m.pane = PaneDevices
	m.username = username
	m.keyUser = keyUser

	m.statusBar = status.New()
	m.statusBar.Width = m.width
	m.statusBar.Username = username
	m.statusBar.KeyUser = keyUser
	m.devices = devices.New()
	m.devices.Width = m.width
	m.users = users.New()
	m.users.Width = m.width
	m.resetForms()
	m.login.Notice = ""
	m.debug.Addf(debug.KindNav, "signed in as %s (key user: %v)", username, keyUser)

	s := m.streams(m.bridge.Consumer(m.epoch), keyUser)
	m.stream = s

	ctx, backend, epoch := m.ctx, m.backend, m.epoch
	cmds := []tea.Cmd{
		m.statusBar.Tick(),
		func() tea.Msg {
			s.Connect()
			return nil
		},
		func() tea.Msg {
			d, err := backend.LoadDevices(ctx)
			return loadedDevicesMsg{epoch: epoch, devices: d, err: err}
		},
	}
	if keyUser {
		cmds = append(cmds, func() tea.Msg {
			u, err := backend.LoadUsers(ctx)
			return loadedUsersMsg{epoch: epoch, users: u, err: err}
		})
	}
	return tea.Batch(cmds...)
}

// leaveDashboard ends the session and shows the login screen. The stream
// is closed off the update loop: its goroutine may be blocked delivering a
// message to this very loop.
func (m *Model) leaveDashboard(notice string) tea.Cmd {
	s := m.stream
	m.stream = nil
	m.epoch++
	m.screen = ScreenLogin
	m.overlay = OverlayNone
	m.username = ""
	m.keyUser = false
	m.login.Notice = notice
	return tea.Batch(closeStream(s), m.login.Reset())
}

func closeStream(s Stream) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		s.Close()
		return nil
	}
}

func (m *Model) logout() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	logout := func() tea.Msg {
		return loggedOutMsg{err: backend.Logout(ctx)}
	}
	m.debug.Add(debug.KindNav, "logout")
	return tea.Batch(m.leaveDashboard(""), logout)
}

func (m *Model) quit() tea.Cmd {
	s := m.stream
	m.stream = nil
	cancel := m.cancel
	stop := func() tea.Msg {
		cancel()
		return tea.Quit()
	}
	if s == nil {
		return stop
	}
	return tea.Sequence(closeStream(s), stop)
}

// panes lists the focusable areas; user management is key users only.
func (m Model) panes() []Pane {
	if m.keyUser {
		return []Pane{PaneDevices, PaneDeviceForm, PaneUserForm, PanePasswordForm}
	}
	return []Pane{PaneDevices, PaneDeviceForm}
}

func (m *Model) formFor(p Pane) *form.Model {
	switch p {
	case PaneDeviceForm:
		return &m.deviceForm
	case PaneUserForm:
		return &m.userForm
	case PanePasswordForm:
		return &m.passwordForm
	}
	return nil
}

func (m *Model) activeForm() *form.Model {
	if m.screen != ScreenDashboard {
		return nil
	}
	return m.formFor(m.pane)
}

// focusPane moves focus by delta panes, entering forms at their first or
// last field depending on direction.
func (m *Model) focusPane(delta int) tea.Cmd {
	if f := m.activeForm(); f != nil {
		f.Blur()
	}
	panes := m.panes()
	idx := 0
	for i, p := range panes {
		if p == m.pane {
			idx = i
		}
	}
	idx = (idx + delta + len(panes)) % len(panes)
	m.pane = panes[idx]

	f := m.activeForm()
	if f == nil {
		return nil
	}
	var cmd tea.Cmd
	if delta < 0 {
		cmd = f.Last()
	} else {
		cmd = f.First()
	}
	return tea.Batch(cmd, f.Focus())
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape),
			m.overlay == OverlayHelp && key.Matches(msg, m.keys.Help),
			m.overlay == OverlayDebug && key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Filter):
			m.debug.CycleFilter()
		}
		return nil
	}

	if f := m.activeForm(); f != nil {
		return m.handleFormKey(f, msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Down):
		m.devices.Next()
		return nil

	case key.Matches(msg, m.keys.Up):
		m.devices.Prev()
		return nil

	case key.Matches(msg, m.keys.Edit):
		d, ok := m.devices.Selected()
		if !ok {
			return nil
		}
		m.deviceForm.SetValue(fieldMAC, d.MACAddress)
		m.deviceForm.SetValue(fieldOrder, strconv.Itoa(d.Order))
		m.deviceForm.SetValue(fieldMaxHits, strconv.Itoa(d.MaxHits))
		m.deviceForm.SetValue(fieldName, d.Name)
		m.deviceForm.Message = ""
		m.pane = PaneDeviceForm
		return tea.Batch(m.deviceForm.First(), m.deviceForm.Focus())

	case key.Matches(msg, m.keys.NextPane):
		return m.focusPane(1)

	case key.Matches(msg, m.keys.PrevPane):
		return m.focusPane(-1)

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		m.help.Prepare(m.width, m.keys.Bindings())
		return nil

	case key.Matches(msg, m.keys.Logout):
		return m.logout()
	}

	return nil
}

func (m *Model) handleFormKey(f *form.Model, msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Escape):
		f.Blur()
		m.pane = PaneDevices
		return nil

	case key.Matches(msg, m.keys.NextPane):
		if moved, cmd := f.Next(); moved {
			return cmd
		}
		return m.focusPane(1)

	case key.Matches(msg, m.keys.PrevPane):
		if moved, cmd := f.Prev(); moved {
			return cmd
		}
		return m.focusPane(-1)

	case key.Matches(msg, m.keys.Submit):
		return m.submit(f)
	}

	var cmd tea.Cmd
	*f, cmd = f.Update(msg)
	return cmd
}

// submit validates the active form and posts it. Nothing is sent while a
// previous submission of the same form is in flight.
func (m *Model) submit(f *form.Model) tea.Cmd {
	if f.Pending {
		return nil
	}
	if err := f.Validate(); err != nil {
		f.Reject(err)
		return nil
	}
	f.Begin()

	ctx, forms, epoch, pane := m.ctx, m.forms, m.epoch, m.pane
	var run func() client.Outcome
	switch pane {
	case PaneDeviceForm:
		u := client.DeviceUpdate{
			MACAddress: f.Value(fieldMAC),
			Order:      f.Int(fieldOrder),
			MaxHits:    f.Int(fieldMaxHits),
			Name:       f.Value(fieldName),
		}
		run = func() client.Outcome { return forms.UpdateDevice(ctx, u) }
	case PaneUserForm:
		username, password, keyUser := f.Value(fieldUsername), f.Value(fieldPassword), f.Bool(fieldKeyUser)
		run = func() client.Outcome { return forms.CreateUser(ctx, username, password, keyUser) }
	case PanePasswordForm:
		username, password := f.Value(fieldUsername), f.Value(fieldPassword)
		run = func() client.Outcome { return forms.UpdatePassword(ctx, username, password) }
	default:
		return nil
	}
	return func() tea.Msg {
		return formResultMsg{epoch: epoch, pane: pane, outcome: run()}
	}
}

// View renders the active screen.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.screen == ScreenLogin {
		return m.login.View()
	}

	switch m.overlay {
	case OverlayDebug:
		return m.debug.View(m.width, m.height)
	case OverlayHelp:
		return m.help.View(m.width, m.keys.Bindings())
	}

	sections := []string{
		m.statusBar.View(),
		m.devices.View(m.pane == PaneDevices),
		"",
		m.renderForms(),
	}
	if m.keyUser {
		sections = append(sections, m.users.View())
	}
	sections = append(sections, theme.StyleDimmed.Render("  j/k:navigate  enter:edit  tab:forms  d:debug  ?:help  l:logout  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderForms() string {
	if !m.keyUser {
		return m.deviceForm.View(min(m.width, 60))
	}
	w := max(30, m.width/3)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.deviceForm.View(w),
		m.userForm.View(w),
		m.passwordForm.View(w),
	)
}
