package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/wsmd/console/internal/client"
)

const (
	cookieName = "access_token"
	// macHeader identifies the calling device on /device endpoints. The real
	// backend resolves it from the ARP table.
	macHeader = "X-Device-MAC"
)

type ctxKey int

const userKey ctxKey = iota

// Options configures a Server.
type Options struct {
	// PollInterval is how often each stream subscriber checks for changes.
	PollInterval time.Duration
	// HeartbeatEvery sends a heartbeat once per this many polls.
	HeartbeatEvery int
	// AllowedOrigins limits websocket upgrades. Empty allows same-host and
	// loopback origins.
	AllowedOrigins []string
	// Snapshots overrides the store as the source of listings and stream
	// snapshots.
	Snapshots Snapshotter
	Clock     clock.Clock
	Logger    *slog.Logger
}

type Server struct {
	store          *Store
	snapshots      Snapshotter
	tokens         *Tokens
	opts           Options
	log            *slog.Logger
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

func NewServer(store *Store, tokens *Tokens, opts Options) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.HeartbeatEvery < 1 {
		opts.HeartbeatEvery = 5
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		store:          store,
		snapshots:      store,
		tokens:         tokens,
		opts:           opts,
		log:            opts.Logger,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	if opts.Snapshots != nil {
		s.snapshots = opts.Snapshots
	}
	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// Routes returns the backend's HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(securityHeaders)
	r.Use(s.logRequests)

	r.Post("/token", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/device", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/hit", s.handleHit)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser(false))
			r.Get("/devices", s.handleDevices)
			r.Post("/device", s.handleUpdateDevice)
			r.Get("/events", s.handleEvents)
			r.Get("/ws", s.handleWS)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser(true))
			r.Get("/users", s.handleUsers)
			r.Post("/user", s.handleCreateUser)
			r.Post("/user/password", s.handleSetPassword)
		})
	})
	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", r.Header.Get("X-Request-ID")),
			slog.String("remote", r.RemoteAddr))
		next.ServeHTTP(w, r)
	})
}

// requireUser admits requests carrying a valid session cookie for an
// existing account, and with keyOnly set, only key users.
func (s *Server) requireUser(keyOnly bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := s.authenticate(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if keyOnly && !u.IsKeyUser {
				writeDetail(w, http.StatusForbidden, "Not enough permissions. Key user required.")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
		})
	}
}

func (s *Server) authenticate(r *http.Request) (client.User, bool) {
	ck, err := r.Cookie(cookieName)
	if err != nil || ck.Value == "" {
		return client.User{}, false
	}
	claims, err := s.tokens.Parse(ck.Value)
	if err != nil {
		return client.User{}, false
	}
	return s.store.User(claims.Subject)
}

func currentUser(ctx context.Context) client.User {
	u, _ := ctx.Value(userKey).(client.User)
	return u
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}
	u, err := s.store.Authenticate(r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, err.Error())
		return
	}
	tok, exp, err := s.tokens.Issue(u)
	if err != nil {
		s.log.Error("issue token", slog.Any("error", err))
		writeDetail(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.log.Info("login", slog.String("username", u.Username), slog.Bool("key_user", u.IsKeyUser))
	writeJSON(w, http.StatusOK, client.LoginResponse{AccessToken: tok, TokenType: "bearer", IsKeyUser: u.IsKeyUser})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	writeMessage(w, "Logged out successfully")
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.snapshots.Devices(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.snapshots.Users(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	f, ok := parseForm(w, r, "mac_address", "order", "max_hits")
	if !ok {
		return
	}
	order, err1 := strconv.Atoi(f.Get("order"))
	maxHits, err2 := strconv.Atoi(f.Get("max_hits"))
	if err1 != nil || err2 != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "order and max_hits must be integers")
		return
	}

	if err := s.store.UpdateDevice(f.Get("mac_address"), order, maxHits, f.Get("name")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.Info("device updated", slog.String("mac", f.Get("mac_address")), slog.String("by", currentUser(r.Context()).Username))
	writeMessage(w, "Device properties updated successfully")
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	f, ok := parseForm(w, r, "username", "password")
	if !ok {
		return
	}
	keyUser := false
	if v := f.Get("is_key_user"); v != "" {
		b, err := parseFormBool(v)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "is_key_user must be a boolean")
			return
		}
		keyUser = b
	}

	if _, err := s.store.AddUser(f.Get("username"), f.Get("password"), keyUser); err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.Info("user created", slog.String("username", f.Get("username")), slog.String("by", currentUser(r.Context()).Username))
	writeMessage(w, "User created successfully")
}

func (s *Server) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	f, ok := parseForm(w, r, "username", "password")
	if !ok {
		return
	}
	if err := s.store.SetPassword(f.Get("username"), f.Get("password")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeMessage(w, "Password updated successfully")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	mac := r.Header.Get(macHeader)
	if mac == "" {
		writeDetail(w, http.StatusBadRequest, "Could not determine device MAC address")
		return
	}
	d := s.store.Register(mac)
	writeJSON(w, http.StatusOK, map[string]int{"order": d.Order, "assigned": d.Order})
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	mac := r.Header.Get(macHeader)
	if mac == "" {
		writeDetail(w, http.StatusBadRequest, "Could not determine device MAC address")
		return
	}
	d, err := s.store.Hit(mac)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"counter": d.HitCounter, "max_hits": d.MaxHits, "order": d.Order})
}

func (s *Server) newFeed(keyUser bool) *feed {
	return &feed{
		src:            s.snapshots,
		keyUser:        keyUser,
		poll:           s.opts.PollInterval,
		heartbeatEvery: s.opts.HeartbeatEvery,
		clock:          s.opts.Clock,
		log:            s.log,
	}
}

// parseForm parses a form body and checks that every required field is
// present, writing a 422 if not.
func parseForm(w http.ResponseWriter, r *http.Request, required ...string) (url.Values, bool) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form body")
		return nil, false
	}
	for _, k := range required {
		if strings.TrimSpace(r.PostForm.Get(k)) == "" {
			writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("field required: %s", k))
			return nil, false
		}
	}
	return r.PostForm, true
}

func parseFormBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrUserNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUserExists):
		writeDetail(w, http.StatusBadRequest, err.Error())
	default:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
