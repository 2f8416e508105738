package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type navCounter struct {
	calls  atomic.Int32
	reason error
}

func (n *navCounter) ToLogin(reason error) {
	n.calls.Add(1)
	n.reason = reason
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c, srv
}

func TestNewHTTPClientRejectsBadScheme(t *testing.T) {
	for _, raw := range []string{"ftp://host", "127.0.0.1:8000", "://bad"} {
		if _, err := NewHTTPClient(raw); err == nil {
			t.Errorf("NewHTTPClient(%q) succeeded, want error", raw)
		}
	}
}

func TestRequestUnauthorizedNavigatesOnce(t *testing.T) {
	nav := &navCounter{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Not authenticated"}`)
	}), WithNavigator(nav))

	resp, err := c.Request(context.Background(), PathDevices, RequestOptions{})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if resp != nil {
		t.Error("response returned alongside session expiry")
	}
	if got := nav.calls.Load(); got != 1 {
		t.Errorf("navigations = %d, want 1", got)
	}
	if !errors.Is(nav.reason, ErrSessionExpired) {
		t.Errorf("navigation reason = %v", nav.reason)
	}

	// Every rejected request navigates again, once.
	c.Request(context.Background(), PathUsers, RequestOptions{})
	if got := nav.calls.Load(); got != 2 {
		t.Errorf("navigations after second request = %d, want 2", got)
	}
}

func TestRequestPassesOtherStatuses(t *testing.T) {
	nav := &navCounter{}
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError} {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}), WithNavigator(nav))

		resp, err := c.Request(context.Background(), PathDevices, RequestOptions{})
		if err != nil {
			t.Fatalf("status %d: err = %v", status, err)
		}
		resp.Body.Close()
		if resp.StatusCode != status {
			t.Errorf("status = %d, want %d", resp.StatusCode, status)
		}
	}
	if got := nav.calls.Load(); got != 0 {
		t.Errorf("navigations = %d, want 0", got)
	}
}

func TestRequestAttachesSessionCookieAndHeaders(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathLogin:
			http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "tok", Path: "/", HttpOnly: true})
			io.WriteString(w, `{"access_token":"tok","token_type":"bearer","is_key_user":true}`)
		case PathDevices:
			ck, err := r.Cookie("access_token")
			if err != nil || ck.Value != "tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
			if r.Header.Get("User-Agent") != defaultUserAgent {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			io.WriteString(w, `[{"mac_address":"AA:BB","order":1,"hit_counter":0,"max_hits":9}]`)
		}
	}))

	lr, err := c.Login(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !lr.IsKeyUser {
		t.Error("IsKeyUser = false, want true")
	}

	devices, err := c.LoadDevices(context.Background())
	if err != nil {
		t.Fatalf("LoadDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].MACAddress != "AA:BB" {
		t.Errorf("devices = %+v", devices)
	}
}

func TestRequestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	nav := &navCounter{}
	c, err := NewHTTPClient(base, WithNavigator(nav))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Request(context.Background(), PathDevices, RequestOptions{})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Error("network error reported as session expiry")
	}
	if nav.calls.Load() != 0 {
		t.Error("network error navigated to login")
	}
}

func TestLoginFailureDoesNotNavigate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{name: "detail", body: `{"detail":"Incorrect username or password"}`, detail: "Incorrect username or password"},
		{name: "no detail", body: `{}`, detail: "Login failed. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := &navCounter{}
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
					t.Errorf("Content-Type = %q", got)
				}
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, tt.body)
			}), WithNavigator(nav))

			_, err := c.Login(context.Background(), "admin", "wrong")
			var se *SubmissionError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want SubmissionError", err)
			}
			if se.Detail != tt.detail {
				t.Errorf("detail = %q, want %q", se.Detail, tt.detail)
			}
			if nav.calls.Load() != 0 {
				t.Error("failed login navigated")
			}
		})
	}
}

func TestLoginUnreadableFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "<html>bad gateway</html>")
	}))

	_, err := c.Login(context.Background(), "admin", "secret")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	var se *SubmissionError
	if errors.As(err, &se) {
		t.Error("unreadable reply reported as a rejected login")
	}
}

func TestLoadUsersNonSuccess(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"detail":"Only key users can access this endpoint"}`)
	}))

	_, err := c.LoadUsers(context.Background())
	var se *SubmissionError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 SubmissionError", err)
	}
	if se.Detail != "Only key users can access this endpoint" {
		t.Errorf("detail = %q", se.Detail)
	}
}

func TestLogout(t *testing.T) {
	var called atomic.Bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != PathLogout {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		called.Store(true)
		io.WriteString(w, `{"message":"Logged out successfully"}`)
	}))

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !called.Load() {
		t.Error("logout endpoint not called")
	}
}

func TestURL(t *testing.T) {
	c, err := NewHTTPClient("http://127.0.0.1:8000/")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.URL(PathEvents), "http://127.0.0.1:8000/admin/events"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}
