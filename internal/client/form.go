package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultSuccessMessage = "Operation successful"
	DefaultFailureMessage = "Operation failed"
	RetryLaterMessage     = "An error occurred. Please try again."
)

// Outcome is the result of one form submission. Callers reset the
// originating form when Success is true.
type Outcome struct {
	Success bool
	Message string
	// Expired is set when the session gate redirected to login; the caller
	// must not update the form any further.
	Expired bool
}

// FormController submits form values through the session gate.
type FormController struct {
	req Requester
	log *slog.Logger
}

// NewFormController creates a controller that submits through req.
func NewFormController(req Requester, log *slog.Logger) *FormController {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &FormController{req: req, log: log}
}

// Submit posts values form-encoded to target. It always returns an Outcome.
func (f *FormController) Submit(ctx context.Context, target string, values url.Values) Outcome {
	resp, err := f.req.Request(ctx, target, RequestOptions{
		Method: http.MethodPost,
		Body:   strings.NewReader(values.Encode()),
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
	})
	if errors.Is(err, ErrSessionExpired) {
		return Outcome{Message: ErrSessionExpired.Error(), Expired: true}
	}
	if err != nil {
		f.log.Error("submit failed", slog.String("target", target), slog.Any("error", err))
		return Outcome{Message: RetryLaterMessage}
	}
	defer resp.Body.Close()

	var body replyBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		f.log.Error("submit: bad response body",
			slog.String("target", target),
			slog.Int("status", resp.StatusCode),
			slog.Any("error", err))
		return Outcome{Message: RetryLaterMessage}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		msg := body.Message
		if msg == "" {
			msg = DefaultSuccessMessage
		}
		return Outcome{Success: true, Message: msg}
	}

	msg := body.Detail
	if msg == "" {
		msg = DefaultFailureMessage
	}
	f.log.Info("submit rejected", slog.String("target", target), slog.Int("status", resp.StatusCode), slog.String("detail", msg))
	return Outcome{Message: msg}
}

// DeviceUpdate holds the device properties form.
type DeviceUpdate struct {
	MACAddress string
	Order      int
	MaxHits    int
	Name       string
}

// UpdateDevice submits POST /admin/device.
func (f *FormController) UpdateDevice(ctx context.Context, u DeviceUpdate) Outcome {
	v := url.Values{
		"mac_address": {u.MACAddress},
		"order":       {strconv.Itoa(u.Order)},
		"max_hits":    {strconv.Itoa(u.MaxHits)},
	}
	if u.Name != "" {
		v.Set("name", u.Name)
	}
	return f.Submit(ctx, PathDevice, v)
}

// CreateUser submits POST /admin/user. Key users only.
func (f *FormController) CreateUser(ctx context.Context, username, password string, keyUser bool) Outcome {
	return f.Submit(ctx, PathUser, url.Values{
		"username":    {username},
		"password":    {password},
		"is_key_user": {strconv.FormatBool(keyUser)},
	})
}

// UpdatePassword submits POST /admin/user/password. Key users only.
func (f *FormController) UpdatePassword(ctx context.Context, username, password string) Outcome {
	return f.Submit(ctx, PathPassword, url.Values{
		"username": {username},
		"password": {password},
	})
}
