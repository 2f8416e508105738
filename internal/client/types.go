// Package client provides the authenticated HTTP client for the WSMD backend.
// Types mirror the backend wire format without importing backend packages.
package client

import "strings"

// Backend endpoints.
const (
	PathLogin    = "/token"
	PathLogout   = "/logout"
	PathDevices  = "/admin/devices"
	PathUsers    = "/admin/users"
	PathDevice   = "/admin/device"
	PathUser     = "/admin/user"
	PathPassword = "/admin/user/password"
	PathEvents   = "/admin/events"
	PathWS       = "/admin/ws"
)

// Device mirrors a row of the backend device table.
type Device struct {
	MACAddress string `json:"mac_address"`
	Name       string `json:"name,omitempty"`
	Order      int    `json:"order"`
	HitCounter int    `json:"hit_counter"`
	MaxHits    int    `json:"max_hits"`
}

// DisplayName returns the device name, falling back to its MAC address.
func (d Device) DisplayName() string {
	if strings.TrimSpace(d.Name) != "" {
		return d.Name
	}
	return d.MACAddress
}

// OverLimit reports whether the hit counter has passed its ceiling.
func (d Device) OverLimit() bool {
	return d.HitCounter > d.MaxHits
}

// User is an account as listed by /admin/users.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	IsKeyUser bool   `json:"is_key_user"`
}

// LoginResponse is returned by a successful POST /token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	IsKeyUser   bool   `json:"is_key_user"`
}

// replyBody covers both success ({"message"}) and failure ({"detail"}) bodies.
type replyBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}
