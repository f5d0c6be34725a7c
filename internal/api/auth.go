package api

import (
	"context"
	"errors"

	"raseed/internal/core"
)

const (
	OpLogin  = "login"
	OpLogout = "logout"
)

var ErrNoUser = errors.New("login response carried no user")

// GoogleLogin exchanges a Google ID token for the user profile. deviceTokens
// lets the backend address push notifications to this device.
func (c *Client) GoogleLogin(ctx context.Context, credential string, deviceTokens []string) (core.UserProfile, error) {
	body := struct {
		Credential   string   `json:"credential"`
		DeviceTokens []string `json:"deviceTokens,omitempty"`
	}{credential, deviceTokens}
	var out struct {
		User *core.UserProfile `json:"user"`
	}
	if err := c.postJSON(ctx, OpLogin, "/api/google", body, &out); err != nil {
		return core.UserProfile{}, err
	}
	if out.User == nil {
		return core.UserProfile{}, ErrNoUser
	}
	return *out.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, OpLogout, "/api/logout", nil, nil)
}
