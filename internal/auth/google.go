package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	stateCookie = "raseed_oauth_state"
	stateTTL    = 10 * time.Minute
)

var (
	ErrStateMismatch = errors.New("oauth state mismatch")
	ErrNoIDToken     = errors.New("token response has no id_token")
	// ErrDenied is returned when the user declined the consent screen.
	ErrDenied = errors.New("sign-in was cancelled")
)

// Google runs the OAuth code flow and yields the ID token, which the
// receipt backend accepts as a Google credential.
type Google struct {
	cfg    *oauth2.Config
	secure bool
}

func NewGoogle(clientID, clientSecret, redirectURL string, secure bool) *Google {
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		secure: secure,
	}
}

// Begin stores a fresh state in a short-lived cookie and returns the
// consent URL to redirect to.
func (g *Google) Begin(w http.ResponseWriter) string {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Complete checks the callback's state and exchanges the code for the ID
// token.
func (g *Google) Complete(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth/google", MaxAge: -1})

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return "", ErrDenied
		}
		return "", fmt.Errorf("oauth error: %s", e)
	}

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(q.Get("state"))) != 1 {
		return "", ErrStateMismatch
	}

	tok, err := g.cfg.Exchange(ctx, q.Get("code"))
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	idToken, ok := tok.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", ErrNoIDToken
	}
	return idToken, nil
}
