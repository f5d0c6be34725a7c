package http

import (
	"errors"
	"net/http"

	"raseed/internal/api"
	"raseed/internal/auth"
	"raseed/internal/guard"
	"raseed/internal/log"
	"raseed/internal/session"
)

type loginData struct {
	GoogleEnabled bool
	Error         string
}

var loginErrors = map[string]string{
	"denied":  "Sign-in was cancelled.",
	"state":   "Your sign-in session expired. Please try again.",
	"failed":  "Login failed. Please try again.",
	"storage": "We couldn't remember your sign-in. Please try again.",
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.renderLogin(w, r, http.StatusOK, loginErrors[r.URL.Query().Get("error")])
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render.page(w, r, status, "login", view{
		Title: "Sign in",
		Data:  loginData{GoogleEnabled: s.deps.Google != nil, Error: msg},
	})
}

// Registration and password recovery belong to Google; both pages lead to
// the sign-in page.
func (s *Server) handleLoginAlias(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
}

// handleCredentialLogin accepts a Google ID token posted by the Google
// Identity Services button.
func (s *Server) handleCredentialLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderLogin(w, r, http.StatusBadRequest, loginErrors["failed"])
		return
	}
	credential := r.PostForm.Get("credential")
	if credential == "" {
		s.renderLogin(w, r, http.StatusBadRequest, loginErrors["failed"])
		return
	}
	s.signIn(w, r, credential)
}

func (s *Server) handleGoogleBegin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, s.deps.Google.Begin(w), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return
	}
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentAuth)
	idToken, err := s.deps.Google.Complete(r.Context(), w, r)
	if err != nil {
		logger.WarnContext(r.Context(), "Google sign-in failed", log.FieldOperation, log.OpLogin, log.FieldError, err)
		code := "failed"
		switch {
		case errors.Is(err, auth.ErrDenied):
			code = "denied"
		case errors.Is(err, auth.ErrStateMismatch):
			code = "state"
		}
		http.Redirect(w, r, guard.LoginPath+"?error="+code, http.StatusSeeOther)
		return
	}
	s.signIn(w, r, idToken)
}

// signIn exchanges the Google credential for the profile and stores it in
// the device session. The device ID doubles as the push token.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, credential string) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentAuth)
	store, _ := session.FromContext(r.Context())

	user, err := s.deps.Backend.GoogleLogin(r.Context(), credential, []string{deviceID(r)})
	if err != nil {
		logger.ErrorContext(r.Context(), "Login failed", log.FieldOperation, log.OpLogin, log.FieldError, err)
		s.renderLogin(w, r, http.StatusBadGateway, api.Message(err))
		return
	}
	if err := store.SetUser(r.Context(), user); err != nil {
		logger.ErrorContext(r.Context(), "Persisting session failed", log.FieldOperation, log.OpLogin, log.FieldError, err)
		http.Redirect(w, r, guard.LoginPath+"?error=storage", http.StatusSeeOther)
		return
	}
	logger.InfoContext(r.Context(), "User signed in", log.FieldUserID, user.Email, log.FieldOperation, log.OpLogin)
	guard.SeeOther(w, r, guard.DefaultPage)
}

// handleLogout tells the backend, then clears the session user. The query
// history stays on the device.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentAuth)
	store, _ := session.FromContext(r.Context())
	user := store.User()

	if err := s.deps.Backend.Logout(r.Context()); err != nil {
		logger.WarnContext(r.Context(), "Backend logout failed", log.FieldOperation, log.OpLogout, log.FieldError, err)
	}
	if err := store.ClearUser(r.Context()); err != nil {
		logger.ErrorContext(r.Context(), "Clearing session failed", log.FieldOperation, log.OpLogout, log.FieldError, err)
		ErrorResponse(http.StatusInternalServerError, "Logout failed. Please try again.").Write(w)
		return
	}
	if user != nil {
		s.queries.Invalidate(user.Email)
	}
	if s.deps.Uploads != nil {
		s.deps.Uploads.For(deviceID(r)).Cancel()
	}
	logger.InfoContext(r.Context(), "User signed out", log.FieldOperation, log.OpLogout)
	guard.SeeOther(w, r, guard.LoginPath)
}
