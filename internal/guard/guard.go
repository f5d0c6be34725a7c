// Package guard decides, on every request, whether a page renders, shows the
// loading placeholder, or redirects.
package guard

import (
	"net/http"
	"strings"

	"raseed/internal/core"
	"raseed/internal/session"
)

const (
	LoginPath   = "/login"
	DefaultPage = "/"
)

var publicRoutes = map[string]struct{}{
	"/login":           {},
	"/register":        {},
	"/forgot-password": {},
}

// IsPublic reports whether path is reachable without signing in.
func IsPublic(path string) bool {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	_, ok := publicRoutes[path]
	return ok
}

type Outcome int

const (
	Render Outcome = iota
	Loading
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

type Decision struct {
	Outcome Outcome
	// To is set for redirects.
	To string
}

// Decide is pure: the same inputs always give the same decision.
func Decide(path string, user *core.UserProfile, hasHydrated bool) Decision {
	public := IsPublic(path)
	switch {
	case public && user != nil && hasHydrated:
		return Decision{Outcome: Redirect, To: DefaultPage}
	case !public && !hasHydrated:
		return Decision{Outcome: Loading}
	case !public && user == nil:
		return Decision{Outcome: Redirect, To: LoginPath}
	default:
		return Decision{Outcome: Render}
	}
}

// Middleware applies Decide to every request using the session store found
// in the request context. Requests without a store are treated as an
// unhydrated session.
func Middleware(loading http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var st session.State
			if s, ok := session.FromContext(r.Context()); ok {
				st = s.State()
			}

			d := Decide(r.URL.Path, st.User, st.HasHydrated)
			switch d.Outcome {
			case Loading:
				loading.ServeHTTP(w, r)
			case Redirect:
				SeeOther(w, r, d.To)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SeeOther redirects with 303; htmx requests get an HX-Redirect header
// instead so the whole page navigates.
func SeeOther(w http.ResponseWriter, r *http.Request, to string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
