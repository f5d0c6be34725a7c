package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"raseed/internal/core"
	"raseed/internal/session"
)

func TestDecide(t *testing.T) {
	user := &core.UserProfile{Email: "a@example.com"}

	tests := []struct {
		name     string
		path     string
		user     *core.UserProfile
		hydrated bool
		want     Decision
	}{
		{"public, signed in, hydrated", "/login", user, true, Decision{Outcome: Redirect, To: "/"}},
		{"public, signed in, not hydrated", "/login", user, false, Decision{Outcome: Render}},
		{"public, anonymous, hydrated", "/register", nil, true, Decision{Outcome: Render}},
		{"public, anonymous, not hydrated", "/forgot-password", nil, false, Decision{Outcome: Render}},
		{"protected, anonymous, not hydrated", "/receipts", nil, false, Decision{Outcome: Loading}},
		{"protected, signed in, not hydrated", "/receipts", user, false, Decision{Outcome: Loading}},
		{"protected, anonymous, hydrated", "/receipts", nil, true, Decision{Outcome: Redirect, To: "/login"}},
		{"protected, signed in, hydrated", "/receipts", user, true, Decision{Outcome: Render}},
		{"root is protected", "/", nil, true, Decision{Outcome: Redirect, To: "/login"}},
		{"trailing slash public", "/login/", user, true, Decision{Outcome: Redirect, To: "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.path, tt.user, tt.hydrated); got != tt.want {
				t.Errorf("Decide(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

// Every public path with a hydrated user redirects home, and no protected
// path redirects before hydration, whatever the user.
func TestDecide_Properties(t *testing.T) {
	users := []*core.UserProfile{nil, {Email: "a@example.com"}, {}}
	protected := []string{"/", "/receipts", "/receipts/42", "/upload", "/analytics", "/profile", "/assistant", "/add-receipt"}

	for path := range publicRoutes {
		d := Decide(path, &core.UserProfile{Email: "x@example.com"}, true)
		if d.Outcome != Redirect || d.To != DefaultPage {
			t.Errorf("public %s: got %+v", path, d)
		}
	}
	for _, path := range protected {
		for _, u := range users {
			if d := Decide(path, u, false); d.Outcome != Loading {
				t.Errorf("protected %s user=%v: got %+v, want loading", path, u, d)
			}
		}
	}
}

type staticPersister struct{ user *core.UserProfile }

func (p staticPersister) LoadSession(context.Context, string) (*core.UserProfile, error) {
	return p.user, nil
}

func (staticPersister) SaveSession(context.Context, string, *core.UserProfile) error { return nil }

func TestMiddleware(t *testing.T) {
	loading := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("loading"))
	})
	page := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page"))
	})
	h := Middleware(loading)(page)

	hydrated := func(user *core.UserProfile) *session.Store {
		s := session.NewStore("dev", staticPersister{user: user})
		if err := s.Hydrate(context.Background()); err != nil {
			t.Fatal(err)
		}
		return s
	}

	tests := []struct {
		name       string
		path       string
		store      *session.Store
		htmx       bool
		wantCode   int
		wantBody   string
		wantHeader string
	}{
		{name: "no store yet", path: "/", wantCode: http.StatusOK, wantBody: "loading"},
		{name: "unhydrated store", path: "/receipts", store: session.NewStore("d", staticPersister{}), wantCode: http.StatusOK, wantBody: "loading"},
		{name: "anonymous redirected", path: "/receipts", store: hydrated(nil), wantCode: http.StatusSeeOther, wantHeader: "/login"},
		{name: "htmx redirect", path: "/receipts", store: hydrated(nil), htmx: true, wantCode: http.StatusOK, wantHeader: "/login"},
		{name: "signed in renders", path: "/receipts", store: hydrated(&core.UserProfile{Email: "a@b.c"}), wantCode: http.StatusOK, wantBody: "page"},
		{name: "login while signed in", path: "/login", store: hydrated(&core.UserProfile{Email: "a@b.c"}), wantCode: http.StatusSeeOther, wantHeader: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.store != nil {
				req = req.WithContext(session.NewContext(req.Context(), tt.store))
			}
			if tt.htmx {
				req.Header.Set("HX-Request", "true")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantHeader != "" {
				got := rec.Header().Get("Location")
				if tt.htmx {
					got = rec.Header().Get("HX-Redirect")
				}
				if got != tt.wantHeader {
					t.Errorf("redirect target = %q, want %q", got, tt.wantHeader)
				}
			}
		})
	}
}
