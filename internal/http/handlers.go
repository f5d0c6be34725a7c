package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"raseed/internal/guard"
)

type profileData struct {
	Queries int
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var data profileData
	if s.deps.Assistant != nil {
		if qs, err := s.deps.Assistant.History(r.Context(), deviceID(r)); err == nil {
			data.Queries = len(qs)
		}
	}
	s.render.page(w, r, http.StatusOK, "profile", view{Title: "Profile", Data: data})
}

// handleLoading is shown by the guard while the session is not hydrated.
func (s *Server) handleLoading(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		// Let the full page reload pick up the session.
		w.Header().Set("HX-Refresh", "true")
		w.WriteHeader(http.StatusOK)
		return
	}
	s.render.page(w, r, http.StatusOK, "loading", view{Title: "Loading", Refresh: 2})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render.page(w, r, http.StatusNotFound, "error", view{
		Title: "Not found",
		Data:  errorData{Message: "This page does not exist.", Back: guard.DefaultPage},
	})
}

type errorData struct {
	Message string
	Back    string
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady checks the client storage and reports cache sizes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "not_configured"
	}

	checks["sessions"] = s.deps.Sessions.Size()
	if s.deps.Uploads != nil {
		checks["uploads"] = s.deps.Uploads.Size()
	}
	if s.deps.Limiter != nil {
		checks["rate_limiter"] = map[string]any{
			"active_clients": s.deps.Limiter.ActiveClients(),
			"rejected":       s.deps.Limiter.Hits(),
		}
	}
	checks["suspicious_requests"] = s.deps.Detector.SuspiciousCount()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}
