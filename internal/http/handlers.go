package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"expensetracker/internal/core"
)

type statusResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports whether the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := statusResponse{Status: "ready", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := s.expenses.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
		resp.Status = "not_ready"
		resp.Error = "store unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var routedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}

// handleNotFound answers requests no route matched. A path registered for
// other methods yields 405 with an Allow header.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if allowed := s.allowedMethods(r); len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Message: "Method not allowed",
			Error:   r.Method + " is not supported on " + r.URL.Path,
			Code:    codeMethodNotAllowed,
		})
		return
	}
	writeJSON(w, http.StatusNotFound, errorResponse{
		Message: "Route not found",
		Error:   "no route for " + r.Method + " " + r.URL.Path,
		Code:    core.KindNotFound.String(),
	})
}

func (s *Server) allowedMethods(r *http.Request) []string {
	var allowed []string
	for _, m := range routedMethods {
		if m == r.Method {
			continue
		}
		alt := *r
		alt.Method = m
		if _, pattern := s.mux.Handler(&alt); pattern != "" && pattern != "/" {
			allowed = append(allowed, m)
		}
	}
	return allowed
}
