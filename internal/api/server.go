// Package api exposes profiles, jobs and session archives over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/commentbot/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes. ws serves the realtime channel;
// trustProxy lets the rate limiter key clients by X-Forwarded-For.
func (h *Handler) SetupRoutes(ws http.Handler, rateLimiter *ratelimit.Limiter, trustProxy bool) *mux.Router {
	r := mux.NewRouter()

	// Job submissions launch browsers, so they are rate limited
	jobs := r.PathPrefix("").Subrouter()
	jobs.Use(RateLimitMiddleware(rateLimiter, trustProxy))
	jobs.HandleFunc("/run", h.StartRun).Methods("POST", "OPTIONS")
	jobs.HandleFunc("/login", h.StartLogin).Methods("POST", "OPTIONS")

	r.HandleFunc("/profiles", h.ListProfiles).Methods("GET")
	r.HandleFunc("/profiles", h.CreateProfile).Methods("POST", "OPTIONS")
	r.HandleFunc("/profiles/{name}", h.DeleteProfile).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/status", h.Status).Methods("GET")
	r.HandleFunc("/status/{profile_name}", h.Status).Methods("GET")

	r.HandleFunc("/export_session/{profile_name}", h.ExportSession).Methods("GET")
	r.HandleFunc("/import_session", h.ImportSession).Methods("POST", "OPTIONS")

	// Screenshots are polled by the dashboard and not rate limited
	r.HandleFunc("/screenshot/{profile_name}", h.Screenshot).Methods("GET")

	if ws != nil {
		r.Handle("/ws", ws).Methods("GET")
	}

	r.Use(corsMiddleware)

	return r
}
