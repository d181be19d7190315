// Package web provides the HTTP API over the ingestion engine: email
// queries, search, watcher status and the manual sync/reindex triggers.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inboxd/inboxd/internal/ingest"
	"github.com/inboxd/inboxd/internal/search"
	"github.com/inboxd/inboxd/internal/store"
)

// Config holds dependencies for the web layer.
type Config struct {
	Store        store.EmailStore
	Index        *search.Index
	Orchestrator *ingest.Orchestrator
}

// NewRouter creates the Chi router with all routes.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", handleHealth())

	r.Route("/api", func(r chi.Router) {
		r.Get("/emails", handleListEmails(cfg.Store))
		r.Get("/emails/search", handleSearch(cfg.Index))
		r.Get("/emails/stats", handleStats(cfg.Store))
		r.Get("/emails/{accountID}/{id}", handleEmailDetail(cfg.Store))

		r.Get("/status", handleStatus(cfg.Orchestrator))
		r.Post("/sync", handleSyncTrigger(cfg.Orchestrator))
		r.Post("/reindex", handleReindex(cfg.Orchestrator))
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback
	}
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return fallback
	}
	return v
}
