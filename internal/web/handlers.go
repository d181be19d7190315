package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inboxd/inboxd/internal/ingest"
	"github.com/inboxd/inboxd/internal/model"
	"github.com/inboxd/inboxd/internal/search"
	"github.com/inboxd/inboxd/internal/store"
)

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleListEmails(s store.EmailStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 100)
		if limit < 1 {
			limit = 100
		}
		if limit > 500 {
			limit = 500
		}
		f := store.Filter{
			Category:  r.URL.Query().Get("category"),
			AccountID: r.URL.Query().Get("account_id"),
			Folder:    r.URL.Query().Get("folder"),
			Limit:     limit,
			Offset:    queryInt(r, "offset", 0),
		}
		emails, err := s.List(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if emails == nil {
			emails = []model.EmailDocument{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"emails": emails,
			"count":  len(emails),
		})
	}
}

func handleEmailDetail(s store.EmailStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "accountID")
		id := chi.URLParam(r, "id")
		doc, err := s.Get(r.Context(), id, accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if doc == nil {
			writeError(w, http.StatusNotFound, "email not found")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleSearch(idx *search.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if idx == nil {
			writeError(w, http.StatusServiceUnavailable, "search index not configured")
			return
		}
		q := r.URL.Query().Get("q")
		if q == "" {
			writeError(w, http.StatusBadRequest, "missing q parameter")
			return
		}
		limit := queryInt(r, "limit", 50)
		if limit < 1 {
			limit = 50
		}
		if limit > 500 {
			limit = 500
		}
		res, err := idx.Search(q, search.Filter{
			AccountID: r.URL.Query().Get("account_id"),
			Folder:    r.URL.Query().Get("folder"),
			Limit:     limit,
			Offset:    queryInt(r, "offset", 0),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleStats(s store.EmailStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleStatus(o *ingest.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := o.Status()
		connected, monitoring := 0, 0
		for _, st := range status {
			if st.State != model.StateDisconnected {
				connected++
			}
			if st.Monitoring {
				monitoring++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accounts":   status,
			"connected":  connected,
			"monitoring": monitoring,
		})
	}
}

func handleSyncTrigger(o *ingest.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restarted := o.Resync()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "resync started",
			"restarted": restarted,
		})
	}
}

func handleReindex(o *ingest.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		indexed, failed, total := o.ReindexAll(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"indexed": indexed,
			"errors":  failed,
			"total":   total,
		})
	}
}
