package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/localtalk/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// History reads back the indexed documents and the generation log.
// *storage.Store satisfies it.
type History interface {
	CountDocuments() (int, error)
	ListDocuments(limit int) ([]storage.Document, error)
	GetDocument(id string) (storage.Document, error)
	RecentGenerations(limit int) ([]storage.Generation, error)
	GetGeneration(id string) (storage.Generation, error)
}

func mountHistory(r chi.Router, h History) {
	r.Get("/documents", handleListDocuments(h))
	r.Get("/documents/{id}", handleGetDocument(h))
	r.Get("/generations", handleListGenerations(h))
	r.Get("/generations/{id}", handleGetGeneration(h))
}

// limitParam reads ?limit=, falling back to the default for missing or
// non-positive values.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return defaultHistoryLimit, nil
	}
	return min(n, maxHistoryLimit), nil
}

func handleListDocuments(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := limitParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit: %v", err)
			return
		}
		total, err := h.CountDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting documents: %v", err)
			return
		}
		docs, err := h.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": total, "documents": docs})
	}
}

func handleGetDocument(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := h.GetDocument(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleListGenerations(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := limitParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit: %v", err)
			return
		}
		gens, err := h.RecentGenerations(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing generations: %v", err)
			return
		}
		if gens == nil {
			gens = []storage.Generation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"generations": gens})
	}
}

func handleGetGeneration(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := h.GetGeneration(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "generation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading generation: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}
