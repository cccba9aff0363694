package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/localtalk/internal/docs"
	"github.com/kalambet/localtalk/internal/rag"
)

const maxRequestBodySize = 1 << 20 // 1MB

// RAGService is the backend behind the /rag routes. *rag.Service satisfies it.
type RAGService interface {
	Query(ctx context.Context, req rag.QueryRequest) (rag.QueryResponse, error)
	Status(ctx context.Context) (rag.StatusResponse, error)
	Ingest(ctx context.Context, texts []string) (int, error)
	Reindex(ctx context.Context) (docs.Stats, error)
}

// IngestRequest is the body of POST /rag/ingest.
type IngestRequest struct {
	Documents []string `json:"documents"`
}

// NewRAGHandler returns the HTTP API. The read-only document and generation
// routes are mounted only when hist is non-nil.
func NewRAGHandler(svc RAGService, hist History) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLog)

	r.Get("/health", handleHealth)
	r.Route("/rag", func(r chi.Router) {
		r.Get("/status", handleStatus(svc))
		r.Post("/query", handleQuery(svc))
		r.Post("/ingest", handleIngest(svc))
		r.Post("/reindex", handleReindex(svc))
		if hist != nil {
			mountHistory(r, hist)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(svc RAGService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Status(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "status failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleQuery(svc RAGService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req rag.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		resp, err := svc.Query(r.Context(), req)
		if err != nil {
			var (
				ve *rag.ValidationError
				re *rag.RetrievalError
			)
			switch {
			case errors.As(err, &ve):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", ve.Msg)
			case errors.As(err, &re):
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			default:
				slog.Error("rag query failed", "error", err)
				httpError(w, http.StatusBadGateway, "api_error", "%v", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleIngest(svc RAGService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		n, err := svc.Ingest(r.Context(), req.Documents)
		if errors.Is(err, rag.ErrNoDocuments) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "No documents provided.")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"ingested": n})
	}
}

func handleReindex(svc RAGService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Reindex(r.Context())
		if errors.Is(err, rag.ErrReindexDisabled) {
			httpError(w, http.StatusForbidden, "permission_error", "Reindex is disabled by configuration.")
			return
		}
		if err != nil {
			slog.Error("reindex failed", "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
