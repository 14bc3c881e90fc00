// Package api exposes the search index over a small JSON HTTP API.
// Transient backend failures surface as empty result sets, never as a
// crash of the service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nhle/mailindex/internal/model"
	"github.com/nhle/mailindex/internal/store"
)

// Server handles the email search API routes.
type Server struct {
	store  store.Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates the API server over the given store.
func NewServer(s store.Store, logger *slog.Logger) *Server {
	server := &Server{
		store:  s,
		logger: logger.With("component", "api"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/emails/search", server.handleSearch)
	mux.HandleFunc("/api/emails/recent", server.handleRecent)
	mux.HandleFunc("/api/emails/", server.handleDetail)
	mux.HandleFunc("/healthz", server.handleHealth)
	server.mux = mux
	return server
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// emailList is the wire shape for list responses.
type emailList struct {
	Emails []model.EmailDocument `json:"emails"`
	Total  int                   `json:"total"`
}

// handleSearch serves GET /api/emails/search?q=&folder=&account=.
// Backend errors are logged and returned as an empty result so clients
// treat them as "no results now, retry later".
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := store.SearchQuery{
		Text:    strings.TrimSpace(r.URL.Query().Get("q")),
		Folder:  strings.TrimSpace(r.URL.Query().Get("folder")),
		Account: strings.TrimSpace(r.URL.Query().Get("account")),
	}
	if q.Text == "" {
		http.Error(w, "query parameter q is required", http.StatusBadRequest)
		return
	}

	docs, err := s.store.Search(r.Context(), q)
	if err != nil {
		s.logger.Error("search failed", "query", q.Text, "error", err)
		docs = nil
	}

	s.respondJSON(w, http.StatusOK, emailList{
		Emails: emptyIfNil(docs),
		Total:  len(docs),
	})
}

// handleRecent serves GET /api/emails/recent?days=30.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid days parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 500 {
				parsed = 500
			}
			limit = parsed
		}
	}

	docs, err := s.store.Recent(r.Context(), days, limit)
	if err != nil {
		s.logger.Error("recent query failed", "days", days, "error", err)
		docs = nil
	}

	s.respondJSON(w, http.StatusOK, emailList{
		Emails: emptyIfNil(docs),
		Total:  len(docs),
	})
}

// handleDetail serves GET /api/emails/{id}.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/emails/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	doc, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("detail lookup failed", "id", id, "error", err)
		http.Error(w, "unable to load email", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// emptyIfNil keeps list responses as [] rather than null.
func emptyIfNil(docs []model.EmailDocument) []model.EmailDocument {
	if docs == nil {
		return []model.EmailDocument{}
	}
	return docs
}
