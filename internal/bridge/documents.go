package bridge

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Kenbark42/dominus-ai/internal/rag"
)

// ingestRequest is the body for POST /documents/ingest.
type ingestRequest struct {
	Collection string `json:"collection,omitempty"`
	Source     string `json:"source"`
	Text       string `json:"text"`
}

// ingestResponse is the body for POST /documents/ingest.
type ingestResponse struct {
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
}

// handleDocumentIngest chunks and indexes a document.
func (s *Server) handleDocumentIngest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		if req.Collection == "" {
			req.Collection = rag.DefaultCollection
		}

		n, err := s.engine.Ingest(r.Context(), req.Collection, req.Source, req.Text)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ingestResponse{Collection: req.Collection, Chunks: n})
	}
}

// searchRequest is the body for POST /documents/search.
type searchRequest struct {
	Collection string `json:"collection,omitempty"`
	Query      string `json:"query"`
	TopK       int    `json:"top_k,omitempty"`
}

// searchResult is one retrieved chunk.
type searchResult struct {
	Source  string `json:"source"`
	Seq     int    `json:"seq"`
	Content string `json:"content"`
}

// handleDocumentSearch runs a retrieval query without a generation.
func (s *Server) handleDocumentSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		results, err := s.engine.Search(r.Context(), req.Collection, req.Query, req.TopK)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		out := make([]searchResult, 0, len(results))
		for _, res := range results {
			out = append(out, searchResult{Source: res.Source, Seq: res.Seq, Content: res.Content})
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": out})
	}
}

// handleListCollections lists every collection with its chunk count.
func (s *Server) handleListCollections() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := s.engine.Collections(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if infos == nil {
			infos = []rag.CollectionInfo{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"collections": infos})
	}
}

// handleDocumentStats reports index-wide totals.
func (s *Server) handleDocumentStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks, err := s.engine.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		infos, err := s.engine.Collections(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"chunks":      chunks,
			"collections": len(infos),
		})
	}
}

// handleDeleteCollection removes a collection and its chunks.
func (s *Server) handleDeleteCollection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := s.engine.DeleteCollection(r.Context(), name); err != nil {
			if errors.Is(err, rag.ErrCollectionNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
	}
}
