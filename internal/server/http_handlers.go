package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sanonone/vektor/pkg/engine"
	"github.com/sanonone/vektor/pkg/errs"
)

const (
	defaultK     = 10
	maxBodyBytes = 32 << 20
)

func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /insert", s.handleInsert)
	mux.HandleFunc("POST /delete", s.handleDelete)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /optimize", s.handleOptimize)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) handleUp(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPError(w, http.StatusNotFound, "Not Found")
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req InsertRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		s.writeHTTPError(w, http.StatusBadRequest, "Missing or invalid 'id': must be a non-empty string.")
		return
	}
	if !s.validVector(w, req.Vector) {
		return
	}

	if err := s.store.Insert(r.Context(), req.ID, req.Vector, req.Metadata); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "success", ID: req.ID})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		s.writeHTTPError(w, http.StatusBadRequest, "Missing or invalid 'id': must be a non-empty string.")
		return
	}

	deleted, err := s.store.Delete(r.Context(), req.ID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !deleted {
		s.writeHTTPError(w, http.StatusNotFound, fmt.Sprintf("Document '%s' not found.", req.ID))
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{
		Status:  "success",
		ID:      req.ID,
		Message: fmt.Sprintf("Document '%s' deleted.", req.ID),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if !s.validVector(w, req.Vector) {
		return
	}
	k := defaultK
	if req.K != nil {
		k = *req.K
	}
	if k < 1 {
		s.writeHTTPError(w, http.StatusBadRequest, "Invalid 'k': must be a positive integer.")
		return
	}

	results, err := s.store.Search(r.Context(), req.Vector, k, engine.SearchOptions{
		IncludeVector:   req.IncludeVector,
		IncludeMetadata: req.IncludeMetadata,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if results == nil {
		results = []engine.Result{}
	}
	s.writeHTTPResponse(w, http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Optimize(r.Context()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "success", Message: "Database optimized."})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, stats)
}

// --- Helpers ---

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return false
	}
	return true
}

func (s *Server) validVector(w http.ResponseWriter, vector []float32) bool {
	if vector == nil {
		s.writeHTTPError(w, http.StatusBadRequest, "Missing 'vector' in payload.")
		return false
	}
	if len(vector) != s.dimension {
		s.writeHTTPError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid 'vector': must have exactly %d dimensions.", s.dimension))
		return false
	}
	return true
}

// writeEngineError maps an error kind to a status code. Unclassified errors
// are logged and reported as 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.ErrValidation:
		status = http.StatusBadRequest
	case errs.ErrDuplicateKey:
		status = http.StatusConflict
	case errs.ErrNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
	}
	s.writeHTTPError(w, status, err.Error())
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
