package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atnpgo/arwes/internal/model"
	"github.com/atnpgo/arwes/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
	maxTimeoutMS     = 10 * 60 * 1000

	// syncWriteMargin is the time left to write the record once the deadline
	// of a synchronous load has fired.
	syncWriteMargin = 5 * time.Second
)

// createLoadRequest is the JSON body for POST /v1/loads and /v1/loads/async.
type createLoadRequest struct {
	Images    []string `json:"images"`
	Sounds    []string `json:"sounds"`
	Videos    []string `json:"videos"`
	TimeoutMS *int     `json:"timeout_ms"`
}

// listLoadsResponse wraps the paginated list response.
type listLoadsResponse struct {
	Loads  []*model.Load `json:"loads"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// decodeLoad parses and validates a load request body. On failure it writes
// the error response and returns nil.
func (s *Server) decodeLoad(w http.ResponseWriter, r *http.Request) *model.Load {
	var req createLoadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil
	}

	l := &model.Load{
		ID:     model.NewID(),
		Status: model.StatusPending,
		Request: model.Request{
			Images: req.Images,
			Sounds: req.Sounds,
			Videos: req.Videos,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := l.Request.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if req.TimeoutMS != nil {
		if *req.TimeoutMS < 0 {
			s.writeError(w, http.StatusBadRequest, "timeout_ms must not be negative")
			return nil
		}
		if *req.TimeoutMS > maxTimeoutMS {
			s.writeError(w, http.StatusBadRequest, "timeout_ms must not exceed "+strconv.Itoa(maxTimeoutMS))
			return nil
		}
		l.TimeoutMS = *req.TimeoutMS
	}
	return l
}

func (s *Server) handleCreateLoad(w http.ResponseWriter, r *http.Request) {
	l := s.decodeLoad(w, r)
	if l == nil {
		return
	}

	// The load may outlive the server's write timeout.
	timeout := time.Duration(l.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = s.engine.DefaultTimeout()
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(timeout + syncWriteMargin)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Error("extend write deadline for sync load", "error", err)
	}

	done, err := s.engine.Run(r.Context(), l)
	if err != nil {
		s.logger.Error("run load", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to run load")
		return
	}

	s.writeJSON(w, http.StatusOK, done)
}

func (s *Server) handleAsyncLoad(w http.ResponseWriter, r *http.Request) {
	l := s.decodeLoad(w, r)
	if l == nil {
		return
	}

	if err := s.engine.Submit(r.Context(), l); err != nil {
		s.logger.Error("submit async load", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit load")
		return
	}

	s.writeJSON(w, http.StatusAccepted, l)
}

func (s *Server) handleGetLoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	l, err := s.store.GetLoad(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "load not found")
		return
	}
	if err != nil {
		s.logger.Error("get load", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get load")
		return
	}

	s.writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleListLoads(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	loads, total, err := s.store.ListLoads(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list loads", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list loads")
		return
	}

	if loads == nil {
		loads = []*model.Load{}
	}

	s.writeJSON(w, http.StatusOK, listLoadsResponse{
		Loads:  loads,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleListLoaders(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.loaders.Kinds())
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
