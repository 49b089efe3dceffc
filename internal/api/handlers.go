package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dshills/codebase-context/internal/app"
	"github.com/dshills/codebase-context/internal/indexer"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/pkg/types"
)

// RetrieveRequest is the body of POST /api/v1/retrieve.
type RetrieveRequest struct {
	Query     string `json:"query"`
	Directory string `json:"directory,omitempty"`
}

// RetrieveResponse is the body of a successful retrieval.
type RetrieveResponse struct {
	Items []types.ContextItem `json:"items"`
}

// IndexRequest is the body of POST /api/v1/index.
type IndexRequest struct {
	Path         string `json:"path"`
	IncludeTests *bool  `json:"include_tests,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

var errQueryRequired = errors.New("query is required")

type handlers struct {
	service Service
	logger  *logging.Logger
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// retrieve handles POST /api/v1/retrieve.
func (h *handlers) retrieve(w http.ResponseWriter, r *http.Request) {
	var body RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		h.writeError(w, r, http.StatusBadRequest, errQueryRequired)
		return
	}

	items, err := h.service.Retrieve(r.Context(), body.Query, body.Directory)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, RetrieveResponse{Items: items})
}

// index handles POST /api/v1/index.
func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	var body IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Index(r.Context(), app.IndexRequest{
		Path:         body.Path,
		IncludeTests: body.IncludeTests,
	})
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// status handles GET /api/v1/status?path=...
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNoWorkspace):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNoResults):
		return http.StatusUnprocessableEntity
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return http.StatusConflict
	case errors.Is(err, app.ErrPathRequired),
		errors.Is(err, app.ErrPathNotAbsolute),
		errors.Is(err, app.ErrNotDirectory):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrPathNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request error", "status", status, "path", r.URL.Path, "error", err)
	} else {
		h.logger.DebugContext(ctx, "request rejected", "status", status, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		RequestID: logging.RequestID(ctx),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
