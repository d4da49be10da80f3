package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/logbroker"
)

// Handler serves the /pull and /append wire endpoints over db.
type Handler struct {
	db     logbroker.Db
	logger *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger injects a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler builds a Handler over db.
func NewHandler(db logbroker.Db, opts ...Option) *Handler {
	h := &Handler{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Mount registers the handler's routes on mux under prefix; an empty
// prefix mounts at the root.
func (h *Handler) Mount(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/pull", h.handlePull)
	mux.HandleFunc("POST "+prefix+"/append", h.handleAppend)
}

func (h *Handler) handlePull(w http.ResponseWriter, r *http.Request) {
	var body PullRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.Stream == "" {
		writeError(w, http.StatusBadRequest, "stream is required")
		return
	}

	cursor := logbroker.NoCursor
	if body.Cursor != nil {
		cursor = logbroker.Cursor(*body.Cursor)
	}

	res, err := h.db.Pull(r.Context(), logbroker.PullRequest{
		Stream: body.Stream,
		Cursor: cursor,
		Limit:  body.Limit,
	})
	if err != nil {
		h.writeDbError(w, err)
		return
	}

	changes := make([]WireChange, len(res.Changes))
	for i, c := range res.Changes {
		changes[i] = FromChange(c)
	}

	var nextCursor *string
	if res.NextCursor != logbroker.NoCursor {
		s := string(res.NextCursor)
		nextCursor = &s
	}

	writeJSON(w, http.StatusOK, PullResponseBody{Changes: changes, NextCursor: nextCursor})
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var body AppendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.Stream == "" {
		writeError(w, http.StatusBadRequest, "stream is required")
		return
	}
	if len(body.Changes) == 0 {
		writeError(w, http.StatusBadRequest, "changes must not be empty")
		return
	}

	changes := make([]change.Change, len(body.Changes))
	for i, wc := range body.Changes {
		changes[i] = wc.ToChange()
	}

	res, err := h.db.Append(r.Context(), logbroker.AppendRequest{
		Stream:         body.Stream,
		IdempotencyKey: body.IdempotencyKey,
		Changes:        changes,
	})
	if err != nil {
		h.writeDbError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AppendResponseBody{Accepted: res.Accepted})
}

func (h *Handler) writeDbError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, logbroker.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, logbroker.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("transport/http: db operation failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
