package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/photoquest/internal/photoquest"
	"github.com/playperu/photoquest/internal/session"
)

func handleCreateSession(sessions *session.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessions.Create(r.Context())
		if err != nil {
			logger.Error("creating session", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, sess.Snapshot())
	}
}

func handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionFrom(r).Snapshot())
	}
}

func handleDeleteSession(sessions *session.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionFrom(r).ID()
		err := sessions.Dispose(r.Context(), id)
		if errors.Is(err, photoquest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			logger.Error("disposing session", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeSessionError maps state machine errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, photoquest.ErrInvalidConfig), errors.Is(err, session.ErrEmptyPhoto):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, photoquest.ErrBusy),
		errors.Is(err, photoquest.ErrNoActiveQuest),
		errors.Is(err, session.ErrDiscarded):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("session operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
