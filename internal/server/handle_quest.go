package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/photoquest/internal/photoquest"
	"github.com/playperu/photoquest/internal/session"
)

// QuestRequest is a quest configuration plus an optional named preset
// applied on top of it.
type QuestRequest struct {
	photoquest.QuestConfiguration
	Template string `json:"template,omitempty"`
}

// QuestFailureResponse carries the errored session next to the message.
type QuestFailureResponse struct {
	Error   string           `json:"error"`
	Session session.Snapshot `json:"session"`
}

func readQuestRequest(w http.ResponseWriter, r *http.Request) (photoquest.QuestConfiguration, error) {
	req := QuestRequest{QuestConfiguration: photoquest.DefaultConfiguration()}
	if err := readJSON(w, r, &req); err != nil {
		return photoquest.QuestConfiguration{}, err
	}
	if req.Template != "" {
		req.ApplyTemplate(req.Template)
	}
	return req.QuestConfiguration, nil
}

func handleCreateQuest(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := readQuestRequest(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// The session has to settle even if the client goes away.
		snap, err := sessionFrom(r).CreateQuest(context.WithoutCancel(r.Context()), cfg)
		var genErr *photoquest.GenerationError
		if errors.As(err, &genErr) {
			writeJSON(w, http.StatusBadGateway, QuestFailureResponse{Error: genErr.Message, Session: snap})
			return
		}
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleResetQuest(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := sessionFrom(r).ResetQuest(r.Context())
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleNextTask(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := sessionFrom(r).NextTask(r.Context())
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
