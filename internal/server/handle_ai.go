package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/photoquest/internal/ai"
	"github.com/playperu/photoquest/internal/photoquest"
)

// QuestAI is the generative backend behind the /api/ai endpoints.
type QuestAI interface {
	Generate(ctx context.Context, req ai.GenerationRequest) (*photoquest.GeneratedQuest, error)
	Verify(ctx context.Context, req ai.VerificationRequest) (photoquest.Verdict, error)
}

func handleGenerateQuest(backend QuestAI, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ai.GenerationRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		quest, err := backend.Generate(r.Context(), req)
		if err != nil {
			writeBackendError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, quest)
	}
}

func handleVerifyPhoto(backend QuestAI, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ai.VerificationRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		verdict, err := backend.Verify(r.Context(), req)
		if err != nil {
			writeBackendError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, verdict)
	}
}

// writeBackendError passes a provider rate limit through and reports
// every other backend failure as a bad gateway.
func writeBackendError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, ai.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, msg := 0, ""
	var genErr *photoquest.GenerationError
	var verErr *photoquest.VerificationError
	switch {
	case errors.As(err, &genErr):
		status, msg = genErr.Status, genErr.Message
	case errors.As(err, &verErr):
		status, msg = verErr.Status, verErr.Message
	default:
		logger.Error("backend call failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if status == http.StatusTooManyRequests {
		writeError(w, http.StatusTooManyRequests, msg)
		return
	}
	writeError(w, http.StatusBadGateway, msg)
}
