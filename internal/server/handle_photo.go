package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type PhotoRequest struct {
	PhotoBase64 string `json:"photoBase64"`
}

var errBadPhoto = errors.New("photoBase64 must be non-empty base64 image data")

// decodePhoto accepts raw base64 or a data URL.
func decodePhoto(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		_, after, ok := strings.Cut(s, ";base64,")
		if !ok {
			return nil, errBadPhoto
		}
		s = after
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, errBadPhoto
	}
	return raw, nil
}

func handleValidatePhoto(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PhotoRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		photo, err := decodePhoto(req.PhotoBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		taskID := chi.URLParam(r, "taskID")
		verdict, err := sessionFrom(r).ValidateTaskPhoto(context.WithoutCancel(r.Context()), taskID, photo)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, verdict)
	}
}
