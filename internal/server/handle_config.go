package server

import (
	"net/http"

	"github.com/playperu/photoquest/internal/photoquest"
)

type PreviewResponse struct {
	Preview   string                        `json:"preview"`
	TaskCount int                           `json:"taskCount"`
	Config    photoquest.QuestConfiguration `json:"config"`
	// Error is set when the configuration could not start a quest yet.
	Error string `json:"error,omitempty"`
}

func handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := readQuestRequest(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		cfg.Normalize()

		resp := PreviewResponse{
			Preview:   cfg.Preview(),
			TaskCount: cfg.TaskCount(),
			Config:    cfg,
		}
		if err := cfg.Validate(); err != nil {
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
