package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/photoquest/internal/ai"
	"github.com/playperu/photoquest/internal/geo"
	"github.com/playperu/photoquest/internal/handler/health"
	"github.com/playperu/photoquest/internal/photoquest"
	"github.com/playperu/photoquest/internal/session"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type sessionPath struct {
	SessionID string `path:"sessionID"`
}

type photoPath struct {
	SessionID string `path:"sessionID"`
	TaskID    string `path:"taskID"`
	PhotoRequest
}

type questPath struct {
	SessionID string `path:"sessionID"`
	QuestRequest
}

type citySearchQuery struct {
	Q string `query:"q" description:"City name, at least 3 characters."`
}

type poiQuery struct {
	Lat    float64 `query:"lat" required:"true"`
	Lon    float64 `query:"lon" required:"true"`
	Radius float64 `query:"radius" description:"Search radius in meters."`
}

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               []response
}

type response struct {
	status      int
	body        any
	contentType string
}

func respOK(body any) response      { return response{status: http.StatusOK, body: body} }
func respError(code int) response   { return response{status: code, body: ErrorResponse{}} }
func respCreated(body any) response { return response{status: http.StatusCreated, body: body} }
func respStream(ct string) response { return response{status: http.StatusOK, contentType: ct} }
func respNoContent() response       { return response{status: http.StatusNoContent} }

var operations = []operation{
	{http.MethodGet, "/healthz", "Health check", "Returns the health status of backend dependencies.",
		nil, []response{respOK(map[string]health.Result{}), {status: http.StatusServiceUnavailable, body: map[string]health.Result{}}}},
	{http.MethodPost, "/api/sessions", "Create session", "Starts an empty quest session.",
		nil, []response{respCreated(session.Snapshot{})}},
	{http.MethodGet, "/api/sessions/{sessionID}", "Get session", "Returns the session snapshot with progress and the current task.",
		sessionPath{}, []response{respOK(session.Snapshot{}), respError(http.StatusNotFound)}},
	{http.MethodDelete, "/api/sessions/{sessionID}", "Dispose session", "Deletes the session and discards any operation in flight.",
		sessionPath{}, []response{respNoContent(), respError(http.StatusNotFound)}},
	{http.MethodPost, "/api/sessions/{sessionID}/quest", "Create quest",
		"Resolves POIs around the search point and generates a quest. Replaces any loaded quest.",
		questPath{}, []response{
			respOK(session.Snapshot{}), respError(http.StatusBadRequest), respError(http.StatusConflict),
			{status: http.StatusBadGateway, body: QuestFailureResponse{}}, respError(http.StatusTooManyRequests),
		}},
	{http.MethodDelete, "/api/sessions/{sessionID}/quest", "Reset quest", "Clears quest, score and index.",
		sessionPath{}, []response{respOK(session.Snapshot{})}},
	{http.MethodPost, "/api/sessions/{sessionID}/next", "Next task",
		"Advances to the next task. On the last task the quest is completed.",
		sessionPath{}, []response{respOK(session.Snapshot{}), respError(http.StatusConflict)}},
	{http.MethodPost, "/api/sessions/{sessionID}/tasks/{taskID}/photo", "Submit photo",
		"Verifies a photo for the task and applies the verdict.",
		photoPath{}, []response{
			respOK(photoquest.Verdict{}), respError(http.StatusBadRequest), respError(http.StatusConflict), respError(http.StatusTooManyRequests),
		}},
	{http.MethodGet, "/api/sessions/{sessionID}/events", "SSE event stream",
		"Server-Sent Events: a snapshot first, then one event per transition.",
		sessionPath{}, []response{respStream("text/event-stream")}},
	{http.MethodPost, "/api/config/preview", "Preview configuration",
		"Returns the teaser text and expected task count. Applies the optional template.",
		QuestRequest{}, []response{respOK(PreviewResponse{}), respError(http.StatusBadRequest)}},
	{http.MethodGet, "/api/geo/cities", "Search cities", "Geocodes a free-text city query.",
		citySearchQuery{}, []response{respOK([]geo.CityCandidate{}), respError(http.StatusBadGateway)}},
	{http.MethodGet, "/api/geo/pois", "Resolve POIs",
		"Returns points of interest around a location, or the built-in fallback set.",
		poiQuery{}, []response{respOK(geo.Resolution{}), respError(http.StatusBadRequest)}},
	{http.MethodPost, "/api/ai/generate-quest", "Generate quest", "Calls the generative backend directly.",
		ai.GenerationRequest{}, []response{
			respOK(photoquest.GeneratedQuest{}), respError(http.StatusBadRequest), respError(http.StatusTooManyRequests), respError(http.StatusBadGateway),
		}},
	{http.MethodPost, "/api/ai/validate-photo", "Validate photo", "Asks the photo judge for a verdict.",
		ai.VerificationRequest{}, []response{
			respOK(photoquest.Verdict{}), respError(http.StatusBadRequest), respError(http.StatusTooManyRequests), respError(http.StatusBadGateway),
		}},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "PhotoQuest API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("City photo quests: generation, progression and photo verification.")

	for _, op := range operations {
		oc, _ := r.NewOperationContext(op.method, op.path)
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		for _, resp := range op.resp {
			opts := []openapi.ContentOption{openapi.WithHTTPStatus(resp.status)}
			if resp.contentType != "" {
				opts = append(opts, openapi.WithContentType(resp.contentType))
			}
			oc.AddRespStructure(resp.body, opts...)
		}
		_ = r.AddOperation(oc)
	}
	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, err := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encoding openapi document: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
