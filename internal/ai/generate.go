package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/playperu/photoquest/internal/photoquest"
)

// maxPromptPOIs bounds the POI listing embedded in the prompt.
const maxPromptPOIs = 10

type POIRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GenerationRequest is the wire shape of the generation endpoint.
type GenerationRequest struct {
	City          string   `json:"city"`
	Duration      int      `json:"duration"`
	Difficulty    string   `json:"difficulty"`
	Genre         string   `json:"genre"`
	PlayersFormat string   `json:"playersFormat,omitempty"`
	Audience      string   `json:"audience,omitempty"`
	Atmosphere    []string `json:"atmosphere,omitempty"`
	TaskTypes     []string `json:"taskTypes,omitempty"`
	Linearity     string   `json:"linearity,omitempty"`
	Language      string   `json:"language,omitempty"`
	POIs          []POIRef `json:"pois"`
}

func NewGenerationRequest(cfg photoquest.QuestConfiguration, pois []photoquest.PointOfInterest) GenerationRequest {
	refs := make([]POIRef, 0, len(pois))
	for _, p := range pois {
		refs = append(refs, POIRef{Name: p.Name, Type: p.Category})
	}
	return GenerationRequest{
		City:          cfg.City,
		Duration:      cfg.Duration,
		Difficulty:    string(cfg.Difficulty),
		Genre:         string(cfg.Genre),
		PlayersFormat: string(cfg.PlayersFormat),
		Audience:      string(cfg.Audience),
		Atmosphere:    cfg.Atmosphere,
		TaskTypes:     cfg.TaskTypes,
		Linearity:     string(cfg.Linearity),
		Language:      string(cfg.Language),
		POIs:          refs,
	}
}

func (r GenerationRequest) validate() error {
	if strings.TrimSpace(r.City) == "" {
		return fmt.Errorf("%w: city is required", ErrInvalidRequest)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	return nil
}

type generationPrompt struct {
	GenerationRequest
	TaskCount    int
	LanguageName string
}

// GenerateQuest asks the backend for a quest anchored on pois.
func (c *Client) GenerateQuest(ctx context.Context, cfg photoquest.QuestConfiguration, pois []photoquest.PointOfInterest) (*photoquest.GeneratedQuest, error) {
	return c.Generate(ctx, NewGenerationRequest(cfg, pois))
}

func (c *Client) Generate(ctx context.Context, req GenerationRequest) (*photoquest.GeneratedQuest, error) {
	start := time.Now()

	if err := req.validate(); err != nil {
		c.observeGeneration(outcomeInvalidRequest, start)
		return nil, err
	}
	if len(req.POIs) > maxPromptPOIs {
		req.POIs = req.POIs[:maxPromptPOIs]
	}

	system, err := c.prompts.System()
	if err != nil {
		return nil, err
	}
	user, err := c.prompts.User(generationPrompt{
		GenerationRequest: req,
		TaskCount:         photoquest.TaskCountFor(req.Duration),
		LanguageName:      photoquest.Language(req.Language).Name(),
	})
	if err != nil {
		return nil, err
	}

	content, err := c.complete(ctx, c.cfg.Model, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}, c.cfg.Temperature)
	if err != nil {
		c.observeGeneration(outcomeProviderError, start)
		status, msg := providerFailure(err)
		c.logger.Error("quest generation failed", "status", status, "error", err, "prompt_version", c.prompts.Version)
		return nil, &photoquest.GenerationError{Status: status, Message: msg, Err: err}
	}

	quest, err := ParseQuest([]byte(content))
	if err != nil {
		c.observeGeneration(outcomeInvalidResponse, start)
		c.logger.Error("quest document rejected", "error", err, "prompt_version", c.prompts.Version)
		return nil, &photoquest.GenerationError{Message: err.Error(), Err: err}
	}
	quest.City = req.City

	want := photoquest.TaskCountFor(req.Duration)
	if len(quest.Tasks) != want {
		c.logger.Info("model chose a different task count", "requested", want, "got", len(quest.Tasks))
	}
	c.observeGeneration(outcomeOK, start)
	return quest, nil
}

type questDocument struct {
	Theme string         `json:"theme"`
	Intro string         `json:"intro"`
	Tasks []taskDocument `json:"tasks"`
}

type taskDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Narrative   string   `json:"narrative"`
	Instruction string   `json:"instruction"`
	Description string   `json:"description"`
	Hint        *string  `json:"hint"`
	Location    string   `json:"location"`
	Points      *float64 `json:"points"`
}

var errInvalidDocument = errors.New("invalid quest document")

// ParseQuest decodes a generation response. Any missing required field
// rejects the whole document. The returned quest gets a fresh id.
func ParseQuest(data []byte) (*photoquest.GeneratedQuest, error) {
	var doc questDocument
	if err := json.Unmarshal([]byte(stripFences(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidDocument, err)
	}

	if strings.TrimSpace(doc.Theme) == "" {
		return nil, fmt.Errorf("%w: theme is missing", errInvalidDocument)
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks", errInvalidDocument)
	}

	quest := &photoquest.GeneratedQuest{
		ID:    uuid.NewString(),
		Theme: strings.TrimSpace(doc.Theme),
		Intro: strings.TrimSpace(doc.Intro),
		Tasks: make([]photoquest.QuestTask, 0, len(doc.Tasks)),
	}
	seen := make(map[string]bool, len(doc.Tasks))
	for i, td := range doc.Tasks {
		task, err := td.task()
		if err != nil {
			return nil, fmt.Errorf("%w: task %d: %v", errInvalidDocument, i+1, err)
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("%w: duplicate task id %q", errInvalidDocument, task.ID)
		}
		seen[task.ID] = true
		quest.Tasks = append(quest.Tasks, task)
	}
	return quest, nil
}

func (td taskDocument) task() (photoquest.QuestTask, error) {
	t := photoquest.QuestTask{
		ID:          strings.TrimSpace(td.ID),
		Title:       strings.TrimSpace(td.Title),
		Narrative:   strings.TrimSpace(td.Narrative),
		Instruction: strings.TrimSpace(td.Instruction),
		Description: strings.TrimSpace(td.Description),
		Location:    strings.TrimSpace(td.Location),
	}
	if td.Hint != nil {
		t.Hint = strings.TrimSpace(*td.Hint)
	}

	switch {
	case t.ID == "":
		return t, errors.New("id is missing")
	case t.Title == "":
		return t, errors.New("title is missing")
	case t.Location == "":
		return t, errors.New("location is missing")
	case td.Points == nil:
		return t, errors.New("points are missing")
	case *td.Points < 0 || *td.Points != math.Trunc(*td.Points) || *td.Points > math.MaxInt32:
		return t, fmt.Errorf("points must be a non-negative integer, got %v", *td.Points)
	case !t.Displayable():
		return t, errors.New("neither instruction nor description given")
	}
	t.Points = int(*td.Points)
	return t, nil
}
