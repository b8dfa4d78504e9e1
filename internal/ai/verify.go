package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/playperu/photoquest/internal/photoquest"
)

// VerificationRequest is the wire shape of the verification endpoint.
type VerificationRequest struct {
	TaskDescription string `json:"taskDescription"`
	Location        string `json:"location"`
	PhotoBase64     string `json:"photoBase64"`
}

// VerifyTaskPhoto asks the judge whether photo satisfies instruction.
func (c *Client) VerifyTaskPhoto(ctx context.Context, instruction, location string, photo []byte) (photoquest.Verdict, error) {
	return c.Verify(ctx, VerificationRequest{
		TaskDescription: instruction,
		Location:        location,
		PhotoBase64:     base64.StdEncoding.EncodeToString(photo),
	})
}

func (c *Client) Verify(ctx context.Context, req VerificationRequest) (photoquest.Verdict, error) {
	start := time.Now()

	dataURL, err := req.imageURL()
	if err != nil {
		c.observeVerification(outcomeInvalidRequest, start)
		return photoquest.Verdict{}, err
	}

	prompt, err := c.prompts.Verify(req)
	if err != nil {
		return photoquest.Verdict{}, err
	}

	content, err := c.complete(ctx, c.cfg.VisionModel, []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	}}, 0)
	if err != nil {
		c.observeVerification(outcomeProviderError, start)
		status, msg := providerFailure(err)
		c.logger.Error("photo verification failed", "status", status, "error", err)
		return photoquest.Verdict{}, &photoquest.VerificationError{Status: status, Message: msg, Err: err}
	}

	verdict, err := ParseVerdict([]byte(content))
	if err != nil {
		c.observeVerification(outcomeInvalidResponse, start)
		c.logger.Error("verdict rejected", "error", err)
		return photoquest.Verdict{}, &photoquest.VerificationError{Message: err.Error(), Err: err}
	}
	c.observeVerification(outcomeOK, start)
	return verdict, nil
}

// imageURL validates the request and turns the photo into a data URL.
// A photo that already is a data URL is accepted as is.
func (r VerificationRequest) imageURL() (string, error) {
	if strings.TrimSpace(r.TaskDescription) == "" {
		return "", fmt.Errorf("%w: task description is required", ErrInvalidRequest)
	}
	payload := strings.TrimSpace(r.PhotoBase64)
	if _, after, ok := strings.Cut(payload, ";base64,"); ok && strings.HasPrefix(payload, "data:") {
		payload = after
	}
	if payload == "" {
		return "", fmt.Errorf("%w: photo is required", ErrInvalidRequest)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: photo is not valid base64", ErrInvalidRequest)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: photo is empty", ErrInvalidRequest)
	}

	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + payload, nil
}

type verdictDocument struct {
	Success  *bool   `json:"success"`
	Feedback *string `json:"feedback"`
	Hint     *string `json:"hint"`
}

var errInvalidVerdict = errors.New("invalid verdict")

// ParseVerdict decodes a judge response; success and feedback are required.
func ParseVerdict(data []byte) (photoquest.Verdict, error) {
	var doc verdictDocument
	if err := json.Unmarshal([]byte(stripFences(string(data))), &doc); err != nil {
		return photoquest.Verdict{}, fmt.Errorf("%w: %v", errInvalidVerdict, err)
	}
	if doc.Success == nil {
		return photoquest.Verdict{}, fmt.Errorf("%w: success is missing", errInvalidVerdict)
	}
	if doc.Feedback == nil || strings.TrimSpace(*doc.Feedback) == "" {
		return photoquest.Verdict{}, fmt.Errorf("%w: feedback is missing", errInvalidVerdict)
	}

	v := photoquest.Verdict{
		Success:  *doc.Success,
		Feedback: strings.TrimSpace(*doc.Feedback),
	}
	if doc.Hint != nil {
		if h := strings.TrimSpace(*doc.Hint); h != "" {
			v.Hint = &h
		}
	}
	return v, nil
}
