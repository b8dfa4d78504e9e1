package photoquest

import (
	"errors"
	"fmt"
)

var (
	ErrBusy          = errors.New("another operation is in flight for this session")
	ErrNoActiveQuest = errors.New("no active quest")
	ErrInvalidConfig = errors.New("invalid quest configuration")
	ErrNotFound      = errors.New("not found")
)

// GenerationError means the generative backend rejected the request or
// returned a quest document that does not match the schema.
type GenerationError struct {
	Status  int
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("quest generation failed (status %d): %s", e.Status, e.Message)
	}
	return "quest generation failed: " + e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }

// VerificationError means the photo judge could not produce a verdict.
type VerificationError struct {
	Status  int
	Message string
	Err     error
}

func (e *VerificationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("photo verification failed (status %d): %s", e.Status, e.Message)
	}
	return "photo verification failed: " + e.Message
}

func (e *VerificationError) Unwrap() error { return e.Err }
