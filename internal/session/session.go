// Package session drives one quest from configuration to completion:
// POI resolution, generation, per-task photo verification and
// progression. Sessions are independent; a Manager owns their lifecycle.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/playperu/photoquest/internal/geo"
	"github.com/playperu/photoquest/internal/photoquest"
)

type Status string

const (
	StatusEmpty     Status = "empty"
	StatusLoading   Status = "loading"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

var (
	// ErrDiscarded is returned to a caller whose in-flight operation
	// finished after the session was reset or disposed, and to any
	// operation on a disposed session.
	ErrDiscarded  = errors.New("session was reset or disposed")
	ErrEmptyPhoto = errors.New("photo is empty")
)

// Verdicts synthesized locally instead of by the judge.
const (
	FeedbackTaskNotFound    = "Task not found"
	FeedbackVerifyFailed    = "Error validating photo"
	hintVerifyFailed        = "Please try again."
	interruptedErrorMessage = "quest generation was interrupted"
)

type POIResolver interface {
	Resolve(ctx context.Context, lat, lon, radius float64) geo.Resolution
}

type QuestGenerator interface {
	GenerateQuest(ctx context.Context, cfg photoquest.QuestConfiguration, pois []photoquest.PointOfInterest) (*photoquest.GeneratedQuest, error)
}

type PhotoVerifier interface {
	VerifyTaskPhoto(ctx context.Context, instruction, location string, photo []byte) (photoquest.Verdict, error)
}

// Store persists settled snapshots.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Notifier receives every transition.
type Notifier interface {
	Publish(sessionID string, ev Event)
}

// Dependencies are the collaborators shared by all sessions. Store and
// Notifier are optional.
type Dependencies struct {
	Resolver  POIResolver
	Generator QuestGenerator
	Verifier  PhotoVerifier
	Store     Store
	Notifier  Notifier
}

// Snapshot is a consistent copy of a session taken under its lock.
type Snapshot struct {
	ID               string                         `json:"id"`
	Status           Status                         `json:"status"`
	Config           *photoquest.QuestConfiguration `json:"config,omitempty"`
	Quest            *photoquest.GeneratedQuest     `json:"quest,omitempty"`
	CurrentTaskIndex int                            `json:"currentTaskIndex"`
	Score            int                            `json:"score"`
	Progress         int                            `json:"progress"`
	CurrentTask      *photoquest.QuestTask          `json:"currentTask,omitempty"`
	IsLastTask       bool                           `json:"isLastTask"`
	Loading          bool                           `json:"loading"`
	Error            string                         `json:"error,omitempty"`
	POISource        geo.Source                     `json:"poiSource,omitempty"`
	UpdatedAt        time.Time                      `json:"updatedAt"`
}

// Session is the live state of one player's quest. The busy flag makes
// network-bound operations single-flight; the epoch lets a reset
// invalidate whatever is still in flight.
type Session struct {
	id     string
	deps   Dependencies
	logger *slog.Logger

	mu        sync.RWMutex
	status    Status
	config    *photoquest.QuestConfiguration
	quest     *photoquest.GeneratedQuest
	index     int
	score     int
	busy      bool
	epoch     uint64
	lastErr   string
	poiSource geo.Source
	disposed  bool
	updatedAt time.Time
	seq       uint64

	// saveMu orders settle calls; savedSeq is the last persisted seq.
	saveMu   sync.Mutex
	savedSeq uint64
}

func newSession(id string, deps Dependencies, logger *slog.Logger) *Session {
	return &Session{
		id:        id,
		deps:      deps,
		logger:    logger.With("session_id", id),
		status:    StatusEmpty,
		updatedAt: time.Now().UTC(),
	}
}

// restore rebuilds a session from a stored snapshot. A session that was
// loading when the process stopped can never settle, so it comes back
// errored.
func restore(snap Snapshot, deps Dependencies, logger *slog.Logger) *Session {
	s := newSession(snap.ID, deps, logger)
	s.status = snap.Status
	s.config = snap.Config
	s.quest = snap.Quest.Clone()
	s.index = snap.CurrentTaskIndex
	s.score = snap.Score
	s.lastErr = snap.Error
	s.poiSource = snap.POISource
	s.updatedAt = snap.UpdatedAt

	if s.status == StatusLoading {
		s.status = StatusErrored
		s.quest = nil
		s.index, s.score = 0, 0
		s.lastErr = interruptedErrorMessage
	}
	if s.quest != nil {
		s.score = s.quest.CompletedPoints()
		if s.index >= len(s.quest.Tasks) || s.index < 0 {
			s.index = 0
		}
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:               s.id,
		Status:           s.status,
		Quest:            s.quest.Clone(),
		CurrentTaskIndex: s.index,
		Score:            s.score,
		Progress:         s.progressLocked(),
		Loading:          s.busy,
		Error:            s.lastErr,
		POISource:        s.poiSource,
		UpdatedAt:        s.updatedAt,
	}
	if s.config != nil {
		c := *s.config
		snap.Config = &c
	}
	if s.quest != nil && len(s.quest.Tasks) > 0 {
		t := s.quest.Tasks[s.index]
		snap.CurrentTask = &t
		snap.IsLastTask = s.index == len(s.quest.Tasks)-1
	}
	return snap
}

// progressLocked is round(100 * index / taskCount); a completed quest is 100.
func (s *Session) progressLocked() int {
	if s.status == StatusCompleted {
		return 100
	}
	if s.quest == nil || len(s.quest.Tasks) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(s.index) / float64(len(s.quest.Tasks))))
}

// CreateQuest resolves POIs around the configured search point and asks
// the generator for a quest. Any previous quest is replaced. On a
// generation failure the session is errored and the configuration kept.
func (s *Session) CreateQuest(ctx context.Context, cfg photoquest.QuestConfiguration) (Snapshot, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Snapshot{}, ErrDiscarded
	}
	if s.busy {
		s.mu.Unlock()
		return Snapshot{}, photoquest.ErrBusy
	}
	s.busy = true
	s.status = StatusLoading
	s.quest = nil
	s.index, s.score = 0, 0
	s.lastErr = ""
	s.poiSource = ""
	kept := cfg
	s.config = &kept
	epoch := s.epoch
	snap, seq := s.touchLocked()
	s.mu.Unlock()

	s.settle(ctx, seq, snap, Event{Type: EventQuestLoading})

	lat, lon := cfg.SearchPoint()
	res := s.deps.Resolver.Resolve(ctx, lat, lon, cfg.Radius)
	quest, genErr := s.deps.Generator.GenerateQuest(ctx, cfg, res.POIs)

	s.mu.Lock()
	if s.epoch != epoch || s.disposed {
		s.mu.Unlock()
		return s.Snapshot(), ErrDiscarded
	}
	s.busy = false
	s.poiSource = res.Source
	var ev Event
	if genErr != nil {
		s.status = StatusErrored
		s.lastErr = errorMessage(genErr)
		ev = Event{Type: EventQuestFailed, Message: s.lastErr}
	} else {
		for i := range quest.Tasks {
			quest.Tasks[i].Completed = false
			quest.Tasks[i].Attempts = 0
			quest.Tasks[i].PhotoRef = ""
		}
		s.quest = quest
		s.status = StatusActive
		ev = Event{Type: EventQuestCreated}
	}
	snap, seq = s.touchLocked()
	s.mu.Unlock()

	s.settle(ctx, seq, snap, ev)
	if genErr != nil {
		s.logger.Warn("quest generation failed", "error", genErr, "poi_source", res.Source)
		return snap, genErr
	}
	s.logger.Info("quest created",
		"quest_id", quest.ID, "tasks", len(quest.Tasks), "poi_source", res.Source, "poi_reason", res.Reason)
	return snap, nil
}

// ValidateTaskPhoto submits a photo for the task with the given id and
// applies the verdict. Completion is idempotent: a task already
// completed never scores twice. A judge failure leaves the session
// untouched apart from the recorded error and yields a local verdict.
func (s *Session) ValidateTaskPhoto(ctx context.Context, taskID string, photo []byte) (photoquest.Verdict, error) {
	if len(photo) == 0 {
		return photoquest.Verdict{}, ErrEmptyPhoto
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return photoquest.Verdict{}, ErrDiscarded
	}
	if s.status != StatusActive {
		s.mu.Unlock()
		return photoquest.Verdict{}, photoquest.ErrNoActiveQuest
	}
	i := s.quest.TaskIndex(taskID)
	if i < 0 {
		s.mu.Unlock()
		return photoquest.Verdict{Success: false, Feedback: FeedbackTaskNotFound}, nil
	}
	if s.busy {
		s.mu.Unlock()
		return photoquest.Verdict{}, photoquest.ErrBusy
	}
	s.busy = true
	task := s.quest.Tasks[i]
	epoch := s.epoch
	s.mu.Unlock()

	verdict, verifyErr := s.deps.Verifier.VerifyTaskPhoto(ctx, task.Action(), task.Location, photo)

	s.mu.Lock()
	if s.epoch != epoch || s.disposed {
		s.mu.Unlock()
		return photoquest.Verdict{}, ErrDiscarded
	}
	s.busy = false
	ev := Event{TaskID: task.ID}
	switch {
	case verifyErr != nil:
		s.lastErr = errorMessage(verifyErr)
		hint := hintVerifyFailed
		verdict = photoquest.Verdict{Success: false, Feedback: FeedbackVerifyFailed, Hint: &hint}
		ev.Type = EventVerificationError
		ev.Message = s.lastErr
	case verdict.Success:
		t := &s.quest.Tasks[i]
		if !t.Completed {
			t.Completed = true
			t.PhotoRef = photoRef(photo)
			s.score += t.Points
		}
		s.lastErr = ""
		ev.Type = EventTaskCompleted
	default:
		s.quest.Tasks[i].Attempts++
		s.lastErr = ""
		ev.Type = EventTaskAttemptFailed
		ev.Message = verdict.Feedback
	}
	snap, seq := s.touchLocked()
	s.mu.Unlock()

	s.settle(ctx, seq, snap, ev)
	if verifyErr != nil {
		s.logger.Warn("photo verification failed", "task_id", task.ID, "error", verifyErr)
	}
	return verdict, nil
}

// NextTask moves to the following task. On the last task it completes
// the quest instead, so the index never leaves the task range.
func (s *Session) NextTask(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Snapshot{}, ErrDiscarded
	}
	if s.status != StatusActive {
		s.mu.Unlock()
		return Snapshot{}, photoquest.ErrNoActiveQuest
	}
	var ev Event
	if s.index >= len(s.quest.Tasks)-1 {
		s.status = StatusCompleted
		ev = Event{Type: EventQuestCompleted}
	} else {
		s.index++
		ev = Event{Type: EventTaskAdvanced, TaskID: s.quest.Tasks[s.index].ID}
	}
	snap, seq := s.touchLocked()
	s.mu.Unlock()

	s.settle(ctx, seq, snap, ev)
	return snap, nil
}

// ResetQuest drops the quest, score and index from any state. Results
// of operations still in flight are discarded when they arrive. The
// last configuration is kept for a retry.
func (s *Session) ResetQuest(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Snapshot{}, ErrDiscarded
	}
	s.epoch++
	s.busy = false
	s.status = StatusEmpty
	s.quest = nil
	s.index, s.score = 0, 0
	s.lastErr = ""
	s.poiSource = ""
	snap, seq := s.touchLocked()
	s.mu.Unlock()

	s.settle(ctx, seq, snap, Event{Type: EventQuestReset})
	return snap, nil
}

// dispose invalidates in-flight work and stops persistence. Holding
// saveMu waits out a settle that is already saving.
func (s *Session) dispose() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.epoch++
	s.disposed = true
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) isDisposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// idleSince reports whether the session has not changed since cutoff
// and has nothing in flight.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.busy && s.updatedAt.Before(cutoff)
}

// touchLocked stamps a transition and returns its snapshot and sequence
// number.
func (s *Session) touchLocked() (Snapshot, uint64) {
	s.updatedAt = time.Now().UTC()
	s.seq++
	return s.snapshotLocked(), s.seq
}

// settle persists snap and publishes ev. A snapshot older than the last
// one saved is dropped, and a disposed session is never written back.
// Storage failures are logged; the in-memory session stays authoritative.
func (s *Session) settle(ctx context.Context, seq uint64, snap Snapshot, ev Event) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if seq <= s.savedSeq || s.isDisposed() {
		return
	}
	s.savedSeq = seq

	if s.deps.Store != nil {
		if err := s.deps.Store.Save(ctx, snap); err != nil {
			s.logger.Error("saving session", "status", snap.Status, "error", err)
		}
	}
	if s.deps.Notifier != nil {
		ev.Status = snap.Status
		ev.Score = snap.Score
		ev.Progress = snap.Progress
		ev.CurrentTaskIndex = snap.CurrentTaskIndex
		s.deps.Notifier.Publish(s.id, ev)
	}
}

func errorMessage(err error) string {
	var genErr *photoquest.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Message
	}
	var verErr *photoquest.VerificationError
	if errors.As(err, &verErr) {
		return verErr.Message
	}
	return err.Error()
}

func photoRef(photo []byte) string {
	sum := sha256.Sum256(photo)
	return fmt.Sprintf("sha256:%s", hex.EncodeToString(sum[:]))
}
