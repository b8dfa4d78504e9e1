package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/photoquest/internal/geo"
	"github.com/playperu/photoquest/internal/photoquest"
)

type resolveCall struct{ lat, lon, radius float64 }

type fakeResolver struct {
	mu    sync.Mutex
	res   geo.Resolution
	calls []resolveCall
}

func (f *fakeResolver) Resolve(_ context.Context, lat, lon, radius float64) geo.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, resolveCall{lat, lon, radius})
	return f.res
}

type fakeGenerator struct {
	mu      sync.Mutex
	err     error
	gotPOIs []photoquest.PointOfInterest
	calls   int
}

func (f *fakeGenerator) GenerateQuest(_ context.Context, cfg photoquest.QuestConfiguration, pois []photoquest.PointOfInterest) (*photoquest.GeneratedQuest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotPOIs = pois
	if f.err != nil {
		return nil, f.err
	}
	q := leipzigQuest()
	q.City = cfg.City
	return q, nil
}

type fakeVerifier struct {
	mu      sync.Mutex
	verdict photoquest.Verdict
	err     error
	calls   []string
	entered chan struct{}
	release chan struct{}
}

func (f *fakeVerifier) VerifyTaskPhoto(_ context.Context, instruction, _ string, _ []byte) (photoquest.Verdict, error) {
	f.mu.Lock()
	f.calls = append(f.calls, instruction)
	entered, release := f.entered, f.release
	verdict, err := f.verdict, f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return verdict, err
}

func (f *fakeVerifier) set(v photoquest.Verdict, err error) {
	f.mu.Lock()
	f.verdict, f.err = v, err
	f.mu.Unlock()
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeNotifier) Publish(_ string, ev Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type memStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func newMemStore() *memStore { return &memStore{snaps: make(map[string]Snapshot)} }

func (m *memStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ID] = snap
	return nil
}

func (m *memStore) Load(_ context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, photoquest.ErrNotFound
	}
	return snap, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[id]; !ok {
		return photoquest.ErrNotFound
	}
	delete(m.snaps, id)
	return nil
}

func leipzigQuest() *photoquest.GeneratedQuest {
	return &photoquest.GeneratedQuest{
		ID:    "quest-1",
		City:  "Leipzig",
		Theme: "The Lost Cantor",
		Tasks: []photoquest.QuestTask{
			{ID: "task-1", Title: "Organ Loft", Instruction: "Photograph the portal", Location: "Thomaskirche", Points: 100},
			{ID: "task-2", Title: "Council", Description: "Find the clock", Location: "Altes Rathaus", Points: 150},
			{ID: "task-3", Title: "Arcade", Instruction: "Capture the entrance", Location: "Mädler-Passage", Points: 50},
		},
	}
}

func leipzigConfig(t *testing.T) photoquest.QuestConfiguration {
	t.Helper()
	cfg := photoquest.DefaultConfiguration()
	cfg.SetCity("Leipzig")
	require.NoError(t, cfg.SetCoordinates(51.3397, 12.3731))
	cfg.Difficulty = photoquest.DifficultyMedium
	cfg.Genre = photoquest.GenreHistory
	return cfg
}

var photo = []byte("jpeg-bytes")

type harness struct {
	resolver  *fakeResolver
	generator *fakeGenerator
	verifier  *fakeVerifier
	notifier  *fakeNotifier
	store     *memStore
	deps      Dependencies
}

func newHarness() *harness {
	h := &harness{
		resolver: &fakeResolver{res: geo.Resolution{
			POIs:   []photoquest.PointOfInterest{{ID: 1, Name: "Thomaskirche", Category: "place_of_worship", Lat: 51.339, Lon: 12.373}},
			Source: geo.SourceProvider,
			Reason: geo.ReasonOK,
		}},
		generator: &fakeGenerator{},
		verifier:  &fakeVerifier{verdict: photoquest.Verdict{Success: true, Feedback: "Nice!"}},
		notifier:  &fakeNotifier{},
		store:     newMemStore(),
	}
	h.deps = Dependencies{
		Resolver:  h.resolver,
		Generator: h.generator,
		Verifier:  h.verifier,
		Store:     h.store,
		Notifier:  h.notifier,
	}
	return h
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (h *harness) session() *Session {
	return newSession("s-1", h.deps, discardLogger())
}

func (h *harness) activeSession(t *testing.T) *Session {
	t.Helper()
	s := h.session()
	_, err := s.CreateQuest(context.Background(), leipzigConfig(t))
	require.NoError(t, err)
	return s
}

func TestNewSessionIsEmpty(t *testing.T) {
	s := newHarness().session()
	snap := s.Snapshot()

	assert.Equal(t, StatusEmpty, snap.Status)
	assert.Nil(t, snap.Quest)
	assert.Nil(t, snap.CurrentTask)
	assert.False(t, snap.IsLastTask)
	assert.Zero(t, snap.Progress)
}

func TestCreateQuest(t *testing.T) {
	h := newHarness()
	s := h.session()

	snap, err := s.CreateQuest(context.Background(), leipzigConfig(t))
	require.NoError(t, err)

	assert.Equal(t, StatusActive, snap.Status)
	assert.Zero(t, snap.CurrentTaskIndex)
	assert.Zero(t, snap.Score)
	assert.Zero(t, snap.Progress)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, geo.SourceProvider, snap.POISource)
	require.NotNil(t, snap.Quest)
	assert.GreaterOrEqual(t, len(snap.Quest.Tasks), 3)
	assert.LessOrEqual(t, len(snap.Quest.Tasks), 7)
	require.NotNil(t, snap.CurrentTask)
	assert.Equal(t, "task-1", snap.CurrentTask.ID)
	for _, task := range snap.Quest.Tasks {
		assert.False(t, task.Completed)
	}

	require.Len(t, h.resolver.calls, 1)
	assert.Equal(t, resolveCall{51.3397, 12.3731, 800}, h.resolver.calls[0])
	assert.Equal(t, h.resolver.res.POIs, h.generator.gotPOIs)
	assert.Equal(t, []string{EventQuestLoading, EventQuestCreated}, h.notifier.types())

	stored, err := h.store.Load(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
}

func TestCreateQuestSearchesAroundUserLocation(t *testing.T) {
	h := newHarness()
	s := h.session()
	cfg := leipzigConfig(t)
	require.NoError(t, cfg.SetUserLocation(50.415, 12.169))
	cfg.Radius = 1200

	_, err := s.CreateQuest(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, resolveCall{50.415, 12.169, 1200}, h.resolver.calls[0])
}

func TestCreateQuestClearsTaskProgress(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)
	_, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
	require.NoError(t, err)
	_, err = s.NextTask(context.Background())
	require.NoError(t, err)

	snap, err := s.CreateQuest(context.Background(), leipzigConfig(t))
	require.NoError(t, err)

	assert.Equal(t, StatusActive, snap.Status)
	assert.Zero(t, snap.Score)
	assert.Zero(t, snap.CurrentTaskIndex)
	for _, task := range snap.Quest.Tasks {
		assert.False(t, task.Completed)
		assert.Zero(t, task.Attempts)
		assert.Empty(t, task.PhotoRef)
	}
}

func TestCreateQuestInvalidConfig(t *testing.T) {
	h := newHarness()
	s := h.session()
	cfg := photoquest.DefaultConfiguration()

	_, err := s.CreateQuest(context.Background(), cfg)

	assert.ErrorIs(t, err, photoquest.ErrInvalidConfig)
	assert.Equal(t, StatusEmpty, s.Snapshot().Status)
	assert.Empty(t, h.resolver.calls)
	assert.Zero(t, h.generator.calls)
}

func TestCreateQuestGenerationFailure(t *testing.T) {
	h := newHarness()
	h.generator.err = &photoquest.GenerationError{Status: 500, Message: "model overloaded"}
	s := h.session()

	snap, err := s.CreateQuest(context.Background(), leipzigConfig(t))

	var genErr *photoquest.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StatusErrored, snap.Status)
	assert.Equal(t, "model overloaded", snap.Error)
	assert.Nil(t, snap.Quest)
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Config)
	assert.Equal(t, "Leipzig", snap.Config.City)
	assert.Equal(t, []string{EventQuestLoading, EventQuestFailed}, h.notifier.types())

	h.generator.err = nil
	snap, err = s.CreateQuest(context.Background(), *snap.Config)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Empty(t, snap.Error)
}

func TestCreateQuestWithFallbackPOIs(t *testing.T) {
	h := newHarness()
	h.resolver.res = geo.Resolution{POIs: geo.FallbackPOIs(), Source: geo.SourceFallback, Reason: geo.ReasonTimeout}
	s := h.session()

	snap, err := s.CreateQuest(context.Background(), leipzigConfig(t))
	require.NoError(t, err)

	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, geo.SourceFallback, snap.POISource)
	assert.Len(t, h.generator.gotPOIs, 5)
}

func TestValidateTaskPhotoSuccess(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)

	v, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
	require.NoError(t, err)

	assert.True(t, v.Success)
	assert.Equal(t, "Nice!", v.Feedback)
	snap := s.Snapshot()
	assert.Equal(t, 100, snap.Score)
	task := snap.Quest.Tasks[0]
	assert.True(t, task.Completed)
	assert.True(t, strings.HasPrefix(task.PhotoRef, "sha256:"))
	assert.Equal(t, []string{"Photograph the portal"}, h.verifier.calls)
	assert.Contains(t, h.notifier.types(), EventTaskCompleted)
}

func TestValidateTaskPhotoIsIdempotent(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)

	for range 2 {
		v, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
		require.NoError(t, err)
		assert.True(t, v.Success)
	}

	snap := s.Snapshot()
	assert.Equal(t, 100, snap.Score)
	assert.Equal(t, snap.Quest.CompletedPoints(), snap.Score)
}

func TestValidateTaskPhotoRejected(t *testing.T) {
	h := newHarness()
	hint := "Look closer"
	h.verifier.verdict = photoquest.Verdict{Success: false, Feedback: "That is a bakery.", Hint: &hint}
	s := h.activeSession(t)

	v, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
	require.NoError(t, err)

	assert.False(t, v.Success)
	require.NotNil(t, v.Hint)
	assert.Equal(t, "Look closer", *v.Hint)
	snap := s.Snapshot()
	assert.False(t, snap.Quest.Tasks[0].Completed)
	assert.Equal(t, 1, snap.Quest.Tasks[0].Attempts)
	assert.Zero(t, snap.Score)
}

func TestValidateTaskPhotoUnknownTask(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)
	before := s.Snapshot()
	events := len(h.notifier.types())

	v, err := s.ValidateTaskPhoto(context.Background(), "nonexistent", photo)
	require.NoError(t, err)

	assert.Equal(t, photoquest.Verdict{Success: false, Feedback: "Task not found"}, v)
	assert.Equal(t, before, s.Snapshot())
	assert.Empty(t, h.verifier.calls)
	assert.Len(t, h.notifier.types(), events)
}

func TestValidateTaskPhotoVerifierFailure(t *testing.T) {
	h := newHarness()
	h.verifier.err = &photoquest.VerificationError{Status: 503, Message: "judge unavailable"}
	s := h.activeSession(t)

	v, err := s.ValidateTaskPhoto(context.Background(), "task-2", photo)
	require.NoError(t, err)

	assert.False(t, v.Success)
	assert.Equal(t, FeedbackVerifyFailed, v.Feedback)
	snap := s.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, "judge unavailable", snap.Error)
	assert.False(t, snap.Loading)
	assert.Zero(t, snap.Score)
	assert.False(t, snap.Quest.Tasks[1].Completed)
	assert.Zero(t, snap.Quest.Tasks[1].Attempts)
	assert.Contains(t, h.notifier.types(), EventVerificationError)

	h.verifier.set(photoquest.Verdict{Success: true, Feedback: "ok"}, nil)
	_, err = s.ValidateTaskPhoto(context.Background(), "task-2", photo)
	require.NoError(t, err)
	assert.Empty(t, s.Snapshot().Error)
}

func TestValidateTaskPhotoPreconditions(t *testing.T) {
	h := newHarness()
	s := h.session()

	_, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
	assert.ErrorIs(t, err, photoquest.ErrNoActiveQuest)

	s = h.activeSession(t)
	_, err = s.ValidateTaskPhoto(context.Background(), "task-1", nil)
	assert.ErrorIs(t, err, ErrEmptyPhoto)
	assert.Empty(t, h.verifier.calls)
}

func TestOperationsAreSingleFlight(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)
	h.verifier.entered = make(chan struct{})
	h.verifier.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
		done <- err
	}()
	<-h.verifier.entered

	assert.True(t, s.Snapshot().Loading)
	_, err := s.ValidateTaskPhoto(context.Background(), "task-2", photo)
	assert.ErrorIs(t, err, photoquest.ErrBusy)
	_, err = s.CreateQuest(context.Background(), leipzigConfig(t))
	assert.ErrorIs(t, err, photoquest.ErrBusy)

	close(h.verifier.release)
	require.NoError(t, <-done)
	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, 100, snap.Score)
}

func TestResetDiscardsInFlightVerification(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)
	h.verifier.entered = make(chan struct{})
	h.verifier.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
		done <- err
	}()
	<-h.verifier.entered

	_, err := s.ResetQuest(context.Background())
	require.NoError(t, err)
	close(h.verifier.release)

	assert.ErrorIs(t, <-done, ErrDiscarded)
	snap := s.Snapshot()
	assert.Equal(t, StatusEmpty, snap.Status)
	assert.Zero(t, snap.Score)
	assert.False(t, snap.Loading)
}

func TestNextTask(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)
	ctx := context.Background()

	snap, err := s.NextTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentTaskIndex)
	assert.Equal(t, 33, snap.Progress)
	assert.Equal(t, "task-2", snap.CurrentTask.ID)
	assert.False(t, snap.IsLastTask)

	snap, err = s.NextTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentTaskIndex)
	assert.Equal(t, 67, snap.Progress)
	assert.True(t, snap.IsLastTask)

	snap, err = s.NextTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.CurrentTaskIndex)
	assert.Equal(t, 100, snap.Progress)

	_, err = s.NextTask(ctx)
	assert.ErrorIs(t, err, photoquest.ErrNoActiveQuest)
	assert.Equal(t, 2, s.Snapshot().CurrentTaskIndex)

	assert.Equal(t, []string{
		EventQuestLoading, EventQuestCreated, EventTaskAdvanced, EventTaskAdvanced, EventQuestCompleted,
	}, h.notifier.types())
}

func TestNextTaskIndexNeverDecreases(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)

	prev := 0
	for range 10 {
		s.NextTask(context.Background())
		idx := s.Snapshot().CurrentTaskIndex
		assert.GreaterOrEqual(t, idx, prev)
		assert.Less(t, idx, 3)
		prev = idx
	}
}

func TestNextTaskWithoutQuest(t *testing.T) {
	_, err := newHarness().session().NextTask(context.Background())
	assert.ErrorIs(t, err, photoquest.ErrNoActiveQuest)
}

func TestResetQuest(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)
	_, err := s.ValidateTaskPhoto(context.Background(), "task-1", photo)
	require.NoError(t, err)

	snap, err := s.ResetQuest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusEmpty, snap.Status)
	assert.Nil(t, snap.Quest)
	assert.Zero(t, snap.Score)
	assert.Zero(t, snap.CurrentTaskIndex)
	require.NotNil(t, snap.Config)
	assert.Equal(t, "Leipzig", snap.Config.City)
	assert.Equal(t, EventQuestReset, h.notifier.types()[len(h.notifier.types())-1])
}

func TestSettleSkipsStaleSnapshots(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)
	ctx := context.Background()

	// A transition that loses the race to persist after a newer one.
	s.mu.Lock()
	stale, staleSeq := s.touchLocked()
	s.mu.Unlock()

	_, err := s.NextTask(ctx)
	require.NoError(t, err)
	before := len(h.notifier.types())

	s.settle(ctx, staleSeq, stale, Event{Type: EventTaskAdvanced})

	stored, err := h.store.Load(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentTaskIndex)
	assert.Len(t, h.notifier.types(), before)
}

func TestScoreMatchesCompletedTasksUnderConcurrentReads(t *testing.T) {
	h := newHarness()
	s := h.activeSession(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var violations sync.Map
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				if snap.Quest != nil && snap.Score != snap.Quest.CompletedPoints() {
					violations.Store(snap.Score, snap.Quest.CompletedPoints())
				}
			}
		}()
	}

	for _, id := range []string{"task-1", "task-2", "task-3", "task-1"} {
		_, err := s.ValidateTaskPhoto(context.Background(), id, photo)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	count := 0
	violations.Range(func(_, _ any) bool { count++; return true })
	assert.Zero(t, count)
	assert.Equal(t, 300, s.Snapshot().Score)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage(&photoquest.GenerationError{Message: "boom"}))
	assert.Equal(t, "plain", errorMessage(errors.New("plain")))
}
