package imagination

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/assets"
	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/engine"
	"github.com/pixforge/imagine-api/internal/events"
	"github.com/pixforge/imagine-api/internal/platform/gemini"
	"github.com/pixforge/imagine-api/internal/store"
	"github.com/pixforge/imagine-api/internal/worker"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an in-memory store.ImaginationStore.
type memoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Imagination
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tasks: make(map[uuid.UUID]*domain.Imagination)}
}

func (s *memoryStore) Create(_ context.Context, img *domain.Imagination) error {
	if err := img.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *img
	s.tasks[img.ID] = &cp
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Imagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (s *memoryStore) Update(_ context.Context, img *domain.Imagination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[img.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *img
	s.tasks[img.ID] = &cp
	return nil
}

func (s *memoryStore) FindByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Imagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Imagination
	for _, img := range s.tasks {
		if img.UserID == userID {
			cp := *img
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) FindByBulk(_ context.Context, bulkID uuid.UUID) ([]*domain.Imagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Imagination
	for _, img := range s.tasks {
		if img.BulkID != nil && *img.BulkID == bulkID {
			cp := *img
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memoryStore) FindUnfinished(_ context.Context, olderThan time.Duration) ([]*domain.Imagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.Imagination
	for _, img := range s.tasks {
		if img.Status.IsDone() {
			continue
		}
		if img.UpdatedAt.Before(cutoff) {
			cp := *img
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memoryStore) WithTx(_ *sql.Tx) store.ImaginationStore { return s }

// memoryBulkStore is an in-memory store.BulkStore.
type memoryBulkStore struct {
	mu    sync.Mutex
	bulks map[uuid.UUID]*domain.BulkImagination
}

func newMemoryBulkStore() *memoryBulkStore {
	return &memoryBulkStore{bulks: make(map[uuid.UUID]*domain.BulkImagination)}
}

func (s *memoryBulkStore) Create(_ context.Context, bulk *domain.BulkImagination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *bulk
	s.bulks[bulk.ID] = &cp
	return nil
}

func (s *memoryBulkStore) GetByID(_ context.Context, id uuid.UUID) (*domain.BulkImagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bulk, ok := s.bulks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *bulk
	return &cp, nil
}

func (s *memoryBulkStore) Update(_ context.Context, bulk *domain.BulkImagination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bulks[bulk.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *bulk
	s.bulks[bulk.ID] = &cp
	return nil
}

func (s *memoryBulkStore) WithTx(_ *sql.Tx) store.BulkStore { return s }

// scriptedAdapter is an engine.Adapter whose responses are queued up front.
type scriptedAdapter struct {
	mu      sync.Mutex
	eng     domain.Engine
	ratios  []string
	submits []submitResult
	fetches []fetchResult

	submitCalls int
	fetchCalls  int
}

type submitResult struct {
	details *engine.Details
	err     error
}

type fetchResult struct {
	details *engine.Details
	err     error
}

func newScriptedAdapter(eng domain.Engine, ratios ...string) *scriptedAdapter {
	if len(ratios) == 0 {
		ratios = []string{"1:1", "16:9"}
	}
	return &scriptedAdapter{eng: eng, ratios: ratios}
}

func (a *scriptedAdapter) Engine() domain.Engine { return a.eng }

func (a *scriptedAdapter) Validate(aspectRatio string) (bool, string) {
	for _, r := range a.ratios {
		if r == aspectRatio {
			return true, ""
		}
	}
	return false, fmt.Sprintf("aspect_ratio must be one of them %v", a.ratios)
}

func (a *scriptedAdapter) queueSubmit(d *engine.Details, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits = append(a.submits, submitResult{details: d, err: err})
}

func (a *scriptedAdapter) queueFetch(d *engine.Details, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetches = append(a.fetches, fetchResult{details: d, err: err})
}

func (a *scriptedAdapter) Submit(_ context.Context, _ *domain.Imagination, _ string) (*engine.Details, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitCalls++
	if len(a.submits) == 0 {
		return nil, fmt.Errorf("unscripted submit call")
	}
	next := a.submits[0]
	a.submits = a.submits[1:]
	return next.details, next.err
}

func (a *scriptedAdapter) FetchResult(_ context.Context, _ *domain.Imagination) (*engine.Details, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchCalls++
	if len(a.fetches) == 0 {
		return nil, fmt.Errorf("unscripted fetch call")
	}
	next := a.fetches[0]
	a.fetches = a.fetches[1:]
	return next.details, next.err
}

// recordingScheduler records schedule/cancel calls without Redis.
type recordingScheduler struct {
	mu        sync.Mutex
	scheduled map[uuid.UUID]int
	cancelled map[uuid.UUID]int
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{
		scheduled: make(map[uuid.UUID]int),
		cancelled: make(map[uuid.UUID]int),
	}
}

func (s *recordingScheduler) Schedule(_ context.Context, id uuid.UUID, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[id]++
	return nil
}

func (s *recordingScheduler) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[id]++
	return nil
}

func (s *recordingScheduler) scheduleCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled[id]
}

func (s *recordingScheduler) cancelCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[id]
}

// inlineQueue executes submitted jobs synchronously, making lifecycle tests
// deterministic.
type inlineQueue struct {
	mu   sync.Mutex
	runs []string
}

func (q *inlineQueue) Submit(job worker.Job) error {
	q.mu.Lock()
	q.runs = append(q.runs, job.Type())
	q.mu.Unlock()
	return job.Execute(context.Background())
}

// stubPipeline returns canned results, or fails when failWith is set.
type stubPipeline struct {
	mu       sync.Mutex
	failWith error
	calls    []pipelineCall
}

type pipelineCall struct {
	url      string
	sections int
}

func (p *stubPipeline) Process(_ context.Context, url string, sections int, _ assets.UploadMeta) ([]domain.ImageResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, pipelineCall{url: url, sections: sections})
	p.mu.Unlock()
	if p.failWith != nil {
		return nil, p.failWith
	}
	results := make([]domain.ImageResult, sections)
	for i := range results {
		results[i] = domain.ImageResult{
			URL:    fmt.Sprintf("https://cdn.example.com/%s-%d.webp", url, i),
			Width:  1024,
			Height: 1024,
		}
	}
	return results, nil
}

// fixture bundles a fully wired service over the fakes.
type fixture struct {
	svc       *Service
	store     *memoryStore
	adapter   *scriptedAdapter
	scheduler *recordingScheduler
	queue     *inlineQueue
	pipeline  *stubPipeline
	emitter   *events.InMemoryEmitter
}

func defaultLifecycleConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		PollInterval: 10 * time.Second,
		Timeout:      10 * time.Minute,
		MaxRetries:   5,
		WorkerCount:  1,
		QueueSize:    16,
	}
}

func newFixture(t *testing.T, adapters ...engine.Adapter) *fixture {
	t.Helper()

	f := &fixture{
		store:     newMemoryStore(),
		scheduler: newRecordingScheduler(),
		queue:     &inlineQueue{},
		pipeline:  &stubPipeline{},
		emitter:   events.NewInMemoryEmitter(testLogger()),
	}

	if len(adapters) == 0 {
		f.adapter = newScriptedAdapter(domain.EngineMidjourney)
		adapters = []engine.Adapter{f.adapter}
	} else if a, ok := adapters[0].(*scriptedAdapter); ok {
		f.adapter = a
	}

	f.svc = NewService(
		testLogger(),
		f.store,
		engine.NewRegistry(adapters...),
		gemini.NoopEnricher{},
		f.pipeline,
		f.scheduler,
		f.queue,
		f.emitter,
		defaultLifecycleConfig(),
		"https://api.example.com",
	)
	return f
}

// mustGet fetches a task from the fixture store.
func (f *fixture) mustGet(t *testing.T, id uuid.UUID) *domain.Imagination {
	t.Helper()
	task, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return task
}

// submittedDetails builds the normal provider acknowledgement for submit.
func submittedDetails(taskID string, status domain.Status) *engine.Details {
	return &engine.Details{
		ID:       taskID,
		Status:   status,
		Progress: domain.ProgressUnknown,
		State: &engine.State{
			Kind:       engine.StateKindMidjourney,
			Midjourney: &engine.MidjourneyState{TaskID: taskID},
		},
	}
}
