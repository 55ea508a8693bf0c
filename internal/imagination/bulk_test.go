package imagination

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bulkFixture struct {
	*fixture
	bulks *memoryBulkStore
	svc   *BulkService
}

func newBulkFixture(t *testing.T, adapters ...engine.Adapter) *bulkFixture {
	t.Helper()

	f := newFixture(t, adapters...)
	bf := &bulkFixture{
		fixture: f,
		bulks:   newMemoryBulkStore(),
	}
	bf.svc = NewBulkService(testLogger(), bf.bulks, f.store, f.svc)
	f.emitter.RegisterHandler(bf.svc)
	return bf
}

func TestCreateBulkZipsRatiosAndEngines(t *testing.T) {
	t.Parallel()

	mj := newScriptedAdapter(domain.EngineMidjourney)
	ig := newScriptedAdapter(domain.EngineImagen)
	bf := newBulkFixture(t, mj, ig)

	mj.queueSubmit(submittedDetails("mj-1", domain.StatusQueue), nil)
	ig.queueSubmit(submittedDetails("ig-1", domain.StatusQueue), nil)
	ig.queueSubmit(submittedDetails("ig-2", domain.StatusQueue), nil)

	// Two ratios for three engines: the third pair gets the 1:1 default.
	bulk, err := bf.svc.CreateBulk(context.Background(), BulkRequest{
		UserID:       uuid.New(),
		Prompt:       "a fox",
		AspectRatios: []string{"16:9", "1:1"},
		Engines:      []domain.Engine{domain.EngineMidjourney, domain.EngineImagen, domain.EngineImagen},
	})
	require.NoError(t, err)

	require.Len(t, bulk.Combinations, 3)
	assert.Equal(t, "16:9", bulk.Combinations[0].AspectRatio)
	assert.Equal(t, "1:1", bulk.Combinations[1].AspectRatio)
	assert.Equal(t, "1:1", bulk.Combinations[2].AspectRatio)
	assert.Equal(t, 3, bulk.TotalTasks)

	children, err := bf.store.FindByBulk(context.Background(), bulk.ID)
	require.NoError(t, err)
	assert.Len(t, children, 3)
	for _, child := range children {
		require.NotNil(t, child.BulkID)
		assert.Equal(t, bulk.ID, *child.BulkID)
	}
}

func TestCreateBulkRejectsInvalidCombination(t *testing.T) {
	t.Parallel()

	bf := newBulkFixture(t)

	_, err := bf.svc.CreateBulk(context.Background(), BulkRequest{
		UserID:       uuid.New(),
		Prompt:       "a fox",
		AspectRatios: []string{"7:5"},
		Engines:      []domain.Engine{domain.EngineMidjourney},
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = bf.svc.CreateBulk(context.Background(), BulkRequest{
		UserID:  uuid.New(),
		Prompt:  "a fox",
		Engines: nil,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBulkAggregatesChildOutcomes(t *testing.T) {
	t.Parallel()

	mj := newScriptedAdapter(domain.EngineMidjourney)
	ig := newScriptedAdapter(domain.EngineImagen)
	id := newScriptedAdapter(domain.EngineIdeogram)
	bf := newBulkFixture(t, mj, ig, id)

	mj.queueSubmit(submittedDetails("mj-1", domain.StatusQueue), nil)
	ig.queueSubmit(submittedDetails("ig-1", domain.StatusQueue), nil)
	id.queueSubmit(submittedDetails("id-1", domain.StatusQueue), nil)

	bulk, err := bf.svc.CreateBulk(context.Background(), BulkRequest{
		UserID:       uuid.New(),
		Prompt:       "a fox",
		AspectRatios: []string{"1:1", "1:1", "1:1"},
		Engines:      []domain.Engine{domain.EngineMidjourney, domain.EngineImagen, domain.EngineIdeogram},
	})
	require.NoError(t, err)

	children, err := bf.store.FindByBulk(context.Background(), bulk.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	byEngine := map[domain.Engine]uuid.UUID{}
	for _, c := range children {
		byEngine[c.Engine] = c.ID
	}

	// Two children complete, one fails permanently.
	mj.queueFetch(&engine.Details{ID: "mj-1", Status: domain.StatusCompleted, ResultURI: "grid"}, nil)
	require.NoError(t, bf.fixture.svc.Poll(context.Background(), byEngine[domain.EngineMidjourney]))

	ig.queueFetch(&engine.Details{ID: "ig-1", Status: domain.StatusCompleted, ResultURI: "img"}, nil)
	require.NoError(t, bf.fixture.svc.Poll(context.Background(), byEngine[domain.EngineImagen]))

	// Exhaust the ideogram child's retry budget with scripted failures.
	for i := 0; i < 5; i++ {
		id.queueSubmit(submittedDetails("id-r", domain.StatusQueue), nil)
	}
	for i := 0; i < 6; i++ {
		id.queueFetch(&engine.Details{ID: "id-1", Status: domain.StatusError, Error: "nsfw content detected"}, nil)
		require.NoError(t, bf.fixture.svc.Poll(context.Background(), byEngine[domain.EngineIdeogram]))
	}

	final, err := bf.bulks.GetByID(context.Background(), bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.TotalCompleted)
	assert.Equal(t, 1, final.TotalFailed)
	assert.True(t, final.Finalized())
	assert.Equal(t, domain.TaskStatusCompleted, final.TaskStatus)

	require.Len(t, final.Errors, 1)
	assert.Equal(t, domain.EngineIdeogram, final.Errors[0].Engine)
	assert.Contains(t, final.Errors[0].Message, "nsfw content detected")

	// The midjourney grid contributes four sections, imagen one.
	assert.Len(t, final.Results, 5)
	for _, r := range final.Results {
		assert.NotEmpty(t, r.Engine)
	}
}

func TestBulkReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	mj := newScriptedAdapter(domain.EngineMidjourney)
	bf := newBulkFixture(t, mj)

	mj.queueSubmit(submittedDetails("mj-1", domain.StatusQueue), nil)
	bulk, err := bf.svc.CreateBulk(context.Background(), BulkRequest{
		UserID:       uuid.New(),
		Prompt:       "a fox",
		AspectRatios: []string{"1:1"},
		Engines:      []domain.Engine{domain.EngineMidjourney},
	})
	require.NoError(t, err)

	children, err := bf.store.FindByBulk(context.Background(), bulk.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	mj.queueFetch(&engine.Details{ID: "mj-1", Status: domain.StatusCompleted, ResultURI: "grid"}, nil)
	require.NoError(t, bf.fixture.svc.Poll(context.Background(), children[0].ID))

	first, err := bf.bulks.GetByID(context.Background(), bulk.ID)
	require.NoError(t, err)
	require.True(t, first.Finalized())
	stamp := *first.CompletedAt

	// A duplicate notification recomputes to the same counters and keeps
	// the original completion stamp.
	require.NoError(t, bf.svc.reconcile(context.Background(), bulk.ID))

	second, err := bf.bulks.GetByID(context.Background(), bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.TotalCompleted)
	assert.Equal(t, 0, second.TotalFailed)
	assert.Equal(t, stamp, *second.CompletedAt)
	assert.Len(t, second.Results, 4)
}

func TestBulkCancelledChildCountsAsResolved(t *testing.T) {
	t.Parallel()

	mj := newScriptedAdapter(domain.EngineMidjourney)
	bf := newBulkFixture(t, mj)

	mj.queueSubmit(submittedDetails("mj-1", domain.StatusQueue), nil)
	bulk, err := bf.svc.CreateBulk(context.Background(), BulkRequest{
		UserID:       uuid.New(),
		Prompt:       "a fox",
		AspectRatios: []string{"1:1"},
		Engines:      []domain.Engine{domain.EngineMidjourney},
	})
	require.NoError(t, err)

	children, err := bf.store.FindByBulk(context.Background(), bulk.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	_, err = bf.fixture.svc.Cancel(context.Background(), children[0].ID)
	require.NoError(t, err)

	final, err := bf.bulks.GetByID(context.Background(), bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.TotalCompleted)
	assert.Equal(t, 0, final.TotalFailed)
	assert.True(t, final.Finalized())
}
