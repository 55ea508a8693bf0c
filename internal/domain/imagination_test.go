package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImagination(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	img, err := domain.NewImagination(userID, domain.EngineMidjourney, "16:9")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, img.ID)
	assert.Equal(t, userID, img.UserID)
	assert.Equal(t, domain.KindImagine, img.Kind)
	assert.Equal(t, domain.StatusDraft, img.Status)
	assert.Equal(t, domain.TaskStatusDraft, img.TaskStatus)
	assert.Equal(t, domain.ProgressUnknown, img.Progress)
}

func TestNewImaginationValidation(t *testing.T) {
	t.Parallel()

	_, err := domain.NewImagination(uuid.Nil, domain.EngineMidjourney, "1:1")
	assert.ErrorIs(t, err, domain.ErrEmptyImaginationUserID)

	_, err = domain.NewImagination(uuid.New(), domain.Engine("doodler"), "1:1")
	assert.ErrorIs(t, err, domain.ErrInvalidEngine)
}

func TestNewBackgroundRemoval(t *testing.T) {
	t.Parallel()

	img, err := domain.NewBackgroundRemoval(uuid.New(), domain.EngineCjwbw, "https://example.com/in.png")
	require.NoError(t, err)

	assert.Equal(t, domain.KindBackgroundRemoval, img.Kind)
	assert.Equal(t, "https://example.com/in.png", img.ImageURL)
	assert.Equal(t, domain.StatusDraft, img.Status)
}

func TestImaginationSetStatus(t *testing.T) {
	t.Parallel()

	img, err := domain.NewImagination(uuid.New(), domain.EngineImagen, "1:1")
	require.NoError(t, err)

	require.NoError(t, img.SetStatus(domain.StatusQueue))
	assert.Equal(t, domain.StatusQueue, img.Status)
	assert.Equal(t, domain.TaskStatusProcessing, img.TaskStatus)

	err = img.SetStatus(domain.Status("exploded"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	// The failed transition must not have touched the stored status.
	assert.Equal(t, domain.StatusQueue, img.Status)
}

func TestImaginationReport(t *testing.T) {
	t.Parallel()

	img, err := domain.NewImagination(uuid.New(), domain.EngineImagen, "1:1")
	require.NoError(t, err)

	img.Report("first")
	img.Report("second")
	assert.Equal(t, []string{"first", "second"}, img.Reports)
}

func TestImaginationAge(t *testing.T) {
	t.Parallel()

	img, err := domain.NewImagination(uuid.New(), domain.EngineImagen, "1:1")
	require.NoError(t, err)

	now := img.CreatedAt.Add(11 * time.Minute)
	assert.Equal(t, 11*time.Minute, img.Age(now))
}
