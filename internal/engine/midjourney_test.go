package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask(t *testing.T, eng domain.Engine, ratio string) *domain.Imagination {
	t.Helper()
	task, err := domain.NewImagination(uuid.New(), eng, ratio)
	require.NoError(t, err)
	task.Prompt = "a red fox in the snow"
	return task
}

func TestMidjourneyValidate(t *testing.T) {
	t.Parallel()

	m := NewMidjourney(config.MidjourneyConfig{}, http.DefaultClient)

	ok, _ := m.Validate("16:9")
	assert.True(t, ok)

	ok, reason := m.Validate("7:5")
	assert.False(t, ok)
	assert.Contains(t, reason, "aspect_ratio must be one of them")
}

func TestMidjourneySubmit(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/task", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uuid":"mj-123","status":"initialized","percentage":0}`))
	}))
	defer srv.Close()

	m := NewMidjourney(config.MidjourneyConfig{BaseURL: srv.URL, Token: "secret-token"}, srv.Client())
	task := newTestTask(t, domain.EngineMidjourney, "16:9")

	details, err := m.Submit(context.Background(), task, "https://api.example.com/cb")
	require.NoError(t, err)

	assert.Equal(t, "secret-token", gotAuth)
	assert.Equal(t, "a red fox in the snow --ar 16:9", gotBody["prompt"])
	assert.Equal(t, "imagine", gotBody["command"])
	assert.Equal(t, "https://api.example.com/cb", gotBody["callback"])

	assert.Equal(t, "mj-123", details.ID)
	assert.Equal(t, domain.StatusInit, details.Status)
	require.NotNil(t, details.State)
	assert.Equal(t, StateKindMidjourney, details.State.Kind)
	assert.Equal(t, "mj-123", details.State.Midjourney.TaskID)
}

func TestMidjourneyEchoedCommandDoesNotBecomePrompt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uuid":"mj-123","status":"queue","command":"imagine","prompt":"a red fox in the snow --ar 16:9"}`))
	}))
	defer srv.Close()

	m := NewMidjourney(config.MidjourneyConfig{BaseURL: srv.URL}, srv.Client())
	task := newTestTask(t, domain.EngineMidjourney, "16:9")

	details, err := m.Submit(context.Background(), task, "https://api.example.com/cb")
	require.NoError(t, err)

	// The echoed command and suffixed prompt stay out of Details so the
	// task's stored prompt is never overwritten by them.
	assert.Empty(t, details.Prompt)
	assert.Equal(t, domain.StatusQueue, details.Status)
}

func TestMidjourneyFetchResultStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		want     domain.Status
	}{
		{"initialized", domain.StatusInit},
		{"queue", domain.StatusQueue},
		{"waiting", domain.StatusWaiting},
		{"running", domain.StatusProcessing},
		{"completed", domain.StatusCompleted},
		{"error", domain.StatusError},
		// Unknown vocabulary fails safe instead of hanging the task.
		{"daydreaming", domain.StatusError},
	}

	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/task/mj-123", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"uuid":"mj-123","status":"` + tc.provider + `","percentage":"57%"}`))
			}))
			defer srv.Close()

			m := NewMidjourney(config.MidjourneyConfig{BaseURL: srv.URL}, srv.Client())
			task := newTestTask(t, domain.EngineMidjourney, "1:1")
			raw, err := EncodeState(&State{
				Kind:       StateKindMidjourney,
				Midjourney: &MidjourneyState{TaskID: "mj-123"},
			})
			require.NoError(t, err)
			task.PollState = raw

			details, err := m.FetchResult(context.Background(), task)
			require.NoError(t, err)
			assert.Equal(t, tc.want, details.Status)
			assert.Equal(t, 57, details.Progress)
		})
	}
}

func TestMidjourneyFetchResultMissingState(t *testing.T) {
	t.Parallel()

	m := NewMidjourney(config.MidjourneyConfig{BaseURL: "http://unused"}, http.DefaultClient)
	task := newTestTask(t, domain.EngineMidjourney, "1:1")

	_, err := m.FetchResult(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrMissingAdapterState)
}

func TestMidjourneySubmitProviderFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewMidjourney(config.MidjourneyConfig{BaseURL: srv.URL}, srv.Client())
	task := newTestTask(t, domain.EngineMidjourney, "1:1")

	_, err := m.Submit(context.Background(), task, "https://api.example.com/cb")
	assert.ErrorIs(t, err, domain.ErrProviderRequest)
}
