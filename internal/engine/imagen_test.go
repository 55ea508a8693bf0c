package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagenValidate(t *testing.T) {
	t.Parallel()

	g := NewImagen(config.ImagenConfig{}, http.DefaultClient)

	ok, _ := g.Validate("3:4")
	assert.True(t, ok)

	ok, reason := g.Validate("21:9")
	assert.False(t, ok)
	assert.Contains(t, reason, "aspect_ratio must be one of them")
}

func TestImagenSubmitOpensSessionThenTask(t *testing.T) {
	t.Parallel()

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/session":
			_, _ = w.Write([]byte(`{"id":"sess-9"}`))
		case "/session/sess-9/task":
			_, _ = w.Write([]byte(`{"taskId":"task-7","status":"RUNNING"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	g := NewImagen(config.ImagenConfig{BaseURL: srv.URL, APIKey: "test-key"}, srv.Client())
	task := newTestTask(t, domain.EngineImagen, "1:1")

	details, err := g.Submit(context.Background(), task, "https://api.example.com/cb")
	require.NoError(t, err)

	assert.Equal(t, []string{"POST /session", "POST /session/sess-9/task"}, paths)
	assert.Equal(t, "task-7", details.ID)
	assert.Equal(t, domain.StatusProcessing, details.Status)
	require.NotNil(t, details.State)
	assert.Equal(t, StateKindImagen, details.State.Kind)
	assert.Equal(t, "sess-9", details.State.Imagen.SessionID)
	assert.Equal(t, "task-7", details.State.Imagen.TaskID)
}

func TestImagenFetchResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		want     domain.Status
		wantURI  string
		wantErr  string
	}{
		{
			name: "running",
			body: `{"taskId":"task-7","status":"RUNNING"}`,
			want: domain.StatusProcessing,
		},
		{
			name:    "finished with attachment",
			body:    `{"taskId":"task-7","status":"FINISHED","message":{"attachments":[{"content":"https://cdn.example.com/out.png"}]}}`,
			want:    domain.StatusCompleted,
			wantURI: "https://cdn.example.com/out.png",
		},
		{
			name:    "failed",
			body:    `{"taskId":"task-7","status":"FAILED","error":"quota exhausted"}`,
			want:    domain.StatusError,
			wantErr: "quota exhausted",
		},
		{
			name: "unknown vocabulary fails safe",
			body: `{"taskId":"task-7","status":"PONDERING"}`,
			want: domain.StatusError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/session/sess-9/task/task-7", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			g := NewImagen(config.ImagenConfig{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
			task := newTestTask(t, domain.EngineImagen, "1:1")
			raw, err := EncodeState(&State{
				Kind:   StateKindImagen,
				Imagen: &ImagenState{TaskID: "task-7", SessionID: "sess-9"},
			})
			require.NoError(t, err)
			task.PollState = raw

			details, err := g.FetchResult(context.Background(), task)
			require.NoError(t, err)
			assert.Equal(t, tc.want, details.Status)
			assert.Equal(t, tc.wantURI, details.ResultURI)
			assert.Equal(t, tc.wantErr, details.Error)
		})
	}
}

func TestImagenFetchResultRequiresBothIdentifiers(t *testing.T) {
	t.Parallel()

	g := NewImagen(config.ImagenConfig{BaseURL: "http://unused"}, http.DefaultClient)
	task := newTestTask(t, domain.EngineImagen, "1:1")

	raw, err := EncodeState(&State{
		Kind:   StateKindImagen,
		Imagen: &ImagenState{TaskID: "task-7"},
	})
	require.NoError(t, err)
	task.PollState = raw

	_, err = g.FetchResult(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrMissingAdapterState)
}
