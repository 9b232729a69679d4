package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reelforge/server/internal/model"
	"github.com/reelforge/server/internal/shared/config"
	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *VeoClient {
	return NewVeoClient(&config.VideoProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "veo-2.0-generate-001",
	})
}

func TestVeoClient_Start(t *testing.T) {
	t.Run("Returns a pending operation handle", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Contains(t, r.URL.Path, "predictLongRunning")
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			instances := body["instances"].([]any)
			require.Len(t, instances, 1)

			_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/render-42"})
		}))
		defer srv.Close()

		op, err := newTestClient(srv).Start(context.Background(), &RenderRequest{
			Prompt:          "a city at night",
			AspectRatio:     model.AspectLandscape,
			DurationSeconds: 8,
		})
		require.NoError(t, err)
		assert.Equal(t, "operations/render-42", op.Name)
		assert.False(t, op.Done)
	})

	t.Run("Auth failure maps to the unauthorized sentinel", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"},
			})
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Start(context.Background(), &RenderRequest{Prompt: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Quota failure keeps the provider message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": 429, "message": "Quota exceeded for requests", "status": "RESOURCE_EXHAUSTED"},
			})
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Start(context.Background(), &RenderRequest{Prompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Quota exceeded")
		assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
		assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestVeoClient_Poll(t *testing.T) {
	t.Run("Finished operation carries the video URI", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/operations/render-42", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "operations/render-42",
				"done": true,
				"response": map[string]any{
					"generateVideoResponse": map[string]any{
						"generatedSamples": []map[string]any{
							{"video": map[string]any{"uri": "https://provider.example/out.mp4"}},
						},
					},
				},
			})
		}))
		defer srv.Close()

		op, err := newTestClient(srv).Poll(context.Background(), &Operation{Name: "operations/render-42"})
		require.NoError(t, err)
		assert.True(t, op.Done)
		assert.Equal(t, "https://provider.example/out.mp4", op.VideoURI)
	})

	t.Run("Finished operation with an error keeps the message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name":  "operations/render-42",
				"done":  true,
				"error": map[string]any{"code": 8, "message": "billing account not configured"},
			})
		}))
		defer srv.Close()

		op, err := newTestClient(srv).Poll(context.Background(), &Operation{Name: "operations/render-42"})
		require.NoError(t, err)
		assert.True(t, op.Done)
		assert.Equal(t, "billing account not configured", op.ErrorMessage)
	})
}

func TestVeoClient_Download(t *testing.T) {
	t.Run("Appends the key to a bare URI", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			_, _ = w.Write([]byte("video-bytes"))
		}))
		defer srv.Close()

		data, err := newTestClient(srv).Download(context.Background(), srv.URL+"/files/out.mp4")
		require.NoError(t, err)
		assert.Equal(t, []byte("video-bytes"), data)
	})

	t.Run("Appends the key after existing query parameters", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("alt"))
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			_, _ = w.Write([]byte("video-bytes"))
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Download(context.Background(), srv.URL+"/files/out.mp4?alt=1")
		require.NoError(t, err)
	})

	t.Run("Non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Download(context.Background(), srv.URL+"/files/out.mp4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}
