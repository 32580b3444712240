package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/internal/config"
)

func TestOpenAIModelEmbeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)

		resp := openAIEmbedResponse{Model: req.Model}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{0.1, 0.2, 0.3}, Index: 0})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	m, err := Open(config.EmbeddingConfig{
		Model:     "openai",
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		Dimension: 3,
	})
	require.NoError(t, err)
	defer m.Close()

	vec, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIModelHonorsConfiguredName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-large", req.Model)

		resp := openAIEmbedResponse{Model: req.Model}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{1, 2, 3}, Index: 0})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	m, err := Open(config.EmbeddingConfig{
		Model:     "openai",
		Name:      "text-embedding-3-large",
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		Dimension: 3,
	})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "text-embedding-3-large", m.Name())

	_, err = m.Embed(context.Background(), "hello")
	require.NoError(t, err)
}

func TestOpenAIModelSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	m, err := Open(config.EmbeddingConfig{
		Model:     "openai",
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		Dimension: 3,
	})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAIModelRejectsDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIEmbedResponse{}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{0.1, 0.2}, Index: 0})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	m, err := Open(config.EmbeddingConfig{
		Model:     "openai",
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		Dimension: 3,
	})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOpenAIModelRequiresAPIKey(t *testing.T) {
	_, err := Open(config.EmbeddingConfig{Model: "openai", Dimension: 3})
	assert.Error(t, err)
}

func TestOpenAIModelEmptyTextSkipsAPI(t *testing.T) {
	m, err := Open(config.EmbeddingConfig{
		Model:     "openai",
		BaseURL:   "http://127.0.0.1:1", // unreachable; must not be called
		APIKey:    "test-key",
		Dimension: 4,
	})
	require.NoError(t, err)
	defer m.Close()

	vec, err := m.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), vec)
}
