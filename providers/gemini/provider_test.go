package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/providers"
	"github.com/dreamscapes/gateway/types"
)

func TestProvider_Name(t *testing.T) {
	p := New(providers.GeminiConfig{}, zap.NewNop())
	assert.Equal(t, "gemini", p.Name())
}

func TestNew_DefaultsBaseURLAndTimeout(t *testing.T) {
	p := New(providers.GeminiConfig{APIKey: "key"}, nil)
	assert.Equal(t, defaultBaseURL, p.cfg.BaseURL)
	assert.Equal(t, 60*time.Second, p.client.Timeout)
}

func TestProvider_Invoke_SendsExpectedHeadersAndPath(t *testing.T) {
	var gotAPIKey, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		require.NoError(t, json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "a dream"}}}}},
		}))
	}))
	defer server.Close()

	p := New(providers.GeminiConfig{APIKey: "secret", BaseURL: server.URL, Model: "gemini-test"}, zap.NewNop())
	raw, status, err := p.Invoke(context.Background(), "describe a dream", types.GenerationParams{}, time.Now().Add(5*time.Second))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a dream", string(raw))
	assert.Equal(t, "secret", gotAPIKey)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
}

func TestProvider_Invoke_UsesDefaultModelWhenUnset(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}}},
		}))
	}))
	defer server.Close()

	p := New(providers.GeminiConfig{APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	_, _, err := p.Invoke(context.Background(), "prompt", types.GenerationParams{}, time.Now().Add(5*time.Second))
	require.NoError(t, err)

	assert.Contains(t, gotPath, defaultModel)
}

func TestProvider_Invoke_ErrorsOnEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(geminiResponse{Candidates: nil}))
	}))
	defer server.Close()

	p := New(providers.GeminiConfig{APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	_, status, err := p.Invoke(context.Background(), "prompt", types.GenerationParams{}, time.Now().Add(5*time.Second))

	require.Error(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestProvider_Invoke_ReturnsDecodedErrorMessageOnHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	p := New(providers.GeminiConfig{APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	_, status, err := p.Invoke(context.Background(), "prompt", types.GenerationParams{}, time.Now().Add(5*time.Second))

	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestProvider_Invoke_SetsGenerationConfigWhenParamsPresent(t *testing.T) {
	var gotReq geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.NoError(t, json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}}},
		}))
	}))
	defer server.Close()

	p := New(providers.GeminiConfig{APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	_, _, err := p.Invoke(context.Background(), "prompt", types.GenerationParams{Temperature: 0.7, MaxTokens: 512}, time.Now().Add(5*time.Second))
	require.NoError(t, err)

	require.NotNil(t, gotReq.GenerationConfig)
	assert.Equal(t, 0.7, gotReq.GenerationConfig.Temperature)
	assert.Equal(t, 512, gotReq.GenerationConfig.MaxOutputTokens)
}
