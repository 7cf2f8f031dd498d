package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/types"
)

type fakeGenerator struct {
	artifact *types.ValidatedArtifact
	gotReq   *types.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req *types.Request) *types.ValidatedArtifact {
	f.gotReq = req
	return f.artifact
}

func TestGenerateHandler_HandleGenerate_Success(t *testing.T) {
	gen := &fakeGenerator{artifact: &types.ValidatedArtifact{
		Content: map[string]any{
			"id":          "dream-1",
			"title":       "A Dragon Over Mountains",
			"description": "A long enough description of the scene.",
			"source":      "openai",
			"confidence":  0.9,
		},
		Schema:     types.DreamResponseSchemaName,
		Source:     "openai",
		Confidence: 0.9,
	}}
	h := NewGenerateHandler(gen, zap.NewNop())

	body := `{"text":"a dragon over mountains","style":"ethereal"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/parse-dream", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")

	h.HandleGenerate(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gen.gotReq)
	assert.Equal(t, "a dragon over mountains", gen.gotReq.Prompt)
	assert.Equal(t, "ethereal", gen.gotReq.Style)
	assert.Equal(t, defaultTimeoutBudgetMs, gen.gotReq.TimeoutBudgetMs)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "openai", data["source"])
}

func TestGenerateHandler_HandleGenerate_EmptyText(t *testing.T) {
	gen := &fakeGenerator{}
	h := NewGenerateHandler(gen, zap.NewNop())

	body := `{"text":""}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/parse-dream", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")

	h.HandleGenerate(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, gen.gotReq)
}

func TestGenerateHandler_HandleGenerate_WrongContentType(t *testing.T) {
	gen := &fakeGenerator{}
	h := NewGenerateHandler(gen, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/parse-dream", bytes.NewBufferString(`{"text":"x"}`))
	r.Header.Set("Content-Type", "text/plain")

	h.HandleGenerate(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateHandler_HandleGenerate_CustomTimeoutBudgetClamped(t *testing.T) {
	gen := &fakeGenerator{artifact: &types.ValidatedArtifact{Content: map[string]any{}}}
	h := NewGenerateHandler(gen, zap.NewNop())

	body := `{"text":"a castle in the clouds","options":{"timeout_budget_ms":999999}}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/parse-dream", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")

	h.HandleGenerate(w, r)

	require.NotNil(t, gen.gotReq)
	assert.Equal(t, maxTimeoutBudgetMs, gen.gotReq.TimeoutBudgetMs)
}

func TestGenerateHandler_HandleGenerate_ExplicitZeroTimeoutBudgetForcesImmediateDeadline(t *testing.T) {
	gen := &fakeGenerator{artifact: &types.ValidatedArtifact{Content: map[string]any{}}}
	h := NewGenerateHandler(gen, zap.NewNop())

	body := `{"text":"a castle in the clouds","options":{"timeout_budget_ms":0}}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/parse-dream", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")

	h.HandleGenerate(w, r)

	require.NotNil(t, gen.gotReq)
	assert.Equal(t, 0, gen.gotReq.TimeoutBudgetMs)
	assert.False(t, gen.gotReq.Deadline().After(gen.gotReq.CreatedAt))
}

func TestGenerateHandler_HandleGenerate_NilArtifact(t *testing.T) {
	gen := &fakeGenerator{artifact: nil}
	h := NewGenerateHandler(gen, zap.NewNop())

	body := `{"text":"a castle in the clouds"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/parse-dream", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")

	h.HandleGenerate(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
